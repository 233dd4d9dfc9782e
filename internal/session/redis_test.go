package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-gw/sentinel/internal/session"
)

func newRedisStore(t *testing.T) (*session.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := session.NewRedisStore(context.Background(), "redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	st, _ := newRedisStore(t)
	ctx := context.Background()

	s, err := st.GetOrCreate(ctx, "agent-1")
	require.NoError(t, err)

	s.Lock()
	s.AppendTurn(session.Turn{ID: "t1", Text: "hello", At: time.Now()}, 5)
	s.Terminal = true
	require.NoError(t, st.Save(ctx, s))
	s.Unlock()

	// Same process: stable pointer.
	again, err := st.GetOrCreate(ctx, "agent-1")
	require.NoError(t, err)
	assert.Same(t, s, again)
}

func TestRedisStore_SurvivesRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	first, err := session.NewRedisStore(ctx, "redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)

	s, err := first.GetOrCreate(ctx, "agent-1")
	require.NoError(t, err)
	s.Lock()
	s.AppendTurn(session.Turn{ID: "t1", Text: "hello", Fingerprint: "fp", At: time.Now()}, 5)
	require.NoError(t, first.Save(ctx, s))
	s.Unlock()
	require.NoError(t, first.Close())

	// A new store, as after a process restart, hydrates from Redis.
	second, err := session.NewRedisStore(ctx, "redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)
	defer second.Close()

	restored, err := second.GetOrCreate(ctx, "agent-1")
	require.NoError(t, err)
	restored.Lock()
	require.Len(t, restored.Turns, 1)
	assert.Equal(t, "hello", restored.Turns[0].Text)
	assert.Equal(t, "fp", restored.Turns[0].Fingerprint)
	restored.Unlock()
}

func TestRedisStore_CorruptRecordStartsFresh(t *testing.T) {
	st, mr := newRedisStore(t)
	require.NoError(t, mr.Set("sentinel:session:broken", "{not json"))

	s, err := st.GetOrCreate(context.Background(), "broken")
	require.NoError(t, err)
	s.Lock()
	assert.Empty(t, s.Turns)
	s.Unlock()
}

func TestRedisStore_BadURL(t *testing.T) {
	_, err := session.NewRedisStore(context.Background(), "not-a-url", time.Hour)
	require.Error(t, err)
}
