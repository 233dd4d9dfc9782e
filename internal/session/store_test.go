package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-gw/sentinel/internal/session"
)

func newStore(t *testing.T, opts session.MemoryStoreOptions) *session.MemoryStore {
	t.Helper()
	st := session.NewMemoryStore(opts)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func turn(text string, at time.Time) session.Turn {
	return session.Turn{ID: text, Text: text, At: at, Outcome: session.OutcomePassed}
}

func TestMemoryStore_GetOrCreateStablePointer(t *testing.T) {
	st := newStore(t, session.MemoryStoreOptions{TTL: time.Hour})

	a, err := st.GetOrCreate(context.Background(), "agent-1")
	require.NoError(t, err)
	b, err := st.GetOrCreate(context.Background(), "agent-1")
	require.NoError(t, err)

	assert.Same(t, a, b, "same key must share lock identity")
	assert.Equal(t, 1, st.Len())
}

func TestSession_AppendTurnBounded(t *testing.T) {
	st := newStore(t, session.MemoryStoreOptions{TTL: time.Hour})
	s, err := st.GetOrCreate(context.Background(), "k")
	require.NoError(t, err)

	s.Lock()
	for i := 0; i < 8; i++ {
		s.AppendTurn(turn(fmt.Sprintf("t%d", i), time.Now()), 5)
	}
	require.Len(t, s.Turns, 5)
	// Strictly FIFO: the oldest three fell off.
	assert.Equal(t, "t3", s.Turns[0].Text)
	assert.Equal(t, "t7", s.Turns[4].Text)
	s.Unlock()
}

func TestSession_RecentMostRecentFirst(t *testing.T) {
	s := &session.Session{}
	s.Lock()
	now := time.Now()
	s.AppendTurn(turn("a", now), 5)
	s.AppendTurn(turn("b", now), 5)
	s.AppendTurn(turn("c", now), 5)

	recent := s.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Text)
	assert.Equal(t, "b", recent[1].Text)

	// Asking for more than exists returns what there is.
	assert.Len(t, s.Recent(10), 3)
	s.Unlock()
}

func TestSession_Reset(t *testing.T) {
	s := &session.Session{Terminal: true}
	s.Lock()
	s.AppendTurn(turn("x", time.Now()), 5)
	s.Reset()
	assert.Empty(t, s.Turns)
	assert.False(t, s.Terminal)
	s.Unlock()
}

func TestMemoryStore_EvictExpired(t *testing.T) {
	st := newStore(t, session.MemoryStoreOptions{TTL: time.Minute})

	old, err := st.GetOrCreate(context.Background(), "old")
	require.NoError(t, err)
	old.Lock()
	old.AppendTurn(turn("x", time.Now().Add(-10*time.Minute)), 5)
	old.Unlock()

	fresh, err := st.GetOrCreate(context.Background(), "fresh")
	require.NoError(t, err)
	fresh.Lock()
	fresh.AppendTurn(turn("y", time.Now()), 5)
	fresh.Unlock()

	evicted := st.EvictExpired(time.Now())
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, st.Len())

	// The evicted key comes back empty.
	again, err := st.GetOrCreate(context.Background(), "old")
	require.NoError(t, err)
	again.Lock()
	assert.Empty(t, again.Turns)
	again.Unlock()
}

func TestMemoryStore_CapacityEvictsOldestIdle(t *testing.T) {
	st := newStore(t, session.MemoryStoreOptions{TTL: time.Hour, MaxSessions: 2})

	a, _ := st.GetOrCreate(context.Background(), "a")
	a.Lock()
	a.AppendTurn(turn("x", time.Now().Add(-2*time.Minute)), 5)
	a.Unlock()

	b, _ := st.GetOrCreate(context.Background(), "b")
	b.Lock()
	b.AppendTurn(turn("y", time.Now()), 5)
	b.Unlock()

	_, err := st.GetOrCreate(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Len(), "capacity bound must hold")
}

func TestMemoryStore_ConcurrentSameKey(t *testing.T) {
	st := newStore(t, session.MemoryStoreOptions{TTL: time.Hour})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := st.GetOrCreate(context.Background(), "shared")
			if err != nil {
				t.Error(err)
				return
			}
			s.Lock()
			s.AppendTurn(turn(fmt.Sprintf("t%d", i), time.Now()), 5)
			s.Unlock()
		}(i)
	}
	wg.Wait()

	s, _ := st.GetOrCreate(context.Background(), "shared")
	s.Lock()
	assert.Len(t, s.Turns, 5, "history stays bounded under concurrency")
	s.Unlock()
	assert.Equal(t, 1, st.Len())
}
