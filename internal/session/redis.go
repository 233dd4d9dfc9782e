package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const redisKeyPrefix = "sentinel:session:"

// RedisStore mirrors session history into Redis so it survives process
// restarts. The per-session lock stays local: a stable *Session is cached
// per key, hydrated from Redis on first access and written through on Save.
// This assumes a single gateway instance owns any given session key.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.Mutex
	local map[string]*Session
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if ttl == 0 {
		ttl = time.Hour
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		local:  make(map[string]*Session),
	}, nil
}

// GetOrCreate implements Store.
func (st *RedisStore) GetOrCreate(ctx context.Context, key string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.local[key]; ok {
		return s, nil
	}

	s := &Session{Key: key}
	data, err := st.client.Get(ctx, redisKeyPrefix+key).Bytes()
	switch {
	case err == redis.Nil:
		now := time.Now()
		s.CreatedAt = now
		s.LastActive = now
	case err != nil:
		return nil, fmt.Errorf("redis get failed: %w", err)
	default:
		if err := json.Unmarshal(data, s); err != nil {
			// Corrupt record: start the session fresh rather than failing
			// every request on this key.
			log.Warn().Err(err).Str("session", key).Msg("discarding unreadable session record")
			now := time.Now()
			*s = Session{Key: key, CreatedAt: now, LastActive: now}
		}
	}

	st.local[key] = s
	return s, nil
}

// Save implements Store. Caller must hold the session lock.
func (st *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := st.client.Set(ctx, redisKeyPrefix+s.Key, data, st.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// EvictExpired implements Store. Redis evicts its own records via key TTL;
// this only prunes the local pointer cache.
func (st *RedisStore) EvictExpired(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	cutoff := now.Add(-st.ttl)
	evicted := 0
	for key, s := range st.local {
		if s.LastActive.Before(cutoff) {
			delete(st.local, key)
			evicted++
		}
	}
	return evicted
}

// Len implements Store, counting locally owned sessions.
func (st *RedisStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.local)
}

// Close implements Store.
func (st *RedisStore) Close() error { return st.client.Close() }
