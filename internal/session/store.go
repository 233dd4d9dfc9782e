// Package session keeps bounded per-session turn history for the gateway.
//
// DESIGN: Each session is guarded by its own mutex so requests for different
// sessions proceed fully in parallel while two in-flight requests on the
// same key serialize. The store itself only guards the session map; the
// per-session lock is never held during upstream network calls.
package session

import (
	"context"
	"sync"
	"time"
)

// Session is a caller-scoped conversation context identified by an opaque
// key, holding bounded recent-turn history and a terminal flag.
//
// Callers must hold Lock while reading or mutating Turns and Terminal.
type Session struct {
	Key        string    `json:"key"`
	Turns      []Turn    `json:"turns"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Terminal   bool      `json:"terminal"`

	mu sync.Mutex
}

// Lock serializes same-session mutation. A second concurrent request for
// the same key blocks here until the first commits its turn.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the per-session lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// AppendTurn adds a turn, evicting the oldest when the bound is reached.
// Eviction is strictly FIFO. Caller must hold the session lock.
func (s *Session) AppendTurn(t Turn, limit int) {
	s.Turns = append(s.Turns, t)
	if limit > 0 && len(s.Turns) > limit {
		s.Turns = s.Turns[len(s.Turns)-limit:]
	}
	s.LastActive = t.At
}

// Recent returns pointers to the last k turns, most-recent-first.
// Caller must hold the session lock and not retain the pointers past Unlock.
func (s *Session) Recent(k int) []*Turn {
	n := len(s.Turns)
	if k > n {
		k = n
	}
	out := make([]*Turn, 0, k)
	for i := n - 1; i >= n-k; i-- {
		out = append(out, &s.Turns[i])
	}
	return out
}

// LastTurn returns the most recent turn, or nil. Caller must hold the lock.
func (s *Session) LastTurn() *Turn {
	if len(s.Turns) == 0 {
		return nil
	}
	return &s.Turns[len(s.Turns)-1]
}

// Reset clears history and the terminal flag. Caller must hold the lock.
func (s *Session) Reset() {
	s.Turns = nil
	s.Terminal = false
}

// Store is the session persistence contract. MemoryStore is the default;
// RedisStore mirrors sessions into Redis so history survives restarts.
type Store interface {
	// GetOrCreate returns the session for key, creating it on first use.
	// The returned pointer is stable for the session's lifetime so its
	// lock identity is shared by all concurrent requests on the key.
	GetOrCreate(ctx context.Context, key string) (*Session, error)
	// Save persists the session's current state. Caller must hold the
	// session lock. A no-op for the memory backend.
	Save(ctx context.Context, s *Session) error
	// EvictExpired removes sessions idle longer than the TTL.
	// Returns how many were evicted.
	EvictExpired(now time.Time) int
	// Len reports the number of live sessions.
	Len() int
	// Close stops background work.
	Close() error
}

// MemoryStore is the in-process Store backed by a map.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	ttl         time.Duration
	maxSessions int
	done        chan struct{}
	closeOnce   sync.Once
}

// MemoryStoreOptions tune the memory store.
type MemoryStoreOptions struct {
	TTL           time.Duration
	MaxSessions   int
	SweepInterval time.Duration // 0 disables the background sweep
}

// NewMemoryStore creates a memory store and starts its eviction sweep.
func NewMemoryStore(opts MemoryStoreOptions) *MemoryStore {
	if opts.TTL == 0 {
		opts.TTL = time.Hour
	}
	st := &MemoryStore{
		sessions:    make(map[string]*Session),
		ttl:         opts.TTL,
		maxSessions: opts.MaxSessions,
		done:        make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		go st.sweepLoop(opts.SweepInterval)
	}
	return st
}

// GetOrCreate implements Store.
func (st *MemoryStore) GetOrCreate(_ context.Context, key string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[key]
	st.mu.RUnlock()
	if ok {
		return s, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[key]; ok {
		return s, nil
	}
	if st.maxSessions > 0 && len(st.sessions) >= st.maxSessions {
		st.evictOldestLocked()
	}
	now := time.Now()
	s = &Session{Key: key, CreatedAt: now, LastActive: now}
	st.sessions[key] = s
	return s, nil
}

// Save implements Store. History already lives in the shared pointer.
func (st *MemoryStore) Save(_ context.Context, _ *Session) error { return nil }

// EvictExpired implements Store.
func (st *MemoryStore) EvictExpired(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	cutoff := now.Add(-st.ttl)
	evicted := 0
	for key, s := range st.sessions {
		if s.LastActive.Before(cutoff) {
			delete(st.sessions, key)
			evicted++
		}
	}
	return evicted
}

// Len implements Store.
func (st *MemoryStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Close implements Store.
func (st *MemoryStore) Close() error {
	st.closeOnce.Do(func() { close(st.done) })
	return nil
}

// evictOldestLocked drops the oldest-idle session to stay under capacity.
func (st *MemoryStore) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, s := range st.sessions {
		if oldestKey == "" || s.LastActive.Before(oldestAt) {
			oldestKey = key
			oldestAt = s.LastActive
		}
	}
	if oldestKey != "" {
		delete(st.sessions, oldestKey)
	}
}

func (st *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			st.EvictExpired(time.Now())
		case <-st.done:
			return
		}
	}
}
