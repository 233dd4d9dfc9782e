package costcontrol

import (
	"sync"
	"sync/atomic"
	"time"
)

const spendTTL = 24 * time.Hour

// Tracker tracks per-session API spend and applies the economic throttle.
type Tracker struct {
	config   Config
	sessions map[string]*SessionSpend
	mu       sync.RWMutex

	// Atomic accumulators, stored as nano-dollars for atomic int64 ops.
	globalCostNano int64
	savedNano      int64
	done           chan struct{}
	closeOnce      sync.Once
}

// NewTracker creates a tracker and starts its background cleanup.
func NewTracker(cfg Config) *Tracker {
	t := &Tracker{
		config:   cfg,
		sessions: make(map[string]*SessionSpend),
		done:     make(chan struct{}),
	}
	go t.cleanup()
	return t
}

// CheckThrottle decides whether a request with the given estimated cost
// may proceed. A session over its cumulative cap, or a request whose cost
// spikes past SpikeFactor times the previous one (above SpikeFloor), is
// throttled. When the tracker is disabled it always allows but still
// reports the session's spend.
func (t *Tracker) CheckThrottle(sessionID string, estimatedCost float64) ThrottleResult {
	t.mu.RLock()
	s := t.sessions[sessionID]
	var cumulative, last float64
	if s != nil {
		cumulative = s.Cost
		last = s.LastCost
	}
	t.mu.RUnlock()

	if !t.config.Enabled {
		return ThrottleResult{Throttled: false, SessionCost: cumulative}
	}

	if t.config.SessionCap > 0 && cumulative > t.config.SessionCap {
		return ThrottleResult{Throttled: true, Reason: ReasonSessionCap, SessionCost: cumulative}
	}

	if t.config.SpikeFactor > 0 && last > 0 &&
		estimatedCost > last*t.config.SpikeFactor &&
		estimatedCost > t.config.SpikeFloor {
		return ThrottleResult{Throttled: true, Reason: ReasonCostSpike, SessionCost: cumulative}
	}

	return ThrottleResult{Throttled: false, SessionCost: cumulative}
}

// RecordUsage records actual cost from token counts after a response.
func (t *Tracker) RecordUsage(sessionID, model string, inputTokens, outputTokens int) {
	cost := CalculateCost(inputTokens, outputTokens, GetModelPricing(model))

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.getOrCreateLocked(sessionID)
	s.Cost += cost
	s.LastCost = cost
	s.RequestCount++
	s.LastUpdated = time.Now()

	atomic.AddInt64(&t.globalCostNano, int64(cost*1e9))
}

// RecordIntervention credits nominal avoided spend for a blocked request.
func (t *Tracker) RecordIntervention(savedUSD float64) {
	atomic.AddInt64(&t.savedNano, int64(savedUSD*1e9))
}

// GlobalCost returns total accumulated spend across all sessions.
func (t *Tracker) GlobalCost() float64 {
	return float64(atomic.LoadInt64(&t.globalCostNano)) / 1e9
}

// TotalSaved returns the accumulated avoided-spend credit.
func (t *Tracker) TotalSaved() float64 {
	return float64(atomic.LoadInt64(&t.savedNano)) / 1e9
}

// SessionSpendSnapshot returns a copy of one session's spend record, if any.
func (t *Tracker) SessionSpendSnapshot(sessionID string) (SessionSpend, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if s, ok := t.sessions[sessionID]; ok {
		return *s, true
	}
	return SessionSpend{}, false
}

// Close stops the background cleanup.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() { close(t.done) })
}

func (t *Tracker) getOrCreateLocked(sessionID string) *SessionSpend {
	if s, ok := t.sessions[sessionID]; ok {
		return s
	}
	s := &SessionSpend{
		ID:          sessionID,
		CreatedAt:   time.Now(),
		LastUpdated: time.Now(),
	}
	t.sessions[sessionID] = s
	return s
}

func (t *Tracker) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			now := time.Now()
			for id, s := range t.sessions {
				if now.Sub(s.LastUpdated) > spendTTL {
					atomic.AddInt64(&t.globalCostNano, -int64(s.Cost*1e9))
					delete(t.sessions, id)
				}
			}
			t.mu.Unlock()
		case <-t.done:
			return
		}
	}
}
