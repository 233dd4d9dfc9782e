package session

import "time"

// Outcome tags how a turn was ultimately handled.
type Outcome string

const (
	// OutcomePassed means the turn was forwarded upstream and relayed.
	OutcomePassed Outcome = "passed"
	// OutcomeBlockedLoop means loop detection intercepted the turn.
	OutcomeBlockedLoop Outcome = "blocked_loop"
	// OutcomeBlockedLeak means the leak scanner intercepted the turn.
	OutcomeBlockedLeak Outcome = "blocked_leak"
	// OutcomeBlockedCost means the economic throttle intercepted the turn.
	OutcomeBlockedCost Outcome = "blocked_cost"
)

// Turn is one request/response pair within a session. The embedding is
// computed lazily by loop detection and cached here so repeated comparisons
// never recompute it.
type Turn struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Fingerprint string    `json:"fingerprint"`
	Embedding   []float32 `json:"embedding,omitempty"`
	At          time.Time `json:"at"`
	Outcome     Outcome   `json:"outcome"`
}
