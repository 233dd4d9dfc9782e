// Package monitoring collects operational metrics, audit events, and the
// live intervention feed for the sentinel gateway.
package monitoring

import "time"

// InterventionKind classifies why the gateway short-circuited a request.
type InterventionKind string

const (
	// KindLoopExact is an exact-repetition loop intercept.
	KindLoopExact InterventionKind = "loop-exact"
	// KindLoopSemantic is an embedding-similarity loop intercept.
	KindLoopSemantic InterventionKind = "loop-semantic"
	// KindLeak is a sensitive-data leak intercept.
	KindLeak InterventionKind = "leak"
	// KindCost is an economic throttle intercept.
	KindCost InterventionKind = "cost"
)

// InterventionRecord describes one deliberate short-circuit. It lives only
// as long as the session (plus the optional audit log); the wire response
// carries only the sentinel-marked content, never this record.
type InterventionRecord struct {
	ID            string           `json:"id"`
	SessionKey    string           `json:"session_key"`
	Kind          InterventionKind `json:"kind"`
	MatchedTurnID string           `json:"matched_turn_id,omitempty"`
	Score         float64          `json:"score,omitempty"`
	At            time.Time        `json:"at"`
}

// RequestEvent is the per-request audit record.
type RequestEvent struct {
	RequestID  string        `json:"request_id"`
	At         time.Time     `json:"at"`
	SessionKey string        `json:"session_key"`
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	StatusCode int           `json:"status_code"`
	Outcome    string        `json:"outcome"`
	Latency    time.Duration `json:"latency"`
}
