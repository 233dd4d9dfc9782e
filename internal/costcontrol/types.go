// Package costcontrol implements the per-session economic throttle.
//
// DESIGN: Tracks accumulated API spend per session and flags runaway
// behavior: a session over its cumulative cap, or a single request whose
// cost spikes far above the previous one. Tracking is always active;
// Enabled only controls whether a throttle verdict actually blocks.
package costcontrol

import (
	"fmt"
	"time"
)

// Config holds throttle settings.
type Config struct {
	Enabled     bool    // whether throttle verdicts block requests
	SessionCap  float64 // cumulative USD per session; 0 = unlimited
	SpikeFactor float64 // throttle when cost > last cost * factor
	SpikeFloor  float64 // minimum USD before the spike check applies
}

// Validate checks throttle configuration.
func (c *Config) Validate() error {
	if c.SessionCap < 0 {
		return fmt.Errorf("cost.session_cap must be >= 0, got %f", c.SessionCap)
	}
	if c.SpikeFactor < 0 {
		return fmt.Errorf("cost.spike_factor must be >= 0, got %f", c.SpikeFactor)
	}
	return nil
}

// ThrottleReason says why a request was throttled.
type ThrottleReason string

const (
	// ReasonSessionCap means cumulative session spend exceeded the cap.
	ReasonSessionCap ThrottleReason = "session_cap"
	// ReasonCostSpike means this request's cost jumped far above the last.
	ReasonCostSpike ThrottleReason = "cost_spike"
)

// ThrottleResult is the verdict for one request.
type ThrottleResult struct {
	Throttled   bool
	Reason      ThrottleReason
	SessionCost float64
}

// SessionSpend tracks accumulated cost for a single session.
type SessionSpend struct {
	ID           string
	Cost         float64
	LastCost     float64
	RequestCount int
	CreatedAt    time.Time
	LastUpdated  time.Time
}
