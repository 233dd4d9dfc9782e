// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// SESSION STORE DEFAULTS
// =============================================================================

// DefaultHistoryLimit is the maximum number of turns kept per session.
// Oldest turns are evicted FIFO once the bound is reached.
const DefaultHistoryLimit = 5

// DefaultSessionTTL is how long an idle session survives before the
// background sweep removes it.
const DefaultSessionTTL = 1 * time.Hour

// DefaultMaxSessions caps the number of live sessions in the store.
// When reached, the oldest-idle session is evicted to make room.
const DefaultMaxSessions = 10000

// DefaultSweepInterval is the frequency of the background eviction sweep.
const DefaultSweepInterval = 5 * time.Minute

// =============================================================================
// LOOP DETECTION DEFAULTS
// =============================================================================

// DefaultLoopWindow is how many recent turns a new message is compared against.
const DefaultLoopWindow = 3

// DefaultLoopThreshold is the cosine similarity above which two turns are
// considered semantically identical. Tunable per deployment (0.85-0.92).
const DefaultLoopThreshold = 0.90

// DefaultEmbeddingModel is the embedding model requested from the embedding
// provider when none is configured.
const DefaultEmbeddingModel = "text-embedding-3-small"

// DefaultEmbeddingTimeout bounds the embedding call so a slow embedding
// backend cannot stall loop detection.
const DefaultEmbeddingTimeout = 5 * time.Second

// =============================================================================
// COST THROTTLE DEFAULTS
// =============================================================================

// DefaultSessionCostCap is the cumulative per-session spend (USD) after which
// requests are throttled.
const DefaultSessionCostCap = 5.0

// DefaultSpikeFactor throttles a request whose estimated cost exceeds the
// previous request's cost by this multiple.
const DefaultSpikeFactor = 5.0

// DefaultSpikeFloor is the minimum absolute cost (USD) before the spike
// check applies, so cheap requests never trip it.
const DefaultSpikeFloor = 0.10

// SavedPerInterventionUSD is the nominal spend credited as avoided for each
// blocked request, surfaced in stats.
const SavedPerInterventionUSD = 0.05

// =============================================================================
// HTTP AND NETWORKING
// =============================================================================

// DefaultListenAddr is the address the gateway binds when none is configured.
const DefaultListenAddr = "127.0.0.1:3000"

// DefaultUpstreamTimeout bounds a single upstream provider call.
const DefaultUpstreamTimeout = 60 * time.Second

// DefaultRetryBackoff is the pause before the single upstream retry.
const DefaultRetryBackoff = 500 * time.Millisecond

// MaxRequestBodySize is the maximum allowed request body (10MB).
const MaxRequestBodySize = 10 * 1024 * 1024

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 1 * time.Minute

// DefaultServerWriteTimeout for the HTTP server.
const DefaultServerWriteTimeout = 5 * time.Minute

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// TokenEstimateRatio is the approximate number of characters per token.
// Used as a fallback when the tokenizer is unavailable.
const TokenEstimateRatio = 4
