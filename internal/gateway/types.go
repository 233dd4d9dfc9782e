// Package gateway types - request headers and wire-level constants.
//
// DESIGN: Types are defined here to keep the handler files focused on
// control flow and to provide clear contracts for callers.
package gateway

// Request headers recognized on /v1/chat/completions.
const (
	// HeaderSession carries the opaque session key. Absent means the
	// request is its own single-turn session.
	HeaderSession = "x-sentinel-session"
	// HeaderProvider names a configured provider, overriding model-based
	// auto-detection.
	HeaderProvider = "x-sentinel-provider"
	// HeaderRequestID lets callers supply their own request ID.
	HeaderRequestID = "x-request-id"
)

// SentinelMarker is the literal substring every blocking response content
// contains. Callers detect an intervention by matching against it; the
// response is otherwise indistinguishable in shape from a real completion.
const SentinelMarker = "SENTINEL"

// Blocking response contents per intervention kind.
const (
	msgBlockedLeak     = "🛡️ SENTINEL: Bloqueado por filtración de datos."
	msgBlockedLoop     = "🚨 SENTINEL: Bucle semántico detectado."
	msgBlockedExact    = "🚨 SENTINEL: Bucle exacto detectado."
	msgBlockedCost     = "🛑 SENTINEL: Gasto excesivo detectado."
	msgSessionTerminal = "🛡️ SENTINEL: Sesión terminada por intervención previa."
)

// chatMessage is one entry of the OpenAI messages array.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
