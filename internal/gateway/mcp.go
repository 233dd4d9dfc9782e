// MCP surface: a minimal JSON-RPC endpoint so agent tooling can inspect the
// gateway without scraping /stats.
//
// Methods:
//   - get_sentinel_stats: global counters snapshot
//   - audit_session: per-session history and intervention count
package gateway

import (
	"encoding/json"
	"net/http"
)

type mcpRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type mcpResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *mcpError       `json:"error,omitempty"`
}

type mcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type auditSessionParams struct {
	SessionKey string `json:"session_key"`
}

type auditTurn struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
	At      string `json:"at"`
}

type auditSessionResult struct {
	SessionKey    string      `json:"session_key"`
	Exists        bool        `json:"exists"`
	Terminal      bool        `json:"terminal"`
	Turns         []auditTurn `json:"turns"`
	Interventions int         `json:"interventions"`
}

func (g *Gateway) handleMCP(w http.ResponseWriter, r *http.Request) {
	var req mcpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMCP(w, mcpResponse{JSONRPC: "2.0", Error: &mcpError{Code: -32700, Message: "parse error"}})
		return
	}

	resp := mcpResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "get_sentinel_stats":
		resp.Result = g.statsSnapshot()
	case "audit_session":
		var params auditSessionParams
		if err := json.Unmarshal(req.Params, &params); err != nil || params.SessionKey == "" {
			resp.Error = &mcpError{Code: -32602, Message: "session_key required"}
			break
		}
		resp.Result = g.auditSession(r, params.SessionKey)
	default:
		resp.Error = &mcpError{Code: -32601, Message: "method not found"}
	}
	writeMCP(w, resp)
}

// auditSession summarizes a session without extending its lifetime beyond
// the GetOrCreate touch.
func (g *Gateway) auditSession(r *http.Request, key string) auditSessionResult {
	result := auditSessionResult{
		SessionKey:    key,
		Interventions: g.interventionCount(key),
	}
	// Prefer the durable audit count when available; the in-memory counter
	// resets with the process.
	if n, err := g.audit.SessionInterventionCount(key); err == nil && n > result.Interventions {
		result.Interventions = n
	}

	sess, err := g.store.GetOrCreate(r.Context(), key)
	if err != nil {
		return result
	}
	sess.Lock()
	defer sess.Unlock()

	result.Exists = len(sess.Turns) > 0 || sess.Terminal
	result.Terminal = sess.Terminal
	for _, t := range sess.Turns {
		result.Turns = append(result.Turns, auditTurn{
			ID:      t.ID,
			Outcome: string(t.Outcome),
			At:      t.At.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return result
}

func writeMCP(w http.ResponseWriter, resp mcpResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
