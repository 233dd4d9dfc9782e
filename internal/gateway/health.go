package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

type healthResponse struct {
	Status           string `json:"status"`
	SemanticDegraded bool   `json:"semantic_degraded"`
	ActiveSessions   int    `json:"active_sessions"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

// handleHealth reports readiness. 503 until startup completes, 200 after,
// even when semantic detection is degraded.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !g.ready.Load() {
		writeError(w, "starting", http.StatusServiceUnavailable)
		return
	}
	resp := healthResponse{
		Status:           "ok",
		SemanticDegraded: g.degraded.Load(),
		ActiveSessions:   g.store.Len(),
		UptimeSeconds:    int64(time.Since(g.metrics.StartedAt()) / time.Second),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
