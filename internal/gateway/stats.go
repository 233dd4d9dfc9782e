package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// statsResponse is the operator-facing counters snapshot.
type statsResponse struct {
	Uptime         string           `json:"uptime"`
	Requests       map[string]int64 `json:"requests"`
	ActiveSessions int              `json:"active_sessions"`
	GlobalCostUSD  float64          `json:"global_cost_usd"`
	TotalSavedUSD  float64          `json:"total_saved_usd"`
	EventFeedSubs  int              `json:"event_feed_subscribers"`
	Providers      []string         `json:"providers"`
}

func (g *Gateway) statsSnapshot() statsResponse {
	return statsResponse{
		Uptime:         time.Since(g.metrics.StartedAt()).Round(time.Second).String(),
		Requests:       g.metrics.Stats(),
		ActiveSessions: g.store.Len(),
		GlobalCostUSD:  g.costTracker.GlobalCost(),
		TotalSavedUSD:  g.costTracker.TotalSaved(),
		EventFeedSubs:  g.hub.SubscriberCount(),
		Providers:      g.router.Names(),
	}
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(g.statsSnapshot())
}
