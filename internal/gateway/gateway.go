// Package gateway is the OpenAI-compatible intercepting reverse proxy.
//
// DESIGN: Per-request flow:
//   - handleChatCompletions(): Entry point for all chat requests
//   - input leak check -> session load -> loop/throttle check -> block or forward
//   - response leak check -> relay
//
// Also includes the health endpoint, stats, MCP surface, and the live
// intervention feed.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/sentinel-gw/sentinel/internal/config"
	"github.com/sentinel-gw/sentinel/internal/costcontrol"
	"github.com/sentinel-gw/sentinel/internal/leakscan"
	"github.com/sentinel-gw/sentinel/internal/loopdetect"
	"github.com/sentinel-gw/sentinel/internal/monitoring"
	"github.com/sentinel-gw/sentinel/internal/providers"
	"github.com/sentinel-gw/sentinel/internal/session"
)

// Gateway orchestrates leak scanning, loop detection, routing, and
// forwarding for every request.
type Gateway struct {
	cfg      *config.Config
	store    session.Store
	scanner  *leakscan.Scanner
	detector *loopdetect.Detector
	router   *providers.Router
	signers  map[string]*providers.BedrockSigner

	metrics     *monitoring.MetricsCollector
	audit       *monitoring.AuditLog
	hub         *monitoring.Hub
	costTracker *costcontrol.Tracker

	httpClient *http.Client
	ready      atomic.Bool
	degraded   atomic.Bool

	// Per-session intervention counts for the MCP audit surface.
	interventionsMu sync.Mutex
	interventions   map[string]int
}

// Options bundle the gateway's collaborators. Zero-value fields fall back
// to sensible defaults; Audit may stay nil.
type Options struct {
	Config   *config.Config
	Store    session.Store
	Scanner  *leakscan.Scanner
	Detector *loopdetect.Detector
	Router   *providers.Router
	Signers  map[string]*providers.BedrockSigner
	Audit    *monitoring.AuditLog
}

// New wires a gateway from its parts.
func New(opts Options) *Gateway {
	g := &Gateway{
		cfg:      opts.Config,
		store:    opts.Store,
		scanner:  opts.Scanner,
		detector: opts.Detector,
		router:   opts.Router,
		signers:  opts.Signers,
		audit:    opts.Audit,
		hub:      monitoring.NewHub(),
		costTracker: costcontrol.NewTracker(costcontrol.Config{
			Enabled:     opts.Config.Cost.Enabled,
			SessionCap:  opts.Config.Cost.SessionCap,
			SpikeFactor: opts.Config.Cost.SpikeFactor,
			SpikeFloor:  opts.Config.Cost.SpikeFloor,
		}),
		httpClient:    &http.Client{},
		interventions: make(map[string]int),
	}
	g.metrics = monitoring.NewMetricsCollector(opts.Store.Len)
	return g
}

// Handler builds the HTTP routing surface.
func (g *Gateway) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/v1/chat/completions", g.handleChatCompletions).Methods(http.MethodPost)
	r.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", g.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/mcp", g.handleMCP).Methods(http.MethodPost)
	r.HandleFunc("/v1/events", g.handleEvents).Methods(http.MethodGet)
	if g.cfg.Monitoring.Metrics {
		r.Handle("/metrics", promhttp.HandlerFor(g.metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

// Start probes the embedding provider and marks the gateway ready.
// Embedding unavailability degrades loop detection to exact-only; it never
// blocks readiness.
func (g *Gateway) Start(ctx context.Context, embedder loopdetect.Embedder) {
	if embedder != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if _, err := embedder.Embed(probeCtx, "ping"); err != nil {
			g.degraded.Store(true)
			log.Warn().Err(err).Msg("embedding provider unreachable at startup, exact-only loop detection")
		}
	} else {
		g.degraded.Store(true)
	}

	g.ready.Store(true)
	log.Info().
		Strs("providers", g.router.Names()).
		Str("default_provider", g.router.Default()).
		Bool("semantic_degraded", g.degraded.Load()).
		Msg("sentinel gateway ready")
}

// Ready reports whether startup completed.
func (g *Gateway) Ready() bool { return g.ready.Load() }

// Close releases background resources.
func (g *Gateway) Close() error {
	g.costTracker.Close()
	if g.audit != nil {
		_ = g.audit.Close()
	}
	return g.store.Close()
}

// Hub exposes the intervention feed for subscribers.
func (g *Gateway) Hub() *monitoring.Hub { return g.hub }

func (g *Gateway) countIntervention(sessionKey string) {
	g.interventionsMu.Lock()
	g.interventions[sessionKey]++
	g.interventionsMu.Unlock()
}

func (g *Gateway) interventionCount(sessionKey string) int {
	g.interventionsMu.Lock()
	defer g.interventionsMu.Unlock()
	return g.interventions[sessionKey]
}
