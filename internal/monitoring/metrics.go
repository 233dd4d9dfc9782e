// Package monitoring - metrics.go provides counters for the gateway.
//
// DESIGN: Lightweight atomic counters back the /stats and /mcp surfaces;
// the same events also feed a private Prometheus registry exposed at
// /metrics. A per-collector registry avoids duplicate-registration panics
// when several gateways run in one process (tests).
package monitoring

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	requests        atomic.Int64
	successes       atomic.Int64
	blocked         atomic.Int64
	degradedEvals   atomic.Int64
	upstreamRetries atomic.Int64

	registry        *prometheus.Registry
	promRequests    *prometheus.CounterVec
	promBlocked     *prometheus.CounterVec
	promOverhead    prometheus.Histogram
	promActiveSess  prometheus.GaugeFunc
	sessionCountsFn func() int
}

// NewMetricsCollector creates a collector with its own Prometheus registry.
// sessionCount reports live sessions for the gauge; nil is allowed.
func NewMetricsCollector(sessionCount func() int) *MetricsCollector {
	mc := &MetricsCollector{
		startedAt:       time.Now(),
		registry:        prometheus.NewRegistry(),
		sessionCountsFn: sessionCount,
	}

	mc.promRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_requests_total",
		Help: "Total chat-completion requests processed by the gateway",
	}, []string{"outcome"})
	mc.promBlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_interventions_total",
		Help: "Requests intercepted by kind",
	}, []string{"kind"})
	mc.promOverhead = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_overhead_milliseconds",
		Help:    "Processing overhead added by the gateway, excluding the upstream call",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 50, 100},
	})
	mc.promActiveSess = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sentinel_active_sessions",
		Help: "Live sessions in the store",
	}, func() float64 {
		if mc.sessionCountsFn == nil {
			return 0
		}
		return float64(mc.sessionCountsFn())
	})

	mc.registry.MustRegister(mc.promRequests, mc.promBlocked, mc.promOverhead, mc.promActiveSess)
	return mc
}

// Registry returns the collector's Prometheus registry for /metrics.
func (mc *MetricsCollector) Registry() *prometheus.Registry { return mc.registry }

// RecordRequest records a completed request and its outcome tag.
func (mc *MetricsCollector) RecordRequest(outcome string, success bool) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
	mc.promRequests.WithLabelValues(outcome).Inc()
}

// RecordIntervention records a short-circuited request.
func (mc *MetricsCollector) RecordIntervention(kind InterventionKind) {
	mc.blocked.Add(1)
	mc.promBlocked.WithLabelValues(string(kind)).Inc()
}

// RecordOverhead records gateway-added processing time.
func (mc *MetricsCollector) RecordOverhead(d time.Duration) {
	mc.promOverhead.Observe(float64(d.Microseconds()) / 1000.0)
}

// RecordDegradedEval records a loop evaluation that fell back to exact-only.
func (mc *MetricsCollector) RecordDegradedEval() { mc.degradedEvals.Add(1) }

// RecordUpstreamRetry records a retried upstream call.
func (mc *MetricsCollector) RecordUpstreamRetry() { mc.upstreamRetries.Add(1) }

// StartedAt returns when the collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// Stats returns current counters as a flat map for /stats and /mcp.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":         mc.requests.Load(),
		"successes":        mc.successes.Load(),
		"interventions":    mc.blocked.Load(),
		"degraded_evals":   mc.degradedEvals.Load(),
		"upstream_retries": mc.upstreamRetries.Load(),
	}
}
