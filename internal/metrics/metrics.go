// Package metrics exposes Prometheus counters and latency histograms for
// the enrichment pipeline and pool-monitor sampler (spec.md §9.1 in this
// expansion). The percentile-tracking idea is grounded on the trading
// bot's internal/trading/metrics.go ring-buffer Metrics type; here
// latencies go into Prometheus histograms rather than a hand-rolled ring
// buffer, exposed through Handler on the standalone /metrics server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EnrichStage names the pipeline step a latency observation belongs to.
type EnrichStage string

const (
	StagePersist      EnrichStage = "persist"
	StageDevHolding   EnrichStage = "dev_holding"
	StageMarketCap    EnrichStage = "market_cap"
	StageMerge        EnrichStage = "merge"
	StageOpenPosition EnrichStage = "open_position"
)

var (
	enrichLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tracker",
		Subsystem: "enrich",
		Name:      "stage_duration_seconds",
		Help:      "EnrichmentPipeline per-stage latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	samplerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tracker",
		Subsystem: "poolmonitor",
		Name:      "sampler_duration_seconds",
		Help:      "PoolMonitor sampler tick latency.",
		Buckets:   prometheus.DefBuckets,
	})

	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "router",
		Name:      "events_processed_total",
		Help:      "Events routed by kind (BUY/SELL/OTHER).",
	}, []string{"kind"})

	samplerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "poolmonitor",
		Name:      "sampler_errors_total",
		Help:      "PoolMonitor sampler failures.",
	})
)

// ObserveEnrichStage records how long one EnrichmentPipeline stage took.
func ObserveEnrichStage(stage EnrichStage, seconds float64) {
	enrichLatency.WithLabelValues(string(stage)).Observe(seconds)
}

// ObserveSampler records one PoolMonitor sampler tick's latency.
func ObserveSampler(seconds float64) {
	samplerLatency.Observe(seconds)
}

// IncEventProcessed increments the per-kind event counter.
func IncEventProcessed(kind string) {
	eventsProcessed.WithLabelValues(kind).Inc()
}

// IncSamplerError increments the sampler failure counter.
func IncSamplerError() {
	samplerErrors.Inc()
}

// Handler returns the /metrics HTTP handler for net/http-based mounting.
func Handler() http.Handler {
	return promhttp.Handler()
}
