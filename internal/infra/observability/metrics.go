package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the client core.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so tests and an optional debug endpoint can gather it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	tokenRefreshes  *prometheus.CounterVec
	syncPulls       *prometheus.CounterVec
	syncPushes      *prometheus.CounterVec
	conflicts       *prometheus.CounterVec
	pendingChanges  prometheus.Gauge
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// client metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "monger_request_duration_seconds",
				Help:    "Duration of HTTP requests by method.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monger_requests_total",
				Help: "Total HTTP requests by outcome.",
			},
			[]string{"outcome"},
		),
		tokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monger_token_refreshes_total",
				Help: "Total token refresh attempts by result.",
			},
			[]string{"result"},
		),
		syncPulls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monger_sync_pulls_total",
				Help: "Total sync pulls by terminal status.",
			},
			[]string{"status"},
		),
		syncPushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monger_sync_pushes_total",
				Help: "Total sync pushes by terminal status.",
			},
			[]string{"status"},
		),
		conflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monger_conflicts_total",
				Help: "Total version conflicts surfaced, by entity type.",
			},
			[]string{"entity"},
		),
		pendingChanges: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "monger_pending_changes",
				Help: "Outbox entries not yet acknowledged by the server.",
			},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monger_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monger_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// ObserveRequest records one gateway request.
func (m *Metrics) ObserveRequest(method, outcome string, d time.Duration) {
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

// RecordTokenRefresh records a refresh attempt result ("ok" or "failed").
func (m *Metrics) RecordTokenRefresh(result string) {
	m.tokenRefreshes.WithLabelValues(result).Inc()
}

// RecordPull records a pull's terminal status (idle, error, offline).
func (m *Metrics) RecordPull(status string) {
	m.syncPulls.WithLabelValues(status).Inc()
}

// RecordPush records a push's terminal status.
func (m *Metrics) RecordPush(status string) {
	m.syncPushes.WithLabelValues(status).Inc()
}

// RecordConflict records a surfaced version conflict.
func (m *Metrics) RecordConflict(entity string) {
	m.conflicts.WithLabelValues(entity).Inc()
}

// SetPendingChanges updates the outbox depth gauge.
func (m *Metrics) SetPendingChanges(n int) {
	m.pendingChanges.Set(float64(n))
}

// RecordCacheHit / RecordCacheMiss track read-cache effectiveness.
func (m *Metrics) RecordCacheHit(cache string)  { m.cacheHits.WithLabelValues(cache).Inc() }
func (m *Metrics) RecordCacheMiss(cache string) { m.cacheMisses.WithLabelValues(cache).Inc() }
