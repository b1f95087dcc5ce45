package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	reconciles      *prometheus.CounterVec
	reconnects      prometheus.Counter
	notifications   *prometheus.CounterVec
	writeFailures   *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cardtracker_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardtracker_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardtracker_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardtracker_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		reconciles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardtracker_sync_reconciles_total",
				Help: "Reconciliations by trigger and outcome (applied, unchanged, failed).",
			},
			[]string{"trigger", "outcome"},
		),
		reconnects: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cardtracker_push_reconnects_total",
				Help: "Push channel reconnects issued by the health check.",
			},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardtracker_notifications_emitted_total",
				Help: "Deadline alerts emitted by kind.",
			},
			[]string{"kind"},
		),
		writeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardtracker_durable_write_failures_total",
				Help: "Background gateway writes that failed, by entity.",
			},
			[]string{"entity"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cardtracker_active_sessions",
				Help: "Signed-in sync sessions currently open.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrReconcile counts one reconciliation.
func (m *Metrics) IncrReconcile(trigger, outcome string) {
	m.reconciles.WithLabelValues(trigger, outcome).Inc()
}

// IncrReconnect counts one push channel reconnect.
func (m *Metrics) IncrReconnect() {
	m.reconnects.Inc()
}

// IncrNotification counts one emitted deadline alert.
func (m *Metrics) IncrNotification(kind string) {
	m.notifications.WithLabelValues(kind).Inc()
}

// IncrWriteFailure counts one failed background write.
func (m *Metrics) IncrWriteFailure(entity string) {
	m.writeFailures.WithLabelValues(entity).Inc()
}

// SessionOpened and SessionClosed track the active session gauge.
func (m *Metrics) SessionOpened() { m.activeSessions.Inc() }
func (m *Metrics) SessionClosed() { m.activeSessions.Dec() }

// ReconcileCount returns the cumulative count for a trigger/outcome pair.
// Used by tests and the sync status endpoint.
func (m *Metrics) ReconcileCount(trigger, outcome string) float64 {
	return getCounterValue(m.reconciles, trigger, outcome)
}

// NotificationCount returns the cumulative count of alerts of a kind.
func (m *Metrics) NotificationCount(kind string) float64 {
	return getCounterValue(m.notifications, kind)
}

// CacheHitCount returns the cumulative hits of a cache.
func (m *Metrics) CacheHitCount(cache string) float64 {
	return getCounterValue(m.cacheHits, cache)
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
