package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors the core publishes. All
// components share one Metrics instance so /metrics reflects the whole
// process.
type Metrics struct {
	ProviderCalls       *prometheus.CounterVec
	ProviderLatency     *prometheus.HistogramVec
	RepositoryQueries   *prometheus.CounterVec
	RepositoryLatency   *prometheus.HistogramVec
	SyncJobsActive      prometheus.Gauge
	SyncFilesProcessed  *prometheus.CounterVec
}

// NewMetrics constructs and registers the core's metrics on the given
// registerer. Pass prometheus.NewRegistry() in tests to avoid global
// registry collisions across parallel test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ees",
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Provider calls by provider, model, and outcome.",
		}, []string{"provider", "model", "outcome"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ees",
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Provider call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "model"}),
		RepositoryQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ees",
			Subsystem: "repository",
			Name:      "queries_total",
			Help:      "Repository SQL operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		RepositoryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ees",
			Subsystem: "repository",
			Name:      "query_duration_seconds",
			Help:      "Repository SQL operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		SyncJobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ees",
			Subsystem: "sync",
			Name:      "jobs_active",
			Help:      "Currently running directory sync jobs.",
		}),
		SyncFilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ees",
			Subsystem: "sync",
			Name:      "files_processed_total",
			Help:      "Files processed by a sync job, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.ProviderCalls,
		m.ProviderLatency,
		m.RepositoryQueries,
		m.RepositoryLatency,
		m.SyncJobsActive,
		m.SyncFilesProcessed,
	)

	return m
}

// ObserveProviderCall records a provider call's outcome and latency.
func (m *Metrics) ObserveProviderCall(provider, model, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, model, outcome).Inc()
	m.ProviderLatency.WithLabelValues(provider, model).Observe(d.Seconds())
}

// ObserveRepositoryQuery records a repository operation's outcome and latency.
func (m *Metrics) ObserveRepositoryQuery(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RepositoryQueries.WithLabelValues(operation, outcome).Inc()
	m.RepositoryLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// SetSyncJobsActive reports the current count of running directory sync jobs.
func (m *Metrics) SetSyncJobsActive(n float64) {
	if m == nil {
		return
	}
	m.SyncJobsActive.Set(n)
}

// ObserveSyncFile records one file's outcome within a sync job.
func (m *Metrics) ObserveSyncFile(outcome string) {
	if m == nil {
		return
	}
	m.SyncFilesProcessed.WithLabelValues(outcome).Inc()
}
