package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// reconciliation service.
type Metrics struct {
	SignalsIngested   *prometheus.CounterVec // labels: source_type
	SignalsDropped    *prometheus.CounterVec // labels: source_type
	SignalsFailed     *prometheus.CounterVec // labels: source_type, stage={fetch,normalize,assemble}
	SignalsSuppressed *prometheus.CounterVec // labels: source_type
	SignalsDuplicate  *prometheus.CounterVec // labels: source_type

	ClustersCreated prometheus.Counter
	SignalsMerged   prometheus.Counter
	StoreConflicts  prometheus.Counter

	RunsActive  prometheus.Gauge
	RunDuration prometheus.Histogram
	BatchSize   prometheus.Histogram

	// Location resolution metrics.
	ResolveRequests    *prometheus.CounterVec   // labels: method={forward,reverse}, outcome={success,error,empty}
	ResolveCache       *prometheus.CounterVec   // labels: method={forward,reverse}, result={hit,miss}
	ResolveAPIDuration *prometheus.HistogramVec // labels: method={forward,reverse}
	ResolverEnabled    prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SignalsIngested,
		m.SignalsDropped,
		m.SignalsFailed,
		m.SignalsSuppressed,
		m.SignalsDuplicate,
		m.ClustersCreated,
		m.SignalsMerged,
		m.StoreConflicts,
		m.RunsActive,
		m.RunDuration,
		m.BatchSize,
		m.ResolveRequests,
		m.ResolveCache,
		m.ResolveAPIDuration,
		m.ResolverEnabled,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	const ns = "loss_recon"
	return &Metrics{
		SignalsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "signals_ingested_total",
			Help:      "Signals accepted by the normalizer, by source type.",
		}, []string{"source_type"}),
		SignalsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "signals_dropped_total",
			Help:      "Raw records with no canonical category mapping, by source type.",
		}, []string{"source_type"}),
		SignalsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "signals_failed_total",
			Help:      "Records that failed a pipeline stage, by source type and stage.",
		}, []string{"source_type", "stage"}),
		SignalsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "signals_suppressed_total",
			Help:      "Low-quality uncorroborated signals for which no cluster was created.",
		}, []string{"source_type"}),
		SignalsDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "signals_duplicate_total",
			Help:      "Re-ingested provider records skipped by the idempotence guard.",
		}, []string{"source_type"}),
		ClustersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "clusters_created_total",
			Help:      "New clusters created.",
		}),
		SignalsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "signals_merged_total",
			Help:      "Signals that corroborated an existing cluster or loose signal.",
		}),
		StoreConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "store_conflicts_total",
			Help:      "Fenced cluster writes lost to a concurrent run.",
		}),
		RunsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "runs_active",
			Help:      "Number of per-source ingestion runs currently executing.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete per-source fetch-normalize-assemble run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "batch_size",
			Help:      "Number of raw records fetched per source run.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100, 250},
		}),
		ResolveRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "resolve_requests_total",
			Help:      "Location resolution API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		ResolveCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "resolve_cache_total",
			Help:      "Location resolution cache lookups by method and result.",
		}, []string{"method", "result"}),
		ResolveAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "resolve_api_duration_seconds",
			Help:      "Resolution provider request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		ResolverEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "resolver_enabled",
			Help:      "1 when location resolution is enabled, 0 otherwise.",
		}),
	}
}
