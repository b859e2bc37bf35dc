package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors an Arena updates as it runs.
// They are registered against the caller-supplied registry rather than
// the global default, so multiple Arenas (e.g. one per table, in tests)
// never collide on metric names.
type Metrics struct {
	ActivePartsInPartition *prometheus.GaugeVec
	MergesPerformedTotal   prometheus.Counter
	MergesFailedTotal      prometheus.Counter
	InsertDelaySeconds     prometheus.Histogram
	BrokenPartsDetected    prometheus.Counter
	PartsDetached          prometheus.Counter
	PartsGCed              prometheus.Counter
}

// NewMetrics constructs and registers a fresh Metrics set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActivePartsInPartition: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mergetree",
			Name:      "active_parts_in_partition",
			Help:      "Number of active parts currently held by one partition.",
		}, []string{"partition"}),
		MergesPerformedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mergetree",
			Name:      "merges_performed_total",
			Help:      "Number of merges committed successfully.",
		}),
		MergesFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mergetree",
			Name:      "merges_failed_total",
			Help:      "Number of merge attempts that failed before commit.",
		}),
		InsertDelaySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mergetree",
			Name:      "insert_delay_seconds",
			Help:      "Backpressure delay applied before an insert was allowed to commit.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		BrokenPartsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mergetree",
			Name:      "broken_parts_detected_total",
			Help:      "Parts classified as broken during a disk scan.",
		}),
		PartsDetached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mergetree",
			Name:      "parts_detached_total",
			Help:      "Parts moved to detached/ for manual resolution.",
		}),
		PartsGCed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mergetree",
			Name:      "parts_garbage_collected_total",
			Help:      "Parts physically removed by GrabOldParts.",
		}),
	}
	reg.MustRegister(
		m.ActivePartsInPartition,
		m.MergesPerformedTotal,
		m.MergesFailedTotal,
		m.InsertDelaySeconds,
		m.BrokenPartsDetected,
		m.PartsDetached,
		m.PartsGCed,
	)
	return m
}
