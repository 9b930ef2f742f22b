package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Bucket metrics
	RecordsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_records_total",
			Help: "Current number of records per bucket",
		},
		[]string{"bucket"},
	)

	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_operations_total",
			Help: "Total bucket operations by bucket and kind",
		},
		[]string{"bucket", "op"},
	)

	EvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_evictions_total",
			Help: "Records evicted by capacity caps per bucket",
		},
		[]string{"bucket"},
	)

	ExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_expired_records_total",
			Help: "Records removed by TTL purges per bucket",
		},
		[]string{"bucket"},
	)

	// Event bus metrics
	EventsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_events_published_total",
			Help: "Total events published on the bus",
		},
	)

	// Transaction metrics
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_transactions_total",
			Help: "Transactions by outcome (committed, conflict, aborted)",
		},
		[]string{"outcome"},
	)

	TransactionCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_transaction_commit_duration_seconds",
			Help:    "Time taken to commit a transaction in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Query metrics
	QueryEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_query_evaluations_total",
			Help: "Query evaluations by kind (run, initial, reevaluation)",
		},
		[]string{"kind"},
	)

	ActiveSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_active_subscriptions",
			Help: "Live query subscriptions",
		},
	)

	// Persistence metrics
	SnapshotsSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_snapshots_saved_total",
			Help: "Bucket snapshots saved by outcome (ok, error)",
		},
		[]string{"outcome"},
	)

	SnapshotSaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_snapshot_save_duration_seconds",
			Help:    "Time taken to snapshot and save a bucket in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotsRestored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_snapshots_restored_total",
			Help: "Bucket snapshots restored at registration",
		},
	)

	// TTL metrics
	TTLScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_ttl_scans_total",
			Help: "TTL purge scans completed",
		},
	)
)

func init() {
	prometheus.MustRegister(RecordsTotal)
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(EvictionsTotal)
	prometheus.MustRegister(ExpiredTotal)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(TransactionCommitDuration)
	prometheus.MustRegister(QueryEvaluations)
	prometheus.MustRegister(ActiveSubscriptions)
	prometheus.MustRegister(SnapshotsSaved)
	prometheus.MustRegister(SnapshotSaveDuration)
	prometheus.MustRegister(SnapshotsRestored)
	prometheus.MustRegister(TTLScansTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
