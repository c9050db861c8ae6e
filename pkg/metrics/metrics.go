package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Blob store metrics

	BlobPutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellar_blob_puts_total",
			Help: "Total number of blob.Store Put calls by tier",
		},
		[]string{"tier"},
	)

	BlobGetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellar_blob_gets_total",
			Help: "Total number of blob.Store Get calls by tier and result (hit/miss)",
		},
		[]string{"tier", "result"},
	)

	BlobDeletesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellar_blob_deletes_total",
			Help: "Total number of blob.Store Delete calls by tier",
		},
		[]string{"tier"},
	)

	BlobOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cellar_blob_operation_duration_seconds",
			Help:    "Duration of blob.Store operations by tier and op",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tier", "op"},
	)

	BlobMultiDivergenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellar_blob_multi_divergence_total",
			Help: "Total number of times a Multi tiered blob.Store found a fingerprint present in one tier but not another",
		},
		[]string{"present_tier", "missing_tier"},
	)

	// Value store (codec + normalize) metrics

	ValuePutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cellar_value_put_duration_seconds",
			Help:    "Time taken to encode, normalize, and store a dynamic.Value",
			Buckets: prometheus.DefBuckets,
		},
	)

	ValueGetDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cellar_value_get_duration_seconds",
			Help:    "Time taken to fetch, denormalize, and decode a dynamic.Value",
			Buckets: prometheus.DefBuckets,
		},
	)

	ValueFragmentsWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cellar_value_fragments_written_total",
			Help: "Total number of normalized fragments written by valuestore.Store.Put",
		},
	)

	// Ref store metrics

	RefOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellar_ref_operations_total",
			Help: "Total number of RefStore operations by backend, op, and result",
		},
		[]string{"backend", "op", "result"},
	)

	RefOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cellar_ref_operation_duration_seconds",
			Help:    "Duration of RefStore operations by backend and op",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	RefOCCConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellar_ref_occ_conflicts_total",
			Help: "Total number of Update calls rejected due to a stale expected fingerprint",
		},
		[]string{"backend"},
	)

	RefSubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cellar_ref_subscriptions_active",
			Help: "Current number of active RefStore subscriptions",
		},
	)

	RefSubscriptionDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellar_ref_subscription_deliveries_total",
			Help: "Total number of subscription callbacks delivered by backend",
		},
		[]string{"backend"},
	)

	// Raft tier metrics (refstore.RaftStore only)

	RaftIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cellar_raft_is_leader",
			Help: "Whether this node is the Raft leader for the ref cluster (1 = leader, 0 = follower)",
		},
	)

	RaftPeersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cellar_raft_peers_total",
			Help: "Total number of voters in the Raft ref cluster",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cellar_raft_apply_duration_seconds",
			Help:    "Time taken for RaftStore.apply to commit a ref command through consensus",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(BlobPutsTotal)
	prometheus.MustRegister(BlobGetsTotal)
	prometheus.MustRegister(BlobDeletesTotal)
	prometheus.MustRegister(BlobOperationDuration)
	prometheus.MustRegister(BlobMultiDivergenceTotal)

	prometheus.MustRegister(ValuePutDuration)
	prometheus.MustRegister(ValueGetDuration)
	prometheus.MustRegister(ValueFragmentsWrittenTotal)

	prometheus.MustRegister(RefOperationsTotal)
	prometheus.MustRegister(RefOperationDuration)
	prometheus.MustRegister(RefOCCConflictsTotal)
	prometheus.MustRegister(RefSubscriptionsActive)
	prometheus.MustRegister(RefSubscriptionDeliveriesTotal)

	prometheus.MustRegister(RaftIsLeader)
	prometheus.MustRegister(RaftPeersTotal)
	prometheus.MustRegister(RaftApplyDuration)
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
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
