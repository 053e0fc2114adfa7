package merkledb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type dbMetrics struct {
	snapshots     prometheus.Counter
	forks         prometheus.Counter
	merges        *prometheus.CounterVec
	mergeDuration prometheus.Histogram
	batchOps      prometheus.Histogram
	seq           prometheus.Gauge
	migrationIncs *prometheus.CounterVec
	garbage       prometheus.Counter
}

// newMetrics registers the database's metrics with reg. A nil reg keeps the
// metrics unregistered, which lets several databases live in one process.
func newMetrics(reg prometheus.Registerer) *dbMetrics {
	f := promauto.With(reg)
	return &dbMetrics{
		snapshots: f.NewCounter(prometheus.CounterOpts{
			Name: "merkledb_snapshots_total",
			Help: "Snapshots taken",
		}),
		forks: f.NewCounter(prometheus.CounterOpts{
			Name: "merkledb_forks_total",
			Help: "Forks created",
		}),
		merges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "merkledb_merges_total",
			Help: "Patch merges by result",
		}, []string{"result"}),
		mergeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "merkledb_merge_duration_seconds",
			Help:    "Merge latency, including aggregation and the storage write",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3s
		}),
		batchOps: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "merkledb_merge_batch_ops",
			Help:    "Key-level operations per merged batch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		seq: f.NewGauge(prometheus.GaugeOpts{
			Name: "merkledb_commit_seq",
			Help: "Latest commit sequence number",
		}),
		migrationIncs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "merkledb_migration_increments_total",
			Help: "Migration increments merged, by namespace",
		}, []string{"namespace"}),
		garbage: f.NewCounter(prometheus.CounterOpts{
			Name: "merkledb_garbage_indexes_total",
			Help: "Dropped indexes whose data was collected",
		}),
	}
}
