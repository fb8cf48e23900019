package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Read path
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "standings_cache_hits_total",
		Help: "Cache lookups answered from the cache, by class",
	}, []string{"class"})
	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "standings_cache_misses_total",
		Help: "Cache lookups that fell through to the loader, by class",
	}, []string{"class"})
	CacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "standings_cache_errors_total",
		Help: "Cache backend failures, by operation",
	}, []string{"op"})
	RateLimitRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "standings_ratelimit_rejected_total",
		Help: "Requests rejected by the rate limiter",
	})
	AggregationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "standings_aggregation_latency_seconds",
		Help:    "Time spent building standings, by kind",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	ResultsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "standings_results_recorded_total",
		Help: "Match results written through the API",
	})

	// Watcher
	WatcherChangesCapturedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "standings_watcher_changes_total",
		Help: "Match changes captured from the MongoDB change stream",
	})
	WatcherPublishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "standings_watcher_publish_errors_total",
		Help: "Failures publishing match changes to Kafka",
	})
	WatcherCheckpointSavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "standings_watcher_checkpoint_saves_total",
		Help: "Resume token checkpoints written",
	})

	// Projector
	ProjectorMessagesConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "standings_projector_messages_consumed_total",
		Help: "Match change messages consumed from Kafka",
	})
	ProjectorSnapshotWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "standings_projector_snapshot_writes_total",
		Help: "Snapshot batches written to PostgreSQL",
	})
	ProjectorWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "standings_projector_write_errors_total",
		Help: "Failures computing or writing standings snapshots",
	})
	ProjectorUpsertLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "standings_projector_upsert_latency_seconds",
		Help:    "Latency of snapshot upserts into PostgreSQL",
		Buckets: prometheus.DefBuckets,
	})
)
