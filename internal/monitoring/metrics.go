package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the backup orchestration pipeline
var (
	// Scheduler metrics
	SchedulerTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devicevault_scheduler_ticks_total",
			Help: "Number of completed scheduler dispatch ticks",
		},
	)

	SchedulerLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devicevault_scheduler_leader",
			Help: "Whether this process currently holds the scheduler leadership lock (0 or 1)",
		},
	)

	DispatchedJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicevault_dispatched_jobs_total",
			Help: "Collection jobs enqueued, by trigger source",
		},
		[]string{"trigger"},
	)

	MissedWindows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devicevault_missed_windows_total",
			Help: "Recurrences recorded as missed_window during catch-up",
		},
	)

	// Worker metrics
	CollectionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicevault_collection_outcomes_total",
			Help: "Collection attempts completed by workers, by status",
		},
		[]string{"status"},
	)

	CollectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "devicevault_collection_duration_seconds",
			Help:    "Wall-clock duration of plugin collection runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	StorageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicevault_storage_outcomes_total",
			Help: "Storage attempts completed by workers, by status",
		},
		[]string{"status", "backend"},
	)

	StorageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "devicevault_storage_duration_seconds",
			Help:    "Wall-clock duration of storage backend writes",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	DeviceLockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devicevault_device_lock_contention_total",
			Help: "Collection attempts rejected because the device was already being collected",
		},
	)

	// Ingestor metrics
	IngestedResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicevault_ingested_results_total",
			Help: "Outcome records persisted by the ingestors, by stage",
		},
		[]string{"stage"},
	)

	IngestDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicevault_ingest_duplicates_total",
			Help: "Redelivered outcome records skipped by the idempotency check, by stage",
		},
		[]string{"stage"},
	)

	IngestDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicevault_ingest_dropped_total",
			Help: "Outcome records acknowledged and dropped without persistence, by stage and reason",
		},
		[]string{"stage", "reason"},
	)
)
