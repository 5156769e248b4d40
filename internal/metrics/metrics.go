package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AllocationCallsTotal tracks allocation round trips per procedure
	AllocationCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocator_procedure_calls_total",
			Help: "Total number of allocation procedure calls",
		},
		[]string{"procedure"},
	)

	// AllocationErrorsTotal tracks failed allocation calls by error kind
	AllocationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocator_procedure_errors_total",
			Help: "Total number of failed allocation procedure calls",
		},
		[]string{"procedure", "kind"},
	)

	// AllocationLatency tracks procedure call latency
	AllocationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "allocator_procedure_latency_seconds",
			Help:    "Allocation procedure latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"procedure"},
	)

	// BatchSize tracks the number of items per allocation request
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "allocator_batch_items",
			Help:    "Number of items per allocation request",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	// RetryAttemptsTotal tracks retried attempts per label
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocator_retry_attempts_total",
			Help: "Total number of retried request attempts",
		},
		[]string{"label", "kind"},
	)

	// FallbackItemsTotal tracks items costed with fallback cost
	FallbackItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocator_fallback_items_total",
			Help: "Items costed with a fallback cost instead of FIFO batches",
		},
		[]string{"source"},
	)

	// TasksTotal tracks background task outcomes
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocator_tasks_total",
			Help: "Background write-off task transitions",
		},
		[]string{"status"},
	)

	// TaskQueueDepth tracks queued background tasks
	TaskQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "allocator_task_queue_depth",
			Help: "Number of queued background write-off tasks",
		},
	)

	// DBConnectionPoolUsage tracks the percentage of open connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "allocator_db_connection_pool_usage_percent",
			Help: "Open database connections as a percentage of the maximum",
		},
	)
)
