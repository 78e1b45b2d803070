package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsEnqueuedTotal counts total jobs enqueued
	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftq_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"type"},
	)

	// JobsCompletedTotal counts total jobs completed successfully
	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftq_jobs_completed_total",
			Help: "Total number of jobs completed successfully",
		},
		[]string{"type"},
	)

	// JobsRetriedTotal counts total retry attempts scheduled
	JobsRetriedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftq_jobs_retried_total",
			Help: "Total number of retry attempts scheduled",
		},
		[]string{"type"},
	)

	// JobsDeadLetteredTotal counts jobs that exhausted their retry budget
	JobsDeadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftq_jobs_dead_lettered_total",
			Help: "Total number of jobs moved to the dead letter queue",
		},
		[]string{"type", "category"},
	)

	// QueueDepth gauge for pending jobs in the FIFO
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftq_queue_depth",
			Help: "Number of jobs waiting in the queue",
		},
	)

	// Processing gauge, 1 while the worker loop is active
	Processing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftq_processing",
			Help: "Whether the worker loop is currently active",
		},
	)

	// DeadLetterEntries gauge for persisted dead letter entries
	DeadLetterEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftq_dead_letter_entries",
			Help: "Number of entries in the dead letter store",
		},
	)
)
