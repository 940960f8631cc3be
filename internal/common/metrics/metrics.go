// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	DraftStepsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_draft_steps_saved_total",
			Help: "Draft step saves by step and outcome",
		},
		[]string{"step", "outcome"},
	)

	SubmissionsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_submissions_finalized_total",
			Help: "Finalize attempts by outcome",
		},
		[]string{"outcome"},
	)

	ApplicationIDCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "admission_application_id_collisions_total",
			Help: "Generated application ids that were already taken",
		},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_status_transitions_total",
			Help: "Submission status transitions by target status",
		},
		[]string{"to"},
	)

	ReferenceClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_reference_claims_total",
			Help: "Payment reference claim attempts by outcome",
		},
		[]string{"outcome"},
	)

	ReconciliationPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_reconciliation_passes_total",
			Help: "Reconciliation passes by result",
		},
		[]string{"result"},
	)

	ReconciliationPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "admission_reconciliation_pass_duration_seconds",
			Help:    "Duration of reconciliation passes in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	EventDeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_event_delivery_failures_total",
			Help: "Domain event deliveries that failed, by subscriber and event",
		},
		[]string{"subscriber", "event"},
	)
)
