package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP Metrics
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec

	// Execution Metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	StepDuration      *prometheus.HistogramVec
	ExecutionErrors   *prometheus.CounterVec
	ActiveExecutions  *prometheus.GaugeVec

	// Retry Metrics
	RetriesRequeued *prometheus.CounterVec

	// Trigger Metrics
	MutationsReceived *prometheus.CounterVec
	WorkflowsMatched  *prometheus.CounterVec

	// Webhook Metrics
	WebhooksReceived  *prometheus.CounterVec
	WebhookDuplicates *prometheus.CounterVec
	OptOutsRecorded   prometheus.Counter

	// Message Metrics
	MessagesSent *prometheus.CounterVec

	// Worker Metrics
	WorkerJobsProcessed *prometheus.CounterVec
	WorkerJobDuration   *prometheus.HistogramVec
	WorkerErrors        *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	m := &Metrics{
		// HTTP Metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Execution Metrics
		ExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_executions_total",
				Help: "Total number of workflow executions",
			},
			[]string{"workflow_id", "status"},
		),
		ExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workflow_execution_duration_seconds",
				Help:    "Workflow execution duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~102s
			},
			[]string{"workflow_id"},
		),
		StepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workflow_step_duration_seconds",
				Help:    "Workflow step execution duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 0.01s to ~10s
			},
			[]string{"workflow_id", "step_type", "status"},
		),
		ExecutionErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_execution_errors_total",
				Help: "Total number of workflow execution errors",
			},
			[]string{"workflow_id"},
		),
		ActiveExecutions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "active_workflow_executions",
				Help: "Number of currently running workflow executions",
			},
			[]string{"workflow_id"},
		),

		// Retry Metrics
		RetriesRequeued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execution_retries_requeued_total",
				Help: "Total number of failed executions requeued for retry",
			},
			[]string{"workflow_id"},
		),
		// Trigger Metrics
		MutationsReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entity_mutations_received_total",
				Help: "Total number of entity mutation events received",
			},
			[]string{"table", "trigger_type"},
		),
		WorkflowsMatched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflows_matched_total",
				Help: "Total number of workflow matches against mutation events",
			},
			[]string{"workflow_id"},
		),

		// Webhook Metrics
		WebhooksReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhooks_received_total",
				Help: "Total number of inbound webhook deliveries",
			},
			[]string{"kind"},
		),
		WebhookDuplicates: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_duplicates_total",
				Help: "Total number of duplicate webhook deliveries suppressed",
			},
			[]string{"layer"},
		),
		OptOutsRecorded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "opt_outs_recorded_total",
				Help: "Total number of opt-out keywords processed",
			},
		),

		// Message Metrics
		MessagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messages_sent_total",
				Help: "Total number of outbound messages sent",
			},
			[]string{"channel", "status"},
		),

		// Worker Metrics
		WorkerJobsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_jobs_processed_total",
				Help: "Total number of jobs processed by workers",
			},
			[]string{"worker_type", "status"},
		),
		WorkerJobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "worker_job_duration_seconds",
				Help:    "Worker job processing duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~102s
			},
			[]string{"worker_type"},
		),
		WorkerErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_errors_total",
				Help: "Total number of worker errors",
			},
			[]string{"worker_type"},
		),
	}

	return m
}
