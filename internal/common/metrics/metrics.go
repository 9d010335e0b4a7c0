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

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// NotificationsDispatched counts terminal dispatch outcomes.
	// status is "sent" or "failed"; reason is empty on success.
	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Terminal outcomes of notification dispatch",
		},
		[]string{"status", "reason"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_dispatch_duration_seconds",
			Help:    "End-to-end duration of a single dispatch",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)

	TransportAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_transport_attempts_total",
			Help: "Send attempts per transport tier",
		},
		[]string{"tier", "transport", "result"},
	)

	TransportHandshakeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_transport_handshake_failures_total",
			Help: "Connection verifications that failed before a send",
		},
		[]string{"transport"},
	)

	TemplateCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_template_cache_requests_total",
			Help: "Template cache lookups by result",
		},
		[]string{"result"},
	)

	DeliveryLogWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_log_write_failures_total",
			Help: "Delivery log writes that failed",
		},
		[]string{"sink"},
	)

	QueueMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_queue_messages_total",
			Help: "Queue deliveries by disposition",
		},
		[]string{"disposition"},
	)
)
