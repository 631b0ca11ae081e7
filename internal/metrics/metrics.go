package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provisioning modes
const (
	ModeReal   = "real"
	ModeMock   = "mock"
	ModeFailed = "failed"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamflow_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Channel lifecycle metrics
	ChannelsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_channels_created_total",
			Help: "Total number of channel records created",
		},
		[]string{"plan"},
	)

	ChannelsProvisionedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_channels_provisioned_total",
			Help: "Total number of provisioning outcomes by mode (real, mock, failed)",
		},
		[]string{"mode"},
	)

	ProvisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamflow_provision_duration_seconds",
			Help:    "Time from allocation request to ACTIVE or fallback",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17 minutes
		},
		[]string{"mode"},
	)

	ProvisionPollAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamflow_provision_poll_attempts",
			Help:    "Readiness poll attempts per allocation",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 30},
		},
	)

	QuotaRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_quota_rejections_total",
			Help: "Channel creations rejected by plan quota",
		},
		[]string{"plan"},
	)

	DecommissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_decommissions_total",
			Help: "Total number of decommissioned channels",
		},
		[]string{"instance_terminated"},
	)

	TerminationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamflow_termination_failures_total",
			Help: "Instance terminations that failed and were swallowed",
		},
	)

	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_status_transitions_total",
			Help: "Channel status transitions",
		},
		[]string{"from", "to"},
	)

	// Health Metrics
	HealthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_health_checks_total",
			Help: "Transcoding health checks by result",
		},
		[]string{"status"},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	// Database Metrics
	DatabaseOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	DatabaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamflow_database_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Queue Metrics
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_events_published_total",
			Help: "Lifecycle events published",
		},
		[]string{"event", "status"},
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_webhook_deliveries_total",
			Help: "Webhook deliveries by final outcome",
		},
		[]string{"status"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamflow_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordChannelCreated records a new channel record
func RecordChannelCreated(plan string) {
	ChannelsCreatedTotal.WithLabelValues(plan).Inc()
}

// RecordProvision records a provisioning outcome
func RecordProvision(mode string, duration float64) {
	ChannelsProvisionedTotal.WithLabelValues(mode).Inc()
	ProvisionDuration.WithLabelValues(mode).Observe(duration)
}

// RecordPollAttempts records how many readiness polls an allocation took
func RecordPollAttempts(attempts int) {
	ProvisionPollAttempts.Observe(float64(attempts))
}

// RecordQuotaRejection records a creation rejected by plan quota
func RecordQuotaRejection(plan string) {
	QuotaRejectionsTotal.WithLabelValues(plan).Inc()
}

// RecordDecommission records a completed decommission
func RecordDecommission(instanceTerminated bool) {
	DecommissionsTotal.WithLabelValues(strconv.FormatBool(instanceTerminated)).Inc()
}

// RecordTerminationFailure records a swallowed termination error
func RecordTerminationFailure() {
	TerminationFailuresTotal.Inc()
}

// RecordStatusTransition records a channel status change
func RecordStatusTransition(from, to string) {
	StatusTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordHealthCheck records a transcoding health check result
func RecordHealthCheck(status string) {
	HealthChecksTotal.WithLabelValues(status).Inc()
}

// RecordStorageOperation records a storage operation
func RecordStorageOperation(operation, status string) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDatabaseOperation records a database operation
func RecordDatabaseOperation(operation, status string, duration float64) {
	DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
	DatabaseOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordEventPublished records a lifecycle event publish attempt
func RecordEventPublished(event string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	EventsPublishedTotal.WithLabelValues(event, status).Inc()
}

// RecordWebhookDelivery records the final outcome of a webhook delivery
func RecordWebhookDelivery(status string) {
	WebhookDeliveriesTotal.WithLabelValues(status).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
