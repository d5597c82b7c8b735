// Package metrics provides Prometheus metrics for the workspace agent.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Project manager metrics
	projectOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsagent_project_operations_total",
			Help: "Total project manager operations",
		},
		[]string{"operation", "status"},
	)

	projectOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wsagent_project_operation_duration_seconds",
			Help:    "Project manager operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	projectsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wsagent_projects_registered",
			Help: "Number of root-level projects seen by the last listing",
		},
	)

	// Store metrics
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsagent_store_operations_total",
			Help: "Total virtual file store operations",
		},
		[]string{"store", "operation", "status"},
	)

	contentBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wsagent_content_bytes_written_total",
			Help: "Total bytes of file content written",
		},
	)

	// VCS status cache metrics
	vcsCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsagent_vcs_cache_lookups_total",
			Help: "VCS status cache lookups by result",
		},
		[]string{"result"},
	)

	vcsBackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wsagent_vcs_backend_duration_seconds",
			Help:    "Duration of calls into the VCS connection",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	// Watcher metrics
	watcherDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsagent_watcher_dispatch_total",
			Help: "File watch events delivered to registrations",
		},
		[]string{"kind"},
	)

	watcherSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wsagent_watcher_subscriptions",
			Help: "Number of active watch registrations",
		},
	)

	// Import metrics
	importsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsagent_imports_total",
			Help: "Total project imports by importer and result",
		},
		[]string{"importer", "status"},
	)

	importProgressBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wsagent_import_progress_broadcasts_total",
			Help: "Import progress lines broadcast after throttling",
		},
	)

	// Event metrics
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsagent_events_published_total",
			Help: "Total workspace events published",
		},
		[]string{"type"},
	)

	eventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wsagent_events_dropped_total",
			Help: "Events dropped because a subscriber was full",
		},
	)

	// Auth metrics
	permissionChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsagent_permission_checks_total",
			Help: "Total ACL permission checks",
		},
		[]string{"result"},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsagent_auth_attempts_total",
			Help: "Total token validations",
		},
		[]string{"result"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wsagent_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	// S3 metrics
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wsagent_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsagent_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordProjectOperation records a project manager operation.
func RecordProjectOperation(operation string, duration time.Duration, success bool) {
	projectOperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
	projectOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetProjectsRegistered sets the number of projects seen by the last listing.
func SetProjectsRegistered(count int) {
	projectsRegistered.Set(float64(count))
}

// RecordStoreOperation records a virtual file store operation.
func RecordStoreOperation(store, operation string, success bool) {
	storeOperationsTotal.WithLabelValues(store, operation, statusLabel(success)).Inc()
}

// RecordContentWrite records bytes written as file content.
func RecordContentWrite(bytes int) {
	contentBytesWritten.Add(float64(bytes))
}

// RecordVCSCacheLookup records a status cache hit or miss.
func RecordVCSCacheLookup(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	vcsCacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordVCSBackendCall records a call into the VCS connection.
func RecordVCSBackendCall(operation string, duration time.Duration, success bool) {
	vcsBackendDuration.WithLabelValues(operation, statusLabel(success)).Observe(duration.Seconds())
}

// RecordWatcherDispatch records a watch event delivered to a registration.
func RecordWatcherDispatch(kind string) {
	watcherDispatchTotal.WithLabelValues(kind).Inc()
}

// AddWatcherSubscriptions adjusts the active registration gauge.
func AddWatcherSubscriptions(delta int) {
	watcherSubscriptions.Add(float64(delta))
}

// RecordImport records a finished project import.
func RecordImport(importer string, success bool) {
	importsTotal.WithLabelValues(importer, statusLabel(success)).Inc()
}

// RecordImportProgressBroadcast records a throttled progress line broadcast.
func RecordImportProgressBroadcast() {
	importProgressBroadcasts.Inc()
}

// RecordEvent records a workspace event publication.
func RecordEvent(eventType string) {
	eventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// RecordEventDropped records an event dropped for a slow subscriber.
func RecordEventDropped() {
	eventsDroppedTotal.Inc()
}

// RecordPermissionCheck records a permission check result.
func RecordPermissionCheck(allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	permissionChecksTotal.WithLabelValues(result).Inc()
}

// RecordAuthAttempt records a token validation.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(query string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	s3OperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
}
