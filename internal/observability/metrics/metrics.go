package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratahub_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stratahub_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	storeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratahub_store_operations_total",
		Help: "Document store operations by collection, operation and result",
	}, []string{"collection", "op", "result"})

	storeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stratahub_store_operation_duration_seconds",
		Help:    "Duration of document store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection", "op"})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratahub_lifecycle_transitions_total",
		Help: "Lifecycle transitions by record kind, target status and result",
	}, []string{"kind", "status", "result"})

	conversions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratahub_request_conversions_total",
		Help: "Repair request to project conversions by result",
	}, []string{"result"})

	tenantDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratahub_tenant_deletions_total",
		Help: "Cascading tenant deletions by result",
	}, []string{"result"})

	recordsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratahub_tenant_records_deleted_total",
		Help: "Records removed by cascading tenant deletion, by collection",
	}, []string{"collection"})

	emailDispatch = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratahub_email_dispatch_total",
		Help: "Notification email dispatch outcomes",
	}, []string{"result"})

	outboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stratahub_outbox_failed_entries",
		Help: "Failed outbox entries awaiting retry",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveStoreOp records a document store call.
func ObserveStoreOp(collection, op string, err error, duration time.Duration) {
	storeOperations.WithLabelValues(collection, op, resultOf(err)).Inc()
	storeDuration.WithLabelValues(collection, op).Observe(duration.Seconds())
}

// ObserveTransition records a lifecycle transition attempt.
func ObserveTransition(kind, status string, err error) {
	transitions.WithLabelValues(kind, status, resultOf(err)).Inc()
}

// ObserveConversion records a conversion attempt.
func ObserveConversion(err error) {
	conversions.WithLabelValues(resultOf(err)).Inc()
}

// ObserveTenantDeletion records the outcome of a cascading deletion.
// result is one of success, partial or error.
func ObserveTenantDeletion(result string, deleted map[string]int) {
	tenantDeletions.WithLabelValues(result).Inc()
	for collection, n := range deleted {
		recordsDeleted.WithLabelValues(collection).Add(float64(n))
	}
}

// ObserveDispatch records an email dispatch outcome: sent, failed, skipped or dropped.
func ObserveDispatch(result string) {
	emailDispatch.WithLabelValues(result).Inc()
}

// SetOutboxDepth sets the failed outbox gauge.
func SetOutboxDepth(count int) {
	if count < 0 {
		count = 0
	}
	outboxDepth.Set(float64(count))
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
