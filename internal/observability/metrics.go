package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	requestsTotal         *prometheus.CounterVec
	requestLatencySeconds *prometheus.HistogramVec
	errorsTotal           *prometheus.CounterVec
	submissionsTotal      *prometheus.CounterVec
	gradingOpsTotal       *prometheus.CounterVec
	blobLatencySeconds    *prometheus.HistogramVec
	auditDroppedTotal     prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors for the evidence API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evidia_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		requestLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evidia_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evidia_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evidia_submissions_total",
			Help: "Evidence submissions processed, labelled by detected file type.",
		}, []string{"mime"})

		gradingOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evidia_grading_operations_total",
			Help: "Grading engine operations, labelled by operation and outcome.",
		}, []string{"operation", "outcome"})

		blobLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evidia_blob_latency_seconds",
			Help:    "Latency of blob store operations.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"operation"})

		auditDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evidia_audit_dropped_total",
			Help: "Audit entries dropped because the buffer was full.",
		})

		prometheus.MustRegister(
			requestsTotal,
			requestLatencySeconds,
			errorsTotal,
			submissionsTotal,
			gradingOpsTotal,
			blobLatencySeconds,
			auditDroppedTotal,
		)
	})
}

// Requests exposes the request counter.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the request latency histogram.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return requestLatencySeconds
}

// Errors exposes the error response counter.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}

// Submissions exposes the evidence submission counter.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// GradingOps exposes the grading operation counter.
func GradingOps() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingOpsTotal
}

// BlobLatency exposes the blob store latency histogram.
func BlobLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return blobLatencySeconds
}

// AuditDropped exposes the dropped audit entry counter.
func AuditDropped() prometheus.Counter {
	RegisterMetrics()
	return auditDroppedTotal
}
