package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	apiRequestsTotal     *prometheus.CounterVec
	apiLatencySeconds    *prometheus.HistogramVec
	apiErrorsTotal       *prometheus.CounterVec
	stageDurationSeconds *prometheus.HistogramVec
	stageFailuresTotal   *prometheus.CounterVec
	providerCallsTotal   *prometheus.CounterVec
	uploadFilesTotal     *prometheus.CounterVec
	uploadRejectedTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supermarks",
			Name:      "api_requests_total",
			Help:      "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "supermarks",
			Name:      "api_latency_seconds",
			Help:      "Latency distribution for API requests.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supermarks",
			Name:      "api_errors_total",
			Help:      "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		stageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "supermarks",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stage runs.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"})

		stageFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supermarks",
			Subsystem: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Number of pipeline stage runs that failed.",
		}, []string{"stage", "reason"})

		providerCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supermarks",
			Subsystem: "pipeline",
			Name:      "provider_calls_total",
			Help:      "Number of OCR and grading provider invocations.",
		}, []string{"kind", "name", "outcome"})

		uploadFilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supermarks",
			Name:      "upload_files_total",
			Help:      "Number of submission files accepted by kind.",
		}, []string{"kind"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supermarks",
			Name:      "upload_rejected_total",
			Help:      "Number of submission uploads rejected by reason.",
		}, []string{"reason"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			stageDurationSeconds,
			stageFailuresTotal,
			providerCallsTotal,
			uploadFilesTotal,
			uploadRejectedTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// StageDuration exposes the pipeline stage duration histogram.
func StageDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return stageDurationSeconds
}

// StageFailures exposes the pipeline stage failure counter.
func StageFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return stageFailuresTotal
}

// ProviderCalls exposes the OCR/grading provider call counter.
func ProviderCalls() *prometheus.CounterVec {
	RegisterMetrics()
	return providerCallsTotal
}

// UploadFiles exposes the counter of accepted submission files.
func UploadFiles() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadFilesTotal
}

// UploadRejected exposes the counter of rejected uploads.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}
