// Package metrics declares the Prometheus collectors for the service.
// Collectors are registered on the default registry at init and are
// safe to use from any goroutine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job metrics
var (
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helvetia_jobs_submitted_total",
			Help: "Total number of jobs accepted into the queue",
		},
		[]string{"kind"},
	)

	JobsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helvetia_jobs_rejected_total",
			Help: "Total number of submissions rejected because the queue was full",
		},
	)

	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helvetia_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal state",
		},
		[]string{"kind", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helvetia_job_duration_seconds",
			Help:    "Wall clock duration of a single encode",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	ArtifactsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helvetia_artifacts_reaped_total",
			Help: "Total number of unclaimed artifacts released by the reaper",
		},
	)
)

// Temp area metrics
var (
	StagedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helvetia_staged_bytes_total",
			Help: "Total bytes written into the temp area while staging inputs",
		},
	)

	SweepRemovals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helvetia_sweep_removals_total",
			Help: "Total job directories removed by the age sweep",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helvetia_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helvetia_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "helvetia_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Billing metrics
var (
	InvoicesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helvetia_billing_invoices_created_total",
			Help: "Total number of payment invoices created",
		},
	)

	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helvetia_billing_webhooks_total",
			Help: "Total number of payment webhooks by outcome",
		},
		[]string{"outcome"},
	)
)

// RegisterQueue exposes live queue state as gauges. Call it once
// during wiring; the functions must be safe for concurrent use.
func RegisterQueue(inFlight, depth func() int) {
	promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "helvetia_queue_in_flight",
			Help: "Jobs queued or running right now",
		},
		func() float64 { return float64(inFlight()) },
	)
	promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "helvetia_queue_depth",
			Help: "Jobs waiting for the worker",
		},
		func() float64 { return float64(depth()) },
	)
}
