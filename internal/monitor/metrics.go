package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the sandbox system.
type Metrics struct {
	Registry *prometheus.Registry

	ValidationsTotal   *prometheus.CounterVec
	SecurityViolations *prometheus.CounterVec
	ExecutionsTotal    *prometheus.CounterVec
	ExecutionDuration  *prometheus.HistogramVec
	TimeoutsTotal      prometheus.Counter
	ActionCallsTotal   *prometheus.CounterVec
	ActiveExecutions   prometheus.Gauge
	RequestsInFlight   prometheus.Gauge
	SourceSizeBytes    prometheus.Histogram
	OutputSizeBytes    prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sandbox",
				Name:      "validations_total",
				Help:      "Total number of fragment validations by outcome.",
			},
			[]string{"outcome"},
		),

		SecurityViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sandbox",
				Name:      "security_violations_total",
				Help:      "Total validation violations by category.",
			},
			[]string{"category"},
		),

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sandbox",
				Name:      "executions_total",
				Help:      "Total number of fragment executions by mode and status.",
			},
			[]string{"mode", "status"},
		),

		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sandbox",
				Name:      "execution_duration_seconds",
				Help:      "Duration of fragment executions in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"mode"},
		),

		TimeoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sandbox",
				Name:      "timeouts_total",
				Help:      "Total fragment executions aborted by the deadline.",
			},
		),

		ActionCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sandbox",
				Name:      "action_calls_total",
				Help:      "Total capability action calls by method and status.",
			},
			[]string{"method", "status"},
		),

		ActiveExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sandbox",
				Name:      "active_executions",
				Help:      "Number of currently running fragment executions.",
			},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sandbox",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		SourceSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sandbox",
				Name:      "source_size_bytes",
				Help:      "Size of submitted fragments in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),

		OutputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sandbox",
				Name:      "output_size_bytes",
				Help:      "Size of captured print output in bytes.",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),
	}

	// Register all collectors
	reg.MustRegister(
		m.ValidationsTotal,
		m.SecurityViolations,
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.TimeoutsTotal,
		m.ActionCallsTotal,
		m.ActiveExecutions,
		m.RequestsInFlight,
		m.SourceSizeBytes,
		m.OutputSizeBytes,
	)

	return m
}

// RecordValidation records a validation outcome and, for rejections, the
// violation category.
func (m *Metrics) RecordValidation(outcome, category string) {
	m.ValidationsTotal.WithLabelValues(outcome).Inc()
	if category != "" {
		m.SecurityViolations.WithLabelValues(category).Inc()
	}
}

// RecordExecution records metrics for a completed execution.
func (m *Metrics) RecordExecution(mode, status string, durationSec float64) {
	m.ExecutionsTotal.WithLabelValues(mode, status).Inc()
	m.ExecutionDuration.WithLabelValues(mode).Observe(durationSec)
	if status == "timeout" {
		m.TimeoutsTotal.Inc()
	}
}

// RecordActionCall records one capability action call.
func (m *Metrics) RecordActionCall(method string, success bool) {
	status := "ok"
	if !success {
		status = "failed"
	}
	m.ActionCallsTotal.WithLabelValues(method, status).Inc()
}
