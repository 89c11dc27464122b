package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector holds the Prometheus metrics the engine, adapter, and
// audit writer record against.
type MetricsCollector struct {
	WorkflowsStarted   prometheus.Counter
	WorkflowsCompleted *prometheus.CounterVec // labeled by terminal state
	WorkflowsActive    prometheus.Gauge

	StepTransitions *prometheus.CounterVec // labeled by status
	StepDuration    *prometheus.HistogramVec
	StepRetries     *prometheus.CounterVec // labeled by step name

	ApprovalsRequested prometheus.Counter
	ApprovalsGranted   prometheus.Counter
	ApprovalsDenied    prometheus.Counter

	AdapterSignals   *prometheus.CounterVec // labeled by outcome
	AuditWriteErrors prometheus.Counter
	AuditQueueDepth  prometheus.Gauge
}

// NewMetricsCollector creates and registers the default metrics against
// the global Prometheus registry.
func NewMetricsCollector(namespace string) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates metrics against a specific
// registry, for test isolation.
func NewMetricsCollectorWithRegistry(namespace string, reg prometheus.Registerer) *MetricsCollector {
	if namespace == "" {
		namespace = "workflowcore"
	}

	counterVec := func(name, help string, labels []string) *prometheus.CounterVec {
		return promauto.With(reg).NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	histogramVec := func(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
		return promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets}, labels)
	}
	counter := func(name, help string) prometheus.Counter {
		return promauto.With(reg).NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return promauto.With(reg).NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	return &MetricsCollector{
		WorkflowsStarted:   counter("workflows_started_total", "Total number of workflows started"),
		WorkflowsCompleted: counterVec("workflows_completed_total", "Total number of workflows reaching a terminal state, by state", []string{"state"}),
		WorkflowsActive:    gauge("workflows_active", "Number of workflows currently RUNNING or PAUSED"),

		StepTransitions: counterVec("step_transitions_total", "Total number of step status transitions, by resulting status", []string{"status"}),
		StepDuration: histogramVec("step_duration_seconds", "Step execution duration from activation to completion",
			[]float64{1, 5, 15, 30, 60, 180, 600, 1800, 3600}, []string{"step_name"}),
		StepRetries: counterVec("step_retries_total", "Total number of step retries, by step name", []string{"step_name"}),

		ApprovalsRequested: counter("approvals_requested_total", "Total number of approval gates opened"),
		ApprovalsGranted:   counter("approvals_granted_total", "Total number of approval gates granted"),
		ApprovalsDenied:    counter("approvals_denied_total", "Total number of approval gates denied"),

		AdapterSignals:   counterVec("adapter_signals_total", "Total number of completion signals handled by the adapter, by outcome", []string{"outcome"}),
		AuditWriteErrors: counter("audit_write_errors_total", "Total number of audit event persistence failures"),
		AuditQueueDepth:  gauge("audit_queue_depth", "Current depth of the async audit writer's buffer"),
	}
}

// RecordWorkflowStarted increments the started counter and the active
// gauge.
func (m *MetricsCollector) RecordWorkflowStarted() {
	m.WorkflowsStarted.Inc()
	m.WorkflowsActive.Inc()
}

// RecordWorkflowTerminal records a workflow reaching state and decrements
// the active gauge.
func (m *MetricsCollector) RecordWorkflowTerminal(state string) {
	m.WorkflowsCompleted.WithLabelValues(state).Inc()
	m.WorkflowsActive.Dec()
}

// RecordStepTransition records a step moving to status and, if duration
// is non-zero, observes its execution time.
func (m *MetricsCollector) RecordStepTransition(stepName, status string, duration time.Duration) {
	m.StepTransitions.WithLabelValues(status).Inc()
	if duration > 0 {
		m.StepDuration.WithLabelValues(stepName).Observe(duration.Seconds())
	}
}

// RecordStepRetry records a retry attempt for stepName.
func (m *MetricsCollector) RecordStepRetry(stepName string) {
	m.StepRetries.WithLabelValues(stepName).Inc()
}

// RecordAdapterSignal records an inbound completion signal's outcome
// (e.g. "completed", "mismatch", "deduped", "no_mapping").
func (m *MetricsCollector) RecordAdapterSignal(outcome string) {
	m.AdapterSignals.WithLabelValues(outcome).Inc()
}
