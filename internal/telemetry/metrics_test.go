package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCollector_RecordWorkflowStarted(t *testing.T) {
	m := NewMetricsCollectorWithRegistry("test", prometheus.NewRegistry())

	m.RecordWorkflowStarted()
	m.RecordWorkflowStarted()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.WorkflowsStarted))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.WorkflowsActive))
}

func TestMetricsCollector_RecordWorkflowTerminal_DecrementsActive(t *testing.T) {
	m := NewMetricsCollectorWithRegistry("test", prometheus.NewRegistry())

	m.RecordWorkflowStarted()
	m.RecordWorkflowTerminal("COMPLETED")

	assert.Equal(t, float64(0), testutil.ToFloat64(m.WorkflowsActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WorkflowsCompleted.WithLabelValues("COMPLETED")))
}

func TestMetricsCollector_RecordStepTransition_ObservesDurationWhenNonzero(t *testing.T) {
	m := NewMetricsCollectorWithRegistry("test", prometheus.NewRegistry())

	m.RecordStepTransition("review", "COMPLETED", 2*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.StepTransitions.WithLabelValues("COMPLETED")))
	assert.Equal(t, uint64(1), histogramSampleCount(t, m.StepDuration.WithLabelValues("review")))
}

func TestMetricsCollector_RecordStepTransition_SkipsObservationWhenZero(t *testing.T) {
	m := NewMetricsCollectorWithRegistry("test", prometheus.NewRegistry())

	m.RecordStepTransition("review", "SKIPPED", 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.StepTransitions.WithLabelValues("SKIPPED")))
	assert.Equal(t, uint64(0), histogramSampleCount(t, m.StepDuration.WithLabelValues("review")))
}

func TestMetricsCollector_RecordStepRetry(t *testing.T) {
	m := NewMetricsCollectorWithRegistry("test", prometheus.NewRegistry())

	m.RecordStepRetry("implement")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StepRetries.WithLabelValues("implement")))
}

func TestMetricsCollector_RecordAdapterSignal(t *testing.T) {
	m := NewMetricsCollectorWithRegistry("test", prometheus.NewRegistry())

	m.RecordAdapterSignal("mismatch")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AdapterSignals.WithLabelValues("mismatch")))
}

func histogramSampleCount(t *testing.T, obs prometheus.Observer) uint64 {
	t.Helper()
	hist, ok := obs.(prometheus.Histogram)
	if !ok {
		t.Fatalf("observer is not a prometheus.Histogram")
	}
	ch := make(chan prometheus.Metric, 1)
	hist.Collect(ch)
	var m dto.Metric
	assert.NoError(t, (<-ch).Write(&m))
	return m.GetHistogram().GetSampleCount()
}
