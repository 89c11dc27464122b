package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func newTestErrorHandler(buf *bytes.Buffer) *ErrorHandler {
	cfg := DefaultLoggerConfig()
	cfg.Output = buf
	logger := NewLogger(cfg)
	metrics := NewMetricsCollectorWithRegistry("test", prometheus.NewRegistry())
	return NewErrorHandler(logger, metrics, false)
}

func TestErrorHandler_HandleError_NilLogsSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	eh := newTestErrorHandler(buf)

	eh.HandleError(context.Background(), nil, ErrorContext{Operation: "complete_step"})
	assert.Contains(t, buf.String(), "operation completed")
}

func TestErrorHandler_HandleError_LogsAndRecordsMetric(t *testing.T) {
	buf := &bytes.Buffer{}
	eh := newTestErrorHandler(buf)

	eh.HandleError(context.Background(), errors.New("boom"), ErrorContext{
		Operation:  "complete_step_for_issue",
		WorkflowID: "wf-1",
		ErrorType:  "mismatch",
	})

	out := buf.String()
	assert.Contains(t, out, "operation failed")
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"workflow_id":"wf-1"`)
}

func TestErrorHandler_GracefulDegradation_LogsWarning(t *testing.T) {
	buf := &bytes.Buffer{}
	eh := newTestErrorHandler(buf)

	eh.GracefulDegradation(context.Background(), "audit_flush", errors.New("disk full"))
	assert.Contains(t, buf.String(), "telemetry operation failed")
}

func TestErrorHandler_CreateHealthCheck_DegradedWhenNothingEnabled(t *testing.T) {
	eh := newTestErrorHandler(&bytes.Buffer{})

	health := eh.CreateHealthCheck(context.Background())
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, map[string]interface{}{"status": "enabled"}, health.Components["metrics"])
	assert.Equal(t, map[string]interface{}{"status": "disabled"}, health.Components["sentry"])
}
