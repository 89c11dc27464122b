package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-forge/workflowcore/internal/model"
)

func TestComputeBackoff_Exponential(t *testing.T) {
	assert.Equal(t, 2*time.Second, ComputeBackoff(1, model.BackoffExponential, 0, 2))
	assert.Equal(t, 4*time.Second, ComputeBackoff(2, model.BackoffExponential, 0, 2))
	assert.Equal(t, 8*time.Second, ComputeBackoff(3, model.BackoffExponential, 0, 2))
}

func TestComputeBackoff_Linear(t *testing.T) {
	assert.Equal(t, 6*time.Second, ComputeBackoff(3, model.BackoffLinear, 2, 1))
}

func TestComputeBackoff_Constant(t *testing.T) {
	assert.Equal(t, 5*time.Second, ComputeBackoff(9, model.BackoffConstant, 5, 1))
}

func TestApplyRetryTransition_Retries(t *testing.T) {
	cfg := model.DefaultOrchestrationConfig()
	step := &model.WorkflowStep{RetryCount: 0, Status: model.StepRunning}

	outcome := ApplyRetryTransition(step, cfg, errors.New("boom"))

	require.True(t, outcome.WillRetry)
	assert.Equal(t, model.StepPending, step.Status)
	assert.Equal(t, 1, step.RetryCount)
	assert.Empty(t, step.Error)
	assert.Greater(t, outcome.Backoff, time.Duration(0))
}

func TestApplyRetryTransition_ExhaustedFailsTerminal(t *testing.T) {
	cfg := model.DefaultOrchestrationConfig()
	cfg.MaxRetriesPerStep = 1
	step := &model.WorkflowStep{RetryCount: 1, Status: model.StepRunning}

	outcome := ApplyRetryTransition(step, cfg, errors.New("still failing"))

	require.False(t, outcome.WillRetry)
	assert.Equal(t, model.StepFailed, step.Status)
	assert.Equal(t, "still failing", step.Error)
}
