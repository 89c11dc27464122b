package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-forge/workflowcore/internal/model"
	"github.com/nexus-forge/workflowcore/internal/storage"
)

func TestSaveLoadWorkflow_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	wf := &model.Workflow{
		ID:        "wf-1",
		Name:      "demo",
		State:     model.WorkflowRunning,
		CreatedAt: time.Now(),
		Steps: []model.WorkflowStep{
			{StepNum: 1, ID: "triage", Status: model.StepRunning, Iteration: 2},
		},
		Metadata: map[string]any{"owner": "alice"},
	}

	require.NoError(t, s.SaveWorkflow(ctx, wf))

	loaded, err := s.LoadWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, wf.Name, loaded.Name)
	assert.Equal(t, wf.Steps[0].Iteration, loaded.Steps[0].Iteration)
	assert.Equal(t, wf.Metadata["owner"], loaded.Metadata["owner"])

	// Mutating the returned clone must not affect the stored copy.
	loaded.Name = "mutated"
	reloaded, err := s.LoadWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "demo", reloaded.Name)
}

func TestLoadWorkflow_NotFound(t *testing.T) {
	s := New()
	_, err := s.LoadWorkflow(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, &storage.NotFoundError{})
}

func TestIssueMapping_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.MapIssueToWorkflow(ctx, "42", "wf-1"))
	require.NoError(t, s.MapIssueToWorkflow(ctx, "42", "wf-2"))

	id, err := s.GetWorkflowIDForIssue(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "wf-2", id)
}

func TestAuditLog_SinceFilter(t *testing.T) {
	ctx := context.Background()
	s := New()

	t0 := time.Now()
	require.NoError(t, s.AppendAuditEvent(ctx, model.AuditEvent{WorkflowID: "wf-1", EventType: model.EventWorkflowCreated, Timestamp: t0}))
	t1 := t0.Add(time.Minute)
	require.NoError(t, s.AppendAuditEvent(ctx, model.AuditEvent{WorkflowID: "wf-1", EventType: model.EventWorkflowStarted, Timestamp: t1}))

	all, err := s.GetAuditLog(ctx, "wf-1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	since := t0.Add(30 * time.Second)
	recent, err := s.GetAuditLog(ctx, "wf-1", &since)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, model.EventWorkflowStarted, recent[0].EventType)
}
