package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-forge/workflowcore/internal/audit"
	"github.com/nexus-forge/workflowcore/internal/model"
	"github.com/nexus-forge/workflowcore/internal/storage/memory"
	"github.com/nexus-forge/workflowcore/internal/workflow/engine"
)

func setup(t *testing.T) (*Adapter, *memory.Store, *engine.Engine) {
	t.Helper()
	store := memory.New()
	eng := engine.New(store, nil, nil, nil)
	ledger := audit.NewIdempotencyLedger(100, time.Hour)
	a := New(store, eng, ledger, nil)
	return a, store, eng
}

func twoStepWorkflow(id string) *model.Workflow {
	return &model.Workflow{
		ID:            id,
		Name:          "issue-flow",
		Orchestration: model.DefaultOrchestrationConfig(),
		Steps: []model.WorkflowStep{
			{StepNum: 1, ID: "develop", Name: "Develop", Agent: model.DefaultAgent("developer"), Status: model.StepPending},
			{StepNum: 2, ID: "review", Name: "Review", Agent: model.DefaultAgent("reviewer"), Status: model.StepPending, FinalStep: true},
		},
	}
}

func TestAdapter_CompleteStepForIssue_NoMappingReturnsNil(t *testing.T) {
	a, _, _ := setup(t)
	wf, err := a.CompleteStepForIssue(context.Background(), "issue-404", "developer", nil, "")
	require.NoError(t, err)
	assert.Nil(t, wf)
}

func TestAdapter_CompleteStepForIssue_AutoStartsPendingWorkflow(t *testing.T) {
	ctx := context.Background()
	a, store, eng := setup(t)
	wf := twoStepWorkflow("wf-1")
	require.NoError(t, eng.CreateWorkflow(ctx, wf))
	require.NoError(t, store.MapIssueToWorkflow(ctx, "issue-1", wf.ID))

	updated, err := a.CompleteStepForIssue(ctx, "issue-1", "developer", map[string]any{"pr": "1"}, "")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, model.StepCompleted, updated.GetStepByNum(1).Status)
	assert.Equal(t, model.StepRunning, updated.GetStepByNum(2).Status)
}

func TestAdapter_CompleteStepForIssue_MismatchFailsFast(t *testing.T) {
	ctx := context.Background()
	a, store, eng := setup(t)
	wf := twoStepWorkflow("wf-2")
	require.NoError(t, eng.CreateWorkflow(ctx, wf))
	require.NoError(t, store.MapIssueToWorkflow(ctx, "issue-2", wf.ID))
	_, err := eng.StartWorkflow(ctx, wf.ID)
	require.NoError(t, err)

	updated, err := a.CompleteStepForIssue(ctx, "issue-2", "reviewer", nil, "")
	require.Error(t, err)
	assert.Nil(t, updated)
	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "developer", mismatch.Expected)
	assert.Equal(t, "reviewer", mismatch.CompletedBy)
}

func TestAdapter_CompleteStepForIssue_IdempotentReplaySkipped(t *testing.T) {
	ctx := context.Background()
	a, store, eng := setup(t)
	wf := twoStepWorkflow("wf-3")
	require.NoError(t, eng.CreateWorkflow(ctx, wf))
	require.NoError(t, store.MapIssueToWorkflow(ctx, "issue-3", wf.ID))

	first, err := a.CompleteStepForIssue(ctx, "issue-3", "developer", nil, "evt-1")
	require.NoError(t, err)
	require.Equal(t, model.StepCompleted, first.GetStepByNum(1).Status)

	second, err := a.CompleteStepForIssue(ctx, "issue-3", "developer", nil, "evt-1")
	require.NoError(t, err)
	// Replay with the same event id is a no-op: the step that already
	// advanced past RUNNING is untouched, no duplicate completion occurs.
	assert.Equal(t, model.StepCompleted, second.GetStepByNum(1).Status)
	assert.Equal(t, model.StepRunning, second.GetStepByNum(2).Status)
}

func TestAdapter_CompleteStepForIssue_NoRunningStepReturnsUnchanged(t *testing.T) {
	ctx := context.Background()
	a, store, eng := setup(t)
	wf := twoStepWorkflow("wf-4")
	require.NoError(t, eng.CreateWorkflow(ctx, wf))
	require.NoError(t, store.MapIssueToWorkflow(ctx, "issue-4", wf.ID))
	_, err := eng.StartWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	_, err = eng.CompleteStep(ctx, wf.ID, 1, nil, nil)
	require.NoError(t, err)
	_, err = eng.CompleteStep(ctx, wf.ID, 2, nil, nil)
	require.NoError(t, err)

	updated, err := a.CompleteStepForIssue(ctx, "issue-4", "developer", nil, "")
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowCompleted, updated.State)
}

func TestAdapter_PauseAndResumeByIssue(t *testing.T) {
	ctx := context.Background()
	a, store, eng := setup(t)
	wf := twoStepWorkflow("wf-5")
	require.NoError(t, eng.CreateWorkflow(ctx, wf))
	require.NoError(t, store.MapIssueToWorkflow(ctx, "issue-5", wf.ID))
	_, err := eng.StartWorkflow(ctx, wf.ID)
	require.NoError(t, err)

	paused, err := a.PauseWorkflow(ctx, "issue-5")
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowPaused, paused.State)

	resumed, err := a.ResumeWorkflow(ctx, "issue-5")
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowRunning, resumed.State)
}

func TestAdapter_ApproveStepClearsPendingApprovalAndAudits(t *testing.T) {
	ctx := context.Background()
	a, store, eng := setup(t)
	wf := twoStepWorkflow("wf-6")
	require.NoError(t, eng.CreateWorkflow(ctx, wf))
	require.NoError(t, store.MapIssueToWorkflow(ctx, "issue-6", wf.ID))
	require.NoError(t, a.RequestApprovalGate(ctx, "issue-6", 1, "Develop", []string{"alice"}, 3600))

	pending, err := store.GetPendingWorkflowApproval(ctx, "issue-6")
	require.NoError(t, err)
	require.NotNil(t, pending)

	require.NoError(t, a.ApproveStep(ctx, "issue-6", "alice"))
	_, err = store.GetPendingWorkflowApproval(ctx, "issue-6")
	assert.Error(t, err)

	log, err := store.GetAuditLog(ctx, wf.ID, nil)
	require.NoError(t, err)
	var sawRequested, sawGranted bool
	for _, e := range log {
		if e.EventType == model.EventApprovalRequested {
			sawRequested = true
		}
		if e.EventType == model.EventApprovalGranted {
			sawGranted = true
		}
	}
	assert.True(t, sawRequested)
	assert.True(t, sawGranted)
}

func TestAdapter_RequestAndCompleteDelegation(t *testing.T) {
	ctx := context.Background()
	a, store, eng := setup(t)
	wf := twoStepWorkflow("wf-8")
	require.NoError(t, eng.CreateWorkflow(ctx, wf))
	_, err := eng.StartWorkflow(ctx, wf.ID)
	require.NoError(t, err)

	d, err := a.RequestDelegation(ctx, wf.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.DelegationInProgress, d.Status)
	assert.Equal(t, 1, d.ParentStepNum)

	completed, err := a.CompleteDelegation(ctx, d.ID, map[string]any{"ok": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.DelegationCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)

	// Completing a delegation never advances the parent step on its own.
	loaded, err := store.LoadWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepRunning, loaded.GetStepByNum(1).Status)
}

func TestAdapter_RequestDelegation_RejectsNonRunningStep(t *testing.T) {
	ctx := context.Background()
	a, _, eng := setup(t)
	wf := twoStepWorkflow("wf-9")
	require.NoError(t, eng.CreateWorkflow(ctx, wf))

	_, err := a.RequestDelegation(ctx, wf.ID, 1)
	require.Error(t, err)
}

func TestAdapter_CompleteDelegation_UnknownIDFails(t *testing.T) {
	a, _, _ := setup(t)
	_, err := a.CompleteDelegation(context.Background(), "does-not-exist", nil, nil)
	require.Error(t, err)
}

func TestAdapter_GetWorkflowStatus(t *testing.T) {
	ctx := context.Background()
	a, store, eng := setup(t)
	wf := twoStepWorkflow("wf-7")
	require.NoError(t, eng.CreateWorkflow(ctx, wf))
	require.NoError(t, store.MapIssueToWorkflow(ctx, "issue-7", wf.ID))
	_, err := eng.StartWorkflow(ctx, wf.ID)
	require.NoError(t, err)

	status, err := a.GetWorkflowStatus(ctx, "issue-7")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, "Develop", status.CurrentStepName)
	assert.Equal(t, model.WorkflowRunning, status.State)
}
