package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-forge/workflowcore/internal/model"
)

func reviewLoopWorkflow(maxLoopIterations int) *model.Workflow {
	cfg := model.DefaultOrchestrationConfig()
	cfg.MaxLoopIterations = maxLoopIterations
	return &model.Workflow{
		ID:            "wf-loop",
		Name:          "review-loop",
		Orchestration: cfg,
		Steps: []model.WorkflowStep{
			{StepNum: 1, ID: "develop", Name: "Develop", Agent: model.DefaultAgent("develop"), Status: model.StepPending},
			{StepNum: 2, ID: "review", Name: "Review", Agent: model.DefaultAgent("review"), Status: model.StepPending},
			{StepNum: 3, ID: "route_review", Name: "Route review", Status: model.StepPending,
				Routes: []model.Route{
					{When: "review['approved'] == true", Goto: "ship"},
					{Default: true, Goto: "develop"},
				}},
			{StepNum: 4, ID: "ship", Name: "Ship", Agent: model.DefaultAgent("ship"), Status: model.StepPending, FinalStep: true},
		},
	}
}

func TestEngine_ReviewLoopReactivatesDevelopUntilApproved(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	wf := reviewLoopWorkflow(10)
	require.NoError(t, eng.CreateWorkflow(ctx, wf))
	_, err := eng.StartWorkflow(ctx, wf.ID)
	require.NoError(t, err)

	// develop -> review (not approved) -> develop again, iteration bumped.
	updated, err := eng.CompleteStep(ctx, wf.ID, 1, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StepRunning, updated.GetStep("review").Status)

	updated, err = eng.CompleteStep(ctx, wf.ID, 2, map[string]any{"approved": false}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StepRunning, updated.GetStep("develop").Status)
	assert.Equal(t, 1, updated.GetStep("develop").Iteration)

	// develop -> review (approved this time) -> ship.
	updated, err = eng.CompleteStep(ctx, wf.ID, 1, nil, nil)
	require.NoError(t, err)
	updated, err = eng.CompleteStep(ctx, wf.ID, 2, map[string]any{"approved": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StepRunning, updated.GetStep("ship").Status)
}

func TestResetStepForGoto_ReturnsLimitErrorAtIterationLimit(t *testing.T) {
	step := &model.WorkflowStep{Name: "develop", Iteration: 5}
	err := resetStepForGoto(step, 5)
	require.Error(t, err)
	var limitErr *GotoLimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, "develop", limitErr.StepName)
	assert.Equal(t, 5, limitErr.Limit)
}

func TestResetStepForGoto_AllowsUnderLimit(t *testing.T) {
	step := &model.WorkflowStep{Name: "develop", Iteration: 2, Status: model.StepCompleted}
	err := resetStepForGoto(step, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, step.Iteration)
	assert.Equal(t, model.StepPending, step.Status)
}

func TestResolveRouteTarget_PrefersMatchOverDefault(t *testing.T) {
	wf := reviewLoopWorkflow(10)
	router := wf.GetStep("route_review")
	ctx := map[string]any{"review": map[string]any{"approved": true}}
	target := resolveRouteTarget(wf, router, ctx)
	require.NotNil(t, target)
	assert.Equal(t, "ship", target.ID)
}

func TestResolveRouteTarget_FallsBackToDefault(t *testing.T) {
	wf := reviewLoopWorkflow(10)
	router := wf.GetStep("route_review")
	ctx := map[string]any{"review": map[string]any{"approved": false}}
	target := resolveRouteTarget(wf, router, ctx)
	require.NotNil(t, target)
	assert.Equal(t, "develop", target.ID)
}
