package approval

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexus-forge/workflowcore/internal/model"
)

func TestApplyConstraintsToPrompt_NoGatesReturnsBaseUnchanged(t *testing.T) {
	step := &model.WorkflowStep{Name: "implement"}
	out := ApplyConstraintsToPrompt(step, "do the thing", nil)
	assert.Equal(t, "do the thing", out)
}

func TestApplyConstraintsToPrompt_AppendsConstraintMessage(t *testing.T) {
	step := &model.WorkflowStep{
		StepNum:       3,
		Name:          "merge",
		ApprovalGates: []model.ApprovalGate{model.PRMergeGate()},
	}

	out := ApplyConstraintsToPrompt(step, "base instructions", nil)

	assert.Contains(t, out, "base instructions")
	assert.Contains(t, out, "APPROVAL REQUIRED")
}

func TestApplyConstraintsToPrompt_LogsWhenLoggerProvided(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	step := &model.WorkflowStep{
		StepNum:       1,
		Name:          "merge",
		ApprovalGates: []model.ApprovalGate{model.PRMergeGate()},
	}

	ApplyConstraintsToPrompt(step, "base", logger)

	assert.Contains(t, buf.String(), "applied approval gate constraints to prompt")
}

func TestValidateOperation_NoGatesAllowsEverything(t *testing.T) {
	step := &model.WorkflowStep{}
	assert.True(t, ValidateOperation(step, "gh pr merge 42", nil))
}

func TestValidateOperation_BlocksRestrictedTool(t *testing.T) {
	step := &model.WorkflowStep{ApprovalGates: []model.ApprovalGate{model.PRMergeGate()}}

	assert.False(t, ValidateOperation(step, "gh pr merge 42", nil))
	assert.False(t, ValidateOperation(step, "git push origin main", nil))
	assert.True(t, ValidateOperation(step, "git push origin feature-branch", nil))
}

func TestCheckPRMergeAllowed(t *testing.T) {
	unguarded := &model.WorkflowStep{}
	assert.True(t, CheckPRMergeAllowed(unguarded))

	guarded := &model.WorkflowStep{ApprovalGates: []model.ApprovalGate{model.PRMergeGate()}}
	assert.False(t, CheckPRMergeAllowed(guarded))
}

func TestGetGateSummary(t *testing.T) {
	noGates := &model.WorkflowStep{}
	assert.Empty(t, GetGateSummary(noGates))

	withGates := &model.WorkflowStep{ApprovalGates: []model.ApprovalGate{model.PRMergeGate()}}
	assert.Contains(t, GetGateSummary(withGates), "PR_MERGE")
}

func TestGetGateSummary_SkipsNonRequiredGates(t *testing.T) {
	step := &model.WorkflowStep{
		ApprovalGates: []model.ApprovalGate{
			{GateType: model.ApprovalCustom, Required: false},
		},
	}
	assert.Empty(t, GetGateSummary(step))
}
