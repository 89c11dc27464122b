package visualizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexus-forge/workflowcore/internal/model"
)

func sampleWorkflow() *model.Workflow {
	return &model.Workflow{
		ID:    "wf-1",
		Name:  "release-flow",
		State: model.WorkflowRunning,
		Steps: []model.WorkflowStep{
			{StepNum: 1, Name: "Triage", Status: model.StepCompleted},
			{StepNum: 2, Name: "Implement", Status: model.StepRunning},
			{StepNum: 3, Name: "Review", Status: model.StepPending},
		},
	}
}

func TestRender_IncludesEveryStepAndEdges(t *testing.T) {
	out := Render(sampleWorkflow())

	assert.Contains(t, out, "release-flow")
	assert.Contains(t, out, "1. Triage [COMPLETED]")
	assert.Contains(t, out, "2. Implement [RUNNING]")
	assert.Contains(t, out, "3. Review [PENDING]")
	assert.Equal(t, 2, strings.Count(out, "-->"))
}

func TestRender_LegendListsAllFiveStatuses(t *testing.T) {
	out := Render(sampleWorkflow())
	for _, status := range []model.StepStatus{
		model.StepPending, model.StepRunning, model.StepCompleted, model.StepFailed, model.StepSkipped,
	} {
		assert.Contains(t, out, string(status))
	}
}

func TestRenderCodeBlock_WrapsInFence(t *testing.T) {
	out := RenderCodeBlock(sampleWorkflow())
	assert.True(t, strings.HasPrefix(out, "```\n"))
	assert.True(t, strings.HasSuffix(out, "```"))
}

func TestRender_FallsBackToIDWhenNameEmpty(t *testing.T) {
	wf := sampleWorkflow()
	wf.Name = ""
	out := Render(wf)
	assert.Contains(t, out, "wf-1")
}
