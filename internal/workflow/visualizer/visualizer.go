// Package visualizer renders a Workflow as a plain-text flow diagram
// suitable for embedding in a chat message as a fenced code block.
//
// The five status classes it labels are styled the way
// original_source/nexus/core/visualizer.py's Mermaid classDef block does
// (pending/running/completed/failed/skipped), translated to a plain-text
// legend rather than Mermaid markup, since nodes here carry their status
// inline rather than through a rendering engine's class system.
package visualizer

import (
	"fmt"
	"strings"

	"github.com/nexus-forge/workflowcore/internal/model"
)

var statusLegend = []model.StepStatus{
	model.StepPending,
	model.StepRunning,
	model.StepCompleted,
	model.StepFailed,
	model.StepSkipped,
}

var statusSymbol = map[model.StepStatus]string{
	model.StepPending:   "○",
	model.StepRunning:   "▶",
	model.StepCompleted: "●",
	model.StepFailed:    "✗",
	model.StepSkipped:   "–",
}

func nodeLabel(step model.WorkflowStep) string {
	symbol := statusSymbol[step.Status]
	if symbol == "" {
		symbol = "○"
	}
	return fmt.Sprintf("%s %d. %s [%s]", symbol, step.StepNum, step.Name, step.Status)
}

// Render produces the flow diagram for wf: one labelled node per step in
// declaration order, joined with `-->` edges between consecutive steps,
// and a trailing legend mapping each status symbol to its name.
func Render(wf *model.Workflow) string {
	var b strings.Builder

	title := wf.Name
	if title == "" {
		title = wf.ID
	}
	fmt.Fprintf(&b, "Workflow: %s [%s]\n\n", title, wf.State)

	labels := make([]string, len(wf.Steps))
	for i, step := range wf.Steps {
		labels[i] = nodeLabel(step)
	}
	b.WriteString(strings.Join(labels, "\n  -->\n"))
	b.WriteString("\n")

	b.WriteString("\nLegend:\n")
	for _, s := range statusLegend {
		fmt.Fprintf(&b, "  %s %s\n", statusSymbol[s], s)
	}

	return b.String()
}

// RenderCodeBlock wraps Render's output in a fenced code block, the form
// expected when posting the diagram into a chat message.
func RenderCodeBlock(wf *model.Workflow) string {
	return "```\n" + Render(wf) + "```"
}
