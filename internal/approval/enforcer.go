package approval

import (
	"log/slog"
	"strings"

	"github.com/nexus-forge/workflowcore/internal/model"
)

// ApplyConstraintsToPrompt folds a step's approval-gate constraint
// messages into a rendered prompt, placed after the base instructions.
func ApplyConstraintsToPrompt(step *model.WorkflowStep, basePrompt string, logger *slog.Logger) string {
	if len(step.ApprovalGates) == 0 {
		return basePrompt
	}

	constraints := step.GetApprovalConstraints()
	if constraints == "" {
		return basePrompt
	}

	if logger != nil {
		logger.Info("applied approval gate constraints to prompt",
			"step_num", step.StepNum, "step_name", step.Name, "gate_count", len(step.ApprovalGates))
	}

	return basePrompt + "\n\n" + constraints
}

// ValidateOperation reports whether a proposed tool invocation is allowed
// under the step's approval gates.
func ValidateOperation(step *model.WorkflowStep, operation string, logger *slog.Logger) bool {
	if len(step.ApprovalGates) == 0 {
		return true
	}

	op := strings.ToLower(operation)
	for _, restriction := range step.GetToolRestrictions() {
		if strings.Contains(op, strings.ToLower(restriction)) {
			if logger != nil {
				logger.Warn("operation blocked by approval gate",
					"step_num", step.StepNum, "operation", operation)
			}
			return false
		}
	}
	return true
}

// CheckPRMergeAllowed reports whether PR-merge operations are permitted
// on a step, i.e. it does not carry a required PR_MERGE gate.
func CheckPRMergeAllowed(step *model.WorkflowStep) bool {
	return !step.HasApprovalGate(model.ApprovalPRMerge)
}

// GetGateSummary returns a human-readable summary of a step's required
// approval gates, or "" if it has none.
func GetGateSummary(step *model.WorkflowStep) string {
	var active []model.ApprovalGate
	for _, g := range step.ApprovalGates {
		if g.Required {
			active = append(active, g)
		}
	}
	if len(active) == 0 {
		return ""
	}

	names := make([]string, len(active))
	for i, g := range active {
		names[i] = string(g.GateType)
	}
	return "Active approval gates: " + strings.Join(names, ", ")
}
