package model

import "time"

// ApprovalGateType names the category of human gate attached to a step.
type ApprovalGateType string

const (
	ApprovalPRMerge     ApprovalGateType = "PR_MERGE"
	ApprovalDeployment  ApprovalGateType = "DEPLOYMENT"
	ApprovalDataAccess  ApprovalGateType = "DATA_ACCESS"
	ApprovalCustom      ApprovalGateType = "CUSTOM"
)

// prMergeRestrictedTools lists the tool invocation patterns a PR_MERGE
// gate blocks until approval is granted.
var prMergeRestrictedTools = []string{
	"gh pr merge",
	"git push origin main",
	"git push origin master",
}

// ApprovalGate is a policy attached to a step that may block it or inject
// a constraint into the agent's instructions.
type ApprovalGate struct {
	GateType           ApprovalGateType `json:"gate_type" yaml:"gate_type"`
	Required           bool             `json:"required" yaml:"required"`
	RestrictedTools    []string         `json:"restricted_tools,omitempty" yaml:"restricted_tools,omitempty"`
	ConstraintMessage  string           `json:"constraint_message,omitempty" yaml:"constraint_message,omitempty"`
}

// PRMergeGate returns the standard PR-merge approval gate: required,
// restricting the tools that could merge a PR without human sign-off, and
// carrying a constraint message meant to be folded into the agent prompt.
func PRMergeGate() ApprovalGate {
	return ApprovalGate{
		GateType:        ApprovalPRMerge,
		Required:        true,
		RestrictedTools: append([]string(nil), prMergeRestrictedTools...),
		ConstraintMessage: "APPROVAL REQUIRED: This step requires human approval before " +
			"merging any pull request. Do NOT run 'gh pr merge', 'git push origin main', " +
			"or 'git push origin master'. Wait for an explicit approval signal.",
	}
}

// ApplyApprovalGates adds a PRMergeGate to every step that doesn't already
// carry one, when the workflow-wide require_human_merge_approval flag is
// set.
func (w *Workflow) ApplyApprovalGates() {
	if !w.RequireHumanMergeApproval {
		return
	}
	for i := range w.Steps {
		step := &w.Steps[i]
		if step.HasApprovalGate(ApprovalPRMerge) {
			continue
		}
		step.ApprovalGates = append(step.ApprovalGates, PRMergeGate())
	}
}

// PendingApproval is the one-per-external-id record of an outstanding
// human decision gating a step's progress.
type PendingApproval struct {
	ExternalID  string    `json:"external_id"`
	StepNum     int       `json:"step_num"`
	StepName    string    `json:"step_name"`
	Approvers   []string  `json:"approvers"`
	TimeoutSecs int       `json:"timeout_seconds"`
	RequestedAt time.Time `json:"requested_at"`
}
