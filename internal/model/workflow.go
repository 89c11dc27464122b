package model

import "time"

// WorkflowState is the lifecycle state of a Workflow.
type WorkflowState string

const (
	WorkflowPending   WorkflowState = "PENDING"
	WorkflowRunning   WorkflowState = "RUNNING"
	WorkflowPaused    WorkflowState = "PAUSED"
	WorkflowCompleted WorkflowState = "COMPLETED"
	WorkflowFailed    WorkflowState = "FAILED"
	WorkflowCancelled WorkflowState = "CANCELLED"
)

// IsTerminal reports whether the state is one from which the workflow will
// not advance further.
func (s WorkflowState) IsTerminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		return true
	default:
		return false
	}
}

// Workflow is the top-level container for a step graph in execution.
type Workflow struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Version     string        `json:"version,omitempty" yaml:"version,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []WorkflowStep `json:"steps" yaml:"steps"`
	State       WorkflowState `json:"state" yaml:"state"`
	CurrentStep int           `json:"current_step" yaml:"current_step"`

	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`

	Metadata                  map[string]any    `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	RequireHumanMergeApproval bool              `json:"require_human_merge_approval" yaml:"require_human_merge_approval"`
	SchemaVersion             string            `json:"schema_version,omitempty" yaml:"schema_version,omitempty"`
	Orchestration             OrchestrationConfig `json:"orchestration" yaml:"orchestration"`
}

// GetStep returns a pointer to the step with the given stable id, or nil.
func (w *Workflow) GetStep(id string) *WorkflowStep {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}

// GetStepByNum returns a pointer to the step with the given 1-based step
// number, or nil.
func (w *Workflow) GetStepByNum(num int) *WorkflowStep {
	for i := range w.Steps {
		if w.Steps[i].StepNum == num {
			return &w.Steps[i]
		}
	}
	return nil
}

// NextSequential returns the step immediately following the given step
// number in declaration order, or nil if it was the last.
func (w *Workflow) NextSequential(afterNum int) *WorkflowStep {
	for i := range w.Steps {
		if w.Steps[i].StepNum == afterNum+1 {
			return &w.Steps[i]
		}
	}
	return nil
}

// IsComplete reports whether every step has reached a terminal status.
func (w *Workflow) IsComplete() bool {
	for _, s := range w.Steps {
		if s.Status != StepCompleted && s.Status != StepFailed && s.Status != StepSkipped {
			return false
		}
	}
	return true
}

// ActiveAgentType returns the Agent.Name of the first RUNNING step, or ""
// if no step is running.
func (w *Workflow) ActiveAgentType() string {
	for _, s := range w.Steps {
		if s.Status == StepRunning {
			return s.Agent.Name
		}
	}
	return ""
}

// Len returns the number of steps in the workflow.
func (w *Workflow) Len() int {
	return len(w.Steps)
}
