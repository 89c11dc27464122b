package model

import "time"

// StepStatus is the lifecycle state of a WorkflowStep.
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepRunning   StepStatus = "RUNNING"
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
	StepSkipped   StepStatus = "SKIPPED"
)

// BackoffStrategy names a retry delay curve.
type BackoffStrategy string

const (
	BackoffExponential BackoffStrategy = "exponential"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffConstant    BackoffStrategy = "constant"
)

// Route is one branch of a router step: when evaluates true against the
// active context, execution continues at Goto (or Then, a synonym kept
// for document-format compatibility). Default marks the fallback route
// taken when no other route matches.
type Route struct {
	When    string `json:"when,omitempty" yaml:"when,omitempty"`
	Goto    string `json:"goto,omitempty" yaml:"goto,omitempty"`
	Then    string `json:"then,omitempty" yaml:"then,omitempty"`
	Default bool   `json:"default,omitempty" yaml:"default,omitempty"`
}

// Target returns the route's destination step id, preferring Goto.
func (r Route) Target() string {
	if r.Goto != "" {
		return r.Goto
	}
	return r.Then
}

// WorkflowStep is one node in the workflow graph.
type WorkflowStep struct {
	StepNum        int             `json:"step_num" yaml:"step_num"`
	ID             string          `json:"id" yaml:"id"`
	Name           string          `json:"name" yaml:"name"`
	Agent          Agent           `json:"agent" yaml:"agent"`
	PromptTemplate string          `json:"prompt_template,omitempty" yaml:"prompt_template,omitempty"`
	Condition      string          `json:"condition,omitempty" yaml:"condition,omitempty"`
	Timeout        int             `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries     int             `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	BackoffStategy BackoffStrategy `json:"backoff_strategy,omitempty" yaml:"backoff_strategy,omitempty"`
	InitialDelay   float64         `json:"initial_delay" yaml:"initial_delay"`
	Inputs         map[string]any  `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs        map[string]any  `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	Status      StepStatus `json:"status" yaml:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
	RetryCount  int        `json:"retry_count" yaml:"retry_count"`

	ApprovalGates []ApprovalGate `json:"approval_gates,omitempty" yaml:"approval_gates,omitempty"`
	Routes        []Route        `json:"routes,omitempty" yaml:"routes,omitempty"`
	OnSuccess     string         `json:"on_success,omitempty" yaml:"on_success,omitempty"`
	FinalStep     bool           `json:"final_step,omitempty" yaml:"final_step,omitempty"`
	Iteration     int            `json:"iteration" yaml:"iteration"`
	ParallelWith  []string       `json:"parallel_with,omitempty" yaml:"parallel_with,omitempty"`
}

// IsRouter reports whether this step's only purpose is to select the next
// step based on context, per the flat-representation design note: a
// router is any step with a non-empty Routes list, never a subtype.
func (s *WorkflowStep) IsRouter() bool {
	return len(s.Routes) > 0
}

// HasApprovalGate reports whether the step carries a required gate of the
// given type.
func (s *WorkflowStep) HasApprovalGate(gateType ApprovalGateType) bool {
	for _, g := range s.ApprovalGates {
		if g.GateType == gateType && g.Required {
			return true
		}
	}
	return false
}

// GetApprovalConstraints concatenates the constraint messages of all
// required gates attached to the step, for injection into a rendered
// prompt.
func (s *WorkflowStep) GetApprovalConstraints() string {
	var out string
	for _, g := range s.ApprovalGates {
		if !g.Required || g.ConstraintMessage == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += g.ConstraintMessage
	}
	return out
}

// GetToolRestrictions returns the union of restricted tool patterns across
// all required gates on the step.
func (s *WorkflowStep) GetToolRestrictions() []string {
	var out []string
	for _, g := range s.ApprovalGates {
		if !g.Required {
			continue
		}
		out = append(out, g.RestrictedTools...)
	}
	return out
}

// ResetForGoto performs a goto re-entry: increments Iteration and resets
// the transient fields to PENDING state. It does not enforce the loop
// safety limit; callers must check that separately.
func (s *WorkflowStep) ResetForGoto() {
	s.Iteration++
	s.Status = StepPending
	s.StartedAt = nil
	s.CompletedAt = nil
	s.Error = ""
	s.Outputs = nil
	s.RetryCount = 0
}

// Activate transitions the step to RUNNING and stamps StartedAt.
func (s *WorkflowStep) Activate(now time.Time) {
	s.Status = StepRunning
	s.StartedAt = &now
	s.CompletedAt = nil
	s.Error = ""
}
