package model

import "time"

// EventType is a stable string naming the kind of audit event, also used
// as the Event Bus's dispatch key where applicable.
type EventType string

const (
	EventWorkflowCreated   EventType = "WORKFLOW_CREATED"
	EventWorkflowStarted   EventType = "WORKFLOW_STARTED"
	EventWorkflowPaused    EventType = "WORKFLOW_PAUSED"
	EventWorkflowResumed   EventType = "WORKFLOW_RESUMED"
	EventWorkflowCompleted EventType = "WORKFLOW_COMPLETED"
	EventWorkflowFailed    EventType = "WORKFLOW_FAILED"
	EventStepStarted       EventType = "STEP_STARTED"
	EventStepCompleted     EventType = "STEP_COMPLETED"
	EventStepFailed        EventType = "STEP_FAILED"
	EventStepSkipped       EventType = "STEP_SKIPPED"
	EventStepRetry         EventType = "STEP_RETRY"
	EventApprovalRequested EventType = "APPROVAL_REQUESTED"
	EventApprovalGranted   EventType = "APPROVAL_GRANTED"
	EventApprovalDenied    EventType = "APPROVAL_DENIED"
)

// AuditEvent is an immutable record appended to a workflow's event log.
type AuditEvent struct {
	WorkflowID string         `json:"workflow_id"`
	Timestamp  time.Time      `json:"timestamp"`
	EventType  EventType      `json:"event_type"`
	Data       map[string]any `json:"data,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
}

// IssueMapping is a one-to-one, restart-durable mapping from an external
// identifier to the workflow it drives.
type IssueMapping struct {
	ExternalID string `json:"external_id"`
	WorkflowID string `json:"workflow_id"`
}

// DelegationStatus is the lifecycle of a sub-task a step has delegated.
type DelegationStatus string

const (
	DelegationPending    DelegationStatus = "PENDING"
	DelegationInProgress DelegationStatus = "IN_PROGRESS"
	DelegationCompleted  DelegationStatus = "COMPLETED"
	DelegationFailed     DelegationStatus = "FAILED"
)

// Delegation tracks a sub-task a step handed off to a distinct agent
// invocation, independent of the parent step's own RUNNING/COMPLETED
// lifecycle. Only an explicit complete_step call on the parent advances
// the parent step; completing a Delegation only updates its own status.
type Delegation struct {
	ID               string           `json:"id"`
	ParentWorkflowID string           `json:"parent_workflow_id"`
	ParentStepNum    int              `json:"parent_step_num"`
	Status           DelegationStatus `json:"status"`
	Result           map[string]any   `json:"result,omitempty"`
	Error            string           `json:"error,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}
