// Package storage defines the abstract contract the engine, adapter, and
// audit ledger consume for persistence. Concrete backends (in-memory,
// SQLite, Redis) are external collaborators to the core: the core only
// ever depends on this interface.
package storage

import (
	"context"
	"time"

	"github.com/nexus-forge/workflowcore/internal/model"
)

// Port is the full storage contract required by the workflow orchestration
// core.
type Port interface {
	SaveWorkflow(ctx context.Context, wf *model.Workflow) error
	LoadWorkflow(ctx context.Context, id string) (*model.Workflow, error)
	ListWorkflows(ctx context.Context, state model.WorkflowState, limit int) ([]*model.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) (bool, error)

	AppendAuditEvent(ctx context.Context, event model.AuditEvent) error
	GetAuditLog(ctx context.Context, workflowID string, since *time.Time) ([]model.AuditEvent, error)

	SaveAgentMetadata(ctx context.Context, workflowID, agentName string, data map[string]any) error
	GetAgentMetadata(ctx context.Context, workflowID, agentName string) (map[string]any, error)

	MapIssueToWorkflow(ctx context.Context, externalID, workflowID string) error
	GetWorkflowIDForIssue(ctx context.Context, externalID string) (string, error)
	RemoveIssueWorkflowMapping(ctx context.Context, externalID string) error
	LoadIssueWorkflowMappings(ctx context.Context) (map[string]string, error)

	SetPendingWorkflowApproval(ctx context.Context, approval model.PendingApproval) error
	ClearPendingWorkflowApproval(ctx context.Context, externalID string) error
	GetPendingWorkflowApproval(ctx context.Context, externalID string) (*model.PendingApproval, error)
	LoadPendingWorkflowApprovals(ctx context.Context) (map[string]model.PendingApproval, error)

	CleanupOldWorkflows(ctx context.Context, olderThanDays int) (int, error)
}

// ErrNotFound is returned by Load-style operations when the requested
// record does not exist; callers (adapter §4.6 steps 1-2) treat it as "no
// such mapping/workflow", not as a storage error.
var ErrNotFound = &NotFoundError{}

// NotFoundError is the sentinel error type backends return instead of
// panicking or returning ("", nil) for missing records.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.Kind == "" {
		return "not found"
	}
	return e.Kind + " not found: " + e.ID
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
