// Package adapter implements the Issue→Workflow Adapter: the
// external-facing facade that takes a completion signal bearing an issue
// id, a completing agent type, and outputs, and advances the engine. It
// owns ordering, agent-identity matching, idempotency, and auto-start
// semantics, grounded on
// original_source/nexus/plugins/builtin/workflow_state_engine_plugin.py's
// WorkflowStateEnginePlugin.
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-forge/workflowcore/internal/audit"
	"github.com/nexus-forge/workflowcore/internal/model"
	"github.com/nexus-forge/workflowcore/internal/storage"
	"github.com/nexus-forge/workflowcore/internal/workflow/engine"
	"github.com/nexus-forge/workflowcore/internal/workflow/loader"
)

// DedupeStore is the idempotency contract the adapter drives completion
// signals through. audit.IdempotencyLedger (in-process, per-replica) and
// storage/redisstore.Store (shared across replicas) both satisfy it, so a
// single-process deployment and a multi-replica one differ only in which
// concrete value is passed to New — the adapter's dedupe logic is
// otherwise identical.
type DedupeStore interface {
	SeenBefore(ctx context.Context, key string) (bool, error)
}

// MismatchError is returned by CompleteStepForIssue when the running
// step's agent does not match the signal's completing agent type — a
// stale or misrouted completion signal.
type MismatchError struct {
	IssueID     string
	Expected    string
	CompletedBy string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("completion agent mismatch for issue %s: completed_agent=%s, active_agent=%s",
		e.IssueID, e.CompletedBy, e.Expected)
}

// NotificationFunc is invoked when an approval gate is opened on a step.
// Its error is caught and logged, never propagated.
type NotificationFunc func(ctx context.Context, approval model.PendingApproval) error

// Adapter resolves issue ids to workflows and drives the Engine on their
// behalf.
type Adapter struct {
	store  storage.Port
	engine *engine.Engine
	ledger DedupeStore
	logger *slog.Logger
	notify NotificationFunc

	delegationsMu sync.Mutex
	delegations   map[string]*model.Delegation
}

// New constructs an Adapter. ledger may be nil, in which case event_id
// deduplication is skipped entirely (every signal is processed). Pass a
// *audit.IdempotencyLedger for a single-process deployment or a
// *storage/redisstore.Store (or anything else satisfying DedupeStore) to
// share dedupe state across replicas.
func New(store storage.Port, eng *engine.Engine, ledger DedupeStore, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{store: store, engine: eng, ledger: ledger, logger: logger, delegations: make(map[string]*model.Delegation)}
}

// OnApprovalRequired registers the callback fired by RequestApprovalGate.
func (a *Adapter) OnApprovalRequired(fn NotificationFunc) { a.notify = fn }

// CompleteStepForIssue implements the 7-step completion algorithm.
func (a *Adapter) CompleteStepForIssue(ctx context.Context, externalID, completingAgentType string, outputs map[string]any, eventID string) (*model.Workflow, error) {
	workflowID, err := a.store.GetWorkflowIDForIssue(ctx, externalID)
	if err != nil || workflowID == "" {
		a.logger.Debug("complete_step_for_issue: no workflow mapping", "external_id", externalID)
		return nil, nil
	}

	wf, err := a.store.LoadWorkflow(ctx, workflowID)
	if err != nil {
		a.logger.Debug("complete_step_for_issue: workflow not found", "workflow_id", workflowID, "external_id", externalID)
		return nil, nil
	}

	if eventID != "" && a.ledger != nil {
		key := audit.Key(externalID, completingAgentType, eventID)
		seenBefore, err := a.ledger.SeenBefore(ctx, key)
		if err != nil {
			a.logger.Warn("complete_step_for_issue: dedupe check failed, processing signal",
				"workflow_id", workflowID, "external_id", externalID, "error", err)
		} else if seenBefore {
			return wf, nil
		}
	}

	if wf.State == model.WorkflowPending {
		started, err := a.engine.StartWorkflow(ctx, workflowID)
		if err != nil {
			a.logger.Warn("complete_step_for_issue: failed to auto-start pending workflow",
				"workflow_id", workflowID, "external_id", externalID, "error", err)
			return wf, nil
		}
		wf = started
	}

	var running *model.WorkflowStep
	anyRunning := false
	for i := range wf.Steps {
		if wf.Steps[i].Status == model.StepRunning {
			anyRunning = true
			if wf.Steps[i].Agent.Name == completingAgentType {
				running = &wf.Steps[i]
				break
			}
		}
	}

	if !anyRunning {
		a.logger.Warn("complete_step_for_issue: no RUNNING step; returning workflow unchanged",
			"workflow_id", workflowID, "external_id", externalID)
		return wf, nil
	}
	if running == nil {
		a.logger.Error("complete_step_for_issue: completion mismatch",
			"external_id", externalID, "completed_agent", completingAgentType, "active_agent", wf.ActiveAgentType())
		return nil, &MismatchError{IssueID: externalID, Expected: wf.ActiveAgentType(), CompletedBy: completingAgentType}
	}

	return a.engine.CompleteStep(ctx, workflowID, running.StepNum, outputs, nil)
}

// PauseWorkflow resolves externalID to a workflow and pauses it.
func (a *Adapter) PauseWorkflow(ctx context.Context, externalID string) (*model.Workflow, error) {
	workflowID, err := a.store.GetWorkflowIDForIssue(ctx, externalID)
	if err != nil || workflowID == "" {
		return nil, nil
	}
	return a.engine.PauseWorkflow(ctx, workflowID)
}

// ResumeWorkflow resolves externalID to a workflow and resumes it.
func (a *Adapter) ResumeWorkflow(ctx context.Context, externalID string) (*model.Workflow, error) {
	workflowID, err := a.store.GetWorkflowIDForIssue(ctx, externalID)
	if err != nil || workflowID == "" {
		return nil, nil
	}
	return a.engine.ResumeWorkflow(ctx, workflowID)
}

// StartWorkflowForIssue resolves externalID to a workflow and starts it.
func (a *Adapter) StartWorkflowForIssue(ctx context.Context, externalID string) (*model.Workflow, error) {
	workflowID, err := a.store.GetWorkflowIDForIssue(ctx, externalID)
	if err != nil || workflowID == "" {
		return nil, nil
	}
	return a.engine.StartWorkflow(ctx, workflowID)
}

// GetWorkflowStatus resolves externalID to a workflow and returns a
// status snapshot, or nil if no mapping or workflow exists.
type WorkflowStatus struct {
	WorkflowID      string
	Name            string
	State           model.WorkflowState
	CurrentStep     int
	TotalSteps      int
	CurrentStepName string
	CurrentAgent    string
	CreatedAt       time.Time
	Metadata        map[string]any
}

func (a *Adapter) GetWorkflowStatus(ctx context.Context, externalID string) (*WorkflowStatus, error) {
	workflowID, err := a.store.GetWorkflowIDForIssue(ctx, externalID)
	if err != nil || workflowID == "" {
		return nil, nil
	}
	wf, err := a.store.LoadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, nil
	}

	step := wf.GetStepByNum(wf.CurrentStep)
	status := &WorkflowStatus{
		WorkflowID:  wf.ID,
		Name:        wf.Name,
		State:       wf.State,
		CurrentStep: wf.CurrentStep,
		TotalSteps:  wf.Len(),
		CreatedAt:   wf.CreatedAt,
		Metadata:    wf.Metadata,
	}
	if step != nil {
		status.CurrentStepName = step.Name
		status.CurrentAgent = step.Agent.DisplayName
	}
	return status, nil
}

// ApproveStep clears the pending approval for externalID and records the
// grant in the audit log.
func (a *Adapter) ApproveStep(ctx context.Context, externalID, approvedBy string) error {
	if err := a.store.ClearPendingWorkflowApproval(ctx, externalID); err != nil {
		return err
	}
	workflowID, _ := a.store.GetWorkflowIDForIssue(ctx, externalID)
	return a.store.AppendAuditEvent(ctx, model.AuditEvent{
		WorkflowID: workflowID,
		Timestamp:  time.Now(),
		EventType:  model.EventApprovalGranted,
		Data:       map[string]any{"external_id": externalID, "approved_by": approvedBy},
	})
}

// DenyStep clears the pending approval for externalID and records the
// denial in the audit log.
func (a *Adapter) DenyStep(ctx context.Context, externalID, deniedBy, reason string) error {
	if err := a.store.ClearPendingWorkflowApproval(ctx, externalID); err != nil {
		return err
	}
	workflowID, _ := a.store.GetWorkflowIDForIssue(ctx, externalID)
	return a.store.AppendAuditEvent(ctx, model.AuditEvent{
		WorkflowID: workflowID,
		Timestamp:  time.Now(),
		EventType:  model.EventApprovalDenied,
		Data:       map[string]any{"external_id": externalID, "denied_by": deniedBy, "reason": reason},
	})
}

// RequestApprovalGate persists a PendingApproval and fires the
// approval-required notification callback.
func (a *Adapter) RequestApprovalGate(ctx context.Context, externalID string, stepNum int, stepName string, approvers []string, timeoutSecs int) error {
	approval := model.PendingApproval{
		ExternalID:  externalID,
		StepNum:     stepNum,
		StepName:    stepName,
		Approvers:   approvers,
		TimeoutSecs: timeoutSecs,
		RequestedAt: time.Now(),
	}
	if err := a.store.SetPendingWorkflowApproval(ctx, approval); err != nil {
		return err
	}

	workflowID, _ := a.store.GetWorkflowIDForIssue(ctx, externalID)
	_ = a.store.AppendAuditEvent(ctx, model.AuditEvent{
		WorkflowID: workflowID,
		Timestamp:  time.Now(),
		EventType:  model.EventApprovalRequested,
		Data:       map[string]any{"external_id": externalID, "step_num": stepNum, "step_name": stepName, "approvers": approvers},
	})

	if a.notify != nil {
		if err := a.notify(ctx, approval); err != nil {
			a.logger.Warn("approval notification callback failed", "external_id", externalID, "error", err)
		}
	}
	return nil
}

// CreateWorkflowForIssue loads a workflow definition from path, binds it
// to externalID, and persists both the workflow and the mapping.
func (a *Adapter) CreateWorkflowForIssue(ctx context.Context, externalID, definitionPath, workflowType, workflowID, name, description string, metadata map[string]any) (*model.Workflow, error) {
	wf, warnings, err := loader.Load(definitionPath, workflowType)
	if err != nil {
		return nil, fmt.Errorf("load workflow definition %s: %w", definitionPath, err)
	}
	for _, w := range warnings {
		a.logger.Warn("workflow definition warning", "path", definitionPath, "warning", w)
	}

	wf.ID = workflowID
	if name != "" {
		wf.Name = name
	}
	if description != "" {
		wf.Description = description
	}
	if metadata != nil {
		wf.Metadata = metadata
	}

	if err := a.engine.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	if err := a.store.MapIssueToWorkflow(ctx, externalID, wf.ID); err != nil {
		return nil, err
	}
	return wf, nil
}

// RequestDelegation records a sub-task a RUNNING step hands off to a
// distinct agent invocation, tracked independently of the parent step's
// own lifecycle — mirrors original_source/nexus/core/models.py's
// DelegationRequest, normalized straight to IN_PROGRESS since a
// delegation only exists once the sub-agent has actually been invoked.
// Completing it never advances the parent step; only an explicit
// complete_step call on the parent does that.
func (a *Adapter) RequestDelegation(ctx context.Context, workflowID string, parentStepNum int) (*model.Delegation, error) {
	wf, err := a.store.LoadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("request delegation: load workflow %s: %w", workflowID, err)
	}
	step := wf.GetStepByNum(parentStepNum)
	if step == nil {
		return nil, fmt.Errorf("request delegation: workflow %s has no step %d", workflowID, parentStepNum)
	}
	if step.Status != model.StepRunning {
		return nil, fmt.Errorf("request delegation: step %d is %s, not RUNNING", parentStepNum, step.Status)
	}

	d := &model.Delegation{
		ID:               uuid.NewString(),
		ParentWorkflowID: workflowID,
		ParentStepNum:    parentStepNum,
		Status:           model.DelegationInProgress,
		CreatedAt:        time.Now(),
	}

	a.delegationsMu.Lock()
	a.delegations[d.ID] = d
	a.delegationsMu.Unlock()

	_ = a.store.AppendAuditEvent(ctx, model.AuditEvent{
		WorkflowID: workflowID,
		Timestamp:  d.CreatedAt,
		EventType:  model.EventStepStarted,
		Data:       map[string]any{"delegation_id": d.ID, "parent_step_num": parentStepNum, "delegated": true},
	})

	return d, nil
}

// CompleteDelegation records a delegation's outcome — mirrors
// original_source/nexus/core/models.py's DelegationCallback. It updates
// only the Delegation's own status; the caller still owns issuing a
// separate complete_step (or CompleteStepForIssue) call to advance the
// parent step once all of its delegations have resolved.
func (a *Adapter) CompleteDelegation(ctx context.Context, delegationID string, result map[string]any, delegationErr error) (*model.Delegation, error) {
	a.delegationsMu.Lock()
	d, ok := a.delegations[delegationID]
	a.delegationsMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("complete delegation: unknown delegation %s", delegationID)
	}

	a.delegationsMu.Lock()
	now := time.Now()
	d.CompletedAt = &now
	d.Result = result
	if delegationErr != nil {
		d.Status = model.DelegationFailed
		d.Error = delegationErr.Error()
	} else {
		d.Status = model.DelegationCompleted
	}
	snapshot := *d
	a.delegationsMu.Unlock()

	eventType := model.EventStepCompleted
	if delegationErr != nil {
		eventType = model.EventStepFailed
	}
	_ = a.store.AppendAuditEvent(ctx, model.AuditEvent{
		WorkflowID: d.ParentWorkflowID,
		Timestamp:  now,
		EventType:  eventType,
		Data:       map[string]any{"delegation_id": d.ID, "parent_step_num": d.ParentStepNum, "delegated": true, "error": snapshot.Error},
	})

	return &snapshot, nil
}
