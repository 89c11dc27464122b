// Package engine implements the workflow Transition Service and
// Completion Service: the state machine that decides what runs next after
// a step succeeds or fails, and the facade (Engine) that external callers
// — the Issue→Workflow adapter, the CLI, tests — drive it through.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-forge/workflowcore/internal/audit"
	"github.com/nexus-forge/workflowcore/internal/events"
	"github.com/nexus-forge/workflowcore/internal/model"
	"github.com/nexus-forge/workflowcore/internal/retry"
	"github.com/nexus-forge/workflowcore/internal/storage"
)

// StepTransitionFunc is invoked after a new step is activated. Its error
// is caught and logged, never propagated to the caller of CompleteStep.
type StepTransitionFunc func(ctx context.Context, wf *model.Workflow, activated *model.WorkflowStep, outputs map[string]any) error

// WorkflowCompleteFunc is invoked when a workflow reaches COMPLETED. Its
// error is caught and logged, never propagated.
type WorkflowCompleteFunc func(ctx context.Context, wf *model.Workflow, outputs map[string]any) error

// Engine is the facade over the transition/completion state machine.
type Engine struct {
	store  storage.Port
	audit  *audit.Writer
	bus    *events.Bus
	logger *slog.Logger

	onStepTransition   StepTransitionFunc
	onWorkflowComplete WorkflowCompleteFunc
}

// New constructs an Engine. auditWriter and bus may be nil in tests that
// don't care about side channels, in which case they are no-ops.
func New(store storage.Port, auditWriter *audit.Writer, bus *events.Bus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, audit: auditWriter, bus: bus, logger: logger}
}

// OnStepTransition registers the callback invoked after a new step
// activates.
func (e *Engine) OnStepTransition(fn StepTransitionFunc) { e.onStepTransition = fn }

// OnWorkflowComplete registers the callback invoked when a workflow
// reaches COMPLETED.
func (e *Engine) OnWorkflowComplete(fn WorkflowCompleteFunc) { e.onWorkflowComplete = fn }

func (e *Engine) emitAudit(wf *model.Workflow, eventType model.EventType, data map[string]any) {
	if e.audit == nil {
		return
	}
	e.audit.Append(model.AuditEvent{
		WorkflowID: wf.ID,
		Timestamp:  time.Now(),
		EventType:  eventType,
		Data:       data,
	})
}

func (e *Engine) emitBus(kind events.Kind, wf *model.Workflow, step *model.WorkflowStep) {
	if e.bus == nil {
		return
	}
	ev := events.Event{Kind: kind, WorkflowID: wf.ID}
	if step != nil {
		ev.StepNum = step.StepNum
		ev.StepName = step.Name
		ev.AgentType = step.Agent.Name
	}
	e.bus.Publish(ev)
}

// CreateWorkflow assigns an id and creation timestamp, persists wf, and
// emits WORKFLOW_CREATED.
func (e *Engine) CreateWorkflow(ctx context.Context, wf *model.Workflow) error {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	wf.CreatedAt = time.Now()
	wf.State = model.WorkflowPending
	if err := e.store.SaveWorkflow(ctx, wf); err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	e.emitAudit(wf, model.EventWorkflowCreated, map[string]any{"name": wf.Name})
	return nil
}

// StartWorkflow transitions a PENDING workflow to RUNNING and activates
// its first eligible step via the same router/condition machinery used
// after a step completes.
func (e *Engine) StartWorkflow(ctx context.Context, workflowID string) (*model.Workflow, error) {
	wf, err := e.store.LoadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.State != model.WorkflowPending {
		return wf, nil
	}

	now := time.Now()
	wf.State = model.WorkflowRunning
	wf.StartedAt = &now

	first := wf.GetStepByNum(1)
	if first == nil {
		wf.State = model.WorkflowCompleted
		wf.CompletedAt = &now
	} else {
		outcome := advanceFrom(wf, first, wf.Orchestration.MaxLoopIterations)
		e.recordSkipped(wf, outcome.skipped)
		if outcome.gotoResetError != nil {
			e.logger.Error("goto reset failed during start", "workflow_id", wf.ID, "error", outcome.gotoResetError)
			e.failOnGotoLimit(wf, outcome.gotoResetError)
		} else if outcome.activatedStep != nil {
			e.emitBus(events.KindStepStarted, wf, outcome.activatedStep)
		}
	}

	if err := e.store.SaveWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("start workflow: %w", err)
	}
	e.emitAudit(wf, model.EventWorkflowStarted, nil)
	if wf.State == model.WorkflowCompleted {
		e.emitAudit(wf, model.EventWorkflowCompleted, nil)
		e.emitBus(events.KindWorkflowComplete, wf, nil)
	}
	return wf, nil
}

// failOnGotoLimit marks wf FAILED when a goto re-entry exceeded its
// iteration limit, recording the offending step name and iteration count
// in the audit trail.
func (e *Engine) failOnGotoLimit(wf *model.Workflow, err error) {
	now := time.Now()
	wf.State = model.WorkflowFailed
	wf.CompletedAt = &now

	data := map[string]any{"error": err.Error()}
	if limitErr, ok := err.(*GotoLimitError); ok {
		data["step_name"] = limitErr.StepName
		data["iteration"] = limitErr.Iteration
		data["limit"] = limitErr.Limit
	}
	e.emitAudit(wf, model.EventWorkflowFailed, data)
	e.emitBus(events.KindWorkflowFailed, wf, nil)
}

func (e *Engine) recordSkipped(wf *model.Workflow, skipped []*model.WorkflowStep) {
	for _, s := range skipped {
		reason := "router evaluated"
		if s.Condition != "" {
			reason = fmt.Sprintf("Condition evaluated to False: %s", s.Condition)
		}
		e.emitAudit(wf, model.EventStepSkipped, map[string]any{
			"step_num":  s.StepNum,
			"step_name": s.Name,
			"condition": s.Condition,
			"reason":    reason,
		})
	}
}

// CompleteStep implements the Completion Service: complete_step(workflow,
// step, outputs, error).
func (e *Engine) CompleteStep(ctx context.Context, workflowID string, stepNum int, outputs map[string]any, stepErr error) (*model.Workflow, error) {
	wf, err := e.store.LoadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	step := wf.GetStepByNum(stepNum)
	if step == nil {
		return nil, fmt.Errorf("workflow %s has no step %d", workflowID, stepNum)
	}

	if stepErr != nil {
		outcome := retry.ApplyRetryTransition(step, wf.Orchestration, stepErr)
		if outcome.WillRetry {
			if err := e.store.SaveWorkflow(ctx, wf); err != nil {
				return nil, fmt.Errorf("persist retry: %w", err)
			}
			e.emitAudit(wf, model.EventStepRetry, map[string]any{
				"step_num": step.StepNum, "step_name": step.Name, "retry_count": step.RetryCount, "backoff_seconds": outcome.Backoff.Seconds(),
			})
			return wf, nil
		}
		// Exhausted retries: step.Status is now FAILED, fall through as a
		// failed completion (not an error return).
	} else {
		now := time.Now()
		step.Status = model.StepCompleted
		step.CompletedAt = &now
		step.Outputs = outputs
		e.emitBus(events.KindStepCompleted, wf, step)
	}

	if step.Status == model.StepCompleted && step.FinalStep {
		now := time.Now()
		wf.State = model.WorkflowCompleted
		wf.CompletedAt = &now
		if err := e.store.SaveWorkflow(ctx, wf); err != nil {
			return nil, fmt.Errorf("persist terminal completion: %w", err)
		}
		e.emitAudit(wf, model.EventStepCompleted, map[string]any{"step_num": step.StepNum, "step_name": step.Name})
		e.emitAudit(wf, model.EventWorkflowCompleted, nil)
		e.emitBus(events.KindWorkflowComplete, wf, nil)
		e.invokeWorkflowComplete(ctx, wf, outputs)
		return wf, nil
	}

	var activated *model.WorkflowStep
	var gotoFailed error
	if step.Status == model.StepCompleted {
		outcome := advanceAfterSuccess(wf, step, wf.Orchestration.MaxLoopIterations)
		e.recordSkipped(wf, outcome.skipped)
		if outcome.gotoResetError != nil {
			e.logger.Error("goto reset failed", "workflow_id", wf.ID, "error", outcome.gotoResetError)
			gotoFailed = outcome.gotoResetError
		}
		activated = outcome.activatedStep
		if activated != nil {
			e.emitBus(events.KindStepStarted, wf, activated)
		}
	} else {
		e.emitBus(events.KindStepFailed, wf, step)
	}

	if gotoFailed != nil {
		e.failOnGotoLimit(wf, gotoFailed)
	}

	if err := e.store.SaveWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("persist completion: %w", err)
	}

	eventType := model.EventStepCompleted
	if step.Status == model.StepFailed {
		eventType = model.EventStepFailed
	}
	e.emitAudit(wf, eventType, map[string]any{"step_num": step.StepNum, "step_name": step.Name, "error": step.Error})

	switch {
	case gotoFailed != nil:
		// already recorded by failOnGotoLimit above.
	case step.Status == model.StepCompleted && activated != nil:
		e.invokeStepTransition(ctx, wf, activated, outputs)
	case wf.State == model.WorkflowCompleted:
		e.emitAudit(wf, model.EventWorkflowCompleted, nil)
		e.emitBus(events.KindWorkflowComplete, wf, nil)
		e.invokeWorkflowComplete(ctx, wf, outputs)
	}

	return wf, nil
}

func (e *Engine) invokeStepTransition(ctx context.Context, wf *model.Workflow, activated *model.WorkflowStep, outputs map[string]any) {
	if e.onStepTransition == nil {
		return
	}
	if err := e.onStepTransition(ctx, wf, activated, outputs); err != nil {
		e.logger.Error("on_step_transition callback failed", "workflow_id", wf.ID, "step_num", activated.StepNum, "error", err)
	}
}

func (e *Engine) invokeWorkflowComplete(ctx context.Context, wf *model.Workflow, outputs map[string]any) {
	if e.onWorkflowComplete == nil {
		return
	}
	if err := e.onWorkflowComplete(ctx, wf, outputs); err != nil {
		e.logger.Error("on_workflow_complete callback failed", "workflow_id", wf.ID, "error", err)
	}
}

// PauseWorkflow transitions RUNNING to PAUSED without touching the active
// step.
func (e *Engine) PauseWorkflow(ctx context.Context, workflowID string) (*model.Workflow, error) {
	wf, err := e.store.LoadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.State != model.WorkflowRunning {
		return wf, nil
	}
	wf.State = model.WorkflowPaused
	if err := e.store.SaveWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	e.emitAudit(wf, model.EventWorkflowPaused, nil)
	return wf, nil
}

// ResumeWorkflow transitions PAUSED back to RUNNING.
func (e *Engine) ResumeWorkflow(ctx context.Context, workflowID string) (*model.Workflow, error) {
	wf, err := e.store.LoadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.State != model.WorkflowPaused {
		return wf, nil
	}
	wf.State = model.WorkflowRunning
	if err := e.store.SaveWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	e.emitAudit(wf, model.EventWorkflowResumed, nil)
	return wf, nil
}
