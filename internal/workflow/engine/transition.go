package engine

import (
	"fmt"
	"time"

	"github.com/nexus-forge/workflowcore/internal/condition"
	"github.com/nexus-forge/workflowcore/internal/model"
)

// buildStepContext builds the evaluation context conditions and routes
// see: each step's stable id maps to its recorded outputs, so an
// expression like triage['severity'] == 'high' can read a prior step's
// result.
func buildStepContext(wf *model.Workflow) map[string]any {
	ctx := make(map[string]any, len(wf.Steps))
	for _, s := range wf.Steps {
		ctx[s.ID] = s.Outputs
	}
	return ctx
}

// resolveRouteTarget evaluates a router step's routes against context and
// returns the matched target step, or nil if none matched and no default
// route is declared.
func resolveRouteTarget(wf *model.Workflow, routerStep *model.WorkflowStep, ctx map[string]any) *model.WorkflowStep {
	var defaultTarget string

	for _, route := range routerStep.Routes {
		target := route.Target()
		isDefault := route.Default && route.When == ""
		if isDefault {
			if defaultTarget == "" {
				defaultTarget = target
			}
			continue
		}
		if route.When != "" && target != "" && condition.Evaluate(route.When, ctx, false) {
			return wf.GetStep(target)
		}
	}
	if defaultTarget != "" {
		return wf.GetStep(defaultTarget)
	}
	return nil
}

// GotoLimitError signals that a step's loop-iteration safety limit was
// exceeded during a goto reset.
type GotoLimitError struct {
	StepName  string
	Iteration int
	Limit     int
}

func (e *GotoLimitError) Error() string {
	return fmt.Sprintf("step %q has been re-activated %d times (limit %d). Aborting to prevent infinite loop.",
		e.StepName, e.Iteration, e.Limit)
}

// resetStepForGoto resets step for a goto re-entry, returning a
// GotoLimitError instead of mutating the step if doing so would exceed
// maxLoopIterations.
func resetStepForGoto(step *model.WorkflowStep, maxLoopIterations int) error {
	if step.Iteration >= maxLoopIterations {
		return &GotoLimitError{StepName: step.Name, Iteration: step.Iteration, Limit: maxLoopIterations}
	}
	step.ResetForGoto()
	return nil
}

// successorOutcome is the result of advancing a workflow after a step
// completed successfully.
type successorOutcome struct {
	activatedStep  *model.WorkflowStep
	skipped        []*model.WorkflowStep
	gotoResetError error
}

// advanceAfterSuccess computes the next activation following completedStep's
// success, per the successor-selection / router-evaluation /
// condition-evaluation / activation / terminal algorithm. It mutates wf in
// place and returns the step it activated, if any.
func advanceAfterSuccess(wf *model.Workflow, completedStep *model.WorkflowStep, maxLoopIterations int) successorOutcome {
	var next *model.WorkflowStep
	if completedStep.OnSuccess != "" {
		next = wf.GetStep(completedStep.OnSuccess)
		if next != nil && next.Status != model.StepPending {
			if err := resetStepForGoto(next, maxLoopIterations); err != nil {
				return successorOutcome{gotoResetError: err}
			}
		}
	}
	if next == nil {
		next = wf.NextSequential(completedStep.StepNum)
	}
	return advanceFrom(wf, next, maxLoopIterations)
}

// advanceFrom runs the router-evaluation / condition-evaluation /
// activation / terminal loop (spec steps 2-5) starting from candidate.
// It is shared by advanceAfterSuccess (candidate = the on_success or
// next-sequential step) and StartWorkflow (candidate = step 1).
func advanceFrom(wf *model.Workflow, candidate *model.WorkflowStep, maxLoopIterations int) successorOutcome {
	var outcome successorOutcome
	ctx := buildStepContext(wf)
	next := candidate

	for next != nil {
		if next.IsRouter() {
			now := time.Now()
			next.Status = model.StepSkipped
			next.CompletedAt = &now
			outcome.skipped = append(outcome.skipped, next)
			wf.CurrentStep = next.StepNum

			target := resolveRouteTarget(wf, next, ctx)
			if target == nil {
				wf.State = model.WorkflowCompleted
				wf.CompletedAt = &now
				return outcome
			}
			if err := resetStepForGoto(target, maxLoopIterations); err != nil {
				outcome.gotoResetError = err
				return outcome
			}
			next = target
			continue
		}

		if condition.Evaluate(next.Condition, ctx, true) {
			now := time.Now()
			wf.CurrentStep = next.StepNum
			next.Activate(now)
			outcome.activatedStep = next
			return outcome
		}

		now := time.Now()
		next.Status = model.StepSkipped
		next.CompletedAt = &now
		outcome.skipped = append(outcome.skipped, next)
		wf.CurrentStep = next.StepNum
		next = wf.NextSequential(next.StepNum)
	}

	now := time.Now()
	wf.State = model.WorkflowCompleted
	wf.CompletedAt = &now
	return outcome
}
