// Package retry computes per-step backoff delays and decides whether a
// failed step is retried or marked terminal.
package retry

import (
	"math"
	"time"

	backoffv5 "github.com/cenkalti/backoff/v5"

	"github.com/nexus-forge/workflowcore/internal/model"
)

// ComputeBackoff returns the delay before the next attempt for the given
// retry count (the attempt number about to be made, 1-based), strategy,
// per-step initial delay, and the orchestration-level default base delay.
//
//   - exponential: defaultBase * 2^(retryCount-1)
//   - linear:      initialDelay * retryCount
//   - constant:    initialDelay
func ComputeBackoff(retryCount int, strategy model.BackoffStrategy, initialDelay, defaultBase float64) time.Duration {
	var seconds float64
	switch strategy {
	case model.BackoffLinear:
		seconds = initialDelay * float64(retryCount)
	case model.BackoffConstant:
		seconds = initialDelay
	case model.BackoffExponential:
		fallthrough
	default:
		seconds = defaultBase * math.Pow(2, float64(retryCount-1))
	}
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// NewBackOff builds a cenkalti/backoff/v5 curve equivalent to
// ComputeBackoff's exponential strategy, for callers that want to drive
// an actual retry loop (e.g. a storage or notifier call) rather than
// just compute a single delay for the audit trail.
func NewBackOff(defaultBase float64) *backoffv5.ExponentialBackOff {
	b := backoffv5.NewExponentialBackOff()
	b.InitialInterval = time.Duration(defaultBase * float64(time.Second))
	b.Multiplier = 2
	return b
}

// Outcome is the result of applying a retry transition to a failed step.
type Outcome struct {
	WillRetry bool
	Backoff   time.Duration
}

// ApplyRetryTransition decides between retry and terminal-fail for a step
// that reported an error. If the step hasn't exhausted its effective
// max-retries, it is reset to PENDING (error cleared, retry_count
// incremented) and the caller should requeue it after Backoff. Otherwise
// the step is marked FAILED.
func ApplyRetryTransition(step *model.WorkflowStep, cfg model.OrchestrationConfig, stepErr error) Outcome {
	effectiveMax := cfg.MaxRetriesPerStep
	if step.MaxRetries > 0 {
		effectiveMax = step.MaxRetries
	}

	if step.RetryCount < effectiveMax {
		strategy := step.BackoffStategy
		if strategy == "" {
			strategy = cfg.Backoff
		}
		initialDelay := step.InitialDelay
		if initialDelay == 0 {
			initialDelay = cfg.InitialDelaySeconds
		}

		step.RetryCount++
		backoff := ComputeBackoff(step.RetryCount, strategy, initialDelay, cfg.InitialDelaySeconds)

		step.Status = model.StepPending
		step.CompletedAt = nil
		step.Error = ""

		return Outcome{WillRetry: true, Backoff: backoff}
	}

	step.Status = model.StepFailed
	if stepErr != nil {
		step.Error = stepErr.Error()
	}
	return Outcome{WillRetry: false}
}
