package model

// TimeoutAction names what happens when an agent misses its liveness
// window.
type TimeoutAction string

const (
	TimeoutRetry     TimeoutAction = "retry"
	TimeoutFailStep  TimeoutAction = "fail_step"
	TimeoutAlertOnly TimeoutAction = "alert_only"
)

// StaleRunningStepAction names the recovery behavior for a step found
// RUNNING with no live agent process behind it.
type StaleRunningStepAction string

const (
	StaleReconcile    StaleRunningStepAction = "reconcile"
	StaleFailWorkflow StaleRunningStepAction = "fail_workflow"
)

// OrchestrationConfig carries the per-workflow operational parameters
// that govern polling, retry, and completion-signal handling.
type OrchestrationConfig struct {
	PollingIntervalSeconds   int                    `json:"interval_seconds" yaml:"interval_seconds"`
	CompletionGlob           string                 `json:"completion_glob" yaml:"completion_glob"`
	DedupeCacheSize          int                    `json:"dedupe_cache_size" yaml:"dedupe_cache_size"`
	DefaultAgentTimeout      int                    `json:"default_agent_timeout" yaml:"default_agent_timeout"`
	LivenessMissThreshold    int                    `json:"liveness_miss_threshold" yaml:"liveness_miss_threshold"`
	TimeoutAction            TimeoutAction          `json:"timeout_action" yaml:"timeout_action"`
	ChainingEnabled          bool                   `json:"chaining_enabled" yaml:"chaining_enabled"`
	RequireCompletionComment bool                   `json:"require_completion_comment" yaml:"require_completion_comment"`
	BlockOnClosedIssue       bool                   `json:"block_on_closed_issue" yaml:"block_on_closed_issue"`
	MaxRetriesPerStep        int                    `json:"max_retries_per_step" yaml:"max_retries_per_step"`
	Backoff                  BackoffStrategy        `json:"backoff" yaml:"backoff"`
	InitialDelaySeconds      float64                `json:"initial_delay_seconds" yaml:"initial_delay_seconds"`
	StaleRunningStepAction   StaleRunningStepAction `json:"stale_running_step_action" yaml:"stale_running_step_action"`

	// MaxLoopIterations is the hard safety limit on goto re-entries
	// (spec §4.4 step 1); not part of the original document schema but
	// exposed here so callers can override the default of 10.
	MaxLoopIterations int `json:"max_loop_iterations" yaml:"max_loop_iterations"`
}

// DefaultOrchestrationConfig mirrors the defaults of the reference
// implementation's parse_orchestration_config.
func DefaultOrchestrationConfig() OrchestrationConfig {
	return OrchestrationConfig{
		PollingIntervalSeconds:   15,
		DedupeCacheSize:          500,
		DefaultAgentTimeout:      600,
		LivenessMissThreshold:    3,
		TimeoutAction:            TimeoutRetry,
		ChainingEnabled:          true,
		RequireCompletionComment: false,
		BlockOnClosedIssue:       true,
		MaxRetriesPerStep:        2,
		Backoff:                  BackoffExponential,
		InitialDelaySeconds:      1.0,
		StaleRunningStepAction:   StaleReconcile,
		MaxLoopIterations:        10,
	}
}
