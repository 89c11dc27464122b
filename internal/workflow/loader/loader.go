// Package loader parses workflow definition documents (flat or tiered
// YAML) into model.Workflow values, validates their orchestration block,
// and provides the dry-run simulator and prompt-context generator used by
// the CLI and by agents constructing their next prompt.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nexus-forge/workflowcore/internal/model"
	"github.com/nexus-forge/workflowcore/internal/security"
)

var (
	orchestrationTimeoutActions = map[string]bool{"retry": true, "fail_step": true, "alert_only": true}
	orchestrationBackoffs       = map[string]bool{"constant": true, "linear": true, "exponential": true}
	orchestrationStaleActions   = map[string]bool{"reconcile": true, "fail_workflow": true}
	truthyStrings               = map[string]bool{"1": true, "true": true, "yes": true, "on": true}
	falsyStrings                = map[string]bool{"0": true, "false": true, "no": true, "off": true}
)

// Document is a parsed workflow definition, generic over its YAML shape so
// both flat and tiered layouts can be handled uniformly.
type Document map[string]any

// ParseDocument parses raw YAML bytes into a Document.
func ParseDocument(raw []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse workflow document: %w", err)
	}
	return doc, nil
}

// ParseBool parses YAML scalar booleans without treating any non-empty
// string as truthy: only the recognized truthy/falsy spellings flip the
// default, everything else falls back to it.
func ParseBool(value any, def bool) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		normalized := strings.ToLower(strings.TrimSpace(v))
		if truthyStrings[normalized] {
			return true
		}
		if falsyStrings[normalized] {
			return false
		}
		return def
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	return def
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return def
		}
		return f
	}
	return def
}

func asInt(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return def
		}
		return i
	}
	return def
}

// Slugify lowercases and hyphenates a step name/id into a stable identifier.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// ResolveStepsList resolves the raw step dictionaries from either a flat
// "steps" list or a tiered "<tier>_workflow.steps" layout, following the
// workflow_types indirection table when present.
func ResolveStepsList(data Document, workflowType string) []map[string]any {
	if workflowType != "" {
		mappedType := workflowType
		if wtm, ok := asMap(data["workflow_types"]); ok {
			if mapped := asString(wtm[workflowType]); mapped != "" {
				mappedType = mapped
			}
		}

		keyPrefix := strings.ReplaceAll(mappedType, "-", "_")
		candidates := []string{
			keyPrefix + "_workflow",
			keyPrefix,
			mappedType + "_workflow",
			mappedType,
		}
		seen := map[string]bool{}
		for _, key := range candidates {
			if seen[key] {
				continue
			}
			seen[key] = true
			tier, ok := asMap(data[key])
			if !ok {
				continue
			}
			if steps, ok := asList(tier["steps"]); ok && len(steps) > 0 {
				return toMapList(steps)
			}
		}
		return nil
	}

	if flat, ok := asList(data["steps"]); ok && len(flat) > 0 {
		return toMapList(flat)
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !strings.HasSuffix(key, "_workflow") {
			continue
		}
		tier, ok := asMap(data[key])
		if !ok {
			continue
		}
		if steps, ok := asList(tier["steps"]); ok && len(steps) > 0 {
			return toMapList(steps)
		}
	}
	return nil
}

func toMapList(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := asMap(item); ok {
			out = append(out, m)
		}
	}
	return out
}

// ParseRequireHumanMergeApproval reads the workflow-wide approval toggle,
// preferring monitoring.require_human_merge_approval but honoring a
// top-level key retained for backward-compatible document layouts.
func ParseRequireHumanMergeApproval(data Document) bool {
	require := true
	if monitoring, ok := asMap(data["monitoring"]); ok {
		require = ParseBool(monitoring["require_human_merge_approval"], true)
	}
	if v, ok := data["require_human_merge_approval"]; ok {
		require = ParseBool(v, true)
	}
	return require
}

// BuildWorkflowSteps converts parsed step dictionaries into model.WorkflowStep
// values, one-indexed by document order.
func BuildWorkflowSteps(data Document, stepsData []map[string]any) ([]model.WorkflowStep, error) {
	steps := make([]model.WorkflowStep, 0, len(stepsData))
	defaultTimeout := asInt(data["timeout_seconds"], 600)

	for idx, sd := range stepsData {
		num := idx + 1
		agentType := asString(sd["agent_type"])
		if agentType == "" {
			agentType = "agent"
		}
		stepID := asString(sd["id"])
		if stepID == "" {
			stepID = asString(sd["name"])
		}
		if stepID == "" {
			stepID = fmt.Sprintf("step_%d", num)
		}
		stepDesc := asString(sd["description"])
		promptTemplate := asString(sd["prompt_template"])
		if promptTemplate == "" {
			promptTemplate = stepDesc
		}
		if promptTemplate == "" {
			promptTemplate = "Execute step"
		}

		var stepRetry int
		var backoffStrategy model.BackoffStrategy
		var initialDelay float64
		if rv, ok := sd["retry"]; ok {
			stepRetry = asInt(rv, 0)
		}
		if policy, ok := asMap(sd["retry_policy"]); ok {
			if stepRetry == 0 {
				stepRetry = asInt(policy["max_retries"], 0)
			}
			backoffStrategy = model.BackoffStrategy(asString(policy["backoff"]))
			initialDelay = asFloat(policy["initial_delay"], 0.0)
		}

		agentDisplay := asString(sd["name"])
		if agentDisplay == "" {
			agentDisplay = agentType
		}
		agent := model.Agent{
			Name:           agentType,
			DisplayName:    agentDisplay,
			Description:    stepDesc,
			DefaultTimeout: defaultTimeout,
			MaxRetries:     2,
		}
		if agent.Description == "" {
			agent.Description = fmt.Sprintf("Step %d", num)
		}

		inputs := map[string]any{}
		switch raw := sd["inputs"].(type) {
		case map[string]any:
			inputs = raw
		case []any:
			for _, entry := range raw {
				if m, ok := asMap(entry); ok {
					for k, v := range m {
						inputs[k] = v
					}
				}
			}
		}

		var parallelWith []string
		if raw, ok := asList(sd["parallel"]); ok {
			for _, p := range raw {
				id := asString(p)
				if slug := Slugify(id); slug != "" {
					parallelWith = append(parallelWith, slug)
				} else {
					parallelWith = append(parallelWith, id)
				}
			}
		}

		var routes []model.Route
		if raw, ok := asList(sd["routes"]); ok {
			for _, r := range raw {
				rm, ok := asMap(r)
				if !ok {
					continue
				}
				routes = append(routes, model.Route{
					When:    asString(rm["when"]),
					Goto:    asString(rm["goto"]),
					Then:    asString(rm["then"]),
					Default: ParseBool(rm["default"], false),
				})
			}
		}

		name := Slugify(stepID)
		if name == "" {
			name = stepID
		}

		steps = append(steps, model.WorkflowStep{
			StepNum:        num,
			ID:             stepID,
			Name:           name,
			Agent:          agent,
			PromptTemplate: promptTemplate,
			Condition:      asString(sd["condition"]),
			MaxRetries:     stepRetry,
			BackoffStategy: backoffStrategy,
			InitialDelay:   initialDelay,
			Inputs:         inputs,
			Status:         model.StepPending,
			Routes:         routes,
			OnSuccess:      asString(sd["on_success"]),
			FinalStep:      ParseBool(sd["final_step"], false),
			ParallelWith:   parallelWith,
		})
	}

	return steps, nil
}

// ParseOrchestrationConfig parses the orchestration block with defaults.
// A positive legacy top-level timeout_seconds overrides
// timeouts.default_agent_timeout_seconds.
func ParseOrchestrationConfig(data Document) model.OrchestrationConfig {
	orchestration, _ := asMap(data["orchestration"])
	polling, _ := asMap(orchestration["polling"])
	timeouts, _ := asMap(orchestration["timeouts"])
	chaining, _ := asMap(orchestration["chaining"])
	retries, _ := asMap(orchestration["retries"])
	recovery, _ := asMap(orchestration["recovery"])

	defaultTimeout := asInt(timeouts["default_agent_timeout_seconds"], 3600)
	if v, ok := data["timeout_seconds"]; ok {
		if iv := asInt(v, 0); iv > 0 {
			defaultTimeout = iv
		}
	}

	cfg := model.DefaultOrchestrationConfig()
	cfg.PollingIntervalSeconds = asInt(polling["interval_seconds"], 15)
	cfg.CompletionGlob = asString(polling["completion_glob"])
	if cfg.CompletionGlob == "" {
		cfg.CompletionGlob = ".nexus/tasks/nexus/completions/completion_summary_*.json"
	}
	cfg.DedupeCacheSize = asInt(polling["dedupe_cache_size"], 500)
	cfg.DefaultAgentTimeout = defaultTimeout
	cfg.LivenessMissThreshold = asInt(timeouts["liveness_miss_threshold"], 3)
	if ta := asString(timeouts["timeout_action"]); ta != "" {
		cfg.TimeoutAction = model.TimeoutAction(ta)
	}
	cfg.ChainingEnabled = ParseBool(chaining["enabled"], true)
	cfg.RequireCompletionComment = ParseBool(chaining["require_completion_comment"], true)
	cfg.BlockOnClosedIssue = ParseBool(chaining["block_on_closed_issue"], true)
	cfg.MaxRetriesPerStep = asInt(retries["max_retries_per_step"], 2)
	if b := asString(retries["backoff"]); b != "" {
		cfg.Backoff = model.BackoffStrategy(b)
	}
	cfg.InitialDelaySeconds = asFloat(retries["initial_delay_seconds"], 1.0)
	if sa := asString(recovery["stale_running_step_action"]); sa != "" {
		cfg.StaleRunningStepAction = model.StaleRunningStepAction(sa)
	}
	return cfg
}

// ValidateOrchestrationConfig validates the orchestration block's contract,
// including that completion_glob cannot escape workspaceRoot.
func ValidateOrchestrationConfig(data Document, workspaceRoot string) []string {
	var errs []string
	cfg := ParseOrchestrationConfig(data)

	numericPositive := []struct {
		name  string
		value int
	}{
		{"polling.interval_seconds", cfg.PollingIntervalSeconds},
		{"polling.dedupe_cache_size", cfg.DedupeCacheSize},
		{"timeouts.default_agent_timeout_seconds", cfg.DefaultAgentTimeout},
		{"timeouts.liveness_miss_threshold", cfg.LivenessMissThreshold},
		{"retries.max_retries_per_step", cfg.MaxRetriesPerStep},
	}
	for _, f := range numericPositive {
		if f.value <= 0 {
			errs = append(errs, fmt.Sprintf("orchestration.%s must be a positive integer, got %d", f.name, f.value))
		}
	}

	if !orchestrationTimeoutActions[string(cfg.TimeoutAction)] {
		errs = append(errs, fmt.Sprintf("orchestration.timeouts.timeout_action must be one of [alert_only fail_step retry], got %q", cfg.TimeoutAction))
	}
	if !orchestrationBackoffs[string(cfg.Backoff)] {
		errs = append(errs, fmt.Sprintf("orchestration.retries.backoff must be one of [constant exponential linear], got %q", cfg.Backoff))
	}
	if !orchestrationStaleActions[string(cfg.StaleRunningStepAction)] {
		errs = append(errs, fmt.Sprintf("orchestration.recovery.stale_running_step_action must be one of [fail_workflow reconcile], got %q", cfg.StaleRunningStepAction))
	}
	if cfg.InitialDelaySeconds < 0 {
		errs = append(errs, fmt.Sprintf("orchestration.retries.initial_delay_seconds must be non-negative, got %v", cfg.InitialDelaySeconds))
	}

	root := workspaceRoot
	if root == "" {
		if wd, err := os.Getwd(); err == nil {
			root = wd
		}
	}
	root, _ = filepath.Abs(root)

	completionGlob := strings.TrimSpace(cfg.CompletionGlob)
	switch {
	case completionGlob == "":
		errs = append(errs, "orchestration.polling.completion_glob must not be empty")
	case filepath.IsAbs(completionGlob):
		base := completionGlob
		for _, marker := range []string{"*", "?", "["} {
			if pos := strings.Index(base, marker); pos != -1 {
				base = base[:pos]
			}
		}
		if base == "" {
			base = completionGlob
		}
		absBase, _ := filepath.Abs(base)
		if _, err := security.ValidatePathWithinBase(absBase, root); err != nil {
			errs = append(errs, "orchestration.polling.completion_glob must resolve inside workspace root")
		}
	default:
		relativeBase := strings.SplitN(completionGlob, "*", 2)[0]
		if strings.Contains(relativeBase, "..") {
			errs = append(errs, "orchestration.polling.completion_glob must not escape workspace root")
		}
	}

	return errs
}

// Load reads and parses a workflow definition file at path into a
// model.Workflow for the given tier (workflowType may be empty for flat
// documents), returning the orchestration-block validation errors
// alongside it; the workflow is built even when that list is non-empty.
func Load(path, workflowType string) (*model.Workflow, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read workflow definition: %w", err)
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		return nil, nil, err
	}

	stepsData := ResolveStepsList(doc, workflowType)
	if len(stepsData) == 0 {
		return nil, nil, fmt.Errorf("no steps found for workflow_type=%q", workflowType)
	}

	steps, err := BuildWorkflowSteps(doc, stepsData)
	if err != nil {
		return nil, nil, err
	}

	name := asString(doc["name"])
	if name == "" {
		name = asString(doc["id"])
	}
	if name == "" {
		return nil, nil, fmt.Errorf("workflow definition missing required 'name' or 'id' field")
	}

	warnings := ValidateOrchestrationConfig(doc, filepath.Dir(path))

	wf := &model.Workflow{
		Name:                      name,
		Description:               asString(doc["description"]),
		Steps:                     steps,
		State:                     model.WorkflowPending,
		RequireHumanMergeApproval: ParseRequireHumanMergeApproval(doc),
		Orchestration:             ParseOrchestrationConfig(doc),
	}
	wf.ApplyApprovalGates()

	return wf, warnings, nil
}
