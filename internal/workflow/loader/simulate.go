package loader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nexus-forge/workflowcore/internal/condition"
)

// DryRunReport is the result of validating and simulating a workflow
// definition without executing any agent.
type DryRunReport struct {
	Errors        []string
	PredictedFlow []string
}

// Simulate validates a workflow definition dict and predicts, step by
// step, which sequential steps would RUN or SKIP against an empty
// context. Router steps are never simulated here — only the sequential
// steps a router might send execution to.
func Simulate(data Document, workflowType string) DryRunReport {
	var report DryRunReport

	if data == nil {
		report.Errors = append(report.Errors, "workflow definition must be a dict")
		return report
	}
	if asString(data["name"]) == "" && asString(data["id"]) == "" {
		report.Errors = append(report.Errors, "missing required top-level field: 'name' or 'id'")
	}

	steps := ResolveStepsList(data, workflowType)
	if len(steps) == 0 {
		report.Errors = append(report.Errors, fmt.Sprintf(
			"no steps found for workflow_type=%q. Check that the workflow definition contains a non-empty steps list.", workflowType))
		return report
	}

	stepIDs := map[string]bool{}
	for _, s := range steps {
		if id := asString(s["id"]); id != "" {
			stepIDs[id] = true
		}
	}

	for idx, step := range steps {
		label := stepLabel(step, idx)
		agentType := asString(step["agent_type"])
		if agentType == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("step %q: missing 'agent_type'", label))
		}

		if onSuccess := asString(step["on_success"]); onSuccess != "" && len(stepIDs) > 0 && !stepIDs[onSuccess] {
			report.Errors = append(report.Errors, fmt.Sprintf("step %q: 'on_success' references unknown step id %q", label, onSuccess))
		}
	}

	for idx, step := range steps {
		agentType := asString(step["agent_type"])
		if agentType == "router" {
			continue
		}

		label := asString(step["name"])
		if label == "" {
			label = stepLabel(step, idx)
		}

		cond := asString(step["condition"])
		if cond == "" {
			report.PredictedFlow = append(report.PredictedFlow, fmt.Sprintf("RUN  %s (%s)", label, agentType))
			continue
		}

		result, err := condition.EvaluateStrict(cond, map[string]any{})
		status := "SKIP"
		switch {
		case err == nil && result:
			status = "RUN "
		case err != nil && errors.Is(err, condition.ErrUndefinedIdentifier):
			status = "RUN "
		case err == nil && !result:
			status = "SKIP"
		}
		report.PredictedFlow = append(report.PredictedFlow, fmt.Sprintf("%s %s (%s) [condition: %s]", status, label, agentType, cond))
	}

	return report
}

func stepLabel(step map[string]any, idx int) string {
	if id := asString(step["id"]); id != "" {
		return id
	}
	if name := asString(step["name"]); name != "" {
		return name
	}
	return fmt.Sprintf("step_%d", idx+1)
}

// BuildPromptContextText renders the workflow's steps and the current
// agent's allowed next-agent set as markdown suitable for injection into
// an agent prompt.
func BuildPromptContextText(steps []map[string]any, yamlBasename, workflowType, currentAgentType string, validNextAgents []string) string {
	if len(steps) == 0 {
		return ""
	}

	tierLabel := ""
	if workflowType != "" {
		tierLabel = " [" + workflowType + "]"
	}

	lines := []string{fmt.Sprintf("**Workflow Steps%s (from %s):**\n", tierLabel, yamlBasename)}
	for idx, step := range steps {
		agentType := asString(step["agent_type"])
		if agentType == "" {
			agentType = "unknown"
		}
		if agentType == "router" {
			continue
		}
		name := asString(step["name"])
		if name == "" {
			name = asString(step["id"])
		}
		if name == "" {
			name = fmt.Sprintf("Step %d", idx+1)
		}
		desc := asString(step["description"])
		lines = append(lines, fmt.Sprintf("- %d. **%s** — `%s` : %s", idx+1, name, agentType, desc))
	}

	lines = append(lines, "\n**CRITICAL:** Use ONLY the agent_type names listed above. "+
		"DO NOT use old agent names or reference other workflow YAML files.")

	seen := map[string]bool{}
	var displayPairs []string
	for _, step := range steps {
		agentType := asString(step["agent_type"])
		if agentType == "" || agentType == "router" || seen[agentType] {
			continue
		}
		seen[agentType] = true
		displayPairs = append(displayPairs, fmt.Sprintf("`%s` → **%s**", agentType, capitalize(agentType)))
	}
	if len(displayPairs) > 0 {
		lines = append(lines, "\n**Display Names (for the 'Ready for @...' line in your comment):**\n"+strings.Join(displayPairs, ", "))
	}

	if currentAgentType != "" && len(validNextAgents) > 0 {
		names := joinBackticks(validNextAgents)
		if len(validNextAgents) == 1 {
			lines = append(lines, fmt.Sprintf("\n**YOUR next_agent MUST be:** %s\nDo NOT skip ahead or pick a different agent.", names))
		} else {
			lines = append(lines, fmt.Sprintf("\n**YOUR next_agent MUST be one of:** %s\nChoose based on your classification. Do NOT skip ahead or pick a different agent.", names))
		}
	}

	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

func joinBackticks(items []string) string {
	wrapped := make([]string, len(items))
	for i, item := range items {
		wrapped[i] = "`" + item + "`"
	}
	return strings.Join(wrapped, ", ")
}

// ResolveNextAgentTypesFromSteps resolves the valid next agent_type values
// reachable from the steps currently assigned to currentAgentType, via
// on_success direct links and router fan-out.
func ResolveNextAgentTypesFromSteps(steps []map[string]any, currentAgentType string) []string {
	if len(steps) == 0 {
		return nil
	}

	byID := map[string]map[string]any{}
	for _, s := range steps {
		if id := asString(s["id"]); id != "" {
			byID[id] = s
		}
	}

	var currentSteps []map[string]any
	for _, s := range steps {
		if asString(s["agent_type"]) == currentAgentType {
			currentSteps = append(currentSteps, s)
		}
	}
	if len(currentSteps) == 0 {
		return nil
	}

	var result []string
	for _, step := range currentSteps {
		onSuccess := asString(step["on_success"])
		if ParseBool(step["final_step"], false) || onSuccess == "" {
			result = append(result, "none")
			continue
		}

		target, ok := byID[onSuccess]
		if !ok {
			continue
		}

		if asString(target["agent_type"]) == "router" {
			if routes, ok := asList(target["routes"]); ok {
				for _, r := range routes {
					rm, ok := asMap(r)
					if !ok {
						continue
					}
					routeTargetID := asString(rm["then"])
					if routeTargetID == "" {
						routeTargetID = asString(rm["default"])
					}
					if routeTargetID == "" {
						continue
					}
					if t, ok := byID[routeTargetID]; ok {
						result = append(result, asString(t["agent_type"]))
					} else {
						result = append(result, routeTargetID)
					}
				}
			}
			if def := asString(target["default"]); def != "" {
				if t, ok := byID[def]; ok {
					result = append(result, asString(t["agent_type"]))
				}
			}
		} else {
			agentType := asString(target["agent_type"])
			if agentType == "" {
				agentType = "unknown"
			}
			result = append(result, agentType)
		}
	}

	seen := map[string]bool{}
	var unique []string
	for _, a := range result {
		if !seen[a] {
			seen[a] = true
			unique = append(unique, a)
		}
	}
	return unique
}

// CanonicalizeNextAgentFromSteps maps a candidate step id/name to a valid
// next agent_type value.
func CanonicalizeNextAgentFromSteps(steps []map[string]any, candidate string, validNextAgents []string) string {
	candidateLC := strings.ToLower(strings.TrimSpace(candidate))
	validSet := map[string]bool{}
	for _, a := range validNextAgents {
		validSet[a] = true
	}
	for _, step := range steps {
		id := strings.ToLower(strings.TrimSpace(asString(step["id"])))
		name := strings.ToLower(strings.TrimSpace(asString(step["name"])))
		if candidateLC == id || candidateLC == name {
			mapped := asString(step["agent_type"])
			if validSet[mapped] {
				return mapped
			}
		}
	}
	if len(validNextAgents) == 1 {
		return validNextAgents[0]
	}
	return ""
}
