// Package model defines the core data types of the workflow orchestration
// engine: agents, steps, workflows, approval gates, audit events, and the
// operational parameters that drive them.
package model

// Agent is the logical capability bound to a step. Its Name is the key
// used to match a completion signal to a RUNNING step; it is immutable
// once a workflow is created from a definition.
type Agent struct {
	Name               string `json:"name" yaml:"name"`
	DisplayName        string `json:"display_name" yaml:"display_name"`
	Description        string `json:"description,omitempty" yaml:"description,omitempty"`
	DefaultTimeout     int    `json:"default_timeout" yaml:"default_timeout"`
	MaxRetries         int    `json:"max_retries" yaml:"max_retries"`
	ProviderPreference string `json:"provider_preference,omitempty" yaml:"provider_preference,omitempty"`
}

// DefaultAgent returns an agent with the conventional defaults used when a
// step only names an agent_type string.
func DefaultAgent(name string) Agent {
	return Agent{
		Name:           name,
		DisplayName:    name,
		DefaultTimeout: 600,
		MaxRetries:     3,
	}
}
