package tools

import (
	"slices"
	"time"
)

// ToolConfig specifies how tool batches are executed.
type ToolConfig struct {
	ExecutionTimeout time.Duration `json:"execution_timeout" yaml:"execution_timeout"`
	MaxParallelTools int           `json:"max_parallel_tools" yaml:"max_parallel_tools"`
	// AllowedTools restricts execution to the listed names; nil allows every enabled tool.
	AllowedTools []string `json:"allowed_tools" yaml:"allowed_tools"`
}

func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		ExecutionTimeout: 30 * time.Second,
		MaxParallelTools: 3,
		AllowedTools:     nil,
	}
}

func (tc ToolConfig) WithExecutionTimeout(timeout time.Duration) ToolConfig {
	tc.ExecutionTimeout = timeout
	return tc
}

func (tc ToolConfig) WithMaxParallelTools(maxParallel int) ToolConfig {
	tc.MaxParallelTools = maxParallel
	return tc
}

func (tc ToolConfig) WithAllowedTools(toolNames []string) ToolConfig {
	tc.AllowedTools = toolNames
	return tc
}

func (tc ToolConfig) IsToolAllowed(name string) bool {
	return tc.AllowedTools == nil || slices.Contains(tc.AllowedTools, name)
}
