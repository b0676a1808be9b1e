// Package plan describes mutating work proposed to the user for confirmation:
// a multi-step ExecutionPlan or a single PendingTaskAction. Nothing here executes;
// see agent.ExecutePlan and agent.ExecuteAction.
package plan

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/google/uuid"
	"github.com/huandu/go-clone"
)

// ExecutionStep is one proposed tool call.
type ExecutionStep struct {
	ID          string         `json:"id" yaml:"id"`
	Action      string         `json:"action" yaml:"action"`
	Params      map[string]any `json:"params" yaml:"params"`
	Description string         `json:"description" yaml:"description"`
	DependsOn   []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// ToolCall converts the step into the call that will run it.
func (s ExecutionStep) ToolCall() tools.ToolCall {
	args, err := json.Marshal(s.Params)
	if err != nil || s.Params == nil {
		args = []byte("{}")
	}
	return tools.ToolCall{ID: s.ID, Name: s.Action, Arguments: args}
}

// ExecutionPlan is a proposal awaiting confirmation. The caller echoes it back to
// execute it; the server keeps no copy.
type ExecutionPlan struct {
	PlanID   string          `json:"plan_id" yaml:"plan_id"`
	ThreadID string          `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
	Summary  string          `json:"summary" yaml:"summary"`
	Steps    []ExecutionStep `json:"steps" yaml:"steps"`
}

func (p ExecutionPlan) Clone() ExecutionPlan {
	return clone.Clone(p).(ExecutionPlan)
}

// Step returns the step with the given id.
func (p ExecutionPlan) Step(id string) (ExecutionStep, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return ExecutionStep{}, false
}

type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
)

// PendingTaskAction is a single mutating call awaiting confirmation.
type PendingTaskAction struct {
	ID          string         `json:"id" yaml:"id"`
	ThreadID    string         `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
	Action      string         `json:"action" yaml:"action"`
	Operation   Operation      `json:"operation" yaml:"operation"`
	Params      map[string]any `json:"params" yaml:"params"`
	Description string         `json:"description" yaml:"description"`
}

func (a PendingTaskAction) Clone() PendingTaskAction {
	return clone.Clone(a).(PendingTaskAction)
}

func (a PendingTaskAction) ToolCall() tools.ToolCall {
	return ExecutionStep{ID: a.ID, Action: a.Action, Params: a.Params}.ToolCall()
}

// FromToolCalls builds a plan whose steps are the given calls with no dependencies
// between them, which is how one batch of sibling calls from the LLM behaves.
func FromToolCalls(threadID, summary string, calls []tools.ToolCall, describe func(tools.ToolCall) string) ExecutionPlan {
	p := ExecutionPlan{PlanID: uuid.NewString(), ThreadID: threadID, Summary: summary}
	for i, c := range calls {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("step-%d", i+1)
		}
		p.Steps = append(p.Steps, ExecutionStep{
			ID:          id,
			Action:      c.Name,
			Params:      c.ArgsMap(),
			Description: describe(c),
		})
	}
	return p
}

// NewPendingAction wraps a single call.
func NewPendingAction(threadID string, op Operation, call tools.ToolCall, description string) PendingTaskAction {
	id := call.ID
	if id == "" {
		id = uuid.NewString()
	}
	return PendingTaskAction{
		ID:          id,
		ThreadID:    threadID,
		Action:      call.Name,
		Operation:   op,
		Params:      call.ArgsMap(),
		Description: description,
	}
}

// Describe renders a call as "name(key=value, ...)" for plan step descriptions.
func Describe(call tools.ToolCall) string {
	args := call.ArgsMap()
	if len(args) == 0 {
		return call.Name
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return call.Name + "(" + strings.Join(parts, ", ") + ")"
}
