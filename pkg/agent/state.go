package agent

import (
	"fmt"
	"time"

	"github.com/go-go-golems/steward/pkg/conversation"
	"github.com/go-go-golems/steward/pkg/inference/engine"
	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/plan"
)

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

type PlanStep struct {
	Description string     `json:"description" yaml:"description"`
	Status      StepStatus `json:"status" yaml:"status"`
	Result      string     `json:"result,omitempty" yaml:"result,omitempty"`
}

// AgentPlan is the Planning node's breakdown of a request, used to track progress.
// It is unrelated to the ExecutionPlan proposed for confirmation.
type AgentPlan struct {
	Goal     string     `json:"goal" yaml:"goal"`
	Steps    []PlanStep `json:"steps" yaml:"steps"`
	Implicit bool       `json:"implicit,omitempty" yaml:"implicit,omitempty"`
}

// current returns the first step that is not finished, or nil.
func (p *AgentPlan) current() *PlanStep {
	if p == nil {
		return nil
	}
	for i := range p.Steps {
		if p.Steps[i].Status == StepPending || p.Steps[i].Status == StepInProgress {
			return &p.Steps[i]
		}
	}
	return nil
}

type Quality string

const (
	QualityGood             Quality = "good"
	QualityNeedsImprovement Quality = "needs_improvement"
)

type ReflectionResult struct {
	Quality     Quality  `json:"quality" yaml:"quality"`
	Issues      []string `json:"issues,omitempty" yaml:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
}

// ToolCallInfo is one entry of the append-only log of tool invocations in a turn.
type ToolCallInfo struct {
	ID        string           `json:"id" yaml:"id"`
	Name      string           `json:"name" yaml:"name"`
	Args      map[string]any   `json:"args,omitempty" yaml:"args,omitempty"`
	Kind      tools.ResultKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Result    string           `json:"result,omitempty" yaml:"result,omitempty"`
	Timestamp time.Time        `json:"timestamp" yaml:"timestamp"`
}

// AgentState is the working state of one turn. Only the nodes mutate it, in sequence.
type AgentState struct {
	ThreadID string `json:"thread_id" yaml:"thread_id"`
	// Messages only grows during a turn.
	Messages   []engine.Message  `json:"messages" yaml:"messages"`
	Plan       *AgentPlan        `json:"plan,omitempty" yaml:"plan,omitempty"`
	Thoughts   []string          `json:"thoughts,omitempty" yaml:"thoughts,omitempty"`
	Reflection *ReflectionResult `json:"reflection,omitempty" yaml:"reflection,omitempty"`
	Learnings  []string          `json:"learnings,omitempty" yaml:"learnings,omitempty"`
	ToolCalls  []ToolCallInfo    `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`

	// RemainingIterations bounds the Agent/Reflection loop. Entering Agent from
	// Planning or Reflection consumes one; at zero, Reflection must go to Summary.
	RemainingIterations int `json:"remaining_iterations" yaml:"remaining_iterations"`
	// AgentPasses counts the Agent iterations started so far.
	AgentPasses int `json:"agent_passes" yaml:"agent_passes"`

	Conversation  *conversation.State     `json:"conversation,omitempty" yaml:"conversation,omitempty"`
	ExecutionPlan *plan.ExecutionPlan     `json:"execution_plan,omitempty" yaml:"execution_plan,omitempty"`
	PendingAction *plan.PendingTaskAction `json:"pending_action,omitempty" yaml:"pending_action,omitempty"`

	request    string
	reply      string
	pending    []tools.ToolCall
	toolRounds int
	focus      *conversation.EntityRef
	// streamed holds the content fragments sent during the latest Agent invocation.
	streamed string
	deleted  []conversation.EntityRef
}

func (s *AgentState) appendMessages(msgs ...engine.Message) {
	s.Messages = append(s.Messages, msgs...)
}

func (s *AgentState) thought(format string, args ...any) {
	s.Thoughts = append(s.Thoughts, fmt.Sprintf(format, args...))
}

// AgentResponse is what a turn returns to the caller.
type AgentResponse struct {
	ThreadID      string                  `json:"thread_id" yaml:"thread_id"`
	Reply         string                  `json:"reply" yaml:"reply"`
	Plan          *AgentPlan              `json:"plan,omitempty" yaml:"plan,omitempty"`
	Reflection    *ReflectionResult       `json:"reflection,omitempty" yaml:"reflection,omitempty"`
	Learnings     []string                `json:"learnings,omitempty" yaml:"learnings,omitempty"`
	Thoughts      []string                `json:"thoughts,omitempty" yaml:"thoughts,omitempty"`
	ToolCalls     []ToolCallInfo          `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	ExecutionPlan *plan.ExecutionPlan     `json:"execution_plan,omitempty" yaml:"execution_plan,omitempty"`
	PendingAction *plan.PendingTaskAction `json:"pending_action,omitempty" yaml:"pending_action,omitempty"`
	Conversation  *conversation.State     `json:"conversation,omitempty" yaml:"conversation,omitempty"`
	AgentPasses   int                     `json:"agent_passes" yaml:"agent_passes"`
}

// Request is one user turn.
type Request struct {
	ThreadID string `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
	Message  string `json:"message" yaml:"message"`
	// Conversation is the caller-held state from the previous turn. It is re-validated.
	Conversation *conversation.State `json:"conversation,omitempty" yaml:"conversation,omitempty"`
	// RequireConfirmation overrides the configured default when set.
	RequireConfirmation *bool `json:"require_confirmation,omitempty" yaml:"require_confirmation,omitempty"`
}
