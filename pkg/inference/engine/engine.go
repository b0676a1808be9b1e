package engine

import (
	"context"

	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// ErrUnavailable is returned by providers that cannot serve requests, for example
// because no API key is configured.
var ErrUnavailable = errors.New("llm provider unavailable")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one role-tagged turn of a conversation.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
	// ToolCalls is set on assistant turns that requested tools.
	ToolCalls []tools.ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	// ToolCallID and Name are set on tool turns.
	ToolCallID string `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
}

func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// NewToolCallsMessage records an assistant turn that requested calls.
func NewToolCallsMessage(calls []tools.ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls}
}

// NewToolResultMessage is the tool turn answering one call.
func NewToolResultMessage(r tools.ToolResult) Message {
	return Message{Role: RoleTool, Content: r.Result.Text, ToolCallID: r.ID, Name: r.Name}
}

// ToolSpec is the signature of a callable tool as shown to a provider.
type ToolSpec struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty" yaml:"-"`
}

// SpecsFromRegistry lists the signatures of the registered tools selected by filter.
func SpecsFromRegistry(r *tools.Registry, filter tools.QueryFilter) []ToolSpec {
	registered := r.Query(filter)
	out := make([]ToolSpec, 0, len(registered))
	for _, t := range registered {
		out = append(out, ToolSpec{
			Name:        t.Name,
			Description: t.Definition.Description,
			Parameters:  t.Definition.Parameters,
		})
	}
	return out
}

// DeltaFunc receives streamed content fragments as they arrive.
type DeltaFunc func(delta string)

// Provider is the LLM capability used by the orchestrator. Given a history and the
// callable tools, it answers with either text or a list of tool invocations.
// Providers stream text through onDelta when it is non-nil.
type Provider interface {
	Invoke(ctx context.Context, messages []Message, tools []ToolSpec, onDelta DeltaFunc) (Decision, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, messages []Message, tools []ToolSpec, onDelta DeltaFunc) (Decision, error)

func (f ProviderFunc) Invoke(ctx context.Context, messages []Message, tools []ToolSpec, onDelta DeltaFunc) (Decision, error) {
	return f(ctx, messages, tools, onDelta)
}

// ImageAnalyzer describes an image with a vision model.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, imageURL string, prompt string) (string, error)
}
