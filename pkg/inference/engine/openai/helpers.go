package openai

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/go-go-golems/steward/pkg/inference/engine"
	"github.com/go-go-golems/steward/pkg/inference/tools"
	go_openai "github.com/sashabaranov/go-openai"
)

// ToolCallMerger reassembles tool calls streamed as fragments keyed by index.
type ToolCallMerger struct {
	toolCalls map[int]go_openai.ToolCall
}

func NewToolCallMerger() *ToolCallMerger {
	return &ToolCallMerger{
		toolCalls: make(map[int]go_openai.ToolCall),
	}
}

func (tcm *ToolCallMerger) AddToolCalls(toolCalls []go_openai.ToolCall) {
	for _, call := range toolCalls {
		index := 0
		if call.Index != nil {
			index = *call.Index
		}
		existing, found := tcm.toolCalls[index]
		if !found {
			tcm.toolCalls[index] = call
			continue
		}
		if existing.ID == "" {
			existing.ID = call.ID
		}
		existing.Function.Name += call.Function.Name
		existing.Function.Arguments += call.Function.Arguments
		tcm.toolCalls[index] = existing
	}
}

// GetToolCalls returns the merged calls ordered by stream index.
func (tcm *ToolCallMerger) GetToolCalls() []go_openai.ToolCall {
	indexes := make([]int, 0, len(tcm.toolCalls))
	for i := range tcm.toolCalls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	result := make([]go_openai.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		result = append(result, tcm.toolCalls[i])
	}
	return result
}

// toEngineToolCalls converts merged provider calls, normalizing empty arguments.
func toEngineToolCalls(calls []go_openai.ToolCall) []tools.ToolCall {
	out := make([]tools.ToolCall, 0, len(calls))
	for _, c := range calls {
		args := strings.TrimSpace(c.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		out = append(out, tools.ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: json.RawMessage(args),
		})
	}
	return out
}

func toOpenAIMessages(messages []engine.Message) []go_openai.ChatCompletionMessage {
	out := make([]go_openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := go_openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case engine.RoleAssistant:
			for _, c := range m.ToolCalls {
				args := string(c.Arguments)
				if strings.TrimSpace(args) == "" {
					args = "{}"
				}
				msg.ToolCalls = append(msg.ToolCalls, go_openai.ToolCall{
					ID:   c.ID,
					Type: go_openai.ToolTypeFunction,
					Function: go_openai.FunctionCall{
						Name:      c.Name,
						Arguments: args,
					},
				})
			}
		case engine.RoleTool:
			msg.ToolCallID = m.ToolCallID
			msg.Name = m.Name
		case engine.RoleSystem, engine.RoleUser:
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(specs []engine.ToolSpec) []go_openai.Tool {
	out := make([]go_openai.Tool, 0, len(specs))
	for _, s := range specs {
		def := &go_openai.FunctionDefinition{
			Name:        s.Name,
			Description: s.Description,
		}
		if s.Parameters != nil {
			def.Parameters = s.Parameters
		} else {
			def.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, go_openai.Tool{
			Type:     go_openai.ToolTypeFunction,
			Function: def,
		})
	}
	return out
}
