package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/pkg/errors"
)

type DecisionKind string

const (
	DecisionContent   DecisionKind = "content"
	DecisionToolCalls DecisionKind = "tool_calls"
)

// ErrMalformedDecision marks a decision block that could not be decoded.
var ErrMalformedDecision = errors.New("malformed decision")

// Decision is the result of one provider invocation: either final text or a batch
// of tool calls, never both.
type Decision struct {
	Kind      DecisionKind     `json:"kind" yaml:"kind"`
	Content   string           `json:"content,omitempty" yaml:"content,omitempty"`
	ToolCalls []tools.ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
}

func ContentDecision(text string) Decision {
	return Decision{Kind: DecisionContent, Content: text}
}

// ToolCallsDecision builds a tool-call decision. An empty batch degrades to empty content.
func ToolCallsDecision(calls []tools.ToolCall) Decision {
	if len(calls) == 0 {
		return ContentDecision("")
	}
	return Decision{Kind: DecisionToolCalls, ToolCalls: calls}
}

func (d Decision) HasToolCalls() bool {
	return d.Kind == DecisionToolCalls && len(d.ToolCalls) > 0
}

// decisionBlock is what a provider without native tool calling writes in a fenced
// ```json block.
type decisionBlock struct {
	Content   *string `json:"content"`
	ToolCalls []struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		ToolName  string          `json:"tool_name"`
		Arguments json.RawMessage `json:"arguments"`
		Args      json.RawMessage `json:"args"`
	} `json:"tool_calls"`
}

// DecodeDecision interprets a text-only provider answer. Text without a fenced json
// block is plain content. A block that fails to decode returns the whole text as
// content together with an error wrapping ErrMalformedDecision, so callers can warn
// and carry on.
func DecodeDecision(text string) (Decision, error) {
	raw, ok := ExtractFencedJSON(text)
	if !ok {
		return ContentDecision(text), nil
	}

	var block decisionBlock
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&block); err != nil {
		return ContentDecision(text), errors.Wrapf(ErrMalformedDecision, "decoding decision block: %v", err)
	}

	if len(block.ToolCalls) == 0 {
		if block.Content == nil {
			return ContentDecision(text), errors.Wrap(ErrMalformedDecision, "decision block has neither content nor tool_calls")
		}
		return ContentDecision(*block.Content), nil
	}
	if block.Content != nil && strings.TrimSpace(*block.Content) != "" {
		return ContentDecision(text), errors.Wrap(ErrMalformedDecision, "decision block has both content and tool_calls")
	}

	calls := make([]tools.ToolCall, 0, len(block.ToolCalls))
	for i, c := range block.ToolCalls {
		name := c.Name
		if name == "" {
			name = c.ToolName
		}
		if name == "" {
			return ContentDecision(text), errors.Wrapf(ErrMalformedDecision, "tool call %d has no name", i)
		}
		args := c.Arguments
		if len(args) == 0 {
			args = c.Args
		}
		if len(args) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
			args = json.RawMessage("{}")
		}
		if args[0] == '"' {
			// some models encode the arguments object as a string
			var s string
			if err := json.Unmarshal(args, &s); err != nil || !json.Valid([]byte(s)) {
				return ContentDecision(text), errors.Wrapf(ErrMalformedDecision, "tool call %s has invalid arguments", name)
			}
			args = json.RawMessage(s)
		}
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i+1)
		}
		calls = append(calls, tools.ToolCall{ID: id, Name: name, Arguments: args})
	}
	return ToolCallsDecision(calls), nil
}

// ExtractFencedJSON returns the body of the first ```json fenced block in text.
func ExtractFencedJSON(text string) ([]byte, bool) {
	const open = "```json"
	start := strings.Index(text, open)
	if start < 0 {
		return nil, false
	}
	rest := text[start+len(open):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return nil, false
	}
	body := strings.TrimSpace(rest[:end])
	if body == "" {
		return nil, false
	}
	return []byte(body), true
}

// DecodeJSON decodes a JSON answer into v. The answer may be a fenced block or a
// bare object, optionally surrounded by prose.
func DecodeJSON(text string, v any) error {
	raw, ok := ExtractFencedJSON(text)
	if !ok {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end < start {
			return errors.Wrap(ErrMalformedDecision, "no JSON object in answer")
		}
		raw = []byte(text[start : end+1])
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrapf(ErrMalformedDecision, "decoding JSON answer: %v", err)
	}
	return nil
}

// DecisionInstructions tells a provider without native tools how to request calls.
const DecisionInstructions = "To call tools, answer only with a fenced ```json block of the form " +
	`{"tool_calls": [{"name": "<tool>", "arguments": {...}}]}` +
	". Otherwise answer with plain text."
