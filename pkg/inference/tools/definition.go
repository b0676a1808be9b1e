package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// ToolFunc is the pre-compiled executor of a tool. It never returns a Go error:
// failures are encoded as error-kind Results.
type ToolFunc func(ctx context.Context, args json.RawMessage) Result

// ToolDefinition represents a tool that can be called by the LLM.
type ToolDefinition struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Parameters  *jsonschema.Schema `json:"parameters" yaml:"-"`
	Function    ToolFunc           `json:"-" yaml:"-"`
}

// NewTool creates a ToolDefinition from a typed Go function. The JSON schema of the
// parameters is reflected from In, and arguments are decoded into In before each call.
func NewTool[In any](name, description string, fn func(context.Context, In) Result) (*ToolDefinition, error) {
	if fn == nil {
		return nil, errors.Errorf("tool %s: function is nil", name)
	}

	var zero In
	reflector := jsonschema.Reflector{
		// Expand definitions inline instead of using $refs
		DoNotReference: true,
	}
	schema := reflector.Reflect(zero)
	if schema.Type == "" && schema.Ref == "" {
		// OpenAI requires an object root
		schema.Type = "object"
	}
	// reflected schemas carry a $schema/$id that providers reject
	schema.Version = ""
	schema.ID = ""

	exec := func(ctx context.Context, args json.RawMessage) Result {
		var in In
		trimmed := bytes.TrimSpace(args)
		if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			if err := json.Unmarshal(trimmed, &in); err != nil {
				log.Debug().Err(err).Str("tool", name).Str("args", string(args)).Msg("tools: failed to unmarshal arguments")
				return Errorf("invalid arguments for %s: %v", name, err)
			}
		}
		return fn(ctx, in)
	}

	return &ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  schema,
		Function:    exec,
	}, nil
}

// MustNewTool is NewTool for static registrations.
func MustNewTool[In any](name, description string, fn func(context.Context, In) Result) *ToolDefinition {
	def, err := NewTool(name, description, fn)
	if err != nil {
		panic(err)
	}
	return def
}

// ValidateArguments checks arguments against the parameter schema. Unknown
// properties are tolerated since decoding drops them.
func (d *ToolDefinition) ValidateArguments(args json.RawMessage) error {
	if d == nil || d.Parameters == nil {
		return nil
	}
	schema, err := json.Marshal(d.Parameters)
	if err != nil {
		return errors.Wrapf(err, "tool %s: marshal parameter schema", d.Name)
	}
	doc := bytes.TrimSpace(args)
	if len(doc) == 0 || bytes.Equal(doc, []byte("null")) {
		doc = []byte("{}")
	}
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(string(schema)), gojsonschema.NewStringLoader(string(doc)))
	if err != nil {
		return errors.Wrapf(err, "tool %s: validate arguments", d.Name)
	}
	var problems []string
	for _, desc := range result.Errors() {
		if desc.Type() == "additional_property_not_allowed" {
			continue
		}
		problems = append(problems, desc.String())
	}
	if len(problems) > 0 {
		return errors.Errorf("invalid arguments for %s: %s", d.Name, strings.Join(problems, "; "))
	}
	return nil
}

// Execute runs the tool and converts panics into error results.
func (d *ToolDefinition) Execute(ctx context.Context, args json.RawMessage) (res Result) {
	if d == nil || d.Function == nil {
		return Errorf("tool function not properly initialized")
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("tool", d.Name).Interface("panic", r).Msg("tools: tool panicked")
			res = Errorf("tool %s failed: %v", d.Name, r)
		}
	}()
	return d.Function(ctx, args)
}

// ToolCall represents a request to execute a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ArgsMap decodes the call arguments into a generic map, used for logs and events.
func (c ToolCall) ArgsMap() map[string]any {
	out := map[string]any{}
	if len(c.Arguments) == 0 {
		return out
	}
	if err := json.Unmarshal(c.Arguments, &out); err != nil {
		out["_raw"] = string(c.Arguments)
	}
	return out
}

// ToolResult is the result of executing one ToolCall.
type ToolResult struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Result   Result        `json:"result"`
	Duration time.Duration `json:"duration"`
}

func (r ToolResult) String() string {
	return fmt.Sprintf("%s(%s): %s", r.Name, r.ID, r.Result.Text)
}
