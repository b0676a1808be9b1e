package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDecisionPlainText(t *testing.T) {
	d, err := DecodeDecision("You have two meetings today.")
	require.NoError(t, err)
	assert.Equal(t, DecisionContent, d.Kind)
	assert.Equal(t, "You have two meetings today.", d.Content)
	assert.False(t, d.HasToolCalls())
}

func TestDecodeDecisionToolCalls(t *testing.T) {
	text := "Let me check.\n```json\n" +
		`{"tool_calls": [{"name": "query_schedule", "arguments": {"date": "tomorrow"}}, {"tool_name": "query_tasks", "args": "{\"status\":\"pending\"}"}]}` +
		"\n```"
	d, err := DecodeDecision(text)
	require.NoError(t, err)
	require.True(t, d.HasToolCalls())
	require.Len(t, d.ToolCalls, 2)

	assert.Equal(t, "call_1", d.ToolCalls[0].ID)
	assert.Equal(t, "query_schedule", d.ToolCalls[0].Name)
	assert.Equal(t, "tomorrow", d.ToolCalls[0].ArgsMap()["date"])

	assert.Equal(t, "query_tasks", d.ToolCalls[1].Name)
	assert.Equal(t, "pending", d.ToolCalls[1].ArgsMap()["status"])
}

func TestDecodeDecisionContentBlock(t *testing.T) {
	d, err := DecodeDecision("```json\n{\"content\": \"done\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, ContentDecision("done"), d)
}

func TestDecodeDecisionMalformed(t *testing.T) {
	cases := map[string]string{
		"broken json":   "```json\n{\"tool_calls\": [\n```",
		"unknown field": "```json\n{\"action\": \"x\"}\n```",
		"empty object":  "```json\n{}\n```",
		"nameless call": "```json\n{\"tool_calls\": [{\"arguments\": {}}]}\n```",
		"both":          "```json\n{\"content\": \"hi\", \"tool_calls\": [{\"name\": \"a\"}]}\n```",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			d, err := DecodeDecision(text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedDecision))
			assert.Equal(t, DecisionContent, d.Kind)
			assert.Equal(t, text, d.Content)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Quality string   `json:"quality"`
		Issues  []string `json:"issues"`
	}
	require.NoError(t, DecodeJSON(`Sure: {"quality": "good", "issues": []} hope that helps`, &out))
	assert.Equal(t, "good", out.Quality)

	require.NoError(t, DecodeJSON("```json\n{\"quality\": \"needs_improvement\", \"issues\": [\"x\"]}\n```", &out))
	assert.Equal(t, "needs_improvement", out.Quality)
	assert.Equal(t, []string{"x"}, out.Issues)

	err := DecodeJSON("no json here", &out)
	assert.True(t, errors.Is(err, ErrMalformedDecision))
}

func TestScriptedProviderReplaysInOrder(t *testing.T) {
	call := tools.ToolCall{ID: "1", Name: "get_current_time"}
	p := NewScriptedProvider([]Reply{
		{ToolCalls: []tools.ToolCall{call}},
		{Content: "It is noon here"},
	})

	d, err := p.Invoke(context.Background(), []Message{NewUserMessage("time?")}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []tools.ToolCall{call}, d.ToolCalls)

	var streamed strings.Builder
	d, err = p.Invoke(context.Background(), nil, nil, func(delta string) { streamed.WriteString(delta) })
	require.NoError(t, err)
	assert.Equal(t, "It is noon here", d.Content)
	assert.Equal(t, "It is noon here", streamed.String())

	_, err = p.Invoke(context.Background(), nil, nil, nil)
	assert.Error(t, err)

	calls := p.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "time?", calls[0].Messages[0].Content)
	assert.Equal(t, 0, p.Remaining())
}

func TestScriptedProviderFallbackAndErrors(t *testing.T) {
	boom := errors.New("boom")
	p := NewScriptedProvider([]Reply{{Err: boom}}, WithFallback(Reply{Content: "ok"}))

	_, err := p.Invoke(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, boom)

	for i := 0; i < 3; i++ {
		d, err := p.Invoke(context.Background(), nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", d.Content)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Invoke(ctx, nil, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpecsFromRegistry(t *testing.T) {
	type in struct {
		Text string `json:"text"`
	}
	r := tools.NewRegistry()
	def := tools.MustNewTool("echo", "Echo text", func(_ context.Context, i in) tools.Result { return tools.OK(i.Text) })
	require.True(t, r.Register(def, tools.ToolMetadata{Category: tools.CategorySystem, Readonly: true, Enabled: true}, tools.RegisterOptions{Validate: true}))

	specs := SpecsFromRegistry(r, tools.NewQueryFilter())
	require.Len(t, specs, 1)
	assert.Equal(t, "echo", specs[0].Name)
	assert.Equal(t, "Echo text", specs[0].Description)
	require.NotNil(t, specs[0].Parameters)
}

func TestToolResultMessage(t *testing.T) {
	m := NewToolResultMessage(tools.ToolResult{ID: "c1", Name: "calculate", Result: tools.OK("4")})
	assert.Equal(t, RoleTool, m.Role)
	assert.Equal(t, "c1", m.ToolCallID)
	assert.Equal(t, "4", m.Content)
}
