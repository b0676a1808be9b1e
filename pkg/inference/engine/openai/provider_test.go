package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-go-golems/steward/pkg/inference/engine"
	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestToolCallMergerOrdersByIndex(t *testing.T) {
	m := NewToolCallMerger()
	m.AddToolCalls([]go_openai.ToolCall{
		{Index: intPtr(1), ID: "b", Function: go_openai.FunctionCall{Name: "query_", Arguments: `{"st`}},
		{Index: intPtr(0), ID: "a", Function: go_openai.FunctionCall{Name: "get_current_time"}},
	})
	m.AddToolCalls([]go_openai.ToolCall{
		{Index: intPtr(1), Function: go_openai.FunctionCall{Name: "tasks", Arguments: `atus":"pending"}`}},
	})

	calls := m.GetToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].ID)
	assert.Equal(t, "get_current_time", calls[0].Function.Name)
	assert.Equal(t, "b", calls[1].ID)
	assert.Equal(t, "query_tasks", calls[1].Function.Name)
	assert.Equal(t, `{"status":"pending"}`, calls[1].Function.Arguments)

	converted := toEngineToolCalls(calls)
	assert.Equal(t, json.RawMessage("{}"), converted[0].Arguments)
	assert.Equal(t, "pending", converted[1].ArgsMap()["status"])
}

func TestToOpenAIMessages(t *testing.T) {
	msgs := toOpenAIMessages([]engine.Message{
		engine.NewSystemMessage("sys"),
		engine.NewUserMessage("hi"),
		engine.NewToolCallsMessage([]tools.ToolCall{{ID: "c1", Name: "calculate"}}),
		engine.NewToolResultMessage(tools.ToolResult{ID: "c1", Name: "calculate", Result: tools.OK("4")}),
	})
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "{}", msgs[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, go_openai.ToolTypeFunction, msgs[2].ToolCalls[0].Type)
	assert.Equal(t, "tool", msgs[3].Role)
	assert.Equal(t, "c1", msgs[3].ToolCallID)
	assert.Equal(t, "4", msgs[3].Content)
}

func streamServer(t *testing.T, chunks []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func chunk(delta string) string {
	return `{"id":"x","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":` + delta + `}]}`
}

func TestProviderStreamsContent(t *testing.T) {
	srv := streamServer(t, []string{
		chunk(`{"role":"assistant","content":"Hel"}`),
		chunk(`{"content":"lo"}`),
	})
	defer srv.Close()

	p, err := NewProvider(Config{APIKey: "test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	var deltas []string
	d, err := p.Invoke(context.Background(), []engine.Message{engine.NewUserMessage("hi")}, nil, func(s string) {
		deltas = append(deltas, s)
	})
	require.NoError(t, err)
	assert.Equal(t, engine.ContentDecision("Hello"), d)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
}

func TestProviderMergesStreamedToolCalls(t *testing.T) {
	srv := streamServer(t, []string{
		chunk(`{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"query_tasks","arguments":""}}]}`),
		chunk(`{"tool_calls":[{"index":0,"function":{"arguments":"{\"status\":"}}]}`),
		chunk(`{"tool_calls":[{"index":0,"function":{"arguments":"\"pending\"}"}}]}`),
	})
	defer srv.Close()

	p, err := NewProvider(Config{APIKey: "test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	d, err := p.Invoke(context.Background(), []engine.Message{engine.NewUserMessage("open tasks?")},
		[]engine.ToolSpec{{Name: "query_tasks", Description: "List tasks"}}, nil)
	require.NoError(t, err)
	require.True(t, d.HasToolCalls())
	assert.Equal(t, "call_1", d.ToolCalls[0].ID)
	assert.Equal(t, "query_tasks", d.ToolCalls[0].Name)
	assert.Equal(t, "pending", d.ToolCalls[0].ArgsMap()["status"])
}

func TestNewProviderRequiresKey(t *testing.T) {
	_, err := NewProvider(Config{})
	assert.True(t, errors.Is(err, engine.ErrUnavailable))
	_, err = NewImageAnalyzer(Config{})
	assert.True(t, errors.Is(err, engine.ErrUnavailable))
}

func TestImageAnalyzer(t *testing.T) {
	var got go_openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"message":{"role":"assistant","content":" A receipt from Cafe Blue, total 12.50 EUR. "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	a, err := NewImageAnalyzer(Config{APIKey: "test", BaseURL: srv.URL + "/v1", VisionModel: "vision"})
	require.NoError(t, err)

	out, err := a.Analyze(context.Background(), "https://example.com/r.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, "A receipt from Cafe Blue, total 12.50 EUR.", out)
	assert.Equal(t, "vision", got.Model)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].MultiContent, 2)
	assert.Equal(t, "https://example.com/r.jpg", got.Messages[0].MultiContent[1].ImageURL.URL)

	_, err = a.Analyze(context.Background(), " ", "x")
	assert.Error(t, err)
}
