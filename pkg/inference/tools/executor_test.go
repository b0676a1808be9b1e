package tools

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteToolCallErrors(t *testing.T) {
	reg := NewRegistry()
	require.True(t, reg.Register(simpleTool(t, "on"), md(CategorySystem, true), DefaultRegisterOptions()))
	off := md(CategorySystem, true)
	off.Enabled = false
	require.True(t, reg.Register(simpleTool(t, "off"), off, DefaultRegisterOptions()))

	exec := NewExecutor(reg, DefaultToolConfig().WithAllowedTools([]string{"off"}))
	ctx := context.Background()

	res := exec.ExecuteToolCall(ctx, ToolCall{ID: "1", Name: "missing"})
	assert.True(t, res.Result.IsError())
	assert.Contains(t, res.Result.Text, "unknown tool")

	res = exec.ExecuteToolCall(ctx, ToolCall{ID: "2", Name: "off"})
	assert.Contains(t, res.Result.Text, "disabled")

	res = exec.ExecuteToolCall(ctx, ToolCall{ID: "3", Name: "on"})
	assert.Contains(t, res.Result.Text, "not allowed")
	assert.Equal(t, "3", res.ID)
}

func TestExecuteToolCallRecoversPanicsAndBadArgs(t *testing.T) {
	reg := NewRegistry()
	boom, err := NewTool("boom", "panics", func(_ context.Context, _ struct{}) Result { panic("kaboom") })
	require.NoError(t, err)
	require.True(t, reg.Register(boom, md(CategorySystem, true), DefaultRegisterOptions()))
	require.True(t, reg.Register(newAddTool(t, 0), md(CategoryCalculation, true), DefaultRegisterOptions()))

	exec := NewExecutor(reg, DefaultToolConfig())
	res := exec.ExecuteToolCall(context.Background(), ToolCall{ID: "1", Name: "boom"})
	assert.True(t, res.Result.IsError())
	assert.Contains(t, res.Result.Text, "kaboom")

	res = exec.ExecuteToolCall(context.Background(), ToolCall{ID: "2", Name: "add", Arguments: json.RawMessage(`{"a":"x"}`)})
	assert.True(t, res.Result.IsError())
	assert.Contains(t, res.Result.Text, "invalid arguments for add")
}

func TestExecuteToolCallCancelledContext(t *testing.T) {
	reg := NewRegistry()
	require.True(t, reg.Register(simpleTool(t, "a"), md(CategorySystem, true), DefaultRegisterOptions()))
	exec := NewExecutor(reg, DefaultToolConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := exec.ExecuteToolCall(ctx, ToolCall{ID: "1", Name: "a"})
	assert.True(t, res.Result.IsError())
	assert.Contains(t, res.Result.Text, "cancelled")
}

func TestExecuteToolCallTimeoutReachesTool(t *testing.T) {
	reg := NewRegistry()
	slow, err := NewTool("slow", "waits for ctx", func(ctx context.Context, _ struct{}) Result {
		select {
		case <-ctx.Done():
			return Errorf("timed out")
		case <-time.After(time.Second):
			return OK("done")
		}
	})
	require.NoError(t, err)
	require.True(t, reg.Register(slow, md(CategorySystem, true), DefaultRegisterOptions()))

	exec := NewExecutor(reg, DefaultToolConfig().WithExecutionTimeout(10*time.Millisecond))
	res := exec.ExecuteToolCall(context.Background(), ToolCall{ID: "1", Name: "slow"})
	assert.Equal(t, "Error: timed out", res.Result.Text)
}

func TestToolSeesItsCall(t *testing.T) {
	reg := NewRegistry()
	who, err := NewTool("who", "reports its call id", func(ctx context.Context, _ struct{}) Result {
		call, ok := CurrentToolCallFromContext(ctx)
		if !ok {
			return Errorf("no call in context")
		}
		return OK(call.ID)
	})
	require.NoError(t, err)
	require.True(t, reg.Register(who, md(CategorySystem, true), DefaultRegisterOptions()))

	res := NewExecutor(reg, DefaultToolConfig()).ExecuteToolCall(context.Background(), ToolCall{ID: "call-7", Name: "who"})
	assert.Equal(t, "call-7", res.Result.Text)

	_, ok := CurrentToolCallFromContext(context.Background())
	assert.False(t, ok)
}

func TestExecuteToolCallsKeepsOrder(t *testing.T) {
	reg := NewRegistry()
	for _, n := range []string{"a", "b", "c", "d"} {
		require.True(t, reg.Register(simpleTool(t, n), md(CategorySystem, true), DefaultRegisterOptions()))
	}
	exec := NewExecutor(reg, DefaultToolConfig().WithMaxParallelTools(4))

	calls := []ToolCall{{ID: "1", Name: "d"}, {ID: "2", Name: "a"}, {ID: "3", Name: "c"}, {ID: "4", Name: "b"}}
	results := exec.ExecuteToolCalls(context.Background(), calls)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, calls[i].ID, r.ID)
		assert.Equal(t, calls[i].Name, r.Result.Text)
	}
	assert.Nil(t, exec.ExecuteToolCalls(context.Background(), nil))
}

func TestExecuteToolCallsSerializesWritesPerCategory(t *testing.T) {
	reg := NewRegistry()
	var inFlight, maxInFlight int32
	var mu sync.Mutex
	write, err := NewTool("write_task", "writes", func(_ context.Context, _ struct{}) Result {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if n > maxInFlight {
			maxInFlight = n
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return OK("written")
	})
	require.NoError(t, err)
	require.True(t, reg.Register(write, md(CategoryTasks, false), DefaultRegisterOptions()))

	exec := NewExecutor(reg, DefaultToolConfig().WithMaxParallelTools(4))
	assert.True(t, exec.IsMutating("write_task"))
	assert.False(t, exec.IsMutating("missing"))

	calls := []ToolCall{{ID: "1", Name: "write_task"}, {ID: "2", Name: "write_task"}, {ID: "3", Name: "write_task"}}
	results := exec.ExecuteToolCalls(context.Background(), calls)
	for _, r := range results {
		assert.Equal(t, "written", r.Result.Text)
	}
	assert.Equal(t, int32(1), maxInFlight)
}
