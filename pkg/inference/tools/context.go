package tools

import "context"

type currentToolCallKey struct{}

// WithCurrentToolCall annotates context with the tool call being executed.
func WithCurrentToolCall(ctx context.Context, call ToolCall) context.Context {
	return context.WithValue(ctx, currentToolCallKey{}, call)
}

// CurrentToolCallFromContext returns the current tool call if available.
func CurrentToolCallFromContext(ctx context.Context) (ToolCall, bool) {
	if ctx == nil {
		return ToolCall{}, false
	}
	call, ok := ctx.Value(currentToolCallKey{}).(ToolCall)
	return call, ok
}
