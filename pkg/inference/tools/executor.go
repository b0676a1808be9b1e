package tools

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Executor runs tool calls against a Registry.
type Executor struct {
	registry *Registry
	config   ToolConfig
}

func NewExecutor(registry *Registry, cfg ToolConfig) *Executor {
	return &Executor{registry: registry, config: cfg}
}

// ExecuteToolCall runs a single call. Unknown, disabled or disallowed tools produce an
// error result rather than a Go error, so the LLM can react to them.
func (e *Executor) ExecuteToolCall(ctx context.Context, call ToolCall) ToolResult {
	start := time.Now()
	res := ToolResult{ID: call.ID, Name: call.Name}

	t, ok := e.registry.Lookup(call.Name)
	switch {
	case !ok:
		res.Result = Errorf("unknown tool %q", call.Name)
	case !t.Metadata.Enabled:
		res.Result = Errorf("tool %q is disabled", call.Name)
	case !e.config.IsToolAllowed(call.Name):
		res.Result = Errorf("tool %q is not allowed", call.Name)
	default:
		res.Result = e.executeOnce(ctx, call, t)
	}

	res.Duration = time.Since(start)
	log.Debug().
		Str("tool", call.Name).
		Str("call_id", call.ID).
		Str("kind", string(res.Result.Kind)).
		Dur("duration", res.Duration).
		Msg("tools: executed")
	return res
}

func (e *Executor) executeOnce(ctx context.Context, call ToolCall, t *RegisteredTool) Result {
	select {
	case <-ctx.Done():
		return Errorf("execution of %s cancelled: %v", call.Name, ctx.Err())
	default:
	}

	execCtx := WithCurrentToolCall(ctx, call)
	if e.config.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(execCtx, e.config.ExecutionTimeout)
		defer cancel()
	}
	return t.Definition.Execute(execCtx, call.Arguments)
}

// ExecuteToolCalls runs a batch. Readonly calls run concurrently up to MaxParallelTools;
// mutating calls of the same category are serialized so that two writes in one batch
// cannot both pass a read-then-write check against the same records. Results keep the
// order of calls.
func (e *Executor) ExecuteToolCalls(ctx context.Context, calls []ToolCall) []ToolResult {
	if len(calls) == 0 {
		return nil
	}
	results := make([]ToolResult, len(calls))
	if len(calls) == 1 || e.config.MaxParallelTools <= 1 {
		for i, c := range calls {
			results[i] = e.ExecuteToolCall(ctx, c)
		}
		return results
	}

	locks := e.NewCategoryLocks()
	callLocks := make([]*sync.Mutex, len(calls))
	for i, c := range calls {
		callLocks[i] = locks.For(c.Name)
	}

	sem := make(chan struct{}, e.config.MaxParallelTools)
	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Add(1)
		go func(idx int, call ToolCall, mu *sync.Mutex) {
			defer wg.Done()
			if mu != nil {
				mu.Lock()
				defer mu.Unlock()
			}
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = e.ExecuteToolCall(ctx, call)
		}(i, c, callLocks[i])
	}
	wg.Wait()
	return results
}

// IsMutating reports whether the named tool writes user data. Unknown tools count as
// readonly since they cannot run.
func (e *Executor) IsMutating(name string) bool {
	t, ok := e.registry.Lookup(name)
	return ok && !t.Metadata.Readonly
}

// CategoryLocks hands out one mutex per category of mutating tool, so that writes to
// the same kind of record run one at a time. It is safe for concurrent use.
type CategoryLocks struct {
	registry *Registry
	mu       sync.Mutex
	locks    map[Category]*sync.Mutex
}

func (e *Executor) NewCategoryLocks() *CategoryLocks {
	return &CategoryLocks{registry: e.registry, locks: map[Category]*sync.Mutex{}}
}

// For returns the lock of the named tool's category, or nil for readonly and unknown tools.
func (l *CategoryLocks) For(name string) *sync.Mutex {
	t, ok := l.registry.Lookup(name)
	if !ok || t.Metadata.Readonly {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[t.Metadata.Category]
	if !ok {
		m = &sync.Mutex{}
		l.locks[t.Metadata.Category] = m
	}
	return m
}

func (e *Executor) Registry() *Registry {
	return e.registry
}
