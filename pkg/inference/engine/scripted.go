package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/pkg/errors"
)

// Reply is one scripted provider answer.
type Reply struct {
	Content   string
	ToolCalls []tools.ToolCall
	Err       error
}

// Invocation records what a ScriptedProvider was called with.
type Invocation struct {
	Messages []Message
	Tools    []ToolSpec
}

// ScriptedProvider replays a fixed list of replies in order. Tests use it in place
// of a network provider.
type ScriptedProvider struct {
	mu       sync.Mutex
	replies  []Reply
	fallback *Reply
	calls    []Invocation
}

var _ Provider = (*ScriptedProvider)(nil)

type ScriptedOption func(*ScriptedProvider)

// WithFallback answers with r once the script is exhausted instead of failing.
func WithFallback(r Reply) ScriptedOption {
	return func(p *ScriptedProvider) {
		p.fallback = &r
	}
}

func NewScriptedProvider(replies []Reply, options ...ScriptedOption) *ScriptedProvider {
	p := &ScriptedProvider{replies: append([]Reply(nil), replies...)}
	for _, o := range options {
		o(p)
	}
	return p
}

func (p *ScriptedProvider) Invoke(ctx context.Context, messages []Message, specs []ToolSpec, onDelta DeltaFunc) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	p.mu.Lock()
	p.calls = append(p.calls, Invocation{
		Messages: append([]Message(nil), messages...),
		Tools:    append([]ToolSpec(nil), specs...),
	})
	var r Reply
	switch {
	case len(p.replies) > 0:
		r = p.replies[0]
		p.replies = p.replies[1:]
	case p.fallback != nil:
		r = *p.fallback
	default:
		p.mu.Unlock()
		return Decision{}, errors.New("scripted provider: script exhausted")
	}
	p.mu.Unlock()

	if r.Err != nil {
		return Decision{}, r.Err
	}
	if len(r.ToolCalls) > 0 {
		return ToolCallsDecision(r.ToolCalls), nil
	}
	if onDelta != nil && r.Content != "" {
		for _, chunk := range splitKeep(r.Content) {
			onDelta(chunk)
		}
	}
	return ContentDecision(r.Content), nil
}

// Calls returns every invocation so far.
func (p *ScriptedProvider) Calls() []Invocation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Invocation(nil), p.calls...)
}

// Remaining is the number of unused scripted replies.
func (p *ScriptedProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.replies)
}

// splitKeep cuts s into word fragments that concatenate back to s.
func splitKeep(s string) []string {
	var out []string
	for len(s) > 0 {
		i := strings.IndexByte(s[1:], ' ')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}
