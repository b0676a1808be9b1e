// Package agent runs one user turn through the Planning, Agent, Tools, Reflection and
// Summary stages, and executes the plans and pending actions a turn proposes once the
// user confirms them.
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/steward/pkg/conversation"
	"github.com/go-go-golems/steward/pkg/events"
	"github.com/go-go-golems/steward/pkg/inference/engine"
	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/plan"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrProviderUnavailable is returned when the Agent stage cannot reach the LLM.
	ErrProviderUnavailable = errors.New("llm provider unavailable")
	// ErrInvalidPlan is wrapped when a plan or pending action fails validation.
	ErrInvalidPlan = plan.ErrInvalidPlan
	// ErrNoReply is returned when every Agent iteration ended without usable text.
	ErrNoReply = errors.New("no usable reply")
)

// ThreadStore keeps the message history of a thread between turns.
type ThreadStore interface {
	Load(ctx context.Context, threadID string) ([]engine.Message, error)
	Save(ctx context.Context, threadID string, messages []engine.Message) error
}

type Orchestrator struct {
	provider engine.Provider
	registry *tools.Registry
	config   Config
	threads  ThreadStore
	now      func() time.Time

	decisionBlocks bool
}

type Option func(*Orchestrator)

func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		config: DefaultConfig(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.config = o.config.normalized()
	if o.registry == nil {
		o.registry = tools.NewRegistry()
	}
	return o
}

func WithProvider(p engine.Provider) Option {
	return func(o *Orchestrator) { o.provider = p }
}

func WithRegistry(r *tools.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.config = cfg }
}

func WithThreadStore(s ThreadStore) Option {
	return func(o *Orchestrator) { o.threads = s }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithDecisionBlocks adds instructions for providers that request tools through a
// fenced json block instead of native tool calls.
func WithDecisionBlocks() Option {
	return func(o *Orchestrator) { o.decisionBlocks = true }
}

func (o *Orchestrator) Config() Config {
	return o.config
}

func (o *Orchestrator) Registry() *tools.Registry {
	return o.registry
}

func (o *Orchestrator) executor() *tools.Executor {
	return tools.NewExecutor(o.registry, o.config.Tools)
}

// Run processes one user turn. Events are published to the sinks attached to ctx
// (see events.WithEventSinks). The returned error is non-nil only for fatal failures,
// after an error event has been published.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*AgentResponse, error) {
	if o.provider == nil {
		return nil, errors.New("agent: no provider configured")
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, errors.New("agent: empty message")
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	cfg := o.config
	if req.RequireConfirmation != nil {
		cfg.RequireConfirmation = *req.RequireConfirmation
	}

	now := o.now()
	conv, kept := conversation.Rehydrate(req.Conversation, now, cfg.ConversationTTL)
	if req.Conversation != nil && !kept {
		log.Debug().Str("thread_id", threadID).Msg("agent: discarded stale conversation state")
	}

	st := &AgentState{
		ThreadID:            threadID,
		RemainingIterations: cfg.MaxIterations,
		Conversation:        conv,
		request:             msg,
	}
	history := o.loadHistory(ctx, threadID, cfg)
	st.appendMessages(engine.NewSystemMessage(o.systemPrompt(cfg, conv, now)))
	st.appendMessages(history...)
	st.appendMessages(engine.NewUserMessage(msg))

	r := &run{
		o:        o,
		cfg:      cfg,
		st:       st,
		emitter:  events.NewEmitter(threadID),
		executor: tools.NewExecutor(o.registry, cfg.Tools),
	}
	if err := r.loop(ctx); err != nil {
		return nil, err
	}
	o.saveHistory(ctx, st, cfg)
	return st.response(), nil
}

func (s *AgentState) response() *AgentResponse {
	return &AgentResponse{
		ThreadID:      s.ThreadID,
		Reply:         s.reply,
		Plan:          s.Plan,
		Reflection:    s.Reflection,
		Learnings:     s.Learnings,
		Thoughts:      s.Thoughts,
		ToolCalls:     s.ToolCalls,
		ExecutionPlan: s.ExecutionPlan,
		PendingAction: s.PendingAction,
		Conversation:  s.Conversation,
		AgentPasses:   s.AgentPasses,
	}
}

func (o *Orchestrator) loadHistory(ctx context.Context, threadID string, cfg Config) []engine.Message {
	if o.threads == nil {
		return nil
	}
	msgs, err := o.threads.Load(ctx, threadID)
	if err != nil {
		log.Warn().Err(err).Str("thread_id", threadID).Msg("agent: could not load thread history")
		return nil
	}
	return trimHistory(msgs, cfg.HistoryLimit, cfg.HistoryTokens)
}

func (o *Orchestrator) saveHistory(ctx context.Context, st *AgentState, cfg Config) {
	if o.threads == nil {
		return
	}
	msgs := make([]engine.Message, 0, len(st.Messages))
	for _, m := range st.Messages {
		if m.Role == engine.RoleSystem {
			continue
		}
		msgs = append(msgs, m)
	}
	if err := o.threads.Save(ctx, st.ThreadID, trimHistory(msgs, cfg.HistoryLimit, cfg.HistoryTokens)); err != nil {
		log.Warn().Err(err).Str("thread_id", st.ThreadID).Msg("agent: could not save thread history")
	}
}

func (o *Orchestrator) appendHistory(ctx context.Context, threadID string, msgs ...engine.Message) {
	if o.threads == nil || threadID == "" {
		return
	}
	history, err := o.threads.Load(ctx, threadID)
	if err != nil {
		log.Warn().Err(err).Str("thread_id", threadID).Msg("agent: could not load thread history")
		return
	}
	history = append(history, msgs...)
	if err := o.threads.Save(ctx, threadID, trimHistory(history, o.config.HistoryLimit, o.config.HistoryTokens)); err != nil {
		log.Warn().Err(err).Str("thread_id", threadID).Msg("agent: could not save thread history")
	}
}

// trimHistory keeps the newest messages that fit in limit messages and budget
// tokens, starting at a user message so that tool results are never separated from
// the calls that produced them. Zero disables either bound.
func trimHistory(msgs []engine.Message, limit, budget int) []engine.Message {
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}
	if budget > 0 {
		total := 0
		for i := len(msgs) - 1; i >= start; i-- {
			total += messageTokens(msgs[i])
			if total > budget {
				start = i + 1
				break
			}
		}
	}
	if start == 0 {
		return msgs
	}
	for start < len(msgs) && msgs[start].Role != engine.RoleUser {
		start++
	}
	return msgs[start:]
}
