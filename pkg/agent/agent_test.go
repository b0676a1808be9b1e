package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/steward/pkg/conversation"
	"github.com/go-go-golems/steward/pkg/events"
	"github.com/go-go-golems/steward/pkg/inference/engine"
	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/inference/tools/builtin"
	"github.com/go-go-golems/steward/pkg/plan"
	"github.com/go-go-golems/steward/pkg/store"
	"github.com/go-go-golems/steward/pkg/store/memory"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

const goodReflection = `{"quality":"good","issues":[],"suggestions":[]}`

type harness struct {
	store    *memory.Store
	registry *tools.Registry
	provider *engine.ScriptedProvider
	sink     *events.CollectingSink
	agent    *Orchestrator
}

func newHarness(t *testing.T, cfg Config, replies []engine.Reply, opts ...Option) *harness {
	t.Helper()
	clock := func() time.Time { return testNow }
	st := memory.New(memory.WithClock(clock))
	reg := tools.NewRegistry()
	_, err := builtin.Register(reg, builtin.Deps{Store: st, Now: clock}, tools.DefaultRegisterOptions())
	require.NoError(t, err)

	h := &harness{
		store:    st,
		registry: reg,
		provider: engine.NewScriptedProvider(replies),
		sink:     events.NewCollectingSink(),
	}
	opts = append([]Option{WithProvider(h.provider), WithRegistry(reg), WithConfig(cfg), WithClock(clock)}, opts...)
	h.agent = New(opts...)
	return h
}

func (h *harness) ctx() context.Context {
	return events.WithEventSinks(context.Background(), h.sink)
}

func (h *harness) run(t *testing.T, req Request) *AgentResponse {
	t.Helper()
	resp, err := h.agent.Run(h.ctx(), req)
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

func call(id, name string, args map[string]any) tools.ToolCall {
	raw, _ := json.Marshal(args)
	return tools.ToolCall{ID: id, Name: name, Arguments: raw}
}

func eventTypes(evs []events.Event) []events.EventType {
	out := make([]events.EventType, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Type())
	}
	return out
}

func TestRunAnswersDirectly(t *testing.T) {
	h := newHarness(t, DefaultConfig(), []engine.Reply{
		{Content: "Hello, how can I help?"},
		{Content: goodReflection},
	})
	resp := h.run(t, Request{ThreadID: "t1", Message: "hi"})

	assert.Equal(t, "Hello, how can I help?", resp.Reply)
	assert.Equal(t, "t1", resp.ThreadID)
	assert.Equal(t, 1, resp.AgentPasses)
	require.NotNil(t, resp.Plan)
	assert.True(t, resp.Plan.Implicit)
	assert.Equal(t, StepCompleted, resp.Plan.Steps[0].Status)
	require.NotNil(t, resp.Reflection)
	assert.Equal(t, QualityGood, resp.Reflection.Quality)

	calls := h.provider.Calls()
	require.Len(t, calls, 2, "a trivial request skips the planning call")
	assert.Equal(t, engine.RoleSystem, calls[0].Messages[0].Role)
	assert.Contains(t, calls[0].Messages[0].Content, "Friday, 2025-01-10 09:00")
	assert.NotEmpty(t, calls[0].Tools)
	assert.Empty(t, calls[1].Tools, "reflection is offered no tools")

	evs := h.sink.Events()
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, events.EventTypeStateUpdate, last.Type())

	var deltas string
	var final *events.EventContent
	var prevSeq uint64
	for _, e := range evs {
		assert.Greater(t, e.Metadata().Sequence, prevSeq)
		prevSeq = e.Metadata().Sequence
		assert.Equal(t, "t1", e.Metadata().ThreadID)
		if c, ok := e.(*events.EventContent); ok {
			if c.Done {
				final = c
			} else {
				deltas += c.Text
			}
		}
	}
	assert.Equal(t, "Hello, how can I help?", deltas)
	require.NotNil(t, final)
	assert.Empty(t, final.Text, "the streamed answer is not sent twice")
	assert.Equal(t, resp.Reply, deltas+final.Text)

	require.NotNil(t, resp.Conversation)
	assert.Equal(t, testNow.Add(DefaultConfig().ConversationTTL), resp.Conversation.ExpiresAt)
}

func TestRunExecutesToolsAndFocusesResolvedRecord(t *testing.T) {
	h := newHarness(t, DefaultConfig(), []engine.Reply{
		{ToolCalls: []tools.ToolCall{call("c1", "update_schedule_block", map[string]any{
			"date": "today", "search_title": "sync", "new_start_time": "14:00", "new_end_time": "15:00",
		})}},
		{Content: "Moved Team Sync to 14:00."},
		{Content: goodReflection},
	})
	block, err := h.store.Schedule().Create(context.Background(), store.ScheduleBlock{
		Date: "2025-01-10", StartTime: "10:00", EndTime: "11:00", Title: "Team Sync",
	})
	require.NoError(t, err)

	resp := h.run(t, Request{Message: "move team sync to 2pm"})
	assert.NotEmpty(t, resp.ThreadID)
	assert.Equal(t, "Moved Team Sync to 14:00.", resp.Reply)

	got, err := h.store.Schedule().Get(context.Background(), block.ID)
	require.NoError(t, err)
	assert.Equal(t, "14:00", got.StartTime)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "update_schedule_block", resp.ToolCalls[0].Name)
	assert.Equal(t, tools.ResultOK, resp.ToolCalls[0].Kind)
	assert.Equal(t, "sync", resp.ToolCalls[0].Args["search_title"])

	require.NotNil(t, resp.Conversation.FocusEntity)
	assert.Equal(t, block.ID, resp.Conversation.FocusEntity.ID)
	assert.Equal(t, "Team Sync", resp.Conversation.FocusEntity.Title)

	calls := h.provider.Calls()
	require.Len(t, calls, 3)
	second := calls[1].Messages
	assert.Equal(t, engine.RoleTool, second[len(second)-1].Role)
	assert.Equal(t, "c1", second[len(second)-1].ToolCallID)

	types := eventTypes(h.sink.Events())
	assert.Contains(t, types, events.EventTypeToolCalls)
	assert.Contains(t, types, events.EventTypeToolResult)
	assert.Equal(t, 1, resp.AgentPasses, "tool rounds do not consume iterations")
}

func TestReflectionLoopIsBounded(t *testing.T) {
	const needsWork = `{"quality":"needs_improvement","issues":["too vague"],"suggestions":["list the times"]}`
	h := newHarness(t, DefaultConfig().WithMaxIterations(2), nil)
	// reflection never approves; the fallback would keep the loop going if it were unbounded
	h.provider = engine.NewScriptedProvider([]engine.Reply{
		{Content: "draft one"},
		{Content: needsWork},
		{Content: "draft two"},
		{Content: needsWork},
	}, engine.WithFallback(engine.Reply{Content: needsWork}))
	h.agent = New(WithProvider(h.provider), WithRegistry(h.registry), WithConfig(DefaultConfig().WithMaxIterations(2)), WithClock(func() time.Time { return testNow }))

	resp := h.run(t, Request{Message: "what is on today"})

	assert.Equal(t, 2, resp.AgentPasses)
	assert.Equal(t, "draft two", resp.Reply)
	require.NotNil(t, resp.Reflection)
	assert.Equal(t, QualityNeedsImprovement, resp.Reflection.Quality)
	assert.Len(t, h.provider.Calls(), 4, "agent, reflection, agent, reflection")

	// the retry sees the reviewer's guidance as a system turn
	retry := h.provider.Calls()[2].Messages
	guide := retry[len(retry)-1]
	assert.Equal(t, engine.RoleSystem, guide.Role)
	assert.Contains(t, guide.Content, "too vague")
	assert.Contains(t, guide.Content, "list the times")

	// messages only grow
	assert.Greater(t, len(h.provider.Calls()[2].Messages), len(h.provider.Calls()[0].Messages))
	assert.Len(t, h.sink.OfType(events.EventTypeStateUpdate), 1)
}

func TestReflectionCollectsLearnings(t *testing.T) {
	h := newHarness(t, DefaultConfig(), []engine.Reply{
		{Content: "Done."},
		{Content: "Looks fine.\n```json\n{\"quality\":\"good\",\"learnings\":[\"prefers mornings\",\"prefers mornings\"]}\n```"},
	})
	resp := h.run(t, Request{Message: "thanks"})
	assert.Equal(t, []string{"prefers mornings"}, resp.Learnings)
}

func TestMalformedReflectionCountsAsGood(t *testing.T) {
	h := newHarness(t, DefaultConfig(), []engine.Reply{
		{Content: "Done."},
		{Content: `{"quality":"excellent"}`},
	})
	resp := h.run(t, Request{Message: "thanks"})
	assert.Equal(t, QualityGood, resp.Reflection.Quality)
	assert.Equal(t, 1, resp.AgentPasses)
	require.Len(t, h.sink.OfType(events.EventTypeDecisionError), 1)
}

func TestPlanningProducesPlan(t *testing.T) {
	cfg := DefaultConfig().WithReflection(false)
	h := newHarness(t, cfg, []engine.Reply{
		{Content: "Sure.\n```json\n{\"goal\":\"Tidy the week\",\"steps\":[\"Check the schedule\",{\"description\":\"Move the gym session\"}]}\n```"},
		{Content: "Your week looks clear."},
	})
	resp := h.run(t, Request{Message: "please look at my week and then move the gym session somewhere better"})

	require.NotNil(t, resp.Plan)
	assert.False(t, resp.Plan.Implicit)
	assert.Equal(t, "Tidy the week", resp.Plan.Goal)
	require.Len(t, resp.Plan.Steps, 2)
	assert.Equal(t, "Move the gym session", resp.Plan.Steps[1].Description)
	assert.Equal(t, StepCompleted, resp.Plan.Steps[0].Status)
	assert.Equal(t, StepPending, resp.Plan.Steps[1].Status)

	calls := h.provider.Calls()
	require.Len(t, calls, 2)
	assert.Empty(t, calls[0].Tools, "planning is offered no tools")
	assert.Empty(t, h.sink.OfType(events.EventTypeDecisionError))
}

func TestMalformedPlanContinuesTurn(t *testing.T) {
	cfg := DefaultConfig().WithReflection(false)
	h := newHarness(t, cfg, []engine.Reply{
		{Content: "I would start by looking at your calendar"},
		{Content: "Your week looks clear."},
	})
	resp := h.run(t, Request{Message: "please look at my week and then move the gym session somewhere better"})

	assert.Nil(t, resp.Plan)
	assert.Equal(t, "Your week looks clear.", resp.Reply)
	evs := h.sink.OfType(events.EventTypeDecisionError)
	require.Len(t, evs, 1)
	de := evs[0].(*events.EventDecisionError)
	assert.Equal(t, "I would start by looking at your calendar", de.Raw)
	assert.Equal(t, string(StagePlanning), de.Metadata().Stage)
}

func TestProviderFailureIsFatal(t *testing.T) {
	h := newHarness(t, DefaultConfig(), []engine.Reply{{Err: errors.New("connection refused")}})
	resp, err := h.agent.Run(h.ctx(), Request{Message: "hi"})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, ErrProviderUnavailable))

	evs := h.sink.Events()
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.True(t, events.IsTerminal(last))
	assert.Contains(t, last.(*events.EventError).Message, "connection refused")
}

func TestDecisionBlocks(t *testing.T) {
	cfg := DefaultConfig().WithReflection(false)
	h := newHarness(t, cfg, []engine.Reply{
		{Content: "```json\n{\"tool_calls\":[{\"name\":\"calculate\",\"arguments\":{\"operation\":\"multiply\",\"a\":6,\"b\":7}}]}\n```"},
		{Content: "```json\n{\"tool_calls\": 5}\n```"},
	}, WithDecisionBlocks())

	resp := h.run(t, Request{Message: "what is 6 times 7"})

	assert.Contains(t, h.provider.Calls()[0].Messages[0].Content, engine.DecisionInstructions)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "42", resp.ToolCalls[0].Result)

	// the second answer is not a valid decision, so it is kept as text
	assert.Contains(t, resp.Reply, `"tool_calls": 5`)
	assert.Len(t, h.sink.OfType(events.EventTypeDecisionError), 1)
}

func TestNativeToolCallingKeepsQuotedDecisionBlocks(t *testing.T) {
	answer := "Here is the format:\n```json\n{\"tool_calls\":[{\"name\":\"delete_task\",\"arguments\":{\"id\":\"x\"}}]}\n```"
	h := newHarness(t, DefaultConfig().WithReflection(false), []engine.Reply{{Content: answer}})

	resp := h.run(t, Request{Message: "show me a tool call example"})

	assert.Equal(t, answer, resp.Reply)
	assert.Empty(t, resp.ToolCalls)
	assert.Empty(t, h.sink.OfType(events.EventTypeToolCalls))
	assert.Empty(t, h.sink.OfType(events.EventTypeDecisionError))
	assert.Len(t, h.provider.Calls(), 1)
}

func TestEmptyRepliesFailTheTurn(t *testing.T) {
	const needsWork = `{"quality":"needs_improvement","issues":["empty"],"suggestions":["answer the question"]}`
	h := newHarness(t, DefaultConfig().WithMaxIterations(2), []engine.Reply{
		{Content: ""},
		{Content: needsWork},
		{Content: "   "},
		{Content: needsWork},
	})

	resp, err := h.agent.Run(h.ctx(), Request{ThreadID: "t", Message: "hi"})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, ErrNoReply))

	evs := h.sink.Events()
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	require.True(t, events.IsTerminal(last))
	assert.Equal(t, string(StageSummary), last.Metadata().Stage)
	for _, e := range evs {
		if c, ok := e.(*events.EventContent); ok {
			assert.False(t, c.Done, "no final content is sent for a failed turn")
		}
	}
}

func TestProposalReplyIsSentInFull(t *testing.T) {
	cfg := DefaultConfig().WithRequireConfirmation(true)
	h := newHarness(t, cfg, []engine.Reply{
		{ToolCalls: []tools.ToolCall{call("c1", "create_task", map[string]any{"title": "Pay rent"})}},
	})
	resp := h.run(t, Request{Message: "remind me to pay rent"})
	require.NotNil(t, resp.PendingAction)

	var final *events.EventContent
	for _, e := range h.sink.OfType(events.EventTypeContent) {
		if c := e.(*events.EventContent); c.Done {
			final = c
		}
	}
	require.NotNil(t, final)
	assert.Equal(t, resp.Reply, final.Text)
}

func TestDeletingFocusedRecordClearsFocus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultConfig().WithReflection(false), nil)
	task, err := h.store.Tasks().Create(ctx, store.Task{Title: "Pay rent", DueDate: "2025-01-12", Status: store.TaskPending})
	require.NoError(t, err)

	h.provider = engine.NewScriptedProvider([]engine.Reply{
		{ToolCalls: []tools.ToolCall{call("c1", "update_task", map[string]any{"search_title": "rent", "new_title": "Pay the rent"})}},
		{Content: "Renamed."},
		{ToolCalls: []tools.ToolCall{call("c2", "delete_task", map[string]any{"id": task.ID})}},
		{Content: "Deleted."},
		{Content: "Nothing is in focus."},
	})
	h.agent = New(WithProvider(h.provider), WithRegistry(h.registry), WithConfig(DefaultConfig().WithReflection(false)), WithClock(func() time.Time { return testNow }))

	first := h.run(t, Request{ThreadID: "t", Message: "rename rent"})
	require.NotNil(t, first.Conversation.FocusEntity)
	assert.Equal(t, task.ID, first.Conversation.FocusEntity.ID)

	second := h.run(t, Request{ThreadID: "t", Message: "delete it", Conversation: first.Conversation})
	assert.Nil(t, second.Conversation.FocusEntity)
	require.Len(t, second.ToolCalls, 1)
	assert.Equal(t, tools.ResultOK, second.ToolCalls[0].Kind)

	h.run(t, Request{ThreadID: "t", Message: "what now", Conversation: second.Conversation})
	calls := h.provider.Calls()
	assert.NotContains(t, calls[len(calls)-1].Messages[0].Content, task.ID)
}

func TestToolRoundsAreBounded(t *testing.T) {
	cfg := DefaultConfig().WithReflection(false)
	cfg.MaxToolRounds = 1
	h := newHarness(t, cfg, []engine.Reply{
		{ToolCalls: []tools.ToolCall{call("c1", "get_current_time", map[string]any{})}},
		{ToolCalls: []tools.ToolCall{call("c2", "get_current_time", map[string]any{})}},
	})
	resp := h.run(t, Request{Message: "what time is it"})

	calls := h.provider.Calls()
	require.Len(t, calls, 2)
	assert.NotEmpty(t, calls[0].Tools)
	assert.Empty(t, calls[1].Tools)
	assert.Len(t, resp.ToolCalls, 1)
	assert.NotEmpty(t, resp.Reply)
}

func TestConversationStateIsRevalidated(t *testing.T) {
	focus := &conversation.EntityRef{Type: builtin.EntityTask, ID: "task-1", Title: "Pay rent"}

	stale := conversation.NewState(testNow.Add(-time.Hour), time.Minute)
	stale.FocusEntity = focus
	h := newHarness(t, DefaultConfig().WithReflection(false), []engine.Reply{{Content: "ok"}})
	resp := h.run(t, Request{Message: "done", Conversation: stale})
	assert.Nil(t, resp.Conversation.FocusEntity)
	assert.NotContains(t, h.provider.Calls()[0].Messages[0].Content, "Pay rent")

	fresh := conversation.NewState(testNow.Add(-time.Minute), conversation.DefaultTTL)
	fresh.FocusEntity = focus
	h = newHarness(t, DefaultConfig().WithReflection(false), []engine.Reply{{Content: "ok"}})
	resp = h.run(t, Request{Message: "done", Conversation: fresh})
	require.NotNil(t, resp.Conversation.FocusEntity)
	assert.Equal(t, "task-1", resp.Conversation.FocusEntity.ID)
	assert.Contains(t, h.provider.Calls()[0].Messages[0].Content, `task "Pay rent" (id: task-1)`)
	assert.Greater(t, resp.Conversation.Revision, fresh.Revision)
}

type mapThreads struct {
	mu   sync.Mutex
	msgs map[string][]engine.Message
}

func (m *mapThreads) Load(_ context.Context, id string) ([]engine.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]engine.Message(nil), m.msgs[id]...), nil
}

func (m *mapThreads) Save(_ context.Context, id string, msgs []engine.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.msgs == nil {
		m.msgs = map[string][]engine.Message{}
	}
	m.msgs[id] = append([]engine.Message(nil), msgs...)
	return nil
}

func TestThreadHistoryIsReplayed(t *testing.T) {
	threads := &mapThreads{}
	h := newHarness(t, DefaultConfig().WithReflection(false), []engine.Reply{
		{Content: "Noted."},
		{Content: "You said hello."},
	}, WithThreadStore(threads))

	h.run(t, Request{ThreadID: "th", Message: "hello"})
	h.run(t, Request{ThreadID: "th", Message: "what did I say"})

	second := h.provider.Calls()[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, engine.RoleSystem, second[0].Role)
	assert.Equal(t, "hello", second[1].Content)
	assert.Equal(t, "Noted.", second[2].Content)
	assert.Equal(t, "what did I say", second[3].Content)

	stored, _ := threads.Load(context.Background(), "th")
	require.Len(t, stored, 4)
	for _, m := range stored {
		assert.NotEqual(t, engine.RoleSystem, m.Role)
	}
}

func TestTrimHistoryStartsAtUserMessage(t *testing.T) {
	msgs := []engine.Message{
		engine.NewUserMessage("a"),
		engine.NewToolCallsMessage([]tools.ToolCall{{ID: "1", Name: "x"}}),
		engine.NewToolResultMessage(tools.ToolResult{ID: "1", Name: "x", Result: tools.OK("r")}),
		engine.NewAssistantMessage("b"),
		engine.NewUserMessage("c"),
		engine.NewAssistantMessage("d"),
	}
	assert.Equal(t, msgs, trimHistory(msgs, 0, 0))
	assert.Equal(t, msgs[4:], trimHistory(msgs, 4, 0))
	assert.Equal(t, msgs[4:], trimHistory(msgs, 2, 0))
	assert.Empty(t, trimHistory(msgs, 1, 0))
}

func TestTrimHistoryRespectsTokenBudget(t *testing.T) {
	long := strings.Repeat("the quick brown fox jumps over the lazy dog ", 40)
	msgs := []engine.Message{
		engine.NewUserMessage(long),
		engine.NewAssistantMessage(long),
		engine.NewUserMessage("short question"),
		engine.NewAssistantMessage("short answer"),
	}
	assert.Greater(t, messageTokens(msgs[0]), 300)
	assert.Less(t, messageTokens(msgs[2]), 10)

	assert.Equal(t, msgs, trimHistory(msgs, 0, 10000))
	assert.Equal(t, msgs[2:], trimHistory(msgs, 0, 100))
	assert.Empty(t, trimHistory(msgs, 0, 5), "no suffix starting at a user message fits")
	assert.Equal(t, msgs[2:], trimHistory(msgs, 3, 10000), "the message limit still applies")
}

func TestConfirmationHoldsBackWrites(t *testing.T) {
	cfg := DefaultConfig().WithRequireConfirmation(true)
	h := newHarness(t, cfg, []engine.Reply{
		{ToolCalls: []tools.ToolCall{
			call("q1", "query_schedule", map[string]any{"date": "today"}),
			call("c1", "create_schedule_block", map[string]any{"date": "today", "start_time": "10:30", "end_time": "11:30", "title": "Dentist"}),
		}},
	})
	resp := h.run(t, Request{ThreadID: "t", Message: "book the dentist at 10:30"})

	require.NotNil(t, resp.PendingAction)
	assert.Nil(t, resp.ExecutionPlan)
	assert.Equal(t, plan.OperationCreate, resp.PendingAction.Operation)
	assert.Equal(t, "create_schedule_block", resp.PendingAction.Action)
	assert.Equal(t, "Dentist", resp.PendingAction.Params["title"])
	assert.Contains(t, resp.Reply, "Shall I go ahead?")
	assert.Len(t, h.provider.Calls(), 1, "a proposal skips reflection")

	// the readonly call ran, the write did not
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "query_schedule", resp.ToolCalls[0].Name)
	blocks, err := h.store.Schedule().Query(context.Background(), store.ScheduleQuery{})
	require.NoError(t, err)
	assert.Empty(t, blocks)
	assert.Len(t, h.sink.OfType(events.EventTypePendingAction), 1)

	res, err := h.agent.ExecuteAction(h.ctx(), *resp.PendingAction)
	require.NoError(t, err)
	assert.True(t, res.Success)
	blocks, err = h.store.Schedule().Query(context.Background(), store.ScheduleQuery{})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Dentist", blocks[0].Title)

	complete := h.sink.OfType(events.EventTypeExecutionComplete)
	require.Len(t, complete, 1)
	assert.True(t, complete[0].(*events.EventExecutionComplete).Success)
}

func TestConfirmationPerRequestOverride(t *testing.T) {
	h := newHarness(t, DefaultConfig().WithReflection(false), []engine.Reply{
		{ToolCalls: []tools.ToolCall{call("c1", "create_task", map[string]any{"title": "Pay rent"})}},
	})
	yes := true
	resp := h.run(t, Request{Message: "remind me to pay rent", RequireConfirmation: &yes})
	require.NotNil(t, resp.PendingAction)
	tasks, err := h.store.Tasks().Query(context.Background(), store.TaskQuery{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestSeveralWritesBecomeAPlan(t *testing.T) {
	cfg := DefaultConfig().WithRequireConfirmation(true)
	h := newHarness(t, cfg, []engine.Reply{
		{ToolCalls: []tools.ToolCall{
			call("c1", "create_task", map[string]any{"title": "Pay rent"}),
			call("c2", "create_task", map[string]any{"title": "Call mom"}),
		}},
	})
	resp := h.run(t, Request{ThreadID: "t", Message: "add two tasks"})

	require.NotNil(t, resp.ExecutionPlan)
	assert.Nil(t, resp.PendingAction)
	p := *resp.ExecutionPlan
	assert.NotEmpty(t, p.PlanID)
	assert.Equal(t, "t", p.ThreadID)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "c1", p.Steps[0].ID)
	assert.Contains(t, resp.Reply, "1. create_task(title=Pay rent)")

	planEvents := h.sink.OfType(events.EventTypePlan)
	require.Len(t, planEvents, 1)

	h.agent.CancelPlan(p)
	tasks, err := h.store.Tasks().Query(context.Background(), store.TaskQuery{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Empty(t, h.sink.OfType(events.EventTypeExecutionComplete))

	res, err := h.agent.ExecutePlan(h.ctx(), p)
	require.NoError(t, err)
	assert.True(t, res.Success)
	tasks, err = h.store.Tasks().Query(context.Background(), store.TaskQuery{})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}
