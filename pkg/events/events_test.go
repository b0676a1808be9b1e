package events

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/steward/pkg/conversation"
	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/plan"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, e Event) Event {
	b, err := json.Marshal(e)
	require.NoError(t, err)
	out, err := NewEventFromJson(b)
	require.NoError(t, err)
	assert.Equal(t, e.Type(), out.Type())
	assert.Equal(t, e.Metadata(), out.Metadata())
	return out
}

func TestEventsDecodeToConcreteTypes(t *testing.T) {
	em := NewEmitter("thread-1")

	content := roundTrip(t, NewContentEvent(em.Meta("agent"), "hello", true))
	c, ok := content.(*EventContent)
	require.True(t, ok)
	assert.Equal(t, "hello", c.Text)
	assert.True(t, c.Done)

	calls := roundTrip(t, NewToolCallsEvent(em.Meta("agent"), []tools.ToolCall{
		{ID: "c1", Name: "query_tasks", Arguments: json.RawMessage(`{"status":"pending"}`)},
	}))
	tc, ok := calls.(*EventToolCalls)
	require.True(t, ok)
	require.Len(t, tc.Calls, 1)
	assert.Equal(t, "query_tasks", tc.Calls[0].ToolName)
	assert.Equal(t, "pending", tc.Calls[0].Args["status"])

	st := conversation.NewState(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), time.Hour)
	su := roundTrip(t, NewStateUpdateEvent(em.Meta("summary"), st))
	require.IsType(t, &EventStateUpdate{}, su)
	assert.Equal(t, conversation.SchemaVersion, su.(*EventStateUpdate).State.Version)

	p := plan.ExecutionPlan{PlanID: "p1", Summary: "two writes", Steps: []plan.ExecutionStep{{ID: "a", Action: "create_task"}}}
	pe := roundTrip(t, NewPlanEvent(em.Meta("tools"), p))
	assert.Equal(t, "p1", pe.(*EventPlan).Plan.PlanID)

	pa := roundTrip(t, NewPendingActionEvent(em.Meta("tools"), plan.PendingTaskAction{ID: "x", Action: "create_task", Operation: plan.OperationCreate}))
	assert.Equal(t, plan.OperationCreate, pa.(*EventPendingAction).Action.Operation)

	ec := roundTrip(t, NewExecutionCompleteEvent(em.Meta(""), false, "", "boom", nil))
	assert.False(t, ec.(*EventExecutionComplete).Success)
	assert.Equal(t, "boom", ec.(*EventExecutionComplete).Error)

	de := roundTrip(t, NewDecisionErrorEvent(em.Meta("reflection"), "bad json", "{"))
	assert.Equal(t, "bad json", de.(*EventDecisionError).Message)

	er := roundTrip(t, NewErrorEvent(em.Meta(""), assert.AnError))
	assert.True(t, IsTerminal(er))
	assert.False(t, IsTerminal(de))
}

func TestEventJSONShape(t *testing.T) {
	em := NewEmitter("t")
	b, err := json.Marshal(NewContentEvent(em.Meta("agent"), "hi", false))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "content", m["type"])
	assert.Equal(t, "hi", m["text"])
	meta := m["meta"].(map[string]any)
	assert.Equal(t, "t", meta["thread_id"])
	assert.EqualValues(t, 1, meta["sequence"])
}

func TestNewEventFromJsonRejectsUnknown(t *testing.T) {
	_, err := NewEventFromJson([]byte(`{"type":"mystery"}`))
	assert.Error(t, err)
	_, err = NewEventFromJson([]byte(`not json`))
	assert.Error(t, err)
}

func TestEmitterSequenceIsMonotonic(t *testing.T) {
	em := NewEmitter("t")
	var wg sync.WaitGroup
	seen := make(chan uint64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- em.Meta("").Sequence
		}()
	}
	wg.Wait()
	close(seen)
	unique := map[uint64]bool{}
	for s := range seen {
		unique[s] = true
	}
	assert.Len(t, unique, 100)
	assert.True(t, unique[1])
	assert.True(t, unique[100])
}

func TestPublishEventToContext(t *testing.T) {
	a, b := NewCollectingSink(), NewCollectingSink()
	ctx := WithEventSinks(context.Background(), a)
	ctx = WithEventSinks(ctx, b)

	PublishEventToContext(ctx, NewContentEvent(NewEmitter("t").Meta(""), "x", true))
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Len(t, a.OfType(EventTypeContent), 1)

	// no sinks is a no-op
	PublishEventToContext(context.Background(), NewContentEvent(EventMetadata{}, "x", true))
}

func TestToolEventAggregator(t *testing.T) {
	em := NewEmitter("t")
	agg := NewToolEventAggregator()
	agg.Handle(NewToolCallsEvent(em.Meta(""), []tools.ToolCall{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}))
	agg.Handle(NewToolResultEvent(em.Meta(""), tools.ToolResult{ID: "1", Name: "a", Result: tools.OK("done")}))

	entries := agg.Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Done)
	assert.Equal(t, "done", entries[0].Result)
	require.Len(t, agg.Pending(), 1)
	assert.Equal(t, "b", agg.Pending()[0].ToolName)
}

func TestPrintEvent(t *testing.T) {
	em := NewEmitter("t")
	var buf bytes.Buffer
	require.NoError(t, PrintEvent(&buf, NewContentEvent(em.Meta(""), "Hello", false)))
	require.NoError(t, PrintEvent(&buf, NewContentEvent(em.Meta(""), " world", true)))
	require.NoError(t, PrintEvent(&buf, NewDecisionErrorEvent(em.Meta(""), "could not parse plan", "")))
	assert.Equal(t, "Hello world\n\n[warning] could not parse plan\n", buf.String())
}

func TestPrinterFuncSkipsEventTypes(t *testing.T) {
	em := NewEmitter("t")
	var buf bytes.Buffer
	printer := PrinterFunc(&buf, EventTypeContent)
	for _, e := range []Event{
		NewContentEvent(em.Meta(""), "**hidden**", true),
		NewErrorEvent(em.Meta(""), errors.New("store offline")),
	} {
		b, err := json.Marshal(e)
		require.NoError(t, err)
		require.NoError(t, printer(message.NewMessage(watermill.NewUUID(), b)))
	}
	assert.Equal(t, "\n[error] store offline\n", buf.String())
}

func TestEventRouterDeliversPerThread(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)
	defer router.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := router.Subscribe(ctx, "mine")
	require.NoError(t, err)

	sink := router.Sink()
	require.NoError(t, sink.PublishEvent(NewContentEvent(NewEmitter("other").Meta(""), "not for me", true)))
	require.NoError(t, sink.PublishEvent(NewContentEvent(NewEmitter("mine").Meta(""), "for me", true)))

	select {
	case ev := <-ch:
		c, ok := ev.(*EventContent)
		require.True(t, ok)
		assert.Equal(t, "for me", c.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

type reminderEvent struct {
	EventImpl
	Note string `json:"note"`
}

func TestRegisterEventFactory(t *testing.T) {
	factory := func() Event { return &reminderEvent{} }
	require.NoError(t, RegisterEventFactory("test_reminder", factory))
	assert.Error(t, RegisterEventFactory("test_reminder", factory), "a type is registered once")

	b, err := json.Marshal(&reminderEvent{EventImpl: newImpl("test_reminder", NewEmitter("t").Meta("")), Note: "water the plants"})
	require.NoError(t, err)
	ev, err := NewEventFromJson(b)
	require.NoError(t, err)
	r, ok := ev.(*reminderEvent)
	require.True(t, ok)
	assert.Equal(t, "water the plants", r.Note)
	assert.Equal(t, "t", r.Metadata().ThreadID)
	assert.JSONEq(t, string(b), string(r.Payload()))
}
