package events

import (
	"encoding/json"

	"github.com/go-go-golems/steward/pkg/conversation"
	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/plan"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeContent is an incremental text fragment; the last one has Done set.
	EventTypeContent EventType = "content"
	// EventTypeToolCalls lists the calls requested by one Agent pass.
	EventTypeToolCalls EventType = "tool_calls"
	// EventTypeToolResult reports the outcome of one executed call.
	EventTypeToolResult EventType = "tool_result"
	// EventTypeStateUpdate carries a full replacement conversation state.
	EventTypeStateUpdate EventType = "state_update"
	EventTypePlan        EventType = "plan"
	// EventTypePendingAction is the single-call variant of EventTypePlan.
	EventTypePendingAction     EventType = "pending_action"
	EventTypeExecutionComplete EventType = "execution_complete"
	// EventTypeDecisionError is a recoverable warning; the stream continues.
	EventTypeDecisionError EventType = "decision_error"
	// EventTypeError is fatal and terminates the stream.
	EventTypeError EventType = "error"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`

	// store payload if the event was deserialized from JSON (see NewEventFromJson)
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

// SetPayload stores the raw JSON payload on the event implementation.
func (e *EventImpl) SetPayload(b []byte) {
	e.payload = b
}

var _ Event = &EventImpl{}

func newImpl(t EventType, metadata EventMetadata) EventImpl {
	return EventImpl{Type_: t, Metadata_: metadata}
}

type EventContent struct {
	EventImpl
	Text string `json:"text"`
	Done bool   `json:"done"`
}

func NewContentEvent(metadata EventMetadata, text string, done bool) *EventContent {
	return &EventContent{EventImpl: newImpl(EventTypeContent, metadata), Text: text, Done: done}
}

var _ Event = &EventContent{}

// ToolCallRequest is the wire form of a requested call.
type ToolCallRequest struct {
	ID       string         `json:"id,omitempty"`
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
}

type EventToolCalls struct {
	EventImpl
	Calls []ToolCallRequest `json:"calls"`
}

func NewToolCallsEvent(metadata EventMetadata, calls []tools.ToolCall) *EventToolCalls {
	reqs := make([]ToolCallRequest, 0, len(calls))
	for _, c := range calls {
		reqs = append(reqs, ToolCallRequest{ID: c.ID, ToolName: c.Name, Args: c.ArgsMap()})
	}
	return &EventToolCalls{EventImpl: newImpl(EventTypeToolCalls, metadata), Calls: reqs}
}

var _ Event = &EventToolCalls{}

type EventToolResult struct {
	EventImpl
	ID         string           `json:"id"`
	ToolName   string           `json:"tool_name"`
	Kind       tools.ResultKind `json:"kind"`
	Result     string           `json:"result"`
	DurationMs int64            `json:"duration_ms"`
}

func NewToolResultEvent(metadata EventMetadata, r tools.ToolResult) *EventToolResult {
	return &EventToolResult{
		EventImpl:  newImpl(EventTypeToolResult, metadata),
		ID:         r.ID,
		ToolName:   r.Name,
		Kind:       r.Result.Kind,
		Result:     r.Result.Text,
		DurationMs: r.Duration.Milliseconds(),
	}
}

var _ Event = &EventToolResult{}

type EventStateUpdate struct {
	EventImpl
	State *conversation.State `json:"state"`
}

func NewStateUpdateEvent(metadata EventMetadata, state *conversation.State) *EventStateUpdate {
	return &EventStateUpdate{EventImpl: newImpl(EventTypeStateUpdate, metadata), State: state.Clone()}
}

var _ Event = &EventStateUpdate{}

type EventPlan struct {
	EventImpl
	Plan plan.ExecutionPlan `json:"plan"`
}

func NewPlanEvent(metadata EventMetadata, p plan.ExecutionPlan) *EventPlan {
	return &EventPlan{EventImpl: newImpl(EventTypePlan, metadata), Plan: p.Clone()}
}

var _ Event = &EventPlan{}

type EventPendingAction struct {
	EventImpl
	Action plan.PendingTaskAction `json:"action"`
}

func NewPendingActionEvent(metadata EventMetadata, a plan.PendingTaskAction) *EventPendingAction {
	return &EventPendingAction{EventImpl: newImpl(EventTypePendingAction, metadata), Action: a.Clone()}
}

var _ Event = &EventPendingAction{}

// StepOutcome is the per-step result reported with execution_complete.
type StepOutcome struct {
	StepID string           `json:"step_id"`
	Action string           `json:"action"`
	Status string           `json:"status"`
	Kind   tools.ResultKind `json:"kind,omitempty"`
	Result string           `json:"result,omitempty"`
}

type EventExecutionComplete struct {
	EventImpl
	Success bool          `json:"success"`
	Summary string        `json:"summary,omitempty"`
	Error   string        `json:"error,omitempty"`
	Steps   []StepOutcome `json:"steps,omitempty"`
}

func NewExecutionCompleteEvent(metadata EventMetadata, success bool, summary, errMsg string, steps []StepOutcome) *EventExecutionComplete {
	return &EventExecutionComplete{
		EventImpl: newImpl(EventTypeExecutionComplete, metadata),
		Success:   success,
		Summary:   summary,
		Error:     errMsg,
		Steps:     steps,
	}
}

var _ Event = &EventExecutionComplete{}

type EventDecisionError struct {
	EventImpl
	Message string `json:"message"`
	// Raw is the model output that could not be decoded, when available.
	Raw string `json:"raw,omitempty"`
}

func NewDecisionErrorEvent(metadata EventMetadata, message, raw string) *EventDecisionError {
	return &EventDecisionError{EventImpl: newImpl(EventTypeDecisionError, metadata), Message: message, Raw: raw}
}

var _ Event = &EventDecisionError{}

type EventError struct {
	EventImpl
	Message string `json:"message"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &EventError{EventImpl: newImpl(EventTypeError, metadata), Message: msg}
}

var _ Event = &EventError{}

// IsTerminal reports whether no further events follow e on a stream.
func IsTerminal(e Event) bool {
	return e.Type() == EventTypeError
}

// NewEventFromJson decodes a serialized event into its concrete type.
func NewEventFromJson(b []byte) (Event, error) {
	var hdr struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, errors.Wrap(err, "decode event header")
	}

	if dec := lookupDecoder(string(hdr.Type)); dec != nil {
		ev, err := dec(b)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s event", hdr.Type)
		}
		if setter, ok := ev.(interface{ SetPayload([]byte) }); ok {
			setter.SetPayload(b)
		}
		return ev, nil
	}

	var e *EventImpl
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	e.payload = b

	switch e.Type_ {
	case EventTypeContent:
		return toTyped[EventContent](e)
	case EventTypeToolCalls:
		return toTyped[EventToolCalls](e)
	case EventTypeToolResult:
		return toTyped[EventToolResult](e)
	case EventTypeStateUpdate:
		return toTyped[EventStateUpdate](e)
	case EventTypePlan:
		return toTyped[EventPlan](e)
	case EventTypePendingAction:
		return toTyped[EventPendingAction](e)
	case EventTypeExecutionComplete:
		return toTyped[EventExecutionComplete](e)
	case EventTypeDecisionError:
		return toTyped[EventDecisionError](e)
	case EventTypeError:
		return toTyped[EventError](e)
	}
	return nil, errors.Errorf("unknown event type: %q", e.Type_)
}

type payloadSetter[T any] interface {
	*T
	Event
	SetPayload([]byte)
}

func toTyped[T any, PT payloadSetter[T]](e Event) (Event, error) {
	ret, ok := ToTypedEvent[T](e)
	if !ok || ret == nil {
		return nil, errors.Errorf("could not cast event to %s", e.Type())
	}
	PT(ret).SetPayload(e.Payload())
	return PT(ret), nil
}

// ToTypedEvent re-decodes the payload of a generic event into T.
func ToTypedEvent[T any](e Event) (*T, bool) {
	var ret *T
	if err := json.Unmarshal(e.Payload(), &ret); err != nil {
		return nil, false
	}
	return ret, true
}
