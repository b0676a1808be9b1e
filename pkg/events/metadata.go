package events

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventMetadata identifies an event within the stream of one thread.
type EventMetadata struct {
	ID       uuid.UUID `json:"id" yaml:"id"`
	ThreadID string    `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
	// Sequence is strictly increasing per Emitter, starting at 1.
	Sequence uint64 `json:"sequence" yaml:"sequence"`
	// Stage is the state machine node that emitted the event, if any.
	Stage string `json:"stage,omitempty" yaml:"stage,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", em.ID.String())
	if em.ThreadID != "" {
		e.Str("thread_id", em.ThreadID)
	}
	e.Uint64("sequence", em.Sequence)
	if em.Stage != "" {
		e.Str("stage", em.Stage)
	}
}

// Emitter stamps metadata for one thread's events. It is safe for concurrent use.
type Emitter struct {
	threadID string
	seq      atomic.Uint64
}

func NewEmitter(threadID string) *Emitter {
	return &Emitter{threadID: threadID}
}

func (e *Emitter) ThreadID() string {
	return e.threadID
}

// Meta returns fresh metadata for the next event.
func (e *Emitter) Meta(stage string) EventMetadata {
	return EventMetadata{
		ID:       uuid.New(),
		ThreadID: e.threadID,
		Sequence: e.seq.Add(1),
		Stage:    stage,
	}
}
