package events

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TopicEvents carries the events of every thread. Subscribers filter on the
// thread_id metadata of each message.
const TopicEvents = "steward.events"

// WatermillSink turns events into watermill messages on one topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

var _ EventSink = (*WatermillSink)(nil)

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{publisher: publisher, topic: topic}
}

// PublishEvent reuses the event id as message id so that redelivered messages
// can be recognized downstream.
func (w *WatermillSink) PublishEvent(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "encode %s event", e.Type())
	}
	meta := e.Metadata()
	id := watermill.NewUUID()
	if meta.ID != uuid.Nil {
		id = meta.ID.String()
	}
	msg := message.NewMessage(id, payload)
	msg.Metadata.Set("event_type", string(e.Type()))
	if meta.ThreadID != "" {
		msg.Metadata.Set("thread_id", meta.ThreadID)
	}
	if err := w.publisher.Publish(w.topic, msg); err != nil {
		return errors.Wrapf(err, "publish to %s", w.topic)
	}
	log.Trace().Str("event_type", string(e.Type())).Str("thread_id", meta.ThreadID).Msg("event published")
	return nil
}
