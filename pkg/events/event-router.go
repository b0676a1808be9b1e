package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventRouter is the in-process event bus. Turns publish through Sink, thread
// watchers use Subscribe, and handlers added with AddHandler see every event.
type EventRouter struct {
	logger watermill.LoggerAdapter
	pubsub *gochannel.GoChannel
	router *message.Router
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) { r.logger = logger }
}

// WithVerbose sends watermill's own log lines to the global zerolog logger.
func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		if verbose {
			r.logger = NewWatermillLogger(log.Logger)
		}
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	r := &EventRouter{logger: watermill.NopLogger{}}
	for _, o := range options {
		o(r)
	}
	// Publish returns once every subscriber acked, so a turn's stream is complete
	// when the turn returns.
	r.pubsub = gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, r.logger)

	router, err := message.NewRouter(message.RouterConfig{}, r.logger)
	if err != nil {
		return nil, errors.Wrap(err, "create event router")
	}
	r.router = router
	return r, nil
}

func (r *EventRouter) Sink() *WatermillSink {
	return NewWatermillSink(r.pubsub, TopicEvents)
}

func (r *EventRouter) AddHandler(name, topic string, f message.NoPublishHandlerFunc) {
	r.router.AddNoPublisherHandler(name, topic, r.pubsub, f)
}

// Subscribe streams the events of one thread (every thread for "") until ctx is
// done. Messages for other threads and undecodable payloads are acked and dropped.
func (r *EventRouter) Subscribe(ctx context.Context, threadID string) (<-chan Event, error) {
	msgs, err := r.pubsub.Subscribe(ctx, TopicEvents)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe to events")
	}
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			if !r.forward(ctx, msg, threadID, out) {
				return
			}
		}
	}()
	return out, nil
}

func (r *EventRouter) forward(ctx context.Context, msg *message.Message, threadID string, out chan<- Event) bool {
	if threadID != "" && msg.Metadata.Get("thread_id") != threadID {
		msg.Ack()
		return true
	}
	e, err := NewEventFromJson(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping undecodable event")
		msg.Ack()
		return true
	}
	select {
	case out <- e:
		msg.Ack()
		return true
	case <-ctx.Done():
		msg.Nack()
		return false
	}
}

// LogEvents is a handler writing each event to the debug log.
func (r *EventRouter) LogEvents(msg *message.Message) error {
	e, err := NewEventFromJson(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("message_id", msg.UUID).Msg("undecodable event")
		return nil
	}
	log.Debug().Str("type", string(e.Type())).Object("meta", e.Metadata()).Msg("event")
	return nil
}

func (r *EventRouter) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

func (r *EventRouter) Running() chan struct{} {
	return r.router.Running()
}

// Close stops the router and the underlying pub/sub; open subscriptions end.
func (r *EventRouter) Close() error {
	routerErr := r.router.Close()
	if err := r.pubsub.Close(); err != nil {
		return errors.Wrap(err, "close event pubsub")
	}
	return errors.Wrap(routerErr, "close event router")
}
