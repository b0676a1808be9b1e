package events

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// EventSink is a destination for events.
type EventSink interface {
	PublishEvent(event Event) error
}

// ChannelSink forwards events to a channel. Publishing blocks while the channel is
// full unless the sink's context is done.
type ChannelSink struct {
	ctx context.Context
	ch  chan<- Event
}

func NewChannelSink(ctx context.Context, ch chan<- Event) *ChannelSink {
	return &ChannelSink{ctx: ctx, ch: ch}
}

func (c *ChannelSink) PublishEvent(event Event) error {
	select {
	case c.ch <- event:
		return nil
	case <-c.ctx.Done():
		return errors.Wrap(c.ctx.Err(), "channel sink closed")
	}
}

// CollectingSink keeps every event in memory, for tests and one-shot commands.
type CollectingSink struct {
	mu     sync.Mutex
	events []Event
}

func NewCollectingSink() *CollectingSink {
	return &CollectingSink{}
}

func (c *CollectingSink) PublishEvent(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

// Events returns a copy of the collected events in publish order.
func (c *CollectingSink) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// OfType returns the collected events of type t.
func (c *CollectingSink) OfType(t EventType) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event) error

func (f SinkFunc) PublishEvent(event Event) error {
	return f(event)
}

var (
	_ EventSink = (*ChannelSink)(nil)
	_ EventSink = (*CollectingSink)(nil)
	_ EventSink = SinkFunc(nil)
)
