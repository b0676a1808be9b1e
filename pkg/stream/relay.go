package stream

import (
	"context"
	"time"

	"github.com/go-go-golems/steward/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Commenter is implemented by writers that can send keep-alive pings.
type Commenter interface {
	Comment(text string) error
}

type relayConfig struct {
	heartbeat time.Duration
	until     func(events.Event) bool
}

type RelayOption func(*relayConfig)

// WithHeartbeat pings idle streams every d, if the writer is a Commenter.
func WithHeartbeat(d time.Duration) RelayOption {
	return func(c *relayConfig) {
		c.heartbeat = d
	}
}

// WithStopAfter ends the relay after writing the first event for which stop
// returns true, in addition to terminal events.
func WithStopAfter(stop func(events.Event) bool) RelayOption {
	return func(c *relayConfig) {
		c.until = stop
	}
}

// Relay copies events from in to w until in is closed, ctx is done, or a terminal
// event has been written. It returns the number of events written.
func Relay(ctx context.Context, in <-chan events.Event, w Writer, opts ...RelayOption) (int, error) {
	cfg := relayConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	var tick <-chan time.Time
	commenter, ok := w.(Commenter)
	if ok && cfg.heartbeat > 0 {
		t := time.NewTicker(cfg.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	n := 0
	for {
		select {
		case <-ctx.Done():
			return n, errors.Wrap(ctx.Err(), "relay interrupted")
		case <-tick:
			if err := commenter.Comment("keep-alive"); err != nil {
				return n, err
			}
		case e, ok := <-in:
			if !ok {
				return n, nil
			}
			if err := w.WriteEvent(e); err != nil {
				return n, err
			}
			n++
			if events.IsTerminal(e) || (cfg.until != nil && cfg.until(e)) {
				log.Debug().Str("type", string(e.Type())).Int("written", n).Msg("stream: relay finished")
				return n, nil
			}
		}
	}
}
