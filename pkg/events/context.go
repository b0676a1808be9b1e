package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

type sinksKey struct{}

// WithEventSinks returns a context whose sinks are those already on ctx followed
// by sinks. The slice on ctx is never modified.
func WithEventSinks(ctx context.Context, sinks ...EventSink) context.Context {
	if len(sinks) == 0 {
		return ctx
	}
	prev := GetEventSinks(ctx)
	all := make([]EventSink, 0, len(prev)+len(sinks))
	all = append(append(all, prev...), sinks...)
	return context.WithValue(ctx, sinksKey{}, all)
}

func GetEventSinks(ctx context.Context) []EventSink {
	sinks, _ := ctx.Value(sinksKey{}).([]EventSink)
	return sinks
}

// PublishEventToContext hands e to every sink on ctx. Sink errors are logged and
// do not stop delivery to the remaining sinks.
func PublishEventToContext(ctx context.Context, e Event) {
	for _, s := range GetEventSinks(ctx) {
		if err := s.PublishEvent(e); err != nil {
			log.Warn().Err(err).Str("event_type", string(e.Type())).Msg("event sink failed")
		}
	}
}
