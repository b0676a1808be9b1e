// Package stream frames the event stream of a turn for remote clients, either as
// server-sent events or as newline-delimited JSON, and reads such streams back.
package stream

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-go-golems/steward/pkg/events"
	"github.com/pkg/errors"
)

type Format string

const (
	FormatSSE    Format = "sse"
	FormatNDJSON Format = "ndjson"
)

const (
	ContentTypeSSE    = "text/event-stream"
	ContentTypeNDJSON = "application/x-ndjson"
)

// Writer writes one framed event. Implementations are safe for concurrent use.
type Writer interface {
	WriteEvent(e events.Event) error
}

// Reader returns the next event of a framed stream, or io.EOF at its end.
type Reader interface {
	Next() (events.Event, error)
}

// Marshal is the JSON body shared by both framings.
func Marshal(e events.Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s event", e.Type())
	}
	return b, nil
}

// Sink adapts w so that it can be attached to a context with events.WithEventSinks.
func Sink(w Writer) events.EventSink {
	return events.SinkFunc(w.WriteEvent)
}

// FormatFromRequest picks NDJSON when the client asks for it with ?format=ndjson or
// an Accept header, SSE otherwise.
func FormatFromRequest(r *http.Request) Format {
	if strings.EqualFold(r.URL.Query().Get("format"), string(FormatNDJSON)) {
		return FormatNDJSON
	}
	if strings.Contains(r.Header.Get("Accept"), ContentTypeNDJSON) {
		return FormatNDJSON
	}
	return FormatSSE
}

// NewResponseWriter prepares w for streaming in format f.
func NewResponseWriter(w http.ResponseWriter, f Format) (Writer, error) {
	switch f {
	case FormatNDJSON:
		return NewNDJSONResponse(w), nil
	case FormatSSE, "":
		return NewSSEWriter(w)
	default:
		return nil, errors.Errorf("unknown stream format %q", f)
	}
}
