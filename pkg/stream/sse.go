package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-go-golems/steward/pkg/events"
	"github.com/pkg/errors"
)

// SSEWriter sends each event as a named server-sent event whose data is the event JSON.
type SSEWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

// NewSSEWriter sets the streaming headers on w. The ResponseWriter must support flushing.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", ContentTypeSSE)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// NewSSEStream writes server-sent events to a plain writer, e.g. a file or a pipe.
func NewSSEStream(w io.Writer) *SSEWriter {
	f, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: f}
}

func (s *SSEWriter) WriteEvent(e events.Event) error {
	data, err := Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "id: %s\nevent: %s\ndata: %s\n\n", e.Metadata().ID, e.Type(), data); err != nil {
		return errors.Wrap(err, "write sse event")
	}
	s.flush()
	return nil
}

// Comment writes a comment line, which clients ignore. Used for keep-alive pings.
func (s *SSEWriter) Comment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return errors.Wrap(err, "write sse comment")
	}
	s.flush()
	return nil
}

func (s *SSEWriter) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// SSEReader decodes a server-sent event stream written by SSEWriter.
type SSEReader struct {
	scanner *bufio.Scanner
}

func NewSSEReader(r io.Reader) *SSEReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &SSEReader{scanner: sc}
}

// Next skips comments and fields other than data, and decodes the data lines of
// the next event.
func (r *SSEReader) Next() (events.Event, error) {
	var data bytes.Buffer
	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			return decode(data.Bytes())
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := r.scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read sse stream")
	}
	if data.Len() > 0 {
		return decode(data.Bytes())
	}
	return nil, io.EOF
}

var _ Writer = (*SSEWriter)(nil)
var _ Reader = (*SSEReader)(nil)
