package stream

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"sync"

	"github.com/go-go-golems/steward/pkg/events"
	"github.com/pkg/errors"
)

// maxLine bounds a single framed event; tool results and plans can be large.
const maxLine = 4 * 1024 * 1024

// NDJSONWriter writes one event JSON object per line.
type NDJSONWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	f, _ := w.(http.Flusher)
	return &NDJSONWriter{w: w, flusher: f}
}

// NewNDJSONResponse sets the content type and streams to w.
func NewNDJSONResponse(w http.ResponseWriter) *NDJSONWriter {
	w.Header().Set("Content-Type", ContentTypeNDJSON)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	n := NewNDJSONWriter(w)
	if n.flusher != nil {
		n.flusher.Flush()
	}
	return n
}

func (n *NDJSONWriter) WriteEvent(e events.Event) error {
	data, err := Marshal(e)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.w.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "write ndjson event")
	}
	if n.flusher != nil {
		n.flusher.Flush()
	}
	return nil
}

type NDJSONReader struct {
	scanner *bufio.Scanner
}

func NewNDJSONReader(r io.Reader) *NDJSONReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &NDJSONReader{scanner: sc}
}

// Next decodes the next non-blank line.
func (r *NDJSONReader) Next() (events.Event, error) {
	for r.scanner.Scan() {
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return decode(line)
	}
	if err := r.scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read ndjson stream")
	}
	return nil, io.EOF
}

func decode(b []byte) (events.Event, error) {
	// the scanner reuses its buffer and decoded events keep their payload
	return events.NewEventFromJson(append([]byte(nil), b...))
}

var _ Writer = (*NDJSONWriter)(nil)
var _ Reader = (*NDJSONReader)(nil)
