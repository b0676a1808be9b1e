package events

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// EventCodec decodes a JSON payload into a concrete Event instance.
type EventCodec func([]byte) (Event, error)

var (
	codecMu  sync.RWMutex
	decoders = map[string]EventCodec{}
)

// RegisterEventCodec registers a decoder for a custom event type name, consulted by
// NewEventFromJson before the built-in types.
func RegisterEventCodec(typeName string, dec EventCodec) error {
	codecMu.Lock()
	defer codecMu.Unlock()
	if _, exists := decoders[typeName]; exists {
		return errors.Errorf("decoder already registered for type %q", typeName)
	}
	decoders[typeName] = dec
	return nil
}

// RegisterEventFactory registers a decoder based on json.Unmarshal into factory().
func RegisterEventFactory(typeName string, factory func() Event) error {
	return RegisterEventCodec(typeName, func(b []byte) (Event, error) {
		ev := factory()
		if err := json.Unmarshal(b, ev); err != nil {
			return nil, err
		}
		return ev, nil
	})
}

func lookupDecoder(typeName string) EventCodec {
	codecMu.RLock()
	defer codecMu.RUnlock()
	return decoders[typeName]
}
