// Package conversation holds the cross-turn context a client keeps between requests.
// The server never stores it: every turn receives a State from the caller and returns
// the updated State for the caller to persist.
package conversation

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// SchemaVersion is the State layout understood by this build.
const SchemaVersion = 1

// DefaultTTL is how long a State stays valid after its last mutation.
const DefaultTTL = 30 * time.Minute

// EntityRef points at a user record the conversation is focused on
// ("move it to 3pm" after talking about a schedule block).
type EntityRef struct {
	Type  string `json:"type" yaml:"type"`
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	Date  string `json:"date,omitempty" yaml:"date,omitempty"`
}

// Same reports whether both refs point at the same record.
func (r EntityRef) Same(o EntityRef) bool {
	return r.Type == o.Type && r.ID == o.ID
}

// Deletion is attached to a tool result when the tool removed a record.
type Deletion struct {
	Entity EntityRef `json:"entity" yaml:"entity"`
}

// State is the caller-held conversation state. Revision counts applied mutations.
type State struct {
	Version     int        `json:"version" yaml:"version"`
	Revision    int64      `json:"revision" yaml:"revision"`
	FocusEntity *EntityRef `json:"focus_entity,omitempty" yaml:"focus_entity,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at" yaml:"expires_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
}

// NewState returns an empty state valid for ttl from now.
func NewState(now time.Time, ttl time.Duration) *State {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &State{
		Version:   SchemaVersion,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the state must be treated as absent. A zero ExpiresAt is expired.
func (s *State) Expired(now time.Time) bool {
	return s == nil || s.ExpiresAt.IsZero() || !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	cp := *s
	if s.FocusEntity != nil {
		fe := *s.FocusEntity
		cp.FocusEntity = &fe
	}
	return &cp
}

// Apply applies a single mutation and increments the revision.
func (s *State) Apply(m Mutation) error {
	if s == nil {
		return errors.New("conversation state is nil")
	}
	if m == nil {
		return errors.New("mutation is nil")
	}
	if err := m.Apply(s); err != nil {
		return errors.Wrapf(err, "mutation %s failed", m.Name())
	}
	s.Revision++
	return nil
}

// ApplyAll applies multiple mutations sequentially.
func (s *State) ApplyAll(muts ...Mutation) error {
	for _, m := range muts {
		if err := s.Apply(m); err != nil {
			return err
		}
	}
	return nil
}

// Rehydrate validates a caller-supplied state against the server clock. Missing,
// expired or unknown-version states are replaced by a fresh one; the boolean reports
// whether the input was kept. The input is never modified.
func Rehydrate(in *State, now time.Time, ttl time.Duration) (*State, bool) {
	if in == nil || in.Version != SchemaVersion || in.Expired(now) {
		return NewState(now, ttl), false
	}
	// a timestamp from the future is as untrustworthy as a stale one
	if in.UpdatedAt.After(now.Add(time.Minute)) {
		return NewState(now, ttl), false
	}
	return in.Clone(), true
}

// Decode parses a JSON state. Empty input and "null" decode to nil.
func Decode(raw []byte) (*State, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrap(err, "decode conversation state")
	}
	return &s, nil
}
