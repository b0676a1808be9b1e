package conversation

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Mutation represents a deterministic change to the conversation state.
type Mutation interface {
	Apply(s *State) error
	Name() string
}

type setFocusMutation struct {
	ref EntityRef
}

func (m setFocusMutation) Apply(s *State) error {
	if strings.TrimSpace(m.ref.Type) == "" || strings.TrimSpace(m.ref.ID) == "" {
		return errors.New("focus entity needs a type and an id")
	}
	ref := m.ref
	s.FocusEntity = &ref
	return nil
}

func (m setFocusMutation) Name() string { return "set_focus" }

// MutateSetFocus focuses the conversation on a record.
func MutateSetFocus(ref EntityRef) Mutation {
	return setFocusMutation{ref: ref}
}

type clearFocusMutation struct{}

func (clearFocusMutation) Apply(s *State) error {
	s.FocusEntity = nil
	return nil
}

func (clearFocusMutation) Name() string { return "clear_focus" }

// MutateClearFocus drops the focus, e.g. after the focused record was deleted.
func MutateClearFocus() Mutation {
	return clearFocusMutation{}
}

type touchMutation struct {
	now time.Time
	ttl time.Duration
}

func (m touchMutation) Apply(s *State) error {
	ttl := m.ttl
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.Version = SchemaVersion
	s.UpdatedAt = m.now
	s.ExpiresAt = m.now.Add(ttl)
	return nil
}

func (touchMutation) Name() string { return "touch" }

// MutateTouch stamps the state as updated at now and extends its expiry by ttl.
func MutateTouch(now time.Time, ttl time.Duration) Mutation {
	return touchMutation{now: now, ttl: ttl}
}
