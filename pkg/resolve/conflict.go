package resolve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Clock is a time of day in minutes since midnight.
type Clock int

// ParseClock accepts HH:MM (24h) and also HH.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty time")
	}
	hh, mm := s, "0"
	if i := strings.IndexByte(s, ':'); i >= 0 {
		hh, mm = s[:i], s[i+1:]
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, errors.Errorf("invalid time %q, expected HH:MM", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, errors.Errorf("invalid time %q, expected HH:MM", s)
	}
	// 24:00 is allowed as an end of day marker
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, errors.Errorf("time %q is out of range", s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Interval is a half-open time range [Start, End) within one day.
type Interval struct {
	Start Clock
	End   Clock
}

// ParseInterval parses start and end clocks and requires End > Start.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, errors.Wrap(err, "start time")
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, errors.Wrap(err, "end time")
	}
	iv := Interval{Start: s, End: e}
	if !iv.Valid() {
		return Interval{}, errors.Errorf("end time %s must be after start time %s", e, s)
	}
	return iv, nil
}

func (iv Interval) Valid() bool {
	return iv.End > iv.Start
}

// Overlaps is symmetric: a.Overlaps(b) == b.Overlaps(a). Touching intervals
// (one ends when the other starts) do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start < other.End && other.Start < iv.End
}

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End.String()
}

// FindConflicts returns the records whose interval overlaps candidate. Records for
// which skip returns true (the record being updated) are ignored; skip may be nil.
func FindConflicts[T any](candidate Interval, records []T, interval func(T) (Interval, bool), skip func(T) bool) []T {
	var out []T
	for _, r := range records {
		if skip != nil && skip(r) {
			continue
		}
		iv, ok := interval(r)
		if !ok {
			continue
		}
		if candidate.Overlaps(iv) {
			out = append(out, r)
		}
	}
	return out
}
