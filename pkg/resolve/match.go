package resolve

import "strings"

// Outcome classifies a resolution result set.
type Outcome string

const (
	OutcomeNone      Outcome = "none"
	OutcomeUnique    Outcome = "unique"
	OutcomeAmbiguous Outcome = "ambiguous"
)

// TitleMatches reports whether a record title and a search term match case-insensitively
// in either direction: the title contains the term, or the term contains the title.
func TitleMatches(title, search string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	s := strings.ToLower(strings.TrimSpace(search))
	if s == "" {
		return true
	}
	if t == "" {
		return false
	}
	return strings.Contains(t, s) || strings.Contains(s, t)
}

// Resolution is the filtered candidate set for a search and its classification.
type Resolution[T any] struct {
	Outcome Outcome
	Matches []T
}

// Unique returns the single match when the outcome is OutcomeUnique.
func (r Resolution[T]) Unique() (T, bool) {
	var zero T
	if r.Outcome != OutcomeUnique {
		return zero, false
	}
	return r.Matches[0], true
}

// MatchTitles filters records whose title matches search and classifies the result.
// It never chooses between several matches; that decision is left to the caller.
func MatchTitles[T any](records []T, search string, title func(T) string) Resolution[T] {
	var matches []T
	for _, r := range records {
		if TitleMatches(title(r), search) {
			matches = append(matches, r)
		}
	}
	return Classify(matches)
}

// Classify wraps an already filtered set.
func Classify[T any](matches []T) Resolution[T] {
	switch len(matches) {
	case 0:
		return Resolution[T]{Outcome: OutcomeNone}
	case 1:
		return Resolution[T]{Outcome: OutcomeUnique, Matches: matches}
	default:
		return Resolution[T]{Outcome: OutcomeAmbiguous, Matches: matches}
	}
}
