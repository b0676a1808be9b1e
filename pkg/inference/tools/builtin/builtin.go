// Package builtin provides the tools the orchestrator registers at startup: time and
// documentation lookups, arithmetic, and smart-resolution operations over the user's
// schedule, tasks, expenses and notes.
//
// Mutating tools over user records accept either a record id or a natural-language
// description (a relative date and a title fragment), never both. Descriptions are
// resolved to a single record or returned as a list of candidates; tools never pick
// between several matches on their own.
package builtin

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/steward/pkg/conversation"
	"github.com/go-go-golems/steward/pkg/inference/engine"
	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/store"
	"github.com/pkg/errors"
)

// Entity types used in conversation focus references.
const (
	EntityScheduleBlock = "schedule_block"
	EntityTask          = "task"
	EntityExpense       = "expense"
	EntityNote          = "note"
)

// Deps are the collaborators of the built-in tools.
type Deps struct {
	Store    store.Store
	Registry *tools.Registry
	// Analyzer enables analyze_image when set.
	Analyzer engine.ImageAnalyzer
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Specs returns every tool that can be built from deps.
func Specs(deps Deps) []tools.ToolSpec {
	var specs []tools.ToolSpec
	specs = append(specs, systemSpecs(deps)...)
	specs = append(specs, calculationSpecs()...)
	if deps.Store != nil {
		specs = append(specs, scheduleSpecs(deps)...)
		specs = append(specs, taskSpecs(deps)...)
		specs = append(specs, expenseSpecs(deps)...)
		specs = append(specs, noteSpecs(deps)...)
	}
	if deps.Analyzer != nil {
		specs = append(specs, visionSpecs(deps)...)
	}
	return specs
}

// Register adds every available built-in tool to the registry and returns how many
// were registered.
func Register(r *tools.Registry, deps Deps, opts tools.RegisterOptions) (int, error) {
	if r == nil {
		return 0, errors.New("builtin: registry is nil")
	}
	if deps.Registry == nil {
		deps.Registry = r
	}
	specs := Specs(deps)
	n := r.RegisterBatch(specs, opts)
	if n != len(specs) && !opts.Overwrite {
		return n, errors.Errorf("builtin: registered %d of %d tools, some names were already taken", n, len(specs))
	}
	return n, nil
}

// exclusiveTarget checks the id-or-description rule shared by update and delete
// tools. field names the search parameter in the error.
func exclusiveTarget(id, search, field string) (tools.Result, bool) {
	id, search = strings.TrimSpace(id), strings.TrimSpace(search)
	switch {
	case id != "" && search != "":
		return tools.Errorf("provide either id or %s, not both", field), false
	case id == "" && search == "":
		return tools.Errorf("provide the record id or a %s to identify it", field), false
	}
	return tools.Result{}, true
}

// lookupError renders a store error for the LLM.
func lookupError(kind, id string, err error) tools.Result {
	if store.IsNotFound(err) {
		return tools.Errorf("no %s with id %s", kind, id)
	}
	return tools.Errorf("could not load %s %s: %v", kind, id, err)
}

func ptr[T any](v T) *T {
	return &v
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// candidateList renders ambiguous matches, one per line, with their ids.
func candidateList[T any](header string, matches []T, line func(T) string) string {
	var b strings.Builder
	b.WriteString(header)
	for _, m := range matches {
		b.WriteString("\n- ")
		b.WriteString(line(m))
	}
	b.WriteString("\nAsk the user which one they mean, then call again with its id.")
	return b.String()
}

func focus(kind, id, title, date string) conversation.EntityRef {
	return conversation.EntityRef{Type: kind, ID: id, Title: title, Date: date}
}

func deleted(kind, id, title, date string) conversation.Deletion {
	return conversation.Deletion{Entity: focus(kind, id, title, date)}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
