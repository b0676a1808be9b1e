package plan

import (
	"sort"
	"strings"

	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/pkg/errors"
)

// ErrInvalidPlan is wrapped by every validation failure.
var ErrInvalidPlan = errors.New("invalid plan")

// ActionLookup resolves action names; *tools.Registry implements it.
type ActionLookup interface {
	Lookup(name string) (*tools.RegisteredTool, bool)
}

// Validate checks a caller-supplied plan: at least one step, unique non-empty ids,
// known dependencies, no cycles, and enabled actions only.
func Validate(p ExecutionPlan, actions ActionLookup) error {
	if len(p.Steps) == 0 {
		return errors.Wrap(ErrInvalidPlan, "plan has no steps")
	}
	seen := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if strings.TrimSpace(s.ID) == "" {
			return errors.Wrap(ErrInvalidPlan, "step with empty id")
		}
		if seen[s.ID] {
			return errors.Wrapf(ErrInvalidPlan, "duplicate step id %q", s.ID)
		}
		seen[s.ID] = true
		if err := checkAction(s.Action, actions); err != nil {
			return errors.Wrapf(err, "step %s", s.ID)
		}
		if err := checkParams(s.ToolCall(), actions); err != nil {
			return errors.Wrapf(err, "step %s", s.ID)
		}
	}
	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return errors.Wrapf(ErrInvalidPlan, "step %s depends on unknown step %q", s.ID, dep)
			}
			if dep == s.ID {
				return errors.Wrapf(ErrInvalidPlan, "step %s depends on itself", s.ID)
			}
		}
	}
	if _, err := Layers(p); err != nil {
		return err
	}
	return nil
}

// ValidateAction checks a PendingTaskAction against the registry: the action must be an
// enabled mutating tool that declares the same pending operation.
func ValidateAction(a PendingTaskAction, actions ActionLookup) error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.Wrap(ErrInvalidPlan, "action with empty id")
	}
	if err := checkAction(a.Action, actions); err != nil {
		return err
	}
	t, _ := actions.Lookup(a.Action)
	if t.Metadata.Readonly {
		return errors.Wrapf(ErrInvalidPlan, "action %s is readonly and needs no confirmation", a.Action)
	}
	if op := t.Metadata.PendingOperation; op != tools.PendingOperationNone && string(op) != string(a.Operation) {
		return errors.Wrapf(ErrInvalidPlan, "action %s is a %s operation, not %s", a.Action, op, a.Operation)
	}
	return checkParams(a.ToolCall(), actions)
}

// checkParams validates the call arguments against the tool's parameter schema.
func checkParams(call tools.ToolCall, actions ActionLookup) error {
	t, ok := actions.Lookup(call.Name)
	if !ok {
		return errors.Wrapf(ErrInvalidPlan, "unknown action %q", call.Name)
	}
	if err := t.Definition.ValidateArguments(call.Arguments); err != nil {
		return errors.Wrap(ErrInvalidPlan, err.Error())
	}
	return nil
}

func checkAction(name string, actions ActionLookup) error {
	t, ok := actions.Lookup(name)
	if !ok {
		return errors.Wrapf(ErrInvalidPlan, "unknown action %q", name)
	}
	if !t.Metadata.Enabled {
		return errors.Wrapf(ErrInvalidPlan, "action %q is disabled", name)
	}
	return nil
}

// Layers groups step ids so that every step's dependencies are in earlier layers.
// It fails on cycles and unknown dependencies.
func Layers(p ExecutionPlan) ([][]string, error) {
	indegree := make(map[string]int, len(p.Steps))
	dependents := make(map[string][]string, len(p.Steps))
	order := make(map[string]int, len(p.Steps))
	for i, s := range p.Steps {
		indegree[s.ID] += 0
		order[s.ID] = i
	}
	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if _, ok := indegree[dep]; !ok {
				return nil, errors.Wrapf(ErrInvalidPlan, "step %s depends on unknown step %q", s.ID, dep)
			}
			indegree[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	var layers [][]string
	var current []string
	for id, d := range indegree {
		if d == 0 {
			current = append(current, id)
		}
	}
	placed := 0
	for len(current) > 0 {
		sort.Slice(current, func(i, j int) bool { return order[current[i]] < order[current[j]] })
		layers = append(layers, current)
		placed += len(current)
		var next []string
		for _, id := range current {
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}
	if placed != len(indegree) {
		return nil, errors.Wrap(ErrInvalidPlan, "dependency cycle between steps")
	}
	return layers, nil
}
