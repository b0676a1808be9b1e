package tools

import (
	"strings"

	"github.com/pkg/errors"
)

// Category groups tools for ordering and filtering.
type Category string

const (
	CategorySystem      Category = "system"
	CategoryCalculation Category = "calculation"
	CategorySchedule    Category = "schedule"
	CategoryTasks       Category = "tasks"
	CategoryExpenses    Category = "expenses"
	CategoryNotes       Category = "notes"
	CategoryVision      Category = "vision"
	CategoryQuest       Category = "quest"
	CategoryMemory      Category = "memory"
)

// categoryPriority is the fixed ordering used by Registry.Query.
var categoryPriority = map[Category]int{
	CategorySystem:      0,
	CategoryCalculation: 1,
	CategorySchedule:    2,
	CategoryTasks:       3,
	CategoryExpenses:    4,
	CategoryNotes:       5,
	CategoryVision:      6,
	CategoryQuest:       7,
	CategoryMemory:      8,
}

// CategoryPriority returns the sort rank of a category. Unknown categories sort last.
func CategoryPriority(c Category) int {
	if p, ok := categoryPriority[c]; ok {
		return p
	}
	return len(categoryPriority)
}

type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
)

type OnMissing string

const (
	OnMissingAskUser    OnMissing = "ask_user"
	OnMissingUseDefault OnMissing = "use_default"
	OnMissingSkip       OnMissing = "skip"
)

// PendingOperation marks tools whose single call can be confirmed as a pending action.
type PendingOperation string

const (
	PendingOperationNone   PendingOperation = ""
	PendingOperationCreate PendingOperation = "create"
	PendingOperationUpdate PendingOperation = "update"
)

// ParameterMetadata documents how the orchestrator should treat a parameter.
// It is documentation only: nothing here is enforced when the tool is called.
type ParameterMetadata struct {
	Name                string     `json:"name" yaml:"name"`
	Importance          Importance `json:"importance" yaml:"importance"`
	Required            bool       `json:"required" yaml:"required"`
	HasDefault          bool       `json:"has_default" yaml:"has_default"`
	DefaultDescription  string     `json:"default_description,omitempty" yaml:"default_description,omitempty"`
	OnMissing           OnMissing  `json:"on_missing" yaml:"on_missing"`
	ClarificationPrompt string     `json:"clarification_prompt,omitempty" yaml:"clarification_prompt,omitempty"`
	Explanation         string     `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

type ToolMetadata struct {
	Category         Category            `json:"category" yaml:"category"`
	DisplayName      string              `json:"display_name" yaml:"display_name"`
	Description      string              `json:"description" yaml:"description"`
	Readonly         bool                `json:"readonly" yaml:"readonly"`
	Enabled          bool                `json:"enabled" yaml:"enabled"`
	Parameters       []ParameterMetadata `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	PendingOperation PendingOperation    `json:"pending_operation,omitempty" yaml:"pending_operation,omitempty"`
	Tags             []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Parameter returns the metadata of the named parameter, if documented.
func (m ToolMetadata) Parameter(name string) (ParameterMetadata, bool) {
	for _, p := range m.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterMetadata{}, false
}

// validate checks the registration invariants: a non-empty name and a category.
func validate(name string, md ToolMetadata) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("tool name cannot be empty")
	}
	if strings.TrimSpace(string(md.Category)) == "" {
		return errors.Errorf("tool %s has no category", name)
	}
	return nil
}
