package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/resolve"
	"github.com/go-go-golems/steward/pkg/store"
)

type queryScheduleInput struct {
	Date    string `json:"date,omitempty" jsonschema:"description=Day to list (today / tomorrow / in 3 days / YYYY-MM-DD); defaults to today"`
	EndDate string `json:"end_date,omitempty" jsonschema:"description=Last day of a range starting at date"`
}

type createScheduleBlockInput struct {
	Date        string `json:"date" jsonschema:"required"`
	StartTime   string `json:"start_time" jsonschema:"required,description=HH:MM (24h)"`
	EndTime     string `json:"end_time" jsonschema:"required,description=HH:MM (24h) after start_time"`
	Title       string `json:"title" jsonschema:"required"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

type updateScheduleBlockInput struct {
	ID           string `json:"id,omitempty" jsonschema:"description=Block id; mutually exclusive with search_title"`
	Date         string `json:"date,omitempty" jsonschema:"description=Day of the block to find; defaults to today"`
	SearchTitle  string `json:"search_title,omitempty" jsonschema:"description=Part of the title of the block to change"`
	NewDate      string `json:"new_date,omitempty"`
	NewStartTime string `json:"new_start_time,omitempty"`
	NewEndTime   string `json:"new_end_time,omitempty"`
	NewTitle     string `json:"new_title,omitempty"`
	Description  string `json:"description,omitempty"`
	Category     string `json:"category,omitempty"`
}

type deleteScheduleBlockInput struct {
	ID          string `json:"id,omitempty" jsonschema:"description=Block id; mutually exclusive with search_title"`
	Date        string `json:"date,omitempty" jsonschema:"description=Day of the block to find; defaults to today"`
	SearchTitle string `json:"search_title,omitempty"`
}

type scheduleTools struct {
	deps Deps
	st   store.ScheduleStore
}

func blockLine(b store.ScheduleBlock) string {
	return fmt.Sprintf("%s %s-%s %s (id: %s)", b.Date, b.StartTime, b.EndTime, b.Title, b.ID)
}

func blockInterval(b store.ScheduleBlock) (resolve.Interval, bool) {
	iv, err := resolve.ParseInterval(b.StartTime, b.EndTime)
	return iv, err == nil
}

func blockRef(b store.ScheduleBlock) any {
	return focus(EntityScheduleBlock, b.ID, b.Title, b.Date)
}

// parseDay resolves a date expression, defaulting to today.
func (s scheduleTools) parseDay(expr string) (string, error) {
	if strings.TrimSpace(expr) == "" {
		expr = "today"
	}
	d, err := resolve.ParseDate(expr, s.deps.now())
	if err != nil {
		return "", err
	}
	return resolve.FormatDate(d), nil
}

// conflictWarning lists the blocks on date overlapping iv, skipping excludeID.
func (s scheduleTools) conflictWarning(ctx context.Context, date string, iv resolve.Interval, excludeID string) (string, error) {
	existing, err := s.st.Query(ctx, store.ScheduleQuery{From: date, To: date})
	if err != nil {
		return "", err
	}
	conflicts := resolve.FindConflicts(iv, existing, blockInterval, func(b store.ScheduleBlock) bool {
		return excludeID != "" && b.ID == excludeID
	})
	if len(conflicts) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		parts = append(parts, fmt.Sprintf("%q (%s-%s)", c.Title, c.StartTime, c.EndTime))
	}
	return fmt.Sprintf("Warning: overlaps with %s on %s.", strings.Join(parts, ", "), date), nil
}

// resolveTarget finds the single block identified by id or by date and title fragment.
// When ok is false, res explains why and must be returned to the caller.
func (s scheduleTools) resolveTarget(ctx context.Context, id, date, search string) (b store.ScheduleBlock, res tools.Result, ok bool) {
	if res, ok := exclusiveTarget(id, search, "search_title"); !ok {
		return b, res, false
	}
	if id = strings.TrimSpace(id); id != "" {
		b, err := s.st.Get(ctx, id)
		if err != nil {
			return b, lookupError("schedule block", id, err), false
		}
		return b, tools.Result{}, true
	}

	day, err := s.parseDay(date)
	if err != nil {
		return b, tools.Errorf("%v", err), false
	}
	blocks, err := s.st.Query(ctx, store.ScheduleQuery{From: day, To: day})
	if err != nil {
		return b, tools.Errorf("could not load schedule for %s: %v", day, err), false
	}
	r := resolve.MatchTitles(blocks, search, func(b store.ScheduleBlock) string { return b.Title })
	switch r.Outcome {
	case resolve.OutcomeNone:
		return b, tools.Errorf("no schedule block matching %q on %s (%s checked)", search, day, plural(len(blocks), "block")), false
	case resolve.OutcomeAmbiguous:
		text := candidateList(fmt.Sprintf("Found %d schedule blocks matching %q on %s:", len(r.Matches), search, day), r.Matches, blockLine)
		return b, tools.Ambiguous(text, r.Matches), false
	}
	b, _ = r.Unique()
	return b, tools.Result{}, true
}

func (s scheduleTools) query(ctx context.Context, in queryScheduleInput) tools.Result {
	from, err := s.parseDay(in.Date)
	if err != nil {
		return tools.Errorf("%v", err)
	}
	to := from
	if strings.TrimSpace(in.EndDate) != "" {
		if to, err = s.parseDay(in.EndDate); err != nil {
			return tools.Errorf("%v", err)
		}
		if to < from {
			return tools.Errorf("end_date %s is before date %s", to, from)
		}
	}
	blocks, err := s.st.Query(ctx, store.ScheduleQuery{From: from, To: to})
	if err != nil {
		return tools.Errorf("could not load schedule: %v", err)
	}
	span := from
	if to != from {
		span = from + " to " + to
	}
	if len(blocks) == 0 {
		return tools.OKf("No schedule blocks for %s.", span).WithData(blocks)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s for %s:", plural(len(blocks), "schedule block"), span)
	for _, blk := range blocks {
		b.WriteString("\n- ")
		b.WriteString(blockLine(blk))
	}
	return tools.OK(b.String()).WithData(blocks)
}

func (s scheduleTools) create(ctx context.Context, in createScheduleBlockInput) tools.Result {
	if strings.TrimSpace(in.Title) == "" {
		return tools.Errorf("title is required")
	}
	if strings.TrimSpace(in.Date) == "" {
		return tools.Errorf("date is required")
	}
	day, err := s.parseDay(in.Date)
	if err != nil {
		return tools.Errorf("%v", err)
	}
	iv, err := resolve.ParseInterval(in.StartTime, in.EndTime)
	if err != nil {
		return tools.Errorf("%v", err)
	}

	warning, err := s.conflictWarning(ctx, day, iv, "")
	if err != nil {
		return tools.Errorf("could not check conflicts: %v", err)
	}

	b, err := s.st.Create(ctx, store.ScheduleBlock{
		Date:        day,
		StartTime:   iv.Start.String(),
		EndTime:     iv.End.String(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Category:    in.Category,
	})
	if err != nil {
		return tools.Errorf("could not create schedule block: %v", err)
	}

	msg := fmt.Sprintf("Created schedule block %q on %s %s (id: %s).", b.Title, b.Date, iv, b.ID)
	if warning != "" {
		return tools.Warning(msg + "\n" + warning).WithData(blockRef(b))
	}
	return tools.OK(msg).WithData(blockRef(b))
}

func (s scheduleTools) update(ctx context.Context, in updateScheduleBlockInput) tools.Result {
	target, res, ok := s.resolveTarget(ctx, in.ID, in.Date, in.SearchTitle)
	if !ok {
		return res
	}

	patch := store.ScheduleBlockPatch{
		StartTime:   nonEmpty(in.NewStartTime),
		EndTime:     nonEmpty(in.NewEndTime),
		Title:       nonEmpty(in.NewTitle),
		Description: nonEmpty(in.Description),
		Category:    nonEmpty(in.Category),
	}
	if strings.TrimSpace(in.NewDate) != "" {
		day, err := s.parseDay(in.NewDate)
		if err != nil {
			return tools.Errorf("%v", err)
		}
		patch.Date = &day
	}
	if patch == (store.ScheduleBlockPatch{}) {
		return tools.Errorf("nothing to change for %q: provide new_date, new_start_time, new_end_time, new_title, description or category", target.Title)
	}

	updated := patch.Apply(target)
	var warning string
	if patch.Date != nil || patch.StartTime != nil || patch.EndTime != nil {
		iv, err := resolve.ParseInterval(updated.StartTime, updated.EndTime)
		if err != nil {
			return tools.Errorf("%v", err)
		}
		// store canonical HH:MM
		patch.StartTime, patch.EndTime = ptr(iv.Start.String()), ptr(iv.End.String())
		updated = patch.Apply(target)
		if warning, err = s.conflictWarning(ctx, updated.Date, iv, target.ID); err != nil {
			return tools.Errorf("could not check conflicts: %v", err)
		}
	}

	if err := s.st.Update(ctx, target.ID, patch); err != nil {
		return lookupError("schedule block", target.ID, err)
	}

	msg := fmt.Sprintf("Updated schedule block %q: now %s.", target.Title, blockLine(updated))
	if warning != "" {
		return tools.Warning(msg + "\n" + warning).WithData(blockRef(updated))
	}
	return tools.OK(msg).WithData(blockRef(updated))
}

func (s scheduleTools) delete(ctx context.Context, in deleteScheduleBlockInput) tools.Result {
	target, res, ok := s.resolveTarget(ctx, in.ID, in.Date, in.SearchTitle)
	if !ok {
		return res
	}
	if err := s.st.Delete(ctx, target.ID); err != nil {
		return lookupError("schedule block", target.ID, err)
	}
	return tools.OKf("Deleted schedule block %s.", blockLine(target)).
		WithData(deleted(EntityScheduleBlock, target.ID, target.Title, target.Date))
}

var targetParameters = []tools.ParameterMetadata{
	{
		Name:        "id",
		Importance:  tools.ImportanceHigh,
		OnMissing:   tools.OnMissingSkip,
		Explanation: "Exact record id from a previous listing. Do not combine with search_title.",
	},
	{
		Name:                "search_title",
		Importance:          tools.ImportanceHigh,
		OnMissing:           tools.OnMissingAskUser,
		ClarificationPrompt: "Which one do you mean?",
		Explanation:         "Case-insensitive title fragment; several matches return a list of candidates instead of acting.",
	},
	{
		Name:               "date",
		Importance:         tools.ImportanceMedium,
		HasDefault:         true,
		DefaultDescription: "today",
		OnMissing:          tools.OnMissingUseDefault,
	},
}

func scheduleSpecs(deps Deps) []tools.ToolSpec {
	s := scheduleTools{deps: deps, st: deps.Store.Schedule()}

	createParams := []tools.ParameterMetadata{
		{Name: "date", Importance: tools.ImportanceCritical, Required: true, OnMissing: tools.OnMissingAskUser, ClarificationPrompt: "Which day should I put it on?"},
		{Name: "start_time", Importance: tools.ImportanceCritical, Required: true, OnMissing: tools.OnMissingAskUser, ClarificationPrompt: "When does it start?"},
		{Name: "end_time", Importance: tools.ImportanceHigh, Required: true, OnMissing: tools.OnMissingAskUser, ClarificationPrompt: "When does it end?"},
		{Name: "title", Importance: tools.ImportanceCritical, Required: true, OnMissing: tools.OnMissingAskUser},
		{Name: "description", Importance: tools.ImportanceLow, OnMissing: tools.OnMissingSkip},
		{Name: "category", Importance: tools.ImportanceLow, OnMissing: tools.OnMissingSkip},
	}
	updateParams := append(append([]tools.ParameterMetadata(nil), targetParameters...),
		tools.ParameterMetadata{Name: "new_date", Importance: tools.ImportanceMedium, OnMissing: tools.OnMissingSkip},
		tools.ParameterMetadata{Name: "new_start_time", Importance: tools.ImportanceMedium, OnMissing: tools.OnMissingSkip},
		tools.ParameterMetadata{Name: "new_end_time", Importance: tools.ImportanceMedium, OnMissing: tools.OnMissingSkip},
		tools.ParameterMetadata{Name: "new_title", Importance: tools.ImportanceLow, OnMissing: tools.OnMissingSkip},
	)

	return []tools.ToolSpec{
		{
			Definition: tools.MustNewTool("query_schedule",
				"List schedule blocks for a day or a date range.", s.query),
			Metadata: tools.ToolMetadata{
				Category: tools.CategorySchedule,
				Readonly: true,
				Enabled:  true,
				Parameters: []tools.ParameterMetadata{
					{Name: "date", Importance: tools.ImportanceHigh, HasDefault: true, DefaultDescription: "today", OnMissing: tools.OnMissingUseDefault},
					{Name: "end_date", Importance: tools.ImportanceLow, OnMissing: tools.OnMissingSkip},
				},
			},
		},
		{
			Definition: tools.MustNewTool("create_schedule_block",
				"Add a time block to the schedule. Overlapping blocks are reported as a warning but still created.", s.create),
			Metadata: tools.ToolMetadata{
				Category:         tools.CategorySchedule,
				Enabled:          true,
				Parameters:       createParams,
				PendingOperation: tools.PendingOperationCreate,
			},
		},
		{
			Definition: tools.MustNewTool("update_schedule_block",
				"Change a schedule block found by id or by date and title fragment.", s.update),
			Metadata: tools.ToolMetadata{
				Category:         tools.CategorySchedule,
				Enabled:          true,
				Parameters:       updateParams,
				PendingOperation: tools.PendingOperationUpdate,
			},
		},
		{
			Definition: tools.MustNewTool("delete_schedule_block",
				"Remove a schedule block found by id or by date and title fragment.", s.delete),
			Metadata: tools.ToolMetadata{
				Category:   tools.CategorySchedule,
				Enabled:    true,
				Parameters: targetParameters,
			},
		},
	}
}
