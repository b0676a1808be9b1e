package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/resolve"
	"github.com/go-go-golems/steward/pkg/store"
)

type queryTasksInput struct {
	Status  string `json:"status,omitempty" jsonschema:"enum=pending,enum=completed,enum=all"`
	DueFrom string `json:"due_from,omitempty"`
	DueTo   string `json:"due_to,omitempty"`
}

type createTaskInput struct {
	Title       string `json:"title" jsonschema:"required"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty" jsonschema:"description=Date expression such as tomorrow or 2025-02-01"`
	Priority    string `json:"priority,omitempty" jsonschema:"enum=low,enum=medium,enum=high"`
}

type taskTargetInput struct {
	ID          string `json:"id,omitempty" jsonschema:"description=Task id; mutually exclusive with search_title"`
	SearchTitle string `json:"search_title,omitempty"`
	DueDate     string `json:"due_date,omitempty" jsonschema:"description=Narrows the search to tasks due that day"`
}

type updateTaskInput struct {
	taskTargetInput
	NewTitle    string `json:"new_title,omitempty"`
	NewDueDate  string `json:"new_due_date,omitempty"`
	Priority    string `json:"priority,omitempty" jsonschema:"enum=low,enum=medium,enum=high"`
	Description string `json:"description,omitempty"`
}

type taskTools struct {
	deps Deps
	st   store.TaskStore
}

func taskLine(t store.Task) string {
	var b strings.Builder
	b.WriteString(t.Title)
	if t.DueDate != "" {
		b.WriteString(" due ")
		b.WriteString(t.DueDate)
	}
	if t.Priority != "" {
		fmt.Fprintf(&b, " [%s]", t.Priority)
	}
	fmt.Fprintf(&b, " %s (id: %s)", t.Status, t.ID)
	return b.String()
}

func taskRef(t store.Task) any {
	return focus(EntityTask, t.ID, t.Title, t.DueDate)
}

func (s taskTools) parseDate(expr string) (string, error) {
	d, err := resolve.ParseDate(expr, s.deps.now())
	if err != nil {
		return "", err
	}
	return resolve.FormatDate(d), nil
}

func normalizePriority(p string) (string, bool) {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case "", "low", "medium", "high":
		return p, true
	}
	return "", false
}

// resolveTarget finds one task by id, or by title fragment among tasks with the given
// status (any status when empty), optionally due on a given day.
func (s taskTools) resolveTarget(ctx context.Context, in taskTargetInput, status store.TaskStatus) (store.Task, tools.Result, bool) {
	if res, ok := exclusiveTarget(in.ID, in.SearchTitle, "search_title"); !ok {
		return store.Task{}, res, false
	}
	if id := strings.TrimSpace(in.ID); id != "" {
		t, err := s.st.Get(ctx, id)
		if err != nil {
			return t, lookupError("task", id, err), false
		}
		return t, tools.Result{}, true
	}

	q := store.TaskQuery{Status: status}
	where := ""
	if strings.TrimSpace(in.DueDate) != "" {
		day, err := s.parseDate(in.DueDate)
		if err != nil {
			return store.Task{}, tools.Errorf("%v", err), false
		}
		q.DueFrom, q.DueTo = day, day
		where = " due " + day
	}
	if status != "" {
		where += " among " + string(status) + " tasks"
	}
	candidates, err := s.st.Query(ctx, q)
	if err != nil {
		return store.Task{}, tools.Errorf("could not load tasks: %v", err), false
	}
	r := resolve.MatchTitles(candidates, in.SearchTitle, func(t store.Task) string { return t.Title })
	switch r.Outcome {
	case resolve.OutcomeNone:
		return store.Task{}, tools.Errorf("no task matching %q%s", in.SearchTitle, where), false
	case resolve.OutcomeAmbiguous:
		text := candidateList(fmt.Sprintf("Found %d tasks matching %q%s:", len(r.Matches), in.SearchTitle, where), r.Matches, taskLine)
		return store.Task{}, tools.Ambiguous(text, r.Matches), false
	}
	t, _ := r.Unique()
	return t, tools.Result{}, true
}

func (s taskTools) query(ctx context.Context, in queryTasksInput) tools.Result {
	q := store.TaskQuery{}
	switch strings.ToLower(strings.TrimSpace(in.Status)) {
	case "", "pending":
		q.Status = store.TaskPending
	case "completed", "done":
		q.Status = store.TaskCompleted
	case "all":
	default:
		return tools.Errorf("unknown status %q, use pending, completed or all", in.Status)
	}
	var err error
	if strings.TrimSpace(in.DueFrom) != "" {
		if q.DueFrom, err = s.parseDate(in.DueFrom); err != nil {
			return tools.Errorf("%v", err)
		}
	}
	if strings.TrimSpace(in.DueTo) != "" {
		if q.DueTo, err = s.parseDate(in.DueTo); err != nil {
			return tools.Errorf("%v", err)
		}
	}
	tasks, err := s.st.Query(ctx, q)
	if err != nil {
		return tools.Errorf("could not load tasks: %v", err)
	}
	if len(tasks) == 0 {
		return tools.OK("No matching tasks.").WithData(tasks)
	}
	var b strings.Builder
	b.WriteString(plural(len(tasks), "task") + ":")
	for _, t := range tasks {
		b.WriteString("\n- ")
		b.WriteString(taskLine(t))
	}
	return tools.OK(b.String()).WithData(tasks)
}

func (s taskTools) create(ctx context.Context, in createTaskInput) tools.Result {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return tools.Errorf("title is required")
	}
	priority, ok := normalizePriority(in.Priority)
	if !ok {
		return tools.Errorf("unknown priority %q, use low, medium or high", in.Priority)
	}
	due := ""
	if strings.TrimSpace(in.DueDate) != "" {
		var err error
		if due, err = s.parseDate(in.DueDate); err != nil {
			return tools.Errorf("%v", err)
		}
	}
	t, err := s.st.Create(ctx, store.Task{
		Title:       title,
		Description: in.Description,
		DueDate:     due,
		Priority:    priority,
		Status:      store.TaskPending,
	})
	if err != nil {
		return tools.Errorf("could not create task: %v", err)
	}
	return tools.OKf("Created task %s.", taskLine(t)).WithData(taskRef(t))
}

func (s taskTools) update(ctx context.Context, in updateTaskInput) tools.Result {
	target, res, ok := s.resolveTarget(ctx, in.taskTargetInput, "")
	if !ok {
		return res
	}
	patch := store.TaskPatch{
		Title:       nonEmpty(in.NewTitle),
		Description: nonEmpty(in.Description),
	}
	if strings.TrimSpace(in.Priority) != "" {
		p, ok := normalizePriority(in.Priority)
		if !ok {
			return tools.Errorf("unknown priority %q, use low, medium or high", in.Priority)
		}
		patch.Priority = &p
	}
	if strings.TrimSpace(in.NewDueDate) != "" {
		due, err := s.parseDate(in.NewDueDate)
		if err != nil {
			return tools.Errorf("%v", err)
		}
		patch.DueDate = &due
	}
	if patch == (store.TaskPatch{}) {
		return tools.Errorf("nothing to change for task %q", target.Title)
	}
	if err := s.st.Update(ctx, target.ID, patch); err != nil {
		return lookupError("task", target.ID, err)
	}
	updated := patch.Apply(target)
	return tools.OKf("Updated task: %s.", taskLine(updated)).WithData(taskRef(updated))
}

func (s taskTools) complete(ctx context.Context, in taskTargetInput) tools.Result {
	target, res, ok := s.resolveTarget(ctx, in, store.TaskPending)
	if !ok {
		return res
	}
	if target.Status == store.TaskCompleted {
		return tools.Warning(fmt.Sprintf("Task %q was already completed.", target.Title)).WithData(taskRef(target))
	}
	now := s.deps.now()
	if err := s.st.Update(ctx, target.ID, store.TaskPatch{Status: ptr(store.TaskCompleted), CompletedAt: &now}); err != nil {
		return lookupError("task", target.ID, err)
	}
	return tools.OKf("Completed task %q.", target.Title).WithData(taskRef(target))
}

func (s taskTools) delete(ctx context.Context, in taskTargetInput) tools.Result {
	target, res, ok := s.resolveTarget(ctx, in, "")
	if !ok {
		return res
	}
	if err := s.st.Delete(ctx, target.ID); err != nil {
		return lookupError("task", target.ID, err)
	}
	return tools.OKf("Deleted task %s.", taskLine(target)).WithData(deleted(EntityTask, target.ID, target.Title, target.DueDate))
}

func taskSpecs(deps Deps) []tools.ToolSpec {
	s := taskTools{deps: deps, st: deps.Store.Tasks()}

	target := []tools.ParameterMetadata{
		{Name: "id", Importance: tools.ImportanceHigh, OnMissing: tools.OnMissingSkip, Explanation: "Do not combine with search_title."},
		{Name: "search_title", Importance: tools.ImportanceHigh, OnMissing: tools.OnMissingAskUser, ClarificationPrompt: "Which task do you mean?"},
		{Name: "due_date", Importance: tools.ImportanceLow, OnMissing: tools.OnMissingSkip},
	}

	return []tools.ToolSpec{
		{
			Definition: tools.MustNewTool("query_tasks", "List tasks by status and due date range.", s.query),
			Metadata: tools.ToolMetadata{
				Category: tools.CategoryTasks,
				Readonly: true,
				Enabled:  true,
				Parameters: []tools.ParameterMetadata{
					{Name: "status", Importance: tools.ImportanceMedium, HasDefault: true, DefaultDescription: "pending", OnMissing: tools.OnMissingUseDefault},
					{Name: "due_from", Importance: tools.ImportanceLow, OnMissing: tools.OnMissingSkip},
					{Name: "due_to", Importance: tools.ImportanceLow, OnMissing: tools.OnMissingSkip},
				},
			},
		},
		{
			Definition: tools.MustNewTool("create_task", "Create a pending task.", s.create),
			Metadata: tools.ToolMetadata{
				Category:         tools.CategoryTasks,
				Enabled:          true,
				PendingOperation: tools.PendingOperationCreate,
				Parameters: []tools.ParameterMetadata{
					{Name: "title", Importance: tools.ImportanceCritical, Required: true, OnMissing: tools.OnMissingAskUser},
					{Name: "due_date", Importance: tools.ImportanceMedium, OnMissing: tools.OnMissingSkip, Explanation: "Leave empty for tasks without a deadline."},
					{Name: "priority", Importance: tools.ImportanceLow, OnMissing: tools.OnMissingSkip},
					{Name: "description", Importance: tools.ImportanceLow, OnMissing: tools.OnMissingSkip},
				},
			},
		},
		{
			Definition: tools.MustNewTool("update_task", "Change a task found by id or title fragment.", s.update),
			Metadata: tools.ToolMetadata{
				Category:         tools.CategoryTasks,
				Enabled:          true,
				PendingOperation: tools.PendingOperationUpdate,
				Parameters: append(append([]tools.ParameterMetadata(nil), target...),
					tools.ParameterMetadata{Name: "new_title", Importance: tools.ImportanceMedium, OnMissing: tools.OnMissingSkip},
					tools.ParameterMetadata{Name: "new_due_date", Importance: tools.ImportanceMedium, OnMissing: tools.OnMissingSkip},
				),
			},
		},
		{
			Definition: tools.MustNewTool("complete_task", "Mark a pending task as completed.", s.complete),
			Metadata: tools.ToolMetadata{
				Category:         tools.CategoryTasks,
				Enabled:          true,
				PendingOperation: tools.PendingOperationUpdate,
				Parameters:       target,
			},
		},
		{
			Definition: tools.MustNewTool("delete_task", "Delete a task found by id or title fragment.", s.delete),
			Metadata: tools.ToolMetadata{
				Category:   tools.CategoryTasks,
				Enabled:    true,
				Parameters: target,
			},
		},
	}
}
