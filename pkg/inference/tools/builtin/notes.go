package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/go-go-golems/steward/pkg/resolve"
	"github.com/go-go-golems/steward/pkg/store"
)

const notePreviewLen = 120

type createNoteInput struct {
	Title   string   `json:"title" jsonschema:"required"`
	Content string   `json:"content" jsonschema:"required"`
	Tags    []string `json:"tags,omitempty"`
}

type searchNotesInput struct {
	Query string `json:"query,omitempty" jsonschema:"description=Text to look for in titles and content"`
	Tag   string `json:"tag,omitempty"`
}

type noteTargetInput struct {
	ID          string `json:"id,omitempty" jsonschema:"description=Note id; mutually exclusive with search_title"`
	SearchTitle string `json:"search_title,omitempty"`
}

type updateNoteInput struct {
	noteTargetInput
	NewTitle string   `json:"new_title,omitempty"`
	Content  string   `json:"content,omitempty" jsonschema:"description=Replaces the whole content"`
	Tags     []string `json:"tags,omitempty" jsonschema:"description=Replaces the tags"`
}

type noteTools struct {
	st store.NoteStore
}

func notePreview(n store.Note) string {
	content := strings.Join(strings.Fields(n.Content), " ")
	if r := []rune(content); len(r) > notePreviewLen {
		content = string(r[:notePreviewLen]) + "…"
	}
	line := fmt.Sprintf("%s (id: %s)", n.Title, n.ID)
	if len(n.Tags) > 0 {
		line += " #" + strings.Join(n.Tags, " #")
	}
	if content != "" {
		line += ": " + content
	}
	return line
}

func normalizeTags(tags []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (s noteTools) create(ctx context.Context, in createNoteInput) tools.Result {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return tools.Errorf("title is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return tools.Errorf("content is required")
	}
	existing, err := s.st.Query(ctx, store.NoteQuery{})
	if err != nil {
		return tools.Errorf("could not load notes: %v", err)
	}
	n, err := s.st.Create(ctx, store.Note{Title: title, Content: in.Content, Tags: normalizeTags(in.Tags)})
	if err != nil {
		return tools.Errorf("could not create note: %v", err)
	}
	ref := focus(EntityNote, n.ID, n.Title, "")
	for _, e := range existing {
		if strings.EqualFold(e.Title, title) {
			return tools.Warning(fmt.Sprintf("Created note %q (id: %s).\nWarning: another note with this title already exists (id: %s).", n.Title, n.ID, e.ID)).WithData(ref)
		}
	}
	return tools.OKf("Created note %q (id: %s).", n.Title, n.ID).WithData(ref)
}

func (s noteTools) resolveTarget(ctx context.Context, in noteTargetInput) (store.Note, tools.Result, bool) {
	if res, ok := exclusiveTarget(in.ID, in.SearchTitle, "search_title"); !ok {
		return store.Note{}, res, false
	}
	if id := strings.TrimSpace(in.ID); id != "" {
		n, err := s.st.Get(ctx, id)
		if err != nil {
			return n, lookupError("note", id, err), false
		}
		return n, tools.Result{}, true
	}
	candidates, err := s.st.Query(ctx, store.NoteQuery{})
	if err != nil {
		return store.Note{}, tools.Errorf("could not load notes: %v", err), false
	}
	r := resolve.MatchTitles(candidates, in.SearchTitle, func(n store.Note) string { return n.Title })
	switch r.Outcome {
	case resolve.OutcomeNone:
		return store.Note{}, tools.Errorf("no note titled like %q", in.SearchTitle), false
	case resolve.OutcomeAmbiguous:
		text := candidateList(fmt.Sprintf("Found %d notes matching %q:", len(r.Matches), in.SearchTitle), r.Matches, func(n store.Note) string {
			return fmt.Sprintf("%s (id: %s)", n.Title, n.ID)
		})
		return store.Note{}, tools.Ambiguous(text, r.Matches), false
	}
	n, _ := r.Unique()
	return n, tools.Result{}, true
}

func (s noteTools) update(ctx context.Context, in updateNoteInput) tools.Result {
	target, res, ok := s.resolveTarget(ctx, in.noteTargetInput)
	if !ok {
		return res
	}
	patch := store.NotePatch{Title: nonEmpty(in.NewTitle)}
	if strings.TrimSpace(in.Content) != "" {
		patch.Content = &in.Content
	}
	if in.Tags != nil {
		tags := normalizeTags(in.Tags)
		patch.Tags = &tags
	}
	if patch.Title == nil && patch.Content == nil && patch.Tags == nil {
		return tools.Errorf("nothing to change for note %q", target.Title)
	}
	if err := s.st.Update(ctx, target.ID, patch); err != nil {
		return lookupError("note", target.ID, err)
	}
	updated := patch.Apply(target)
	return tools.OKf("Updated note: %s", notePreview(updated)).WithData(focus(EntityNote, updated.ID, updated.Title, ""))
}

func (s noteTools) delete(ctx context.Context, in noteTargetInput) tools.Result {
	target, res, ok := s.resolveTarget(ctx, in)
	if !ok {
		return res
	}
	if err := s.st.Delete(ctx, target.ID); err != nil {
		return lookupError("note", target.ID, err)
	}
	return tools.OKf("Deleted note %q (id: %s).", target.Title, target.ID).WithData(deleted(EntityNote, target.ID, target.Title, ""))
}

func (s noteTools) search(ctx context.Context, in searchNotesInput) tools.Result {
	tag := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(in.Tag), "#"))
	notes, err := s.st.Query(ctx, store.NoteQuery{Search: strings.TrimSpace(in.Query), Tag: tag})
	if err != nil {
		return tools.Errorf("could not search notes: %v", err)
	}
	if len(notes) == 0 {
		what := strings.TrimSpace(in.Query)
		if tag != "" {
			what = strings.TrimSpace(what + " #" + tag)
		}
		return tools.OKf("No notes matching %q.", what).WithData(notes)
	}
	var b strings.Builder
	b.WriteString(plural(len(notes), "note") + ":")
	for _, n := range notes {
		b.WriteString("\n- ")
		b.WriteString(notePreview(n))
	}
	res := tools.OK(b.String())
	if len(notes) == 1 {
		// a single hit becomes the conversation focus
		return res.WithData(focus(EntityNote, notes[0].ID, notes[0].Title, ""))
	}
	return res.WithData(notes)
}

func noteSpecs(deps Deps) []tools.ToolSpec {
	s := noteTools{st: deps.Store.Notes()}
	target := []tools.ParameterMetadata{
		{Name: "id", Importance: tools.ImportanceHigh, OnMissing: tools.OnMissingSkip, Explanation: "Do not combine with search_title."},
		{Name: "search_title", Importance: tools.ImportanceHigh, OnMissing: tools.OnMissingAskUser, ClarificationPrompt: "Which note do you mean?"},
	}
	return []tools.ToolSpec{
		{
			Definition: tools.MustNewTool("create_note", "Save a note with optional tags.", s.create),
			Metadata: tools.ToolMetadata{
				Category:         tools.CategoryNotes,
				Enabled:          true,
				PendingOperation: tools.PendingOperationCreate,
				Parameters: []tools.ParameterMetadata{
					{Name: "title", Importance: tools.ImportanceHigh, Required: true, OnMissing: tools.OnMissingAskUser},
					{Name: "content", Importance: tools.ImportanceCritical, Required: true, OnMissing: tools.OnMissingAskUser},
					{Name: "tags", Importance: tools.ImportanceLow, OnMissing: tools.OnMissingSkip},
				},
			},
		},
		{
			Definition: tools.MustNewTool("search_notes", "Find notes by text or tag.", s.search),
			Metadata: tools.ToolMetadata{
				Category: tools.CategoryNotes,
				Readonly: true,
				Enabled:  true,
				Parameters: []tools.ParameterMetadata{
					{Name: "query", Importance: tools.ImportanceHigh, HasDefault: true, DefaultDescription: "all notes", OnMissing: tools.OnMissingUseDefault},
					{Name: "tag", Importance: tools.ImportanceLow, OnMissing: tools.OnMissingSkip},
				},
			},
		},
		{
			Definition: tools.MustNewTool("update_note", "Change the title, content or tags of a note found by id or title.", s.update),
			Metadata: tools.ToolMetadata{
				Category:         tools.CategoryNotes,
				Enabled:          true,
				PendingOperation: tools.PendingOperationUpdate,
				Parameters: append(append([]tools.ParameterMetadata(nil), target...),
					tools.ParameterMetadata{Name: "new_title", Importance: tools.ImportanceMedium, OnMissing: tools.OnMissingSkip},
					tools.ParameterMetadata{Name: "content", Importance: tools.ImportanceMedium, OnMissing: tools.OnMissingSkip},
					tools.ParameterMetadata{Name: "tags", Importance: tools.ImportanceLow, OnMissing: tools.OnMissingSkip},
				),
			},
		},
		{
			Definition: tools.MustNewTool("delete_note", "Delete a note found by id or title.", s.delete),
			Metadata: tools.ToolMetadata{
				Category:   tools.CategoryNotes,
				Enabled:    true,
				Parameters: target,
			},
		},
	}
}
