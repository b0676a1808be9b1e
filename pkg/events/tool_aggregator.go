package events

// ToolEventEntry aggregates the request and the result of one tool call.
type ToolEventEntry struct {
	ID       string         `json:"id" yaml:"id"`
	ToolName string         `json:"tool_name" yaml:"tool_name"`
	Args     map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
	Kind     string         `json:"kind,omitempty" yaml:"kind,omitempty"`
	Result   string         `json:"result,omitempty" yaml:"result,omitempty"`
	Done     bool           `json:"done" yaml:"done"`
}

// ToolEventAggregator folds tool_calls and tool_result events into one entry per call id.
type ToolEventAggregator struct {
	index   map[string]int
	entries []ToolEventEntry
}

func NewToolEventAggregator() *ToolEventAggregator {
	return &ToolEventAggregator{
		index:   make(map[string]int),
		entries: make([]ToolEventEntry, 0, 4),
	}
}

// Entries returns a snapshot of current entries in insertion order.
func (a *ToolEventAggregator) Entries() []ToolEventEntry {
	out := make([]ToolEventEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Pending returns the calls that were requested but have no result yet.
func (a *ToolEventAggregator) Pending() []ToolEventEntry {
	var out []ToolEventEntry
	for _, e := range a.entries {
		if !e.Done {
			out = append(out, e)
		}
	}
	return out
}

// Handle consumes an Event and updates entries when it is tool-related. It can be
// used directly as the body of an EventSink.
func (a *ToolEventAggregator) Handle(e Event) {
	switch ev := e.(type) {
	case *EventToolCalls:
		for _, c := range ev.Calls {
			if c.ID == "" {
				continue
			}
			idx := a.ensure(c.ID)
			a.entries[idx].ToolName = c.ToolName
			a.entries[idx].Args = c.Args
		}
	case *EventToolResult:
		if ev.ID == "" {
			return
		}
		idx := a.ensure(ev.ID)
		if a.entries[idx].ToolName == "" {
			a.entries[idx].ToolName = ev.ToolName
		}
		a.entries[idx].Kind = string(ev.Kind)
		a.entries[idx].Result = ev.Result
		a.entries[idx].Done = true
	}
}

func (a *ToolEventAggregator) ensure(id string) int {
	if idx, ok := a.index[id]; ok {
		return idx
	}
	a.entries = append(a.entries, ToolEventEntry{ID: id})
	a.index[id] = len(a.entries) - 1
	return len(a.entries) - 1
}
