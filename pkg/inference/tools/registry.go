package tools

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/iancoleman/strcase"
	"github.com/mb0/glob"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// RegisteredTool is an immutable registry entry.
type RegisteredTool struct {
	Name       string
	Definition *ToolDefinition
	Metadata   ToolMetadata

	seq uint64
}

// RegisterOptions controls a single registration.
type RegisterOptions struct {
	Overwrite bool
	Validate  bool
}

func DefaultRegisterOptions() RegisterOptions {
	return RegisterOptions{Overwrite: false, Validate: true}
}

// QueryFilter selects tools in Registry.Query. The zero value of EnabledOnly is
// false, so use NewQueryFilter to get the default of enabled tools only.
type QueryFilter struct {
	Categories   []Category
	EnabledOnly  bool
	ReadonlyOnly bool
	// NamePattern is a glob ("schedule_*") or, without glob characters, a case-insensitive substring.
	NamePattern string
}

func NewQueryFilter() QueryFilter {
	return QueryFilter{EnabledOnly: true}
}

// Stats summarizes the registry contents.
type Stats struct {
	Total      int              `json:"total" yaml:"total"`
	Enabled    int              `json:"enabled" yaml:"enabled"`
	Disabled   int              `json:"disabled" yaml:"disabled"`
	ByCategory map[Category]int `json:"by_category" yaml:"by_category"`
}

type snapshot struct {
	tools map[string]*RegisteredTool
}

// Registry is the process-wide tool catalog. It is constructed once and passed to
// whoever needs it. Readers work on an immutable snapshot; writers build a new map
// and swap it in, so a Query never observes a half-applied registration.
type Registry struct {
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
	nextSeq uint64
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.current.Store(&snapshot{tools: map[string]*RegisteredTool{}})
	return r
}

func (r *Registry) load() *snapshot {
	return r.current.Load()
}

// mutate copies the current map, applies fn and publishes the result when fn returns true.
func (r *Registry) mutate(fn func(tools map[string]*RegisteredTool) bool) bool {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	old := r.load()
	next := make(map[string]*RegisteredTool, len(old.tools)+1)
	for k, v := range old.tools {
		next[k] = v
	}
	if !fn(next) {
		return false
	}
	r.current.Store(&snapshot{tools: next})
	return true
}

// Register adds a tool. It returns false, without panicking, when the name is taken
// and Overwrite is not set, or when validation fails.
func (r *Registry) Register(def *ToolDefinition, md ToolMetadata, opts RegisterOptions) bool {
	if def == nil {
		log.Warn().Msg("tools: refusing to register nil tool definition")
		return false
	}
	name := def.Name
	if opts.Validate {
		if err := validate(name, md); err != nil {
			log.Warn().Err(err).Str("tool", name).Msg("tools: registration rejected")
			return false
		}
	}
	if md.Description == "" {
		md.Description = def.Description
	}
	if md.DisplayName == "" {
		md.DisplayName = displayName(name)
	}

	return r.mutate(func(tools map[string]*RegisteredTool) bool {
		seq := r.nextSeq
		if existing, ok := tools[name]; ok {
			if !opts.Overwrite {
				log.Debug().Str("tool", name).Msg("tools: already registered, not overwriting")
				return false
			}
			// keep the original position in the ordering
			seq = existing.seq
		} else {
			r.nextSeq++
		}
		tools[name] = &RegisteredTool{Name: name, Definition: def, Metadata: md, seq: seq}
		log.Debug().Str("tool", name).Str("category", string(md.Category)).Msg("tools: registered")
		return true
	})
}

// ToolSpec pairs a definition with its metadata for batch registration.
type ToolSpec struct {
	Definition *ToolDefinition
	Metadata   ToolMetadata
}

// RegisterBatch registers every spec with the same options and returns how many succeeded.
func (r *Registry) RegisterBatch(specs []ToolSpec, opts RegisterOptions) int {
	n := 0
	for _, s := range specs {
		if r.Register(s.Definition, s.Metadata, opts) {
			n++
		}
	}
	return n
}

// RegisterCategory is RegisterBatch with the category forced on every spec.
func (r *Registry) RegisterCategory(category Category, specs []ToolSpec, opts RegisterOptions) int {
	n := 0
	for _, s := range specs {
		md := s.Metadata
		md.Category = category
		if r.Register(s.Definition, md, opts) {
			n++
		}
	}
	return n
}

func (r *Registry) Lookup(name string) (*RegisteredTool, bool) {
	t, ok := r.load().tools[name]
	return t, ok
}

// GetTool returns the callable registered under name, or nil.
func (r *Registry) GetTool(name string) *ToolDefinition {
	if t, ok := r.Lookup(name); ok {
		return t.Definition
	}
	return nil
}

// GetMetadata returns a copy of the metadata registered under name, or nil.
func (r *Registry) GetMetadata(name string) *ToolMetadata {
	t, ok := r.Lookup(name)
	if !ok {
		return nil
	}
	md := t.Metadata
	return &md
}

// Query returns the tools matching filter, ordered by category priority and then
// registration order.
func (r *Registry) Query(filter QueryFilter) []*RegisteredTool {
	snap := r.load()

	var categories map[Category]bool
	if len(filter.Categories) > 0 {
		categories = make(map[Category]bool, len(filter.Categories))
		for _, c := range filter.Categories {
			categories[c] = true
		}
	}

	out := make([]*RegisteredTool, 0, len(snap.tools))
	for _, t := range snap.tools {
		if categories != nil && !categories[t.Metadata.Category] {
			continue
		}
		if filter.EnabledOnly && !t.Metadata.Enabled {
			continue
		}
		if filter.ReadonlyOnly && !t.Metadata.Readonly {
			continue
		}
		if filter.NamePattern != "" && !matchName(filter.NamePattern, t.Name) {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		pi, pj := CategoryPriority(out[i].Metadata.Category), CategoryPriority(out[j].Metadata.Category)
		if pi != pj {
			return pi < pj
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func matchName(pattern, name string) bool {
	if strings.ContainsAny(pattern, "*?[") {
		ok, err := glob.Match(pattern, name)
		if err != nil {
			log.Debug().Err(err).Str("pattern", pattern).Msg("tools: invalid name pattern")
			return false
		}
		return ok
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(pattern))
}

// Unregister removes a tool and reports whether it existed.
func (r *Registry) Unregister(name string) bool {
	return r.mutate(func(tools map[string]*RegisteredTool) bool {
		if _, ok := tools[name]; !ok {
			return false
		}
		delete(tools, name)
		return true
	})
}

// SetEnabled toggles a tool without changing its position.
func (r *Registry) SetEnabled(name string, enabled bool) bool {
	return r.mutate(func(tools map[string]*RegisteredTool) bool {
		t, ok := tools[name]
		if !ok {
			return false
		}
		cp := *t
		cp.Metadata.Enabled = enabled
		tools[name] = &cp
		return true
	})
}

func (r *Registry) Clear() {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.current.Store(&snapshot{tools: map[string]*RegisteredTool{}})
}

func (r *Registry) Count() int {
	return len(r.load().tools)
}

func (r *Registry) Stats() Stats {
	st := Stats{ByCategory: map[Category]int{}}
	for _, t := range r.load().tools {
		st.Total++
		st.ByCategory[t.Metadata.Category]++
		if t.Metadata.Enabled {
			st.Enabled++
		} else {
			st.Disabled++
		}
	}
	return st
}

type toolDoc struct {
	Name        string              `yaml:"name"`
	DisplayName string              `yaml:"display_name"`
	Category    Category            `yaml:"category"`
	Description string              `yaml:"description"`
	Readonly    bool                `yaml:"readonly"`
	Enabled     bool                `yaml:"enabled"`
	Parameters  []ParameterMetadata `yaml:"parameters,omitempty"`
}

// Describe renders the documentation of a tool, including its parameter metadata, as YAML.
func (r *Registry) Describe(name string) (string, bool) {
	t, ok := r.Lookup(name)
	if !ok {
		return "", false
	}
	b, err := yaml.Marshal(toolDoc{
		Name:        t.Name,
		DisplayName: t.Metadata.DisplayName,
		Category:    t.Metadata.Category,
		Description: t.Metadata.Description,
		Readonly:    t.Metadata.Readonly,
		Enabled:     t.Metadata.Enabled,
		Parameters:  t.Metadata.Parameters,
	})
	if err != nil {
		return "", false
	}
	return string(b), true
}

// displayName turns create_task or schedule-block.move into "Create Task" or
// "Schedule Block Move".
func displayName(name string) string {
	words := strings.Fields(strcase.ToDelimited(name, ' '))
	for i, w := range words {
		words[i] = strcase.ToCamel(w)
	}
	return strings.Join(words, " ")
}
