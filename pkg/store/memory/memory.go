// Package memory is an in-process store.Store, used by default and in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/steward/pkg/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store keeps all records in maps guarded by one RWMutex. Each operation is atomic on
// its own; there are no multi-operation transactions.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time
	seq int

	blocks   map[string]entry[store.ScheduleBlock]
	tasks    map[string]entry[store.Task]
	expenses map[string]entry[store.Expense]
	notes    map[string]entry[store.Note]
}

type entry[T any] struct {
	seq int
	rec T
}

var _ store.Store = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		blocks:   map[string]entry[store.ScheduleBlock]{},
		tasks:    map[string]entry[store.Task]{},
		expenses: map[string]entry[store.Expense]{},
		notes:    map[string]entry[store.Note]{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Schedule() store.ScheduleStore { return scheduleStore{s} }
func (s *Store) Tasks() store.TaskStore        { return taskStore{s} }
func (s *Store) Expenses() store.ExpenseStore  { return expenseStore{s} }
func (s *Store) Notes() store.NoteStore        { return noteStore{s} }
func (s *Store) Close() error                  { return nil }

func (s *Store) nextSeq() int {
	s.seq++
	return s.seq
}

func ensureID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func notFound(kind, id string) error {
	return errors.Wrapf(store.ErrNotFound, "%s %s", kind, id)
}

// ordered returns the records in insertion order.
func ordered[T any](m map[string]entry[T], keep func(T) bool) []T {
	es := make([]entry[T], 0, len(m))
	for _, e := range m {
		if keep == nil || keep(e.rec) {
			es = append(es, e)
		}
	}
	sort.Slice(es, func(i, j int) bool { return es[i].seq < es[j].seq })
	out := make([]T, len(es))
	for i, e := range es {
		out[i] = e.rec
	}
	return out
}

type scheduleStore struct{ s *Store }

func (st scheduleStore) Query(_ context.Context, q store.ScheduleQuery) ([]store.ScheduleBlock, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	out := ordered(st.s.blocks, func(b store.ScheduleBlock) bool {
		return store.InDateRange(b.Date, q.From, q.To)
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (st scheduleStore) Get(_ context.Context, id string) (store.ScheduleBlock, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	e, ok := st.s.blocks[id]
	if !ok {
		return store.ScheduleBlock{}, notFound("schedule block", id)
	}
	return e.rec, nil
}

func (st scheduleStore) Create(_ context.Context, b store.ScheduleBlock) (store.ScheduleBlock, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	b.ID = ensureID(b.ID)
	if _, exists := st.s.blocks[b.ID]; exists {
		return store.ScheduleBlock{}, errors.Errorf("schedule block %s already exists", b.ID)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = st.s.now()
	}
	st.s.blocks[b.ID] = entry[store.ScheduleBlock]{seq: st.s.nextSeq(), rec: b}
	return b, nil
}

func (st scheduleStore) Update(_ context.Context, id string, patch store.ScheduleBlockPatch) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	e, ok := st.s.blocks[id]
	if !ok {
		return notFound("schedule block", id)
	}
	e.rec = patch.Apply(e.rec)
	st.s.blocks[id] = e
	return nil
}

func (st scheduleStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.blocks[id]; !ok {
		return notFound("schedule block", id)
	}
	delete(st.s.blocks, id)
	return nil
}

type taskStore struct{ s *Store }

func (st taskStore) Query(_ context.Context, q store.TaskQuery) ([]store.Task, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	return ordered(st.s.tasks, func(t store.Task) bool {
		if q.Status != "" && t.Status != q.Status {
			return false
		}
		if q.DueFrom == "" && q.DueTo == "" {
			return true
		}
		return t.DueDate != "" && store.InDateRange(t.DueDate, q.DueFrom, q.DueTo)
	}), nil
}

func (st taskStore) Get(_ context.Context, id string) (store.Task, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	e, ok := st.s.tasks[id]
	if !ok {
		return store.Task{}, notFound("task", id)
	}
	return e.rec, nil
}

func (st taskStore) Create(_ context.Context, t store.Task) (store.Task, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	t.ID = ensureID(t.ID)
	if _, exists := st.s.tasks[t.ID]; exists {
		return store.Task{}, errors.Errorf("task %s already exists", t.ID)
	}
	if t.Status == "" {
		t.Status = store.TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = st.s.now()
	}
	st.s.tasks[t.ID] = entry[store.Task]{seq: st.s.nextSeq(), rec: t}
	return t, nil
}

func (st taskStore) Update(_ context.Context, id string, patch store.TaskPatch) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	e, ok := st.s.tasks[id]
	if !ok {
		return notFound("task", id)
	}
	e.rec = patch.Apply(e.rec)
	st.s.tasks[id] = e
	return nil
}

func (st taskStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.tasks[id]; !ok {
		return notFound("task", id)
	}
	delete(st.s.tasks, id)
	return nil
}

type expenseStore struct{ s *Store }

func (st expenseStore) Query(_ context.Context, q store.ExpenseQuery) ([]store.Expense, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	out := ordered(st.s.expenses, func(e store.Expense) bool {
		if q.Category != "" && !strings.EqualFold(e.Category, q.Category) {
			return false
		}
		return store.InDateRange(e.Date, q.From, q.To)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (st expenseStore) Get(_ context.Context, id string) (store.Expense, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	e, ok := st.s.expenses[id]
	if !ok {
		return store.Expense{}, notFound("expense", id)
	}
	return e.rec, nil
}

func (st expenseStore) Create(_ context.Context, e store.Expense) (store.Expense, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	e.ID = ensureID(e.ID)
	if _, exists := st.s.expenses[e.ID]; exists {
		return store.Expense{}, errors.Errorf("expense %s already exists", e.ID)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = st.s.now()
	}
	st.s.expenses[e.ID] = entry[store.Expense]{seq: st.s.nextSeq(), rec: e}
	return e, nil
}

func (st expenseStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.expenses[id]; !ok {
		return notFound("expense", id)
	}
	delete(st.s.expenses, id)
	return nil
}

type noteStore struct{ s *Store }

func (st noteStore) Query(_ context.Context, q store.NoteQuery) ([]store.Note, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(q.Search))
	return ordered(st.s.notes, func(n store.Note) bool {
		if q.Tag != "" && !hasTag(n.Tags, q.Tag) {
			return false
		}
		if search == "" {
			return true
		}
		return strings.Contains(strings.ToLower(n.Title), search) ||
			strings.Contains(strings.ToLower(n.Content), search)
	}), nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func (st noteStore) Get(_ context.Context, id string) (store.Note, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	e, ok := st.s.notes[id]
	if !ok {
		return store.Note{}, notFound("note", id)
	}
	return e.rec, nil
}

func (st noteStore) Create(_ context.Context, n store.Note) (store.Note, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	n.ID = ensureID(n.ID)
	if _, exists := st.s.notes[n.ID]; exists {
		return store.Note{}, errors.Errorf("note %s already exists", n.ID)
	}
	now := st.s.now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	n.Tags = append([]string(nil), n.Tags...)
	st.s.notes[n.ID] = entry[store.Note]{seq: st.s.nextSeq(), rec: n}
	return n, nil
}

func (st noteStore) Update(_ context.Context, id string, patch store.NotePatch) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	e, ok := st.s.notes[id]
	if !ok {
		return notFound("note", id)
	}
	e.rec = patch.Apply(e.rec)
	e.rec.UpdatedAt = st.s.now()
	st.s.notes[id] = e
	return nil
}

func (st noteStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.notes[id]; !ok {
		return notFound("note", id)
	}
	delete(st.s.notes, id)
	return nil
}
