// Package store defines the record stores the built-in tools operate on. The
// orchestration core only sees these interfaces; memory and sqlstore provide
// implementations.
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned (possibly wrapped) when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && (errors.Is(err, ErrNotFound) || errors.Cause(err) == ErrNotFound)
}

// ScheduleBlock is a time block on a single day. Date is YYYY-MM-DD, times are HH:MM.
type ScheduleBlock struct {
	ID          string    `json:"id" yaml:"id"`
	Date        string    `json:"date" yaml:"date"`
	StartTime   string    `json:"start_time" yaml:"start_time"`
	EndTime     string    `json:"end_time" yaml:"end_time"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string    `json:"category,omitempty" yaml:"category,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

type ScheduleBlockPatch struct {
	Date        *string `json:"date,omitempty"`
	StartTime   *string `json:"start_time,omitempty"`
	EndTime     *string `json:"end_time,omitempty"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
}

// Apply returns a copy of b with the patch applied.
func (p ScheduleBlockPatch) Apply(b ScheduleBlock) ScheduleBlock {
	set(&b.Date, p.Date)
	set(&b.StartTime, p.StartTime)
	set(&b.EndTime, p.EndTime)
	set(&b.Title, p.Title)
	set(&b.Description, p.Description)
	set(&b.Category, p.Category)
	return b
}

// ScheduleQuery selects blocks whose date lies in [From, To]. Empty bounds are open.
type ScheduleQuery struct {
	From string
	To   string
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

type Task struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	DueDate     string     `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	Priority    string     `json:"priority,omitempty" yaml:"priority,omitempty"`
	Status      TaskStatus `json:"status" yaml:"status"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

type TaskPatch struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	DueDate     *string     `json:"due_date,omitempty"`
	Priority    *string     `json:"priority,omitempty"`
	Status      *TaskStatus `json:"status,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

func (p TaskPatch) Apply(t Task) Task {
	set(&t.Title, p.Title)
	set(&t.Description, p.Description)
	set(&t.DueDate, p.DueDate)
	set(&t.Priority, p.Priority)
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.CompletedAt != nil {
		c := *p.CompletedAt
		t.CompletedAt = &c
	}
	return t
}

// TaskQuery filters tasks. DueFrom/DueTo bound the due date inclusively; tasks without a
// due date only match when both bounds are empty.
type TaskQuery struct {
	Status  TaskStatus
	DueFrom string
	DueTo   string
}

type Expense struct {
	ID          string    `json:"id" yaml:"id"`
	Date        string    `json:"date" yaml:"date"`
	Amount      float64   `json:"amount" yaml:"amount"`
	Currency    string    `json:"currency" yaml:"currency"`
	Category    string    `json:"category,omitempty" yaml:"category,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

type ExpenseQuery struct {
	From     string
	To       string
	Category string
}

type Note struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"content"`
	Tags      []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

type NotePatch struct {
	Title   *string   `json:"title,omitempty"`
	Content *string   `json:"content,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
}

func (p NotePatch) Apply(n Note) Note {
	set(&n.Title, p.Title)
	set(&n.Content, p.Content)
	if p.Tags != nil {
		n.Tags = append([]string(nil), (*p.Tags)...)
	}
	return n
}

// NoteQuery matches notes whose title or content contains Search (case-insensitive)
// and which carry Tag, when set.
type NoteQuery struct {
	Search string
	Tag    string
}

type ScheduleStore interface {
	Query(ctx context.Context, q ScheduleQuery) ([]ScheduleBlock, error)
	Get(ctx context.Context, id string) (ScheduleBlock, error)
	Create(ctx context.Context, b ScheduleBlock) (ScheduleBlock, error)
	Update(ctx context.Context, id string, patch ScheduleBlockPatch) error
	Delete(ctx context.Context, id string) error
}

type TaskStore interface {
	Query(ctx context.Context, q TaskQuery) ([]Task, error)
	Get(ctx context.Context, id string) (Task, error)
	Create(ctx context.Context, t Task) (Task, error)
	Update(ctx context.Context, id string, patch TaskPatch) error
	Delete(ctx context.Context, id string) error
}

type ExpenseStore interface {
	Query(ctx context.Context, q ExpenseQuery) ([]Expense, error)
	Get(ctx context.Context, id string) (Expense, error)
	Create(ctx context.Context, e Expense) (Expense, error)
	Delete(ctx context.Context, id string) error
}

type NoteStore interface {
	Query(ctx context.Context, q NoteQuery) ([]Note, error)
	Get(ctx context.Context, id string) (Note, error)
	Create(ctx context.Context, n Note) (Note, error)
	Update(ctx context.Context, id string, patch NotePatch) error
	Delete(ctx context.Context, id string) error
}

// Store bundles the per-record stores behind one handle.
type Store interface {
	Schedule() ScheduleStore
	Tasks() TaskStore
	Expenses() ExpenseStore
	Notes() NoteStore
	Close() error
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// InDateRange reports whether date (YYYY-MM-DD) lies in [from, to]; empty bounds are open.
// The layout sorts lexically, so plain string comparison is enough.
func InDateRange(date, from, to string) bool {
	if from != "" && date < from {
		return false
	}
	if to != "" && date > to {
		return false
	}
	return true
}
