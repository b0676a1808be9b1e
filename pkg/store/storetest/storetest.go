// Package storetest holds a behaviour suite every store.Store implementation must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/go-go-golems/steward/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises s. The store must be empty.
func Run(t *testing.T, s store.Store) {
	t.Run("schedule", func(t *testing.T) { testSchedule(t, s.Schedule()) })
	t.Run("tasks", func(t *testing.T) { testTasks(t, s.Tasks()) })
	t.Run("expenses", func(t *testing.T) { testExpenses(t, s.Expenses()) })
	t.Run("notes", func(t *testing.T) { testNotes(t, s.Notes()) })
}

func ptr[T any](v T) *T { return &v }

func testSchedule(t *testing.T, st store.ScheduleStore) {
	ctx := context.Background()

	sync, err := st.Create(ctx, store.ScheduleBlock{Date: "2025-01-10", StartTime: "10:00", EndTime: "11:00", Title: "Team Sync"})
	require.NoError(t, err)
	assert.NotEmpty(t, sync.ID)
	assert.False(t, sync.CreatedAt.IsZero())

	_, err = st.Create(ctx, store.ScheduleBlock{Date: "2025-01-10", StartTime: "08:00", EndTime: "09:00", Title: "Gym"})
	require.NoError(t, err)
	_, err = st.Create(ctx, store.ScheduleBlock{Date: "2025-01-11", StartTime: "09:00", EndTime: "10:00", Title: "Dentist"})
	require.NoError(t, err)

	day, err := st.Query(ctx, store.ScheduleQuery{From: "2025-01-10", To: "2025-01-10"})
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "Gym", day[0].Title)
	assert.Equal(t, "Team Sync", day[1].Title)

	all, err := st.Query(ctx, store.ScheduleQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, st.Update(ctx, sync.ID, store.ScheduleBlockPatch{StartTime: ptr("10:30"), EndTime: ptr("11:30")}))
	got, err := st.Get(ctx, sync.ID)
	require.NoError(t, err)
	assert.Equal(t, "10:30", got.StartTime)
	assert.Equal(t, "Team Sync", got.Title)

	require.NoError(t, st.Delete(ctx, sync.ID))
	_, err = st.Get(ctx, sync.ID)
	assert.True(t, store.IsNotFound(err))
	assert.True(t, store.IsNotFound(st.Delete(ctx, sync.ID)))
	assert.True(t, store.IsNotFound(st.Update(ctx, "missing", store.ScheduleBlockPatch{Title: ptr("x")})))
}

func testTasks(t *testing.T, st store.TaskStore) {
	ctx := context.Background()

	a, err := st.Create(ctx, store.Task{Title: "Buy milk", DueDate: "2025-01-10"})
	require.NoError(t, err)
	assert.Equal(t, store.TaskPending, a.Status)
	_, err = st.Create(ctx, store.Task{Title: "Call mom"})
	require.NoError(t, err)

	all, err := st.Query(ctx, store.TaskQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Buy milk", all[0].Title)

	due, err := st.Query(ctx, store.TaskQuery{DueFrom: "2025-01-01", DueTo: "2025-01-31"})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, a.ID, due[0].ID)

	done := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.Update(ctx, a.ID, store.TaskPatch{Status: ptr(store.TaskCompleted), CompletedAt: &done}))
	got, err := st.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TaskCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))

	pending, err := st.Query(ctx, store.TaskQuery{Status: store.TaskPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Call mom", pending[0].Title)

	require.NoError(t, st.Delete(ctx, a.ID))
	assert.True(t, store.IsNotFound(st.Delete(ctx, a.ID)))
}

func testExpenses(t *testing.T, st store.ExpenseStore) {
	ctx := context.Background()

	e, err := st.Create(ctx, store.Expense{Date: "2025-01-10", Amount: 12.5, Currency: "EUR", Category: "Food", Description: "lunch"})
	require.NoError(t, err)
	_, err = st.Create(ctx, store.Expense{Date: "2025-01-02", Amount: 40, Currency: "EUR", Category: "transport"})
	require.NoError(t, err)

	all, err := st.Query(ctx, store.ExpenseQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2025-01-02", all[0].Date)

	food, err := st.Query(ctx, store.ExpenseQuery{Category: "food"})
	require.NoError(t, err)
	require.Len(t, food, 1)
	assert.InDelta(t, 12.5, food[0].Amount, 1e-9)

	ranged, err := st.Query(ctx, store.ExpenseQuery{From: "2025-01-05"})
	require.NoError(t, err)
	assert.Len(t, ranged, 1)

	require.NoError(t, st.Delete(ctx, e.ID))
	_, err = st.Get(ctx, e.ID)
	assert.True(t, store.IsNotFound(err))
}

func testNotes(t *testing.T, st store.NoteStore) {
	ctx := context.Background()

	n, err := st.Create(ctx, store.Note{Title: "Trip ideas", Content: "Lisbon in May", Tags: []string{"travel"}})
	require.NoError(t, err)
	_, err = st.Create(ctx, store.Note{Title: "Groceries", Content: "eggs, milk"})
	require.NoError(t, err)

	found, err := st.Query(ctx, store.NoteQuery{Search: "lisbon"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, n.ID, found[0].ID)
	assert.Equal(t, []string{"travel"}, found[0].Tags)

	tagged, err := st.Query(ctx, store.NoteQuery{Tag: "TRAVEL"})
	require.NoError(t, err)
	assert.Len(t, tagged, 1)

	require.NoError(t, st.Update(ctx, n.ID, store.NotePatch{Content: ptr("Lisbon in June")}))
	got, err := st.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon in June", got.Content)
	assert.Equal(t, "Trip ideas", got.Title)

	require.NoError(t, st.Delete(ctx, n.ID))
	assert.True(t, store.IsNotFound(st.Delete(ctx, n.ID)))
}
