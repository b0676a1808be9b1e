package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/go-go-golems/steward/pkg/store"
	"github.com/pkg/errors"
)

type scanner interface {
	Scan(dest ...any) error
}

type scheduleStore struct{ s *Store }

const scheduleColumns = `id, date, start_time, end_time, title, description, category, created_at`

func scanBlock(row scanner) (store.ScheduleBlock, error) {
	var b store.ScheduleBlock
	var created string
	if err := row.Scan(&b.ID, &b.Date, &b.StartTime, &b.EndTime, &b.Title, &b.Description, &b.Category, &created); err != nil {
		return store.ScheduleBlock{}, err
	}
	b.CreatedAt = parseTime(created)
	return b, nil
}

func (st scheduleStore) Query(ctx context.Context, q store.ScheduleQuery) ([]store.ScheduleBlock, error) {
	w := &where{}
	if q.From != "" {
		w.add("date >= ?", q.From)
	}
	if q.To != "" {
		w.add("date <= ?", q.To)
	}
	rows, err := st.s.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedule_blocks`+w.String()+` ORDER BY date, start_time, seq`, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "query schedule blocks")
	}
	defer rows.Close()
	var out []store.ScheduleBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan schedule block")
		}
		out = append(out, b)
	}
	return out, errors.Wrap(rows.Err(), "iterate schedule blocks")
}

func (st scheduleStore) Get(ctx context.Context, id string) (store.ScheduleBlock, error) {
	row := st.s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedule_blocks WHERE id = ?`, id)
	b, err := scanBlock(row)
	switch {
	case err == sql.ErrNoRows:
		return store.ScheduleBlock{}, notFound("schedule block", id)
	case err != nil:
		return store.ScheduleBlock{}, errors.Wrapf(err, "get schedule block %s", id)
	}
	return b, nil
}

func (st scheduleStore) Create(ctx context.Context, b store.ScheduleBlock) (store.ScheduleBlock, error) {
	b.ID = newID(b.ID)
	if b.CreatedAt.IsZero() {
		b.CreatedAt = st.s.now()
	}
	_, err := st.s.db.ExecContext(ctx, `INSERT INTO schedule_blocks (`+scheduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Date, b.StartTime, b.EndTime, b.Title, b.Description, b.Category, formatTime(b.CreatedAt))
	if err != nil {
		return store.ScheduleBlock{}, errors.Wrap(err, "insert schedule block")
	}
	return b, nil
}

func (st scheduleStore) Update(ctx context.Context, id string, patch store.ScheduleBlockPatch) error {
	cur, err := st.Get(ctx, id)
	if err != nil {
		return err
	}
	b := patch.Apply(cur)
	// existence was checked by Get; mysql reports zero affected rows for a no-op update
	_, err = st.s.db.ExecContext(ctx,
		`UPDATE schedule_blocks SET date = ?, start_time = ?, end_time = ?, title = ?, description = ?, category = ? WHERE id = ?`,
		b.Date, b.StartTime, b.EndTime, b.Title, b.Description, b.Category, id)
	return errors.Wrapf(err, "update schedule block %s", id)
}

func (st scheduleStore) Delete(ctx context.Context, id string) error {
	res, err := st.s.db.ExecContext(ctx, `DELETE FROM schedule_blocks WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete schedule block %s", id)
	}
	return checkAffected(res, "schedule block", id)
}

type taskStore struct{ s *Store }

const taskColumns = `id, title, description, due_date, priority, status, created_at, completed_at`

func scanTask(row scanner) (store.Task, error) {
	var t store.Task
	var status, created, completed string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.DueDate, &t.Priority, &status, &created, &completed); err != nil {
		return store.Task{}, err
	}
	t.Status = store.TaskStatus(status)
	t.CreatedAt = parseTime(created)
	if completed != "" {
		c := parseTime(completed)
		t.CompletedAt = &c
	}
	return t, nil
}

func (st taskStore) Query(ctx context.Context, q store.TaskQuery) ([]store.Task, error) {
	w := &where{}
	if q.Status != "" {
		w.add("status = ?", string(q.Status))
	}
	if q.DueFrom != "" || q.DueTo != "" {
		w.add("due_date <> ''")
	}
	if q.DueFrom != "" {
		w.add("due_date >= ?", q.DueFrom)
	}
	if q.DueTo != "" {
		w.add("due_date <= ?", q.DueTo)
	}
	rows, err := st.s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks`+w.String()+` ORDER BY seq`, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "query tasks")
	}
	defer rows.Close()
	var out []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan task")
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "iterate tasks")
}

func (st taskStore) Get(ctx context.Context, id string) (store.Task, error) {
	t, err := scanTask(st.s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	switch {
	case err == sql.ErrNoRows:
		return store.Task{}, notFound("task", id)
	case err != nil:
		return store.Task{}, errors.Wrapf(err, "get task %s", id)
	}
	return t, nil
}

func completedString(t store.Task) string {
	if t.CompletedAt == nil {
		return ""
	}
	return formatTime(*t.CompletedAt)
}

func (st taskStore) Create(ctx context.Context, t store.Task) (store.Task, error) {
	t.ID = newID(t.ID)
	if t.Status == "" {
		t.Status = store.TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = st.s.now()
	}
	_, err := st.s.db.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.DueDate, t.Priority, string(t.Status), formatTime(t.CreatedAt), completedString(t))
	if err != nil {
		return store.Task{}, errors.Wrap(err, "insert task")
	}
	return t, nil
}

func (st taskStore) Update(ctx context.Context, id string, patch store.TaskPatch) error {
	cur, err := st.Get(ctx, id)
	if err != nil {
		return err
	}
	t := patch.Apply(cur)
	_, err = st.s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, due_date = ?, priority = ?, status = ?, completed_at = ? WHERE id = ?`,
		t.Title, t.Description, t.DueDate, t.Priority, string(t.Status), completedString(t), id)
	return errors.Wrapf(err, "update task %s", id)
}

func (st taskStore) Delete(ctx context.Context, id string) error {
	res, err := st.s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete task %s", id)
	}
	return checkAffected(res, "task", id)
}

type expenseStore struct{ s *Store }

const expenseColumns = `id, date, amount, currency, category, description, created_at`

func scanExpense(row scanner) (store.Expense, error) {
	var e store.Expense
	var created string
	if err := row.Scan(&e.ID, &e.Date, &e.Amount, &e.Currency, &e.Category, &e.Description, &created); err != nil {
		return store.Expense{}, err
	}
	e.CreatedAt = parseTime(created)
	return e, nil
}

func (st expenseStore) Query(ctx context.Context, q store.ExpenseQuery) ([]store.Expense, error) {
	w := &where{}
	if q.From != "" {
		w.add("date >= ?", q.From)
	}
	if q.To != "" {
		w.add("date <= ?", q.To)
	}
	if q.Category != "" {
		w.add("LOWER(category) = ?", strings.ToLower(q.Category))
	}
	rows, err := st.s.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses`+w.String()+` ORDER BY date, seq`, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "query expenses")
	}
	defer rows.Close()
	var out []store.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan expense")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate expenses")
}

func (st expenseStore) Get(ctx context.Context, id string) (store.Expense, error) {
	e, err := scanExpense(st.s.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id))
	switch {
	case err == sql.ErrNoRows:
		return store.Expense{}, notFound("expense", id)
	case err != nil:
		return store.Expense{}, errors.Wrapf(err, "get expense %s", id)
	}
	return e, nil
}

func (st expenseStore) Create(ctx context.Context, e store.Expense) (store.Expense, error) {
	e.ID = newID(e.ID)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = st.s.now()
	}
	_, err := st.s.db.ExecContext(ctx, `INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Date, e.Amount, e.Currency, e.Category, e.Description, formatTime(e.CreatedAt))
	if err != nil {
		return store.Expense{}, errors.Wrap(err, "insert expense")
	}
	return e, nil
}

func (st expenseStore) Delete(ctx context.Context, id string) error {
	res, err := st.s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete expense %s", id)
	}
	return checkAffected(res, "expense", id)
}

type noteStore struct{ s *Store }

const noteColumns = `id, title, content, tags, created_at, updated_at`

func scanNote(row scanner) (store.Note, error) {
	var n store.Note
	var tags, created, updated string
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &tags, &created, &updated); err != nil {
		return store.Note{}, err
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
			return store.Note{}, errors.Wrapf(err, "decode tags of note %s", n.ID)
		}
	}
	n.CreatedAt = parseTime(created)
	n.UpdatedAt = parseTime(updated)
	return n, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

func (st noteStore) Query(ctx context.Context, q store.NoteQuery) ([]store.Note, error) {
	w := &where{}
	if s := strings.ToLower(strings.TrimSpace(q.Search)); s != "" {
		like := "%" + s + "%"
		w.add("(LOWER(title) LIKE ? OR LOWER(content) LIKE ?)", like, like)
	}
	rows, err := st.s.db.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes`+w.String()+` ORDER BY seq`, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "query notes")
	}
	defer rows.Close()
	var out []store.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan note")
		}
		if q.Tag != "" && !hasTag(n.Tags, q.Tag) {
			continue
		}
		out = append(out, n)
	}
	return out, errors.Wrap(rows.Err(), "iterate notes")
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func (st noteStore) Get(ctx context.Context, id string) (store.Note, error) {
	n, err := scanNote(st.s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	switch {
	case err == sql.ErrNoRows:
		return store.Note{}, notFound("note", id)
	case err != nil:
		return store.Note{}, errors.Wrapf(err, "get note %s", id)
	}
	return n, nil
}

func (st noteStore) Create(ctx context.Context, n store.Note) (store.Note, error) {
	n.ID = newID(n.ID)
	now := st.s.now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	tags, err := encodeTags(n.Tags)
	if err != nil {
		return store.Note{}, errors.Wrap(err, "encode tags")
	}
	_, err = st.s.db.ExecContext(ctx, `INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Title, n.Content, tags, formatTime(n.CreatedAt), formatTime(n.UpdatedAt))
	if err != nil {
		return store.Note{}, errors.Wrap(err, "insert note")
	}
	return n, nil
}

func (st noteStore) Update(ctx context.Context, id string, patch store.NotePatch) error {
	cur, err := st.Get(ctx, id)
	if err != nil {
		return err
	}
	n := patch.Apply(cur)
	tags, err := encodeTags(n.Tags)
	if err != nil {
		return errors.Wrap(err, "encode tags")
	}
	_, err = st.s.db.ExecContext(ctx, `UPDATE notes SET title = ?, content = ?, tags = ?, updated_at = ? WHERE id = ?`,
		n.Title, n.Content, tags, formatTime(st.s.now()), id)
	return errors.Wrapf(err, "update note %s", id)
}

func (st noteStore) Delete(ctx context.Context, id string) error {
	res, err := st.s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete note %s", id)
	}
	return checkAffected(res, "note", id)
}
