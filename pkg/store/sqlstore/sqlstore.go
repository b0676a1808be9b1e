// Package sqlstore implements store.Store on database/sql for the sqlite3 and mysql drivers.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-go-golems/steward/pkg/store"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// Config describes the database connection.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is a store.Store backed by a SQL database.
type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects, pings and migrates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	d, ok := dialects[cfg.Driver]
	if !ok {
		return nil, errors.Errorf("unsupported store driver %q", cfg.Driver)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.Errorf("%s store needs a dsn", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", cfg.Driver)
	}
	if cfg.Driver == DriverSQLite && strings.Contains(cfg.DSN, ":memory:") {
		// every pooled connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s", cfg.Driver)
	}

	s := &Store{db: db, dialect: d, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug().Str("driver", cfg.Driver).Msg("sqlstore: opened")
	return s, nil
}

// OpenSQLite is a shortcut for the sqlite3 driver.
func OpenSQLite(ctx context.Context, dsn string) (*Store, error) {
	return Open(ctx, Config{Driver: DriverSQLite, DSN: dsn})
}

func (s *Store) Schedule() store.ScheduleStore { return scheduleStore{s} }
func (s *Store) Tasks() store.TaskStore        { return taskStore{s} }
func (s *Store) Expenses() store.ExpenseStore  { return expenseStore{s} }
func (s *Store) Notes() store.NoteStore        { return noteStore{s} }

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.migrationsTable); err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}
	applied := map[int]bool{}
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return errors.Wrap(err, "load schema_migrations")
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return errors.Wrap(err, "scan schema_migrations")
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate schema_migrations")
	}

	for i, stmts := range s.dialect.migrations {
		version := i + 1
		if applied[version] {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "begin migration")
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return errors.Wrapf(err, "apply migration %d", version)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, version, s.now().Unix()); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "record migration %d", version)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit migration %d", version)
		}
		log.Debug().Int("version", version).Msg("sqlstore: applied migration")
	}
	return nil
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		log.Debug().Err(err).Str("value", s).Msg("sqlstore: bad timestamp")
		return time.Time{}
	}
	return t
}

func notFound(kind, id string) error {
	return errors.Wrapf(store.ErrNotFound, "%s %s", kind, id)
}

// checkAffected turns a zero-row write into ErrNotFound.
func checkAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

// where accumulates AND-ed conditions and their arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
