package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SQLiteTimeLayout is the fixed-width UTC layout used for stored timestamps,
// so that lexical order matches chronological order.
const SQLiteTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// sqliteMigrations is the ordered list of schema migrations for the tasks table.
var sqliteMigrations = []string{
	`
CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	due_date      TEXT NOT NULL,
	priority      TEXT NOT NULL,
	status        TEXT NOT NULL,
	creator_email TEXT NOT NULL,
	collaborators TEXT NOT NULL DEFAULT '[]',
	viewers       TEXT NOT NULL DEFAULT '[]',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_creator ON tasks(creator_email);
`,
	`
CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date);
`,
}

type sqliteTask struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	Description   string `db:"description"`
	DueDate       string `db:"due_date"`
	Priority      string `db:"priority"`
	Status        string `db:"status"`
	CreatorEmail  string `db:"creator_email"`
	Collaborators string `db:"collaborators"`
	Viewers       string `db:"viewers"`
	CreatedAt     string `db:"created_at"`
	UpdatedAt     string `db:"updated_at"`
}

func (r sqliteTask) task() (Task, error) {
	t := Task{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		Priority:     Priority(r.Priority),
		Status:       Status(r.Status),
		CreatorEmail: r.CreatorEmail,
	}
	var err error
	if t.DueDate, err = time.Parse(SQLiteTimeLayout, r.DueDate); err != nil {
		return Task{}, fmt.Errorf("parse due_date of task %s: %w", r.ID, err)
	}
	if t.CreatedAt, err = time.Parse(SQLiteTimeLayout, r.CreatedAt); err != nil {
		return Task{}, fmt.Errorf("parse created_at of task %s: %w", r.ID, err)
	}
	if t.UpdatedAt, err = time.Parse(SQLiteTimeLayout, r.UpdatedAt); err != nil {
		return Task{}, fmt.Errorf("parse updated_at of task %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Collaborators), &t.Collaborators); err != nil {
		return Task{}, fmt.Errorf("decode collaborators of task %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Viewers), &t.Viewers); err != nil {
		return Task{}, fmt.Errorf("decode viewers of task %s: %w", r.ID, err)
	}
	return t.Clone(), nil
}

func toSQLiteTask(t Task) (sqliteTask, error) {
	t = t.Clone()
	collaborators, err := json.Marshal(t.Collaborators)
	if err != nil {
		return sqliteTask{}, fmt.Errorf("encode collaborators: %w", err)
	}
	viewers, err := json.Marshal(t.Viewers)
	if err != nil {
		return sqliteTask{}, fmt.Errorf("encode viewers: %w", err)
	}
	return sqliteTask{
		ID:            t.ID,
		Name:          t.Name,
		Description:   t.Description,
		DueDate:       formatSQLiteTime(t.DueDate),
		Priority:      string(t.Priority),
		Status:        string(t.Status),
		CreatorEmail:  t.CreatorEmail,
		Collaborators: string(collaborators),
		Viewers:       string(viewers),
		CreatedAt:     formatSQLiteTime(t.CreatedAt),
		UpdatedAt:     formatSQLiteTime(t.UpdatedAt),
	}, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(SQLiteTimeLayout)
}

// SQLiteStore is a SQLite-backed task store. Lists are stored as JSON arrays.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a SQLiteStore on an open database handle.
func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// EnsureSchema applies any outstanding migrations in order.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS task_schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating task_schema_version: %w", err)
	}
	var current int
	if err := s.db.GetContext(ctx, &current,
		`SELECT COALESCE(MAX(version), 0) FROM task_schema_version`); err != nil {
		return fmt.Errorf("reading task schema version: %w", err)
	}
	for i, stmt := range sqliteMigrations {
		version := i + 1
		if version <= current {
			continue
		}
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying task migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO task_schema_version (version) VALUES (?)`, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording task migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit task migration %d: %w", version, err)
		}
	}
	return nil
}

// ValidID reports whether id parses as a UUID.
func (s *SQLiteStore) ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Create inserts a new task under a fresh UUIDv7.
func (s *SQLiteStore) Create(ctx context.Context, t *Task) (*Task, error) {
	t.ID = uuid.Must(uuid.NewV7()).String()
	row, err := toSQLiteTask(*t)
	if err != nil {
		return nil, err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO tasks (
			id, name, description, due_date, priority, status,
			creator_email, collaborators, viewers, created_at, updated_at
		) VALUES (
			:id, :name, :description, :due_date, :priority, :status,
			:creator_email, :collaborators, :viewers, :created_at, :updated_at
		)`, row)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	out, err := row.task()
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get retrieves a single task by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Task, error) {
	return s.get(ctx, s.db, id)
}

func (s *SQLiteStore) get(ctx context.Context, q sqlx.QueryerContext, id string) (*Task, error) {
	var row sqliteTask
	if err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM tasks WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	t, err := row.task()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns tasks matching f in insertion order. The name filter is
// applied after the query because SQLite lower() only folds ASCII.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Task, error) {
	where, args := buildSQLiteWhere(f)
	byName := Filter{Name: f.Name}
	var rows []sqliteTask
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM tasks`+where+` ORDER BY rowid`, args...); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	tasks := make([]Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.task()
		if err != nil {
			return nil, err
		}
		if !byName.Match(t) {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Replace overwrites the mutable fields of an existing task.
func (s *SQLiteStore) Replace(ctx context.Context, t *Task) (*Task, error) {
	row, err := toSQLiteTask(*t)
	if err != nil {
		return nil, err
	}
	result, err := s.db.NamedExecContext(ctx, `
		UPDATE tasks SET
			name = :name, description = :description, due_date = :due_date,
			priority = :priority, status = :status,
			collaborators = :collaborators, viewers = :viewers, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return nil, fmt.Errorf("updating task %s: %w", t.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("updating task %s: %w", t.ID, ErrNotFound)
	}
	return s.Get(ctx, t.ID)
}

// Delete removes a task and returns it as it was before removal.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (*Task, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete task %s: %w", id, err)
	}
	defer tx.Rollback()

	t, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("deleting task %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete task %s: %w", id, err)
	}
	return t, nil
}

// buildSQLiteWhere turns a Filter into a WHERE clause with ? placeholders.
// Name is left to the caller.
func buildSQLiteWhere(f Filter) (string, []any) {
	var clauses []string
	var args []any

	if f.CreatorEmail != "" {
		clauses = append(clauses, "creator_email = ?")
		args = append(args, f.CreatorEmail)
	}
	if f.Description != "" {
		clauses = append(clauses, "description = ?")
		args = append(args, f.Description)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if f.DueDateLTE != nil {
		clauses = append(clauses, "due_date <= ?")
		args = append(args, formatSQLiteTime(*f.DueDateLTE))
	}
	if f.AssociatedEmail != "" {
		clauses = append(clauses, `(creator_email = ?
			OR EXISTS (SELECT 1 FROM json_each(tasks.collaborators) WHERE json_each.value = ?)
			OR EXISTS (SELECT 1 FROM json_each(tasks.viewers) WHERE json_each.value = ?))`)
		args = append(args, f.AssociatedEmail, f.AssociatedEmail, f.AssociatedEmail)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
