package task

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgColumns = `id, name, description, due_date, priority, status, creator_email, collaborators, viewers, created_at, updated_at`

// PgStore is a PostgreSQL-backed task store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureSchema creates the tasks table and its indexes if they don't exist.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			due_date      TIMESTAMPTZ NOT NULL,
			priority      TEXT NOT NULL,
			status        TEXT NOT NULL,
			creator_email TEXT NOT NULL,
			collaborators TEXT[] NOT NULL DEFAULT '{}',
			viewers       TEXT[] NOT NULL DEFAULT '{}',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return err
	}
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_creator ON tasks(creator_email)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_collaborators ON tasks USING GIN(collaborators)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_viewers ON tasks USING GIN(viewers)`,
	} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ValidID reports whether id parses as a UUID.
func (s *PgStore) ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Create inserts a new task under a fresh UUIDv7.
func (s *PgStore) Create(ctx context.Context, t *Task) (*Task, error) {
	t.ID = uuid.Must(uuid.NewV7()).String()
	c := t.Clone()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (`+pgColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.Name, c.Description, c.DueDate, string(c.Priority), string(c.Status), c.CreatorEmail,
		c.Collaborators, c.Viewers, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &c, nil
}

// Get retrieves a single task by ID.
func (s *PgStore) Get(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, notFound(err))
	}
	return t, nil
}

// List returns tasks matching f in table order.
func (s *PgStore) List(ctx context.Context, f Filter) ([]Task, error) {
	where, args := buildWhere(f)
	rows, err := s.pool.Query(ctx, `SELECT `+pgColumns+` FROM tasks`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return tasks, nil
}

// Replace overwrites the mutable fields of an existing task.
func (s *PgStore) Replace(ctx context.Context, t *Task) (*Task, error) {
	c := t.Clone()
	out, err := scanTask(s.pool.QueryRow(ctx, `
		UPDATE tasks SET
			name = $1, description = $2, due_date = $3, priority = $4, status = $5,
			collaborators = $6, viewers = $7, updated_at = $8
		WHERE id = $9
		RETURNING `+pgColumns,
		c.Name, c.Description, c.DueDate, string(c.Priority), string(c.Status),
		c.Collaborators, c.Viewers, c.UpdatedAt, c.ID))
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", t.ID, notFound(err))
	}
	return out, nil
}

// Delete removes a task and returns the removed row.
func (s *PgStore) Delete(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `DELETE FROM tasks WHERE id = $1 RETURNING `+pgColumns, id))
	if err != nil {
		return nil, fmt.Errorf("delete task %s: %w", id, notFound(err))
	}
	return t, nil
}

// buildWhere turns a Filter into a WHERE clause with positional arguments.
func buildWhere(f Filter) (string, []any) {
	var clauses []string
	var args []any
	add := func(format string, v any) {
		args = append(args, v)
		n := len(args)
		clauses = append(clauses, strings.ReplaceAll(format, "$?", fmt.Sprintf("$%d", n)))
	}

	if f.Name != "" {
		add("strpos(lower(name), lower($?)) > 0", f.Name)
	}
	if f.CreatorEmail != "" {
		add("creator_email = $?", f.CreatorEmail)
	}
	if f.Description != "" {
		add("description = $?", f.Description)
	}
	if f.Status != "" {
		add("status = $?", string(f.Status))
	}
	if f.Priority != "" {
		add("priority = $?", string(f.Priority))
	}
	if f.DueDateLTE != nil {
		add("due_date <= $?", *f.DueDateLTE)
	}
	if f.AssociatedEmail != "" {
		add("(creator_email = $? OR $? = ANY(collaborators) OR $? = ANY(viewers))", f.AssociatedEmail)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	var priority, status string
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.DueDate, &priority, &status, &t.CreatorEmail,
		&t.Collaborators, &t.Viewers, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Priority = Priority(priority)
	t.Status = Status(status)
	t = t.Clone()
	t.DueDate = t.DueDate.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
