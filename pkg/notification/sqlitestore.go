package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"taskboard/pkg/task"
)

// sqliteMigrations is the ordered list of schema migrations for the notifications table.
var sqliteMigrations = []string{
	`
CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	message    TEXT NOT NULL,
	task_id    TEXT NOT NULL,
	users      TEXT NOT NULL DEFAULT '[]',
	updates    TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at, id);
CREATE INDEX IF NOT EXISTS idx_notifications_task_id ON notifications(task_id);
`,
}

type sqliteNotification struct {
	ID        string `db:"id"`
	Message   string `db:"message"`
	TaskID    string `db:"task_id"`
	Users     string `db:"users"`
	Updates   string `db:"updates"`
	CreatedAt string `db:"created_at"`
}

// SQLiteStore is a SQLite-backed notification log.
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
		`CREATE TABLE IF NOT EXISTS notification_schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating notification_schema_version: %w", err)
	}
	var current int
	if err := s.db.GetContext(ctx, &current,
		`SELECT COALESCE(MAX(version), 0) FROM notification_schema_version`); err != nil {
		return fmt.Errorf("reading notification schema version: %w", err)
	}
	for i, stmt := range sqliteMigrations {
		version := i + 1
		if version <= current {
			continue
		}
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin notification migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying notification migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notification_schema_version (version) VALUES (?)`, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording notification migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit notification migration %d: %w", version, err)
		}
	}
	return nil
}

// Append inserts a notification under a fresh UUIDv7.
func (s *SQLiteStore) Append(ctx context.Context, n *Notification) (*Notification, error) {
	n.ID = uuid.Must(uuid.NewV7()).String()
	c := cloneNotification(*n)

	users, err := json.Marshal(c.Users)
	if err != nil {
		return nil, fmt.Errorf("encode users: %w", err)
	}
	updates, err := json.Marshal(c.Updates)
	if err != nil {
		return nil, fmt.Errorf("encode updates: %w", err)
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO notifications (id, message, task_id, users, updates, created_at)
		VALUES (:id, :message, :task_id, :users, :updates, :created_at)`,
		sqliteNotification{
			ID:        c.ID,
			Message:   c.Message,
			TaskID:    c.TaskID,
			Users:     string(users),
			Updates:   string(updates),
			CreatedAt: c.CreatedAt.UTC().Format(task.SQLiteTimeLayout),
		})
	if err != nil {
		return nil, fmt.Errorf("inserting notification: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC().Truncate(time.Millisecond)
	return &c, nil
}

// ForUser returns notifications addressed to email, newest first.
func (s *SQLiteStore) ForUser(ctx context.Context, email string) ([]Notification, error) {
	var rows []sqliteNotification
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM notifications
		WHERE EXISTS (SELECT 1 FROM json_each(notifications.users) WHERE json_each.value = ?)
		ORDER BY created_at DESC, id DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("listing notifications for %s: %w", email, err)
	}

	out := make([]Notification, 0, len(rows))
	for _, r := range rows {
		n := Notification{ID: r.ID, Message: r.Message, TaskID: r.TaskID}
		if n.CreatedAt, err = time.Parse(task.SQLiteTimeLayout, r.CreatedAt); err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.Users), &n.Users); err != nil {
			return nil, fmt.Errorf("decode users of %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.Updates), &n.Updates); err != nil {
			return nil, fmt.Errorf("decode updates of %s: %w", r.ID, err)
		}
		out = append(out, cloneNotification(n))
	}
	return out, nil
}
