package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is a PostgreSQL-backed notification log.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureSchema creates the notifications table if it doesn't exist.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			message    TEXT NOT NULL,
			task_id    TEXT NOT NULL,
			users      TEXT[] NOT NULL DEFAULT '{}',
			updates    JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_notifications_users ON notifications USING GIN(users)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_notifications_created_id ON notifications(created_at, id)`)
	return err
}

// Append inserts a notification under a fresh UUIDv7.
func (s *PgStore) Append(ctx context.Context, n *Notification) (*Notification, error) {
	n.ID = uuid.Must(uuid.NewV7()).String()
	c := cloneNotification(*n)

	updatesJSON, err := json.Marshal(c.Updates)
	if err != nil {
		return nil, fmt.Errorf("marshal updates: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO notifications (id, message, task_id, users, updates, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		c.ID, c.Message, c.TaskID, c.Users, string(updatesJSON), c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return &c, nil
}

// ForUser returns notifications addressed to email, newest first.
func (s *PgStore) ForUser(ctx context.Context, email string) ([]Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, message, task_id, users, updates, created_at
		FROM notifications WHERE $1 = ANY(users)
		ORDER BY created_at DESC, id DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("notifications for %s: %w", email, err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		var updatesJSON []byte
		if err := rows.Scan(&n.ID, &n.Message, &n.TaskID, &n.Users, &updatesJSON, &n.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(updatesJSON, &n.Updates); err != nil {
			return nil, fmt.Errorf("unmarshal updates of %s: %w", n.ID, err)
		}
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, cloneNotification(n))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return out, nil
}
