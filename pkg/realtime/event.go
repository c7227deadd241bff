// Package realtime pushes task mutation events to board clients. Publishing is
// fire-and-forget: a slow or absent consumer never blocks a mutation.
package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"taskboard/pkg/task"
)

// EventType names a task mutation as the board client knows it.
type EventType string

const (
	TaskCreated EventType = "taskCreated"
	TaskUpdated EventType = "taskUpdated"
	TaskDeleted EventType = "taskDeleted"
)

// Event is one task mutation pushed to subscribers.
type Event struct {
	ID        string    `json:"id"` // UUID v7 (time-ordered)
	Type      EventType `json:"type"`
	TaskID    string    `json:"taskId"`
	Task      task.Task `json:"task"` // state after the mutation; for deletes, the removed task
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an Event for t.
func NewEvent(typ EventType, t task.Task, at time.Time) Event {
	return Event{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      typ,
		TaskID:    t.ID,
		Task:      t.Clone(),
		Timestamp: at,
	}
}

// Publisher delivers events to some transport.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout publishes every event to each of its publishers.
type Fanout []Publisher

// Publish delivers e to all publishers and joins their errors.
func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
