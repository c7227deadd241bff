package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-process task store. List returns tasks in insertion order.
type MemStore struct {
	mu    sync.RWMutex
	order []string
	tasks map[string]Task
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{tasks: make(map[string]Task)}
}

// EnsureSchema is a no-op for the in-memory store.
func (s *MemStore) EnsureSchema(context.Context) error { return nil }

// ValidID reports whether id parses as a UUID.
func (s *MemStore) ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Create inserts a copy of t under a fresh UUIDv7.
func (s *MemStore) Create(_ context.Context, t *Task) (*Task, error) {
	t.ID = uuid.Must(uuid.NewV7()).String()
	stored := t.Clone()

	s.mu.Lock()
	s.tasks[t.ID] = stored
	s.order = append(s.order, t.ID)
	s.mu.Unlock()

	out := stored.Clone()
	return &out, nil
}

// Get returns a copy of the task with the given id.
func (s *MemStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	t, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get task %s: %w", id, ErrNotFound)
	}
	out := t.Clone()
	return &out, nil
}

// List returns copies of all tasks matching f.
func (s *MemStore) List(_ context.Context, f Filter) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := []Task{}
	for _, id := range s.order {
		if t := s.tasks[id]; f.Match(t) {
			tasks = append(tasks, t.Clone())
		}
	}
	return tasks, nil
}

// Replace overwrites the mutable fields of the stored task.
func (s *MemStore) Replace(_ context.Context, t *Task) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[t.ID]
	if !ok {
		return nil, fmt.Errorf("replace task %s: %w", t.ID, ErrNotFound)
	}
	next := t.Clone()
	next.CreatorEmail = cur.CreatorEmail
	next.CreatedAt = cur.CreatedAt
	s.tasks[t.ID] = next

	out := next.Clone()
	return &out, nil
}

// Delete removes the task and returns it.
func (s *MemStore) Delete(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("delete task %s: %w", id, ErrNotFound)
	}
	delete(s.tasks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return &t, nil
}
