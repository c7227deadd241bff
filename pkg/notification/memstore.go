package notification

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-process notification log.
type MemStore struct {
	mu    sync.RWMutex
	items []Notification
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// EnsureSchema is a no-op for the in-memory store.
func (s *MemStore) EnsureSchema(context.Context) error { return nil }

// Append stores a copy of n under a fresh UUIDv7.
func (s *MemStore) Append(_ context.Context, n *Notification) (*Notification, error) {
	n.ID = uuid.Must(uuid.NewV7()).String()
	stored := cloneNotification(*n)

	s.mu.Lock()
	s.items = append(s.items, stored)
	s.mu.Unlock()

	out := cloneNotification(stored)
	return &out, nil
}

// ForUser returns copies of the notifications addressed to email, newest first.
func (s *MemStore) ForUser(_ context.Context, email string) ([]Notification, error) {
	s.mu.RLock()
	out := []Notification{}
	for _, n := range s.items {
		if slices.Contains(n.Users, email) {
			out = append(out, cloneNotification(n))
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, newestFirst)
	return out, nil
}

// Len returns the number of stored notifications.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func newestFirst(a, b Notification) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}
