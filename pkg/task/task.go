package task

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

// Precision is the resolution at which task timestamps are stored. It is the
// coarsest resolution among the supported backends (MongoDB dates).
const Precision = time.Millisecond

// ErrNotFound is returned by stores when no task has the requested id.
var ErrNotFound = errors.New("task not found")

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Status is a column on the board.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Task is a trackable unit of work with an access list.
type Task struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	DueDate       time.Time `json:"dueDate"`
	Priority      Priority  `json:"priority"`
	Status        Status    `json:"status"`
	CreatorEmail  string    `json:"creatorEmail"`  // immutable after create
	Collaborators []string  `json:"collaborators"` // may edit
	Viewers       []string  `json:"viewers"`       // never also a collaborator
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Clone returns a copy of t that shares no slices with it.
func (t Task) Clone() Task {
	t.Collaborators = cloneList(t.Collaborators)
	t.Viewers = cloneList(t.Viewers)
	return t
}

// IsAssociated reports whether email is the creator, a collaborator or a viewer.
func (t Task) IsAssociated(email string) bool {
	return t.CreatorEmail == email ||
		slices.Contains(t.Collaborators, email) ||
		slices.Contains(t.Viewers, email)
}

// Filter selects tasks. Zero-valued fields impose no constraint; the rest are ANDed.
type Filter struct {
	Name            string // case-insensitive substring
	CreatorEmail    string
	Description     string
	Status          Status
	Priority        Priority
	DueDateLTE      *time.Time
	AssociatedEmail string // creator OR collaborator OR viewer
}

// Match reports whether t satisfies every constraint in f.
func (f Filter) Match(t Task) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.CreatorEmail != "" && t.CreatorEmail != f.CreatorEmail {
		return false
	}
	if f.Description != "" && t.Description != f.Description {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.DueDateLTE != nil && t.DueDate.After(*f.DueDateLTE) {
		return false
	}
	if f.AssociatedEmail != "" && !t.IsAssociated(f.AssociatedEmail) {
		return false
	}
	return true
}

// Store is the contract for task persistence.
type Store interface {
	// Create assigns an id and inserts t. Timestamps are taken from t.
	Create(ctx context.Context, t *Task) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, f Filter) ([]Task, error)
	// Replace overwrites the mutable fields and updatedAt of the stored task
	// with the same id. CreatorEmail and CreatedAt are left untouched.
	Replace(ctx context.Context, t *Task) (*Task, error)
	// Delete removes the task and returns it as it was before removal.
	Delete(ctx context.Context, id string) (*Task, error)
	// ValidID reports whether id is syntactically valid for this backend.
	ValidID(id string) bool
	EnsureSchema(ctx context.Context) error
}

// ExcludeCollaborators returns viewers without any address that also appears
// in collaborators. Order is preserved; the result is never nil.
func ExcludeCollaborators(viewers, collaborators []string) []string {
	out := make([]string, 0, len(viewers))
	for _, v := range viewers {
		if !slices.Contains(collaborators, v) {
			out = append(out, v)
		}
	}
	return out
}

func cloneList(in []string) []string {
	if in == nil {
		return []string{}
	}
	return slices.Clone(in)
}
