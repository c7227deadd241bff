// Package notification holds the append-only log of task mutations and the
// pure rules that derive a log entry from a mutation: the field diff, the
// recipient set and the message text.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskboard/pkg/task"
)

// Notification is an immutable record of one task mutation.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	TaskID    string    `json:"taskId"` // the task may since have been deleted
	Users     []string  `json:"users"`
	Updates   []Update  `json:"updates"` // empty for create and delete
	CreatedAt time.Time `json:"createdAt"`
}

// Update is one field-level before/after pair.
type Update struct {
	Field    string `json:"field"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

// Store is the contract for notification persistence.
type Store interface {
	// Append assigns an id and stores n.
	Append(ctx context.Context, n *Notification) (*Notification, error)
	// ForUser returns every notification addressed to email, newest first.
	ForUser(ctx context.Context, email string) ([]Notification, error)
	EnsureSchema(ctx context.Context) error
}

// Field names used in Update.Field.
const (
	FieldName          = "name"
	FieldDescription   = "description"
	FieldDueDate       = "dueDate"
	FieldPriority      = "priority"
	FieldStatus        = "status"
	FieldCollaborators = "collaborators"
	FieldViewers       = "viewers"
)

// DateLayout renders due dates in diffs.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// Diff compares the stored task with the requested replacement and returns one
// Update per differing field, in a fixed field order. Lists are compared as
// whole ordered sequences.
func Diff(old, next task.Task) []Update {
	updates := []Update{}
	add := func(field, oldValue, newValue string) {
		updates = append(updates, Update{Field: field, OldValue: oldValue, NewValue: newValue})
	}
	if old.Name != next.Name {
		add(FieldName, old.Name, next.Name)
	}
	if old.Description != next.Description {
		add(FieldDescription, old.Description, next.Description)
	}
	if !old.DueDate.Equal(next.DueDate) {
		add(FieldDueDate, old.DueDate.UTC().Format(DateLayout), next.DueDate.UTC().Format(DateLayout))
	}
	if old.Priority != next.Priority {
		add(FieldPriority, string(old.Priority), string(next.Priority))
	}
	if old.Status != next.Status {
		add(FieldStatus, string(old.Status), string(next.Status))
	}
	if !equalLists(old.Collaborators, next.Collaborators) {
		add(FieldCollaborators, strings.Join(old.Collaborators, ", "), strings.Join(next.Collaborators, ", "))
	}
	if !equalLists(old.Viewers, next.Viewers) {
		add(FieldViewers, strings.Join(old.Viewers, ", "), strings.Join(next.Viewers, ", "))
	}
	return updates
}

// Recipients returns the union of groups in first-seen order, skipping blanks.
func Recipients(groups ...[]string) []string {
	seen := make(map[string]struct{})
	users := []string{}
	for _, g := range groups {
		for _, u := range g {
			if strings.TrimSpace(u) == "" {
				continue
			}
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			users = append(users, u)
		}
	}
	return users
}

// CreatedMessage is the text recorded when a task is created.
func CreatedMessage(name, creator string) string {
	return fmt.Sprintf("Task %q created by %q", name, creator)
}

// UpdatedMessage is the text recorded when actor updates a task.
func UpdatedMessage(name, actor string) string {
	return fmt.Sprintf("Task %q updated by %q.", name, actor)
}

// DeletedMessage is the text recorded when a task is deleted.
func DeletedMessage(name string) string {
	return fmt.Sprintf("Task %q deleted", name)
}

// equalLists treats nil and empty as equal.
func equalLists(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneNotification(n Notification) Notification {
	n.Users = append([]string{}, n.Users...)
	n.Updates = append([]Update{}, n.Updates...)
	return n
}
