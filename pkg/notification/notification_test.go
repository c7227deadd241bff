package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"taskboard/pkg/task"
)

func baseTask() task.Task {
	return task.Task{
		ID:            "t1",
		Name:          "Write spec",
		Description:   "draft",
		DueDate:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Priority:      task.PriorityHigh,
		Status:        task.StatusPending,
		CreatorEmail:  "a@x.com",
		Collaborators: []string{},
		Viewers:       []string{},
	}
}

func TestDiffStatusOnly(t *testing.T) {
	old := baseTask()
	next := old.Clone()
	next.Status = task.StatusInProgress

	assert.Equal(t, []Update{
		{Field: "status", OldValue: "Pending", NewValue: "In Progress"},
	}, Diff(old, next))
}

func TestDiffNoChange(t *testing.T) {
	old := baseTask()
	next := old.Clone()
	next.Collaborators = nil
	// Same instant, different zone.
	next.DueDate = old.DueDate.In(time.FixedZone("+03:00", 3*3600))

	got := Diff(old, next)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestDiffAllFieldsInOrder(t *testing.T) {
	old := baseTask()
	old.Collaborators = []string{"b@x.com", "c@x.com"}
	next := task.Task{
		Name:          "Write full spec",
		Description:   "final",
		DueDate:       time.Date(2025, 2, 1, 12, 30, 0, 0, time.UTC),
		Priority:      task.PriorityLow,
		Status:        task.StatusCompleted,
		Collaborators: []string{"c@x.com", "b@x.com"},
		Viewers:       []string{"d@x.com"},
	}

	assert.Equal(t, []Update{
		{Field: "name", OldValue: "Write spec", NewValue: "Write full spec"},
		{Field: "description", OldValue: "draft", NewValue: "final"},
		{Field: "dueDate", OldValue: "2025-01-01T00:00:00.000Z", NewValue: "2025-02-01T12:30:00.000Z"},
		{Field: "priority", OldValue: "High", NewValue: "Low"},
		{Field: "status", OldValue: "Pending", NewValue: "Completed"},
		{Field: "collaborators", OldValue: "b@x.com, c@x.com", NewValue: "c@x.com, b@x.com"},
		{Field: "viewers", OldValue: "", NewValue: "d@x.com"},
	}, Diff(old, next))
}

func TestRecipients(t *testing.T) {
	got := Recipients(
		[]string{"b@x.com", "c@x.com"},
		[]string{"c@x.com", "", "  "},
		[]string{"a@x.com"},
		[]string{"b@x.com"},
	)
	assert.Equal(t, []string{"b@x.com", "c@x.com", "a@x.com"}, got)
	assert.Equal(t, []string{}, Recipients())
}

func TestMessages(t *testing.T) {
	assert.Equal(t, `Task "Write spec" created by "a@x.com"`, CreatedMessage("Write spec", "a@x.com"))
	assert.Equal(t, `Task "Write spec" updated by "b@x.com".`, UpdatedMessage("Write spec", "b@x.com"))
	assert.Equal(t, `Task "Write spec" deleted`, DeletedMessage("Write spec"))
}
