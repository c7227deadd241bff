package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"taskboard/pkg/apperr"
	"taskboard/pkg/notification"
	"taskboard/pkg/realtime"
	"taskboard/pkg/task"
)

var due = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// --- Test doubles ---

type capturePublisher struct {
	mu     sync.Mutex
	events []realtime.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, e realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type failingNotifications struct{}

func (failingNotifications) Append(context.Context, *notification.Notification) (*notification.Notification, error) {
	return nil, errors.New("notifications collection unavailable")
}

func (failingNotifications) ForUser(context.Context, string) ([]notification.Notification, error) {
	return nil, errors.New("notifications collection unavailable")
}

func (failingNotifications) EnsureSchema(context.Context) error { return nil }

type countingRecorder struct {
	mutations map[string]int
	dropped   int
	failed    int
}

func (r *countingRecorder) TaskMutation(op string) { r.mutations[op]++ }
func (r *countingRecorder) NotificationDropped()    { r.dropped++ }
func (r *countingRecorder) PublishFailed()          { r.failed++ }

type fixture struct {
	svc    *TaskService
	feed   *NotificationService
	tasks  *task.MemStore
	notifs *notification.MemStore
	pub    *capturePublisher
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		tasks:  task.NewMemStore(),
		notifs: notification.NewMemStore(),
		pub:    &capturePublisher{},
		clock:  time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewTaskService(f.tasks, f.notifs, zaptest.NewLogger(t),
		WithPublisher(f.pub),
		WithClock(func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		}))
	f.feed = NewNotificationService(f.notifs)
	return f
}

func writeSpec() TaskInput {
	return TaskInput{
		Name:         "Write spec",
		Description:  "first draft",
		DueDate:      due,
		Priority:     task.PriorityHigh,
		Status:       task.StatusPending,
		CreatorEmail: "a@x.com",
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := writeSpec()
	in.Collaborators = []string{"b@x.com"}
	in.Viewers = []string{"c@x.com"}

	created, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Write spec", created.Name)
	assert.Equal(t, "first draft", created.Description)
	assert.True(t, created.DueDate.Equal(due))
	assert.Equal(t, task.PriorityHigh, created.Priority)
	assert.Equal(t, task.StatusPending, created.Status)
	assert.Equal(t, "a@x.com", created.CreatorEmail)
	assert.Equal(t, []string{"b@x.com"}, created.Collaborators)
	assert.Equal(t, []string{"c@x.com"}, created.Viewers)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, *created, *got)

	feed, err := f.feed.ListForUser(ctx, "c@x.com")
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, `Task "Write spec" created by "a@x.com"`, feed[0].Message)
	assert.Equal(t, created.ID, feed[0].TaskID)
	assert.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, feed[0].Users)
	assert.Equal(t, []notification.Update{}, feed[0].Updates)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, realtime.TaskCreated, f.pub.events[0].Type)
	assert.Equal(t, created.ID, f.pub.events[0].TaskID)
}

func TestCreateDefaultsEmptyLists(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), writeSpec())
	require.NoError(t, err)
	assert.Equal(t, []string{}, created.Collaborators)
	assert.Equal(t, []string{}, created.Viewers)
}

func TestCreateKeepsViewersAsGiven(t *testing.T) {
	f := newFixture(t)
	in := writeSpec()
	in.Collaborators = []string{"b@x.com"}
	in.Viewers = []string{"b@x.com", "c@x.com"}

	created, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in.Viewers, created.Viewers)

	stored, err := f.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b@x.com", "c@x.com"}, stored.Viewers)

	// The next update applies the filter.
	updated, err := f.svc.Update(context.Background(), created.ID, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"c@x.com"}, updated.Viewers)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TaskInput)
		want   string
	}{
		{"missing name", func(in *TaskInput) { in.Name = "  " }, "name"},
		{"missing description", func(in *TaskInput) { in.Description = "" }, "description"},
		{"missing due date", func(in *TaskInput) { in.DueDate = time.Time{} }, "dueDate"},
		{"missing creator", func(in *TaskInput) { in.CreatorEmail = "" }, "creatorEmail"},
		{"missing priority", func(in *TaskInput) { in.Priority = "" }, "priority"},
		{"bad priority", func(in *TaskInput) { in.Priority = "Urgent" }, `invalid priority "Urgent"`},
		{"bad status", func(in *TaskInput) { in.Status = "Done" }, `invalid status "Done"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := writeSpec()
			tt.mutate(&in)

			_, err := f.svc.Create(context.Background(), in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Contains(t, err.Error(), tt.want)

			all, err := f.svc.List(context.Background(), task.Filter{})
			require.NoError(t, err)
			assert.Empty(t, all, "no partial task is left behind")
			assert.Zero(t, f.notifs.Len())
			assert.Empty(t, f.pub.events)
		})
	}
}

func TestGetNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), "0192f0c4-8b7e-7000-8000-000000000000")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateStatusOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, writeSpec())
	require.NoError(t, err)

	in := writeSpec()
	in.Status = task.StatusInProgress
	updated, err := f.svc.Update(ctx, created.ID, in)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, updated.Status)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	feed, err := f.feed.ListForUser(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, `Task "Write spec" updated by "a@x.com".`, feed[0].Message)
	assert.Equal(t, []notification.Update{
		{Field: "status", OldValue: "Pending", NewValue: "In Progress"},
	}, feed[0].Updates)
}

func TestUpdateWriteSpecScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, writeSpec())
	require.NoError(t, err)

	in := writeSpec()
	in.Collaborators = []string{"b@x.com"}
	in.Viewers = []string{"b@x.com", "c@x.com"}
	updated, err := f.svc.Update(ctx, created.ID, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"b@x.com"}, updated.Collaborators)
	assert.Equal(t, []string{"c@x.com"}, updated.Viewers)

	stored, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"c@x.com"}, stored.Viewers)

	feed, err := f.feed.ListForUser(ctx, "c@x.com")
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, []notification.Update{
		{Field: "collaborators", OldValue: "", NewValue: "b@x.com"},
		{Field: "viewers", OldValue: "", NewValue: "b@x.com, c@x.com"},
	}, feed[0].Updates)
	assert.ElementsMatch(t, []string{"a@x.com", "b@x.com", "c@x.com"}, feed[0].Users)

	unrelated, err := f.feed.ListForUser(ctx, "z@x.com")
	require.NoError(t, err)
	assert.Empty(t, unrelated)
	assert.NotNil(t, unrelated)
}

func TestUpdateDiffTakenBeforeViewerFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := writeSpec()
	in.Collaborators = []string{"b@x.com"}
	created, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	// b@x.com is re-sent as a viewer; the filter absorbs it but the diff still shows it.
	in.Viewers = []string{"b@x.com"}
	updated, err := f.svc.Update(ctx, created.ID, in)
	require.NoError(t, err)
	assert.Equal(t, []string{}, updated.Viewers)

	feed, err := f.feed.ListForUser(ctx, "b@x.com")
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, []notification.Update{
		{Field: "viewers", OldValue: "", NewValue: "b@x.com"},
	}, feed[0].Updates)
}

func TestUpdateKeepsCreatorAndNotifiesActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := writeSpec()
	in.Collaborators = []string{"b@x.com"}
	created, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	in.CreatorEmail = "b@x.com"
	in.Name = "Write full spec"
	updated, err := f.svc.Update(ctx, created.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", updated.CreatorEmail)

	feed, err := f.feed.ListForUser(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, `Task "Write full spec" updated by "b@x.com".`, feed[0].Message)
	assert.Equal(t, []string{"b@x.com", "a@x.com"}, feed[0].Users)
}

func TestUpdateErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, writeSpec())
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "0192f0c4-8b7e-7000-8000-000000000000", writeSpec())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	bad := writeSpec()
	bad.Status = "Blocked"
	_, err = f.svc.Update(ctx, created.ID, bad)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	stored, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, stored.Status)
	assert.Equal(t, 1, f.notifs.Len())
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := writeSpec()
	in.Collaborators = []string{"b@x.com"}
	in.Viewers = []string{"c@x.com"}
	created, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.Delete(ctx, created.ID)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	feed, err := f.feed.ListForUser(ctx, "b@x.com")
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, `Task "Write spec" deleted`, feed[0].Message)
	assert.Equal(t, created.ID, feed[0].TaskID)
	assert.Equal(t, []string{"b@x.com", "c@x.com"}, feed[0].Users)

	creatorFeed, err := f.feed.ListForUser(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, creatorFeed, 1, "creator only sees the create notification")
	assert.Equal(t, 2, f.notifs.Len())

	require.Len(t, f.pub.events, 2)
	assert.Equal(t, realtime.TaskDeleted, f.pub.events[1].Type)
}

func TestDeleteErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Delete(ctx, "not-an-id")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Delete(ctx, "0192f0c4-8b7e-7000-8000-000000000000")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Zero(t, f.notifs.Len())
}

func TestListAssociatedEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mk := func(name, creator string, collaborators, viewers []string) string {
		in := writeSpec()
		in.Name = name
		in.CreatorEmail = creator
		in.Collaborators = collaborators
		in.Viewers = viewers
		created, err := f.svc.Create(ctx, in)
		require.NoError(t, err)
		return created.ID
	}
	a := mk("created by x", "x@x.com", []string{"x@x.com"}, nil)
	b := mk("x collaborates", "a@x.com", []string{"x@x.com"}, nil)
	c := mk("x views", "a@x.com", nil, []string{"x@x.com"})
	mk("unrelated", "a@x.com", nil, nil)

	got, err := f.svc.List(ctx, task.Filter{AssociatedEmail: "x@x.com"})
	require.NoError(t, err)
	var ids []string
	for _, tk := range got {
		ids = append(ids, tk.ID)
	}
	assert.Equal(t, []string{a, b, c}, ids)
}

func TestNotificationFailureDoesNotFailMutation(t *testing.T) {
	tasks := task.NewMemStore()
	rec := &countingRecorder{mutations: map[string]int{}}
	svc := NewTaskService(tasks, failingNotifications{}, zaptest.NewLogger(t), WithRecorder(rec))
	ctx := context.Background()

	created, err := svc.Create(ctx, writeSpec())
	require.NoError(t, err)
	_, err = svc.Update(ctx, created.ID, writeSpec())
	require.NoError(t, err)
	_, err = svc.Delete(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"create": 1, "update": 1, "delete": 1}, rec.mutations)
	assert.Equal(t, 3, rec.dropped)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	rec := &countingRecorder{mutations: map[string]int{}}
	pub := &capturePublisher{err: errors.New("nats: connection closed")}
	svc := NewTaskService(task.NewMemStore(), notification.NewMemStore(), zaptest.NewLogger(t),
		WithPublisher(pub), WithRecorder(rec))

	_, err := svc.Create(context.Background(), writeSpec())
	require.NoError(t, err)
	assert.Len(t, pub.events, 1)
	assert.Equal(t, 1, rec.failed)
}

func TestListForUserRequiresEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.feed.ListForUser(context.Background(), " ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = NewNotificationService(failingNotifications{}).ListForUser(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, apperr.ErrStorage)
}
