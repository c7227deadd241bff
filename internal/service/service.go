// Package service applies task mutations and derives the notification log
// and realtime events from them.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"taskboard/pkg/apperr"
	"taskboard/pkg/notification"
	"taskboard/pkg/realtime"
	"taskboard/pkg/task"
)

// Recorder receives counts of service-level outcomes. internal/metrics
// provides the Prometheus implementation.
type Recorder interface {
	TaskMutation(op string)
	NotificationDropped()
	PublishFailed()
}

type nopRecorder struct{}

func (nopRecorder) TaskMutation(string) {}
func (nopRecorder) NotificationDropped() {}
func (nopRecorder) PublishFailed()       {}

// TaskInput carries the client-supplied fields of a create or update.
// On update, CreatorEmail is the acting user and never overwrites the stored creator.
type TaskInput struct {
	Name          string
	Description   string
	DueDate       time.Time
	Priority      task.Priority
	Status        task.Status
	CreatorEmail  string
	Collaborators []string
	Viewers       []string
}

// Option configures a TaskService.
type Option func(*TaskService)

// WithPublisher sets the realtime publisher. Without one no events are sent.
func WithPublisher(p realtime.Publisher) Option {
	return func(s *TaskService) { s.publisher = p }
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(s *TaskService) { s.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *TaskService) { s.now = now }
}

// TaskService validates and applies task operations. Each successful mutation
// appends one notification and publishes one realtime event, both best-effort.
type TaskService struct {
	tasks         task.Store
	notifications notification.Store
	publisher     realtime.Publisher
	recorder      Recorder
	logger        *zap.Logger
	now           func() time.Time
}

// NewTaskService creates a TaskService.
func NewTaskService(tasks task.Store, notifications notification.Store, logger *zap.Logger, opts ...Option) *TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TaskService{
		tasks:         tasks,
		notifications: notifications,
		recorder:      nopRecorder{},
		logger:        logger.Named("service"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates in, stores a new task exactly as given and notifies the
// creator, collaborators and viewers. The viewer filter applies on update only.
func (s *TaskService) Create(ctx context.Context, in TaskInput) (*task.Task, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	now := s.timestamp()
	t := &task.Task{
		Name:          in.Name,
		Description:   in.Description,
		DueDate:       in.DueDate.UTC().Truncate(task.Precision),
		Priority:      in.Priority,
		Status:        in.Status,
		CreatorEmail:  in.CreatorEmail,
		Collaborators: in.Collaborators,
		Viewers:       in.Viewers,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	*t = t.Clone()

	created, err := s.tasks.Create(ctx, t)
	if err != nil {
		return nil, apperr.Storage("create task", err)
	}
	s.recorder.TaskMutation("create")

	s.record(ctx, &notification.Notification{
		Message: notification.CreatedMessage(created.Name, created.CreatorEmail),
		TaskID:  created.ID,
		Users:   notification.Recipients([]string{in.CreatorEmail}, in.Collaborators, in.Viewers),
	})
	s.publish(ctx, realtime.TaskCreated, *created)
	return created, nil
}

// List returns the tasks matching f in store order.
func (s *TaskService) List(ctx context.Context, f task.Filter) ([]task.Task, error) {
	tasks, err := s.tasks.List(ctx, f)
	if err != nil {
		return nil, apperr.Storage("list tasks", err)
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	return tasks, nil
}

// Get returns the task with the given id.
func (s *TaskService) Get(ctx context.Context, id string) (*task.Task, error) {
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, storeError("get task", id, err)
	}
	return t, nil
}

// Update replaces the mutable fields of a task. The field diff is taken
// against the input as given, before viewers that are also collaborators are
// dropped.
func (s *TaskService) Update(ctx context.Context, id string, in TaskInput) (*task.Task, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	cur, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, storeError("get task", id, err)
	}

	next := cur.Clone()
	next.Name = in.Name
	next.Description = in.Description
	next.DueDate = in.DueDate.UTC().Truncate(task.Precision)
	next.Priority = in.Priority
	next.Status = in.Status
	next.Collaborators = in.Collaborators
	next.Viewers = in.Viewers
	next = next.Clone()

	updates := notification.Diff(*cur, next)

	next.Viewers = task.ExcludeCollaborators(next.Viewers, next.Collaborators)
	next.UpdatedAt = s.timestamp()

	updated, err := s.tasks.Replace(ctx, &next)
	if err != nil {
		return nil, storeError("update task", id, err)
	}
	s.recorder.TaskMutation("update")

	s.record(ctx, &notification.Notification{
		Message: notification.UpdatedMessage(updated.Name, in.CreatorEmail),
		TaskID:  updated.ID,
		Users: notification.Recipients(
			in.Collaborators, in.Viewers, []string{in.CreatorEmail}, []string{cur.CreatorEmail},
		),
		Updates: updates,
	})
	s.publish(ctx, realtime.TaskUpdated, *updated)
	return updated, nil
}

// Delete removes a task and notifies its collaborators and viewers. The
// creator is not added to the recipients.
func (s *TaskService) Delete(ctx context.Context, id string) (*task.Task, error) {
	if !s.tasks.ValidID(id) {
		return nil, apperr.Validation("invalid task ID %q", id)
	}
	removed, err := s.tasks.Delete(ctx, id)
	if err != nil {
		return nil, storeError("delete task", id, err)
	}
	s.recorder.TaskMutation("delete")

	s.record(ctx, &notification.Notification{
		Message: notification.DeletedMessage(removed.Name),
		TaskID:  removed.ID,
		Users:   notification.Recipients(removed.Collaborators, removed.Viewers),
	})
	s.publish(ctx, realtime.TaskDeleted, *removed)
	return removed, nil
}

// record appends n. A failure is logged and counted but never returned:
// the task mutation has already been committed.
func (s *TaskService) record(ctx context.Context, n *notification.Notification) {
	n.CreatedAt = s.timestamp()
	if n.Updates == nil {
		n.Updates = []notification.Update{}
	}
	if _, err := s.notifications.Append(ctx, n); err != nil {
		s.recorder.NotificationDropped()
		s.logger.Warn("notification dropped",
			zap.String("task_id", n.TaskID),
			zap.String("message", n.Message),
			zap.Error(err))
	}
}

func (s *TaskService) publish(ctx context.Context, typ realtime.EventType, t task.Task) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, realtime.NewEvent(typ, t, s.timestamp())); err != nil {
		s.recorder.PublishFailed()
		s.logger.Warn("realtime publish failed",
			zap.String("type", string(typ)),
			zap.String("task_id", t.ID),
			zap.Error(err))
	}
}

func (s *TaskService) timestamp() time.Time {
	return s.now().UTC().Truncate(task.Precision)
}

func validate(in TaskInput) error {
	var missing []string
	for _, f := range []struct {
		name  string
		blank bool
	}{
		{"name", strings.TrimSpace(in.Name) == ""},
		{"description", strings.TrimSpace(in.Description) == ""},
		{"dueDate", in.DueDate.IsZero()},
		{"priority", in.Priority == ""},
		{"status", in.Status == ""},
		{"creatorEmail", strings.TrimSpace(in.CreatorEmail) == ""},
	} {
		if f.blank {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}
	if !in.Priority.Valid() {
		return apperr.Validation("invalid priority %q", in.Priority)
	}
	if !in.Status.Valid() {
		return apperr.Validation("invalid status %q", in.Status)
	}
	return nil
}

func storeError(op, id string, err error) error {
	if errors.Is(err, task.ErrNotFound) {
		return apperr.NotFound("task %s", id)
	}
	return apperr.Storage(op, err)
}
