package service

import (
	"context"
	"strings"

	"taskboard/pkg/apperr"
	"taskboard/pkg/notification"
)

// NotificationService answers notification feed queries.
type NotificationService struct {
	store notification.Store
}

// NewNotificationService creates a NotificationService.
func NewNotificationService(store notification.Store) *NotificationService {
	return &NotificationService{store: store}
}

// ListForUser returns every notification addressed to email, newest first.
func (s *NotificationService) ListForUser(ctx context.Context, email string) ([]notification.Notification, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperr.Validation("user email is required")
	}
	out, err := s.store.ForUser(ctx, email)
	if err != nil {
		return nil, apperr.Storage("list notifications", err)
	}
	if out == nil {
		out = []notification.Notification{}
	}
	return out, nil
}
