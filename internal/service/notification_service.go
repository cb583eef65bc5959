package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

// NotificationService exposes a recipient's notifications and their read state.
type NotificationService struct {
	notifications repository.NotificationRepository
	now           func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(repo repository.NotificationRepository, clock func() time.Time) *NotificationService {
	if clock == nil {
		clock = time.Now
	}
	return &NotificationService{notifications: repo, now: clock}
}

// MarkAsRead marks one of recipientID's notifications read. Repeated calls keep
// the first read time.
func (s *NotificationService) MarkAsRead(ctx context.Context, recipientID, notificationID string) error {
	if err := s.owned(ctx, recipientID, notificationID); err != nil {
		return err
	}
	if err := s.notifications.MarkRead(ctx, notificationID, s.now()); err != nil {
		return mapNotificationError(notificationID, err)
	}
	return nil
}

// MarkAsUnread clears the read flag of one of recipientID's notifications.
func (s *NotificationService) MarkAsUnread(ctx context.Context, recipientID, notificationID string) error {
	if err := s.owned(ctx, recipientID, notificationID); err != nil {
		return err
	}
	if err := s.notifications.MarkUnread(ctx, notificationID); err != nil {
		return mapNotificationError(notificationID, err)
	}
	return nil
}

// MarkAllAsRead marks every unread notification of recipientID and returns how
// many changed. Calling it again changes nothing.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, recipientID string) (int64, error) {
	if recipientID == "" {
		return 0, apperrors.NewValidationError("recipient required", nil)
	}
	changed, err := s.notifications.MarkAllRead(ctx, recipientID, s.now())
	if err != nil {
		return 0, apperrors.NewPersistenceError("mark all read", err)
	}
	return changed, nil
}

// GetUnreadCount returns the number of unread notifications of recipientID.
func (s *NotificationService) GetUnreadCount(ctx context.Context, recipientID string) (int, error) {
	if recipientID == "" {
		return 0, apperrors.NewValidationError("recipient required", nil)
	}
	count, err := s.notifications.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, apperrors.NewPersistenceError("count unread", err)
	}
	return count, nil
}

// ListNotifications returns recipientID's notifications, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if recipientID == "" {
		return nil, apperrors.NewValidationError("recipient required", nil)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	items, err := s.notifications.ListByRecipient(ctx, recipientID, unreadOnly, limit)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list notifications", err)
	}
	return items, nil
}

// owned hides other recipients' notifications behind NotFound.
func (s *NotificationService) owned(ctx context.Context, recipientID, notificationID string) error {
	n, err := s.notifications.GetByID(ctx, notificationID)
	if err != nil {
		return mapNotificationError(notificationID, err)
	}
	if n.RecipientID != recipientID {
		return apperrors.NewNotFound("notification", map[string]any{"notification_id": notificationID})
	}
	return nil
}

func mapNotificationError(id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("notification", map[string]any{"notification_id": id})
	}
	return apperrors.NewPersistenceError("notification store", err)
}
