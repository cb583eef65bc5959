package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

type notificationRepo struct {
	s *Store
}

func notifKey(recipientID, eventKey string) string {
	return recipientID + "|" + eventKey
}

func (r notificationRepo) CreateIfAbsent(ctx context.Context, n *domain.Notification) (bool, error) {
	created := false
	err := r.s.view(ctx, func(st *state) error {
		key := notifKey(n.RecipientID, n.EventKey)
		if _, exists := st.notifKeys[key]; exists {
			return nil
		}
		st.notifications[n.ID] = *n
		st.notifKeys[key] = n.ID
		created = true
		return nil
	})
	return created, err
}

func (r notificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var out domain.Notification
	err := r.s.view(ctx, func(st *state) error {
		n, ok := st.notifications[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r notificationRepo) MarkRead(ctx context.Context, id string, at time.Time) error {
	return r.s.view(ctx, func(st *state) error {
		n, ok := st.notifications[id]
		if !ok {
			return pgx.ErrNoRows
		}
		n.Read = true
		if n.ReadAt == nil {
			readAt := at
			n.ReadAt = &readAt
		}
		st.notifications[id] = n
		return nil
	})
}

func (r notificationRepo) MarkUnread(ctx context.Context, id string) error {
	return r.s.view(ctx, func(st *state) error {
		n, ok := st.notifications[id]
		if !ok {
			return pgx.ErrNoRows
		}
		n.Read = false
		n.ReadAt = nil
		st.notifications[id] = n
		return nil
	})
}

func (r notificationRepo) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	var changed int64
	err := r.s.view(ctx, func(st *state) error {
		for id, n := range st.notifications {
			if n.RecipientID != recipientID || n.Read {
				continue
			}
			n.Read = true
			readAt := at
			n.ReadAt = &readAt
			st.notifications[id] = n
			changed++
		}
		return nil
	})
	return changed, err
}

func (r notificationRepo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	count := 0
	err := r.s.view(ctx, func(st *state) error {
		for _, n := range st.notifications {
			if n.RecipientID == recipientID && !n.Read {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r notificationRepo) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	var result []domain.Notification
	err := r.s.view(ctx, func(st *state) error {
		for _, n := range st.notifications {
			if n.RecipientID != recipientID || (unreadOnly && n.Read) {
				continue
			}
			result = append(result, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if limit <= 0 {
		limit = 50
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
