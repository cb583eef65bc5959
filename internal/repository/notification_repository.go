package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// NotificationRepository persists per-recipient notifications.
type NotificationRepository interface {
	// CreateIfAbsent inserts n unless (RecipientID, EventKey) already exists.
	// It reports whether a row was written.
	CreateIfAbsent(ctx context.Context, n *domain.Notification) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	MarkUnread(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a Postgres-backed implementation.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

const notificationColumns = `id, recipient_id, type, title, message, source_ticket_id, event_key, created_at, read, read_at`

func (r *notificationRepository) CreateIfAbsent(ctx context.Context, n *domain.Notification) (bool, error) {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return false, err
	}
	const query = `
        INSERT INTO notifications (id, recipient_id, type, title, message, source_ticket_id, event_key, created_at, read, read_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (recipient_id, event_key) DO NOTHING
        RETURNING id`
	var id string
	err = q.QueryRow(ctx, query,
		n.ID,
		n.RecipientID,
		n.Type,
		n.Title,
		n.Message,
		n.SourceTicketID,
		n.EventKey,
		n.CreatedAt,
		n.Read,
		n.ReadAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	n, err := scanNotification(q.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return err
	}
	cmd, err := q.Exec(ctx, `UPDATE notifications SET read=TRUE, read_at=COALESCE(read_at, $1) WHERE id=$2`, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) MarkUnread(ctx context.Context, id string) error {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return err
	}
	cmd, err := q.Exec(ctx, `UPDATE notifications SET read=FALSE, read_at=NULL WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return 0, err
	}
	cmd, err := q.Exec(ctx, `UPDATE notifications SET read=TRUE, read_at=$1 WHERE recipient_id=$2 AND NOT read`, at, recipientID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return 0, err
	}
	var count int
	err = q.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND NOT read`, recipientID).Scan(&count)
	return count, err
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id=$1`
	if unreadOnly {
		query += ` AND NOT read`
	}
	query += ` ORDER BY created_at DESC, id LIMIT $2`

	rows, err := q.Query(ctx, query, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func scanNotification(row pgx.Row) (domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.SourceTicketID,
		&n.EventKey,
		&n.CreatedAt,
		&n.Read,
		&n.ReadAt,
	)
	return n, err
}
