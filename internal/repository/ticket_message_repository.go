package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// TicketMessageRepository persists the conversation attached to a ticket.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.TicketMessage) error
	// ListByTicket returns the messages of ticketID oldest first.
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository returns a Postgres-backed implementation.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.TicketMessage) error {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO ticket_messages (id, ticket_id, sender_id, sender_name, sender_role, body, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = q.Exec(ctx, query,
		msg.ID,
		msg.TicketID,
		msg.SenderID,
		msg.SenderName,
		msg.SenderRole,
		msg.Body,
		msg.CreatedAt,
	)
	return err
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `
        SELECT id, ticket_id, sender_id, sender_name, sender_role, body, created_at
        FROM ticket_messages
        WHERE ticket_id=$1
        ORDER BY created_at ASC, id ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TicketMessage
	for rows.Next() {
		var m domain.TicketMessage
		if err := rows.Scan(&m.ID, &m.TicketID, &m.SenderID, &m.SenderName, &m.SenderRole, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
