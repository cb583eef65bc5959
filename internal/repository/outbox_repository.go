package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-workflow/internal/events"
)

// OutboxRepository stores lifecycle events written in the same transaction as
// the ticket change, and the per-consumer read cursors.
type OutboxRepository interface {
	// Append stores event unless its Key already exists and sets event.Seq.
	// It reports whether the event was new.
	Append(ctx context.Context, event *events.Event) (bool, error)
	ListAfter(ctx context.Context, afterSeq int64, limit int) ([]events.Event, error)
	GetCursor(ctx context.Context, consumer string) (int64, error)
	SaveCursor(ctx context.Context, consumer string, seq int64) error
}

// outboxAppendLockKey is held by every outbox writer until its transaction
// ends, so seq values become visible in commit order and the relay cursor never
// passes an event that is still uncommitted.
const outboxAppendLockKey int64 = 7_310_003

type outboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository returns a Postgres-backed implementation.
func NewOutboxRepository(pool *pgxpool.Pool) OutboxRepository {
	return &outboxRepository{pool: pool}
}

// Append joins the transaction bound to ctx, or runs in its own one.
func (r *outboxRepository) Append(ctx context.Context, event *events.Event) (bool, error) {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok && tx != nil {
		return appendEvent(ctx, tx, event)
	}
	if r.pool == nil {
		return false, ErrNotConfigured
	}
	var appended bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		appended, err = appendEvent(ctx, tx, event)
		return err
	})
	return appended, err
}

func appendEvent(ctx context.Context, q Querier, event *events.Event) (bool, error) {
	snapshot, err := json.Marshal(event.Ticket)
	if err != nil {
		return false, fmt.Errorf("encode ticket snapshot: %w", err)
	}
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, outboxAppendLockKey); err != nil {
		return false, fmt.Errorf("outbox append lock: %w", err)
	}
	const query = `
        INSERT INTO outbox_events (event_key, type, ticket_id, ticket_version, actor, comment, occurred_at, ticket)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (event_key) DO NOTHING
        RETURNING seq`
	err = q.QueryRow(ctx, query,
		event.Key,
		event.Type,
		event.TicketID,
		event.TicketVersion,
		event.Actor,
		event.Comment,
		event.Timestamp,
		snapshot,
	).Scan(&event.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *outboxRepository) ListAfter(ctx context.Context, afterSeq int64, limit int) ([]events.Event, error) {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT seq, event_key, type, ticket_id, ticket_version, actor, comment, occurred_at, ticket
        FROM outbox_events WHERE seq > $1 ORDER BY seq LIMIT $2`
	rows, err := q.Query(ctx, query, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []events.Event
	for rows.Next() {
		var (
			evt      events.Event
			snapshot []byte
		)
		if err := rows.Scan(
			&evt.Seq,
			&evt.Key,
			&evt.Type,
			&evt.TicketID,
			&evt.TicketVersion,
			&evt.Actor,
			&evt.Comment,
			&evt.Timestamp,
			&snapshot,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(snapshot, &evt.Ticket); err != nil {
			return nil, fmt.Errorf("decode outbox event %d: %w", evt.Seq, err)
		}
		result = append(result, evt)
	}
	return result, rows.Err()
}

func (r *outboxRepository) GetCursor(ctx context.Context, consumer string) (int64, error) {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return 0, err
	}
	var seq int64
	err = q.QueryRow(ctx, `SELECT last_seq FROM outbox_cursors WHERE consumer=$1`, consumer).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

func (r *outboxRepository) SaveCursor(ctx context.Context, consumer string, seq int64) error {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO outbox_cursors (consumer, last_seq, updated_at) VALUES ($1, $2, NOW())
        ON CONFLICT (consumer) DO UPDATE SET last_seq=GREATEST(outbox_cursors.last_seq, EXCLUDED.last_seq), updated_at=NOW()`
	_, err = q.Exec(ctx, query, consumer, seq)
	return err
}
