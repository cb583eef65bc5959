package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

// maxCommitAttempts bounds reload-and-revalidate cycles on version conflicts.
const maxCommitAttempts = 3

// ticketChange describes the event a mutation produces.
type ticketChange struct {
	Type    events.EventType
	Actor   string
	Comment string
}

// mutation edits a private copy of the ticket. It must be deterministic given
// the loaded ticket because it can run more than once.
type mutation func(t *domain.Ticket, now time.Time) (ticketChange, error)

// ticketWriter commits ticket mutations together with their outbox event.
type ticketWriter struct {
	tickets repository.TicketRepository
	outbox  repository.OutboxRepository
	uow     repository.UnitOfWork
	logger  *zap.Logger
	now     func() time.Time
}

func (w *ticketWriter) load(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := w.tickets.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("load ticket", err)
	}
	return ticket, nil
}

// apply loads the ticket, runs mutate and commits the result with
// compare-and-swap on the loaded version. On conflict the whole cycle repeats
// so mutate re-validates against the fresh state.
func (w *ticketWriter) apply(ctx context.Context, id string, mutate mutation) (*domain.Ticket, error) {
	var lastErr error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		current, err := w.load(ctx, id)
		if err != nil {
			return nil, err
		}

		now := w.clock(current)
		next := current.Clone()
		change, err := mutate(&next, now)
		if err != nil {
			return nil, err
		}
		next.UpdatedAt = now
		next.Version = current.Version + 1

		evt := events.NewTicketEvent(change.Type, next, change.Actor, change.Comment, now)
		err = w.uow.WithTx(ctx, func(txCtx context.Context) error {
			if err := w.tickets.Update(txCtx, &next, current.Version); err != nil {
				return err
			}
			_, err := w.outbox.Append(txCtx, &evt)
			return err
		})
		switch {
		case err == nil:
			return &next, nil
		case errors.Is(err, repository.ErrVersionConflict):
			lastErr = err
			w.logger.Debug("ticket version conflict, retrying",
				zap.String("ticket_id", id),
				zap.Int64("expected_version", current.Version),
				zap.Int("attempt", attempt),
			)
			continue
		case errors.Is(err, pgx.ErrNoRows):
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		default:
			return nil, apperrors.NewPersistenceError("commit ticket", err)
		}
	}
	return nil, apperrors.NewPersistenceError("ticket modified concurrently", lastErr)
}

// clock returns the transition instant, never earlier than the last history
// entry, so history timestamps stay non-decreasing.
func (w *ticketWriter) clock(t *domain.Ticket) time.Time {
	now := w.now()
	if n := len(t.StatusHistory); n > 0 && now.Before(t.StatusHistory[n-1].Timestamp) {
		return t.StatusHistory[n-1].Timestamp
	}
	return now
}

// slaHours is HoursBetween with a data-integrity log for negative results.
func (w *ticketWriter) slaHours(ticketID, field string, from, to time.Time) float64 {
	hours := domain.HoursBetween(from, to)
	if hours < 0 {
		w.logger.Error("negative sla duration",
			zap.String("ticket_id", ticketID),
			zap.String("field", field),
			zap.Time("from", from),
			zap.Time("to", to),
			zap.Float64("hours", hours),
		)
	}
	return hours
}

func statusPtr(s domain.TicketStatus) *domain.TicketStatus {
	return &s
}
