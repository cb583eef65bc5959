package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// ChangeKind classifies one entry of a feed snapshot.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// TicketChange is a single document change. For removals only Ticket.ID is
// guaranteed to be set.
type TicketChange struct {
	Kind   ChangeKind
	Ticket domain.Ticket
}

// Snapshot is one callback of a live ticket query. Initial marks the first
// callback of a subscription; its Tickets are the current result set and it
// carries no Changes.
type Snapshot struct {
	Initial bool
	Tickets []domain.Ticket
	Changes []TicketChange
}

// SnapshotHandler receives feed callbacks serially.
type SnapshotHandler func(Snapshot)

// TicketFeed is a live subscription over the ticket collection. The returned
// function stops delivery and is safe to call more than once.
type TicketFeed interface {
	Subscribe(ctx context.Context, handler SnapshotHandler) (func(), error)
}

// TicketsChangedChannel is the NOTIFY channel raised by the tickets trigger.
const TicketsChangedChannel = "tickets_changed"

type ticketNotification struct {
	Op      string `json:"op"`
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

type pgTicketFeed struct {
	pool           *pgxpool.Pool
	tickets        TicketRepository
	logger         *zap.Logger
	limit          int
	reconnectDelay time.Duration
}

// NewTicketFeed returns a LISTEN/NOTIFY backed feed. limit bounds the initial
// snapshot to the most recently updated tickets.
func NewTicketFeed(pool *pgxpool.Pool, tickets TicketRepository, logger *zap.Logger, limit int, reconnectDelay time.Duration) TicketFeed {
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	return &pgTicketFeed{
		pool:           pool,
		tickets:        tickets,
		logger:         logger,
		limit:          limit,
		reconnectDelay: reconnectDelay,
	}
}

func (f *pgTicketFeed) Subscribe(ctx context.Context, handler SnapshotHandler) (func(), error) {
	if f.pool == nil {
		return nil, ErrNotConfigured
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.run(ctx, handler)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func (f *pgTicketFeed) run(ctx context.Context, handler SnapshotHandler) {
	known := make(map[string]int64)
	initial := true
	since := time.Now()
	delay := f.reconnectDelay

	for {
		err := f.listen(ctx, handler, known, &initial, since)
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("ticket feed disconnected", zap.Error(err), zap.Duration("retry_in", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}

func (f *pgTicketFeed) listen(ctx context.Context, handler SnapshotHandler, known map[string]int64, initial *bool, since time.Time) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "UNLISTEN *")
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+TicketsChangedChannel); err != nil {
		return err
	}

	// Load after LISTEN so no change between the two steps is missed.
	current, err := f.tickets.ListWithFilter(ctx, TicketFilter{Limit: f.limit})
	if err != nil {
		return err
	}
	if *initial {
		for _, t := range current {
			known[t.ID] = t.Version
		}
		*initial = false
		handler(Snapshot{Initial: true, Tickets: current})
	} else if changes := diffKnown(known, current, since); len(changes) > 0 {
		handler(Snapshot{Tickets: current, Changes: changes})
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var payload ticketNotification
		if err := json.Unmarshal([]byte(n.Payload), &payload); err != nil {
			f.logger.Warn("ticket feed: bad payload", zap.String("payload", n.Payload), zap.Error(err))
			continue
		}

		if payload.Op == "DELETE" {
			delete(known, payload.ID)
			handler(Snapshot{Changes: []TicketChange{{Kind: ChangeRemoved, Ticket: domain.Ticket{ID: payload.ID}}}})
			continue
		}
		if v, ok := known[payload.ID]; ok && payload.Version <= v {
			continue
		}

		ticket, err := f.tickets.GetByID(ctx, payload.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return err
		}
		if change, ok := notifiedChange(known, payload.Op, *ticket); ok {
			handler(Snapshot{Tickets: []domain.Ticket{*ticket}, Changes: []TicketChange{change}})
		}
	}
}

// notifiedChange classifies a ticket fetched after a NOTIFY. Only an INSERT is
// an addition; an UPDATE to a ticket outside the initial snapshot is still a
// modification.
func notifiedChange(known map[string]int64, op string, t domain.Ticket) (TicketChange, bool) {
	if v, ok := known[t.ID]; ok && t.Version <= v {
		return TicketChange{}, false
	}
	known[t.ID] = t.Version
	if op == "INSERT" {
		return TicketChange{Kind: ChangeAdded, Ticket: t}, true
	}
	return TicketChange{Kind: ChangeModified, Ticket: t}, true
}

// diffKnown compares a reloaded result set with the known versions after a
// reconnect and records them. A ticket missing from known is only an addition
// when it was created after since; older unknown tickets count as modified if
// they changed after since and are otherwise just recorded.
func diffKnown(known map[string]int64, tickets []domain.Ticket, since time.Time) []TicketChange {
	var changes []TicketChange
	for _, t := range tickets {
		v, ok := known[t.ID]
		if ok && t.Version <= v {
			continue
		}
		known[t.ID] = t.Version
		switch {
		case ok:
			changes = append(changes, TicketChange{Kind: ChangeModified, Ticket: t})
		case !t.CreatedAt.Before(since):
			changes = append(changes, TicketChange{Kind: ChangeAdded, Ticket: t})
		case !t.UpdatedAt.Before(since):
			changes = append(changes, TicketChange{Kind: ChangeModified, Ticket: t})
		}
	}
	return changes
}
