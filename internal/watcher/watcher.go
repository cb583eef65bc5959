// Package watcher turns the live ticket feed into lifecycle events. It covers
// writes that bypass the workflow engine, such as direct database edits.
package watcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
)

// Publisher receives the events the watcher derives.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Watcher tracks which ticket versions it has already seen. The first callback
// of every subscription only records a baseline; later callbacks emit events
// for unseen tickets and newer versions. The seen set outlives resubscription,
// and removed tickets stay in it so a re-add never fires.
type Watcher struct {
	feed      repository.TicketFeed
	publisher Publisher
	logger    *zap.Logger

	mu          sync.Mutex
	seen        map[string]int64
	unsubscribe func()
}

// New creates a watcher.
func New(feed repository.TicketFeed, publisher Publisher, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		feed:      feed,
		publisher: publisher,
		logger:    logger,
		seen:      make(map[string]int64),
	}
}

// Start subscribes to the feed. Calling Start while running replaces the
// current subscription with a new life cycle.
func (w *Watcher) Start(ctx context.Context) error {
	w.Stop()

	baselined := false
	handler := func(snap repository.Snapshot) {
		if !baselined {
			baselined = true
			w.baseline(snap)
			return
		}
		w.apply(ctx, snap)
	}

	unsubscribe, err := w.feed.Subscribe(ctx, handler)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.unsubscribe = unsubscribe
	w.mu.Unlock()
	w.logger.Info("ticket watcher started")
	return nil
}

// Stop ends the current subscription. It is safe to call repeatedly.
func (w *Watcher) Stop() {
	w.mu.Lock()
	unsubscribe := w.unsubscribe
	w.unsubscribe = nil
	w.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Seen returns the last observed version of ticketID.
func (w *Watcher) Seen(ticketID string) (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.seen[ticketID]
	return v, ok
}

func (w *Watcher) baseline(snap repository.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range snap.Tickets {
		w.observe(t)
	}
	for _, c := range snap.Changes {
		if c.Kind == repository.ChangeRemoved {
			if _, ok := w.seen[c.Ticket.ID]; !ok {
				w.seen[c.Ticket.ID] = 0
			}
			continue
		}
		w.observe(c.Ticket)
	}
}

func (w *Watcher) observe(t domain.Ticket) {
	if v, ok := w.seen[t.ID]; !ok || t.Version > v {
		w.seen[t.ID] = t.Version
	}
}

func (w *Watcher) apply(ctx context.Context, snap repository.Snapshot) {
	var pending []events.Event

	w.mu.Lock()
	for _, c := range snap.Changes {
		t := c.Ticket
		last, known := w.seen[t.ID]
		switch c.Kind {
		case repository.ChangeAdded:
			if known {
				continue
			}
			w.seen[t.ID] = t.Version
			pending = append(pending, newEvent(events.EventTicketCreated, t))
		case repository.ChangeModified:
			if known && t.Version <= last {
				continue
			}
			w.seen[t.ID] = t.Version
			pending = append(pending, newEvent(typeFor(t), t))
		case repository.ChangeRemoved:
			if !known {
				w.seen[t.ID] = 0
			}
		}
	}
	w.mu.Unlock()

	for _, evt := range pending {
		if err := w.publisher.Publish(ctx, evt); err != nil {
			w.logger.Error("publish watcher event",
				zap.String("event_key", evt.Key),
				zap.String("event_type", string(evt.Type)),
				zap.Error(err))
		}
	}
}

func typeFor(t domain.Ticket) events.EventType {
	switch t.Status {
	case domain.TicketStatusEscalatedToOtherArea, domain.TicketStatusAwaitingApproval:
		return events.EventTicketEscalated
	default:
		return events.TypeForStatus(t.Status)
	}
}

func newEvent(eventType events.EventType, t domain.Ticket) events.Event {
	actor, comment := "system", ""
	if n := len(t.StatusHistory); n > 0 {
		last := t.StatusHistory[n-1]
		if last.Actor != "" {
			actor = last.Actor
		}
		comment = last.Comment
	}
	return events.NewTicketEvent(eventType, t, actor, comment, t.UpdatedAt)
}
