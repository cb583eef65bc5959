package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
)

// subscriber owns an unbounded queue drained by one goroutine, so commits
// never block on a slow handler.
type subscriber struct {
	handler repository.SnapshotHandler

	mu     sync.Mutex
	queue  []repository.Snapshot
	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
	closed bool
}

func (sub *subscriber) enqueue(snap repository.Snapshot) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.queue = append(sub.queue, snap)
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscriber) run() {
	defer close(sub.exited)
	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
		}
		for {
			sub.mu.Lock()
			if sub.closed || len(sub.queue) == 0 {
				sub.mu.Unlock()
				break
			}
			snap := sub.queue[0]
			sub.queue = sub.queue[1:]
			sub.mu.Unlock()

			sub.handler(snap)
		}
	}
}

// stop ends delivery and waits for a handler call already in progress, so no
// callback runs after it returns. It must not be called from the handler.
func (sub *subscriber) stop() {
	sub.mu.Lock()
	if !sub.closed {
		sub.closed = true
		sub.queue = nil
		close(sub.done)
	}
	sub.mu.Unlock()
	<-sub.exited
}

// Subscribe delivers the current ticket set as an initial snapshot, then one
// snapshot per committed write.
func (s *Store) Subscribe(ctx context.Context, handler repository.SnapshotHandler) (func(), error) {
	sub := &subscriber{
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}

	s.mu.Lock()
	current := make([]domain.Ticket, 0, len(s.state.tickets))
	for _, t := range s.state.tickets {
		current = append(current, t.Clone())
	}
	sort.Slice(current, func(i, j int) bool { return current[i].ID < current[j].ID })

	s.feedMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = sub
	s.feedMu.Unlock()

	sub.enqueue(repository.Snapshot{Initial: true, Tickets: current})
	s.mu.Unlock()

	go sub.run()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.feedMu.Lock()
			delete(s.subscribers, id)
			s.feedMu.Unlock()
			sub.stop()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.done:
		}
	}()
	return unsubscribe, nil
}

// publish fans committed changes out to subscribers. Callers hold s.mu.
func (s *Store) publish(changes []repository.TicketChange) {
	if len(changes) == 0 {
		return
	}
	tickets := make([]domain.Ticket, 0, len(changes))
	for _, c := range changes {
		if c.Kind != repository.ChangeRemoved {
			tickets = append(tickets, c.Ticket)
		}
	}

	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	for _, sub := range s.subscribers {
		snap := repository.Snapshot{
			Tickets: cloneTickets(tickets),
			Changes: cloneChanges(changes),
		}
		sub.enqueue(snap)
	}
}

func cloneTickets(in []domain.Ticket) []domain.Ticket {
	out := make([]domain.Ticket, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}

func cloneChanges(in []repository.TicketChange) []repository.TicketChange {
	out := make([]repository.TicketChange, len(in))
	for i, c := range in {
		out[i] = repository.TicketChange{Kind: c.Kind, Ticket: c.Ticket.Clone()}
	}
	return out
}
