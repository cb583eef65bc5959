// Package memstore is an in-memory implementation of the repository
// interfaces. It backs the service when no Postgres DSN is configured and in
// tests.
package memstore

import (
	"context"
	"sync"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
)

type state struct {
	tickets       map[string]domain.Ticket
	notifications map[string]domain.Notification
	notifKeys     map[string]string
	outbox        []events.Event
	outboxKeys    map[string]struct{}
	seq           int64
	cursors       map[string]int64
	users         map[string]domain.User
	messages      map[string][]domain.TicketMessage

	// ticket changes not yet delivered to feed subscribers
	pending []repository.TicketChange
}

func newState() *state {
	return &state{
		tickets:       make(map[string]domain.Ticket),
		notifications: make(map[string]domain.Notification),
		notifKeys:     make(map[string]string),
		outboxKeys:    make(map[string]struct{}),
		cursors:       make(map[string]int64),
		users:         make(map[string]domain.User),
		messages:      make(map[string][]domain.TicketMessage),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.tickets {
		out.tickets[k] = v.Clone()
	}
	for k, v := range s.notifications {
		out.notifications[k] = v
	}
	for k, v := range s.notifKeys {
		out.notifKeys[k] = v
	}
	out.outbox = append([]events.Event(nil), s.outbox...)
	for k := range s.outboxKeys {
		out.outboxKeys[k] = struct{}{}
	}
	out.seq = s.seq
	for k, v := range s.cursors {
		out.cursors[k] = v
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.messages {
		out.messages[k] = append([]domain.TicketMessage(nil), v...)
	}
	return out
}

// Store holds all collections behind one mutex. Transactions run with the
// mutex held against a staged copy that replaces the live state on success.
type Store struct {
	mu    sync.Mutex
	state *state

	feedMu      sync.Mutex
	subscribers map[int]*subscriber
	nextSubID   int

	locker *localLocker
}

// New returns an empty store seeded with users.
func New(users ...domain.User) *Store {
	s := &Store{
		state:       newState(),
		subscribers: make(map[int]*subscriber),
		locker:      newLocalLocker(),
	}
	for _, u := range users {
		s.state.users[u.ID] = u
	}
	return s
}

// Repositories bundles the interface views of a Store.
type Repositories struct {
	Tickets       repository.TicketRepository
	Messages      repository.TicketMessageRepository
	Notifications repository.NotificationRepository
	Outbox        repository.OutboxRepository
	Users         repository.UserRepository
	UnitOfWork    repository.UnitOfWork
	Feed          repository.TicketFeed
	Locker        repository.Locker
}

// Repositories returns every repository view backed by s.
func (s *Store) Repositories() Repositories {
	return Repositories{
		Tickets:       ticketRepo{s},
		Messages:      messageRepo{s},
		Notifications: notificationRepo{s},
		Outbox:        outboxRepo{s},
		Users:         userRepo{s},
		UnitOfWork:    s,
		Feed:          s,
		Locker:        s.locker,
	}
}

// PutUser adds or replaces a directory entry.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[u.ID] = u
}

type stageKey struct{}

// WithTx runs fn against a staged copy of the store. Nested calls join the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(stageKey{}).(*state); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	stage := s.state.clone()
	if err := fn(context.WithValue(ctx, stageKey{}, stage)); err != nil {
		s.mu.Unlock()
		return err
	}
	pending := stage.pending
	stage.pending = nil
	s.state = stage
	s.publish(pending)
	s.mu.Unlock()
	return nil
}

// view runs fn with the state visible to ctx. Outside a transaction the store
// mutex is held for the duration of fn. Feed changes are queued before the
// mutex is released so subscribers observe commits in order.
func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	if stage, ok := ctx.Value(stageKey{}).(*state); ok {
		return fn(stage)
	}
	s.mu.Lock()
	err := fn(s.state)
	pending := s.state.pending
	s.state.pending = nil
	s.publish(pending)
	s.mu.Unlock()
	return err
}
