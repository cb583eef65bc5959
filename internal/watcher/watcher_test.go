package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/repository/memstore"
)

// fakeFeed hands the handler back to the test so callbacks run synchronously.
type fakeFeed struct {
	handler       repository.SnapshotHandler
	subscriptions int
	unsubscribed  int
}

func (f *fakeFeed) Subscribe(_ context.Context, handler repository.SnapshotHandler) (func(), error) {
	f.handler = handler
	f.subscriptions++
	return func() { f.unsubscribed++ }, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, evt events.Event) error {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func ticket(id string, version int64, status domain.TicketStatus) domain.Ticket {
	return domain.Ticket{ID: id, Title: id, Status: status, Version: version, CreatedBy: "c1"}
}

func TestBaselineEmitsNothing(t *testing.T) {
	feed := &fakeFeed{}
	rec := &recorder{}
	w := New(feed, rec, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	feed.handler(repository.Snapshot{Initial: true, Tickets: []domain.Ticket{
		ticket("t1", 1, domain.TicketStatusOpen),
		ticket("t2", 3, domain.TicketStatusInAnalysis),
	}})
	if len(rec.snapshot()) != 0 {
		t.Fatal("baseline must not emit")
	}
	if v, ok := w.Seen("t2"); !ok || v != 3 {
		t.Fatalf("seen t2 = %d %v", v, ok)
	}
}

func TestEmitsForNewAndNewerTickets(t *testing.T) {
	feed := &fakeFeed{}
	rec := &recorder{}
	w := New(feed, rec, nil)
	_ = w.Start(context.Background())
	feed.handler(repository.Snapshot{Initial: true, Tickets: []domain.Ticket{ticket("t1", 1, domain.TicketStatusOpen)}})

	feed.handler(repository.Snapshot{Changes: []repository.TicketChange{
		{Kind: repository.ChangeAdded, Ticket: ticket("t2", 1, domain.TicketStatusOpen)},
		{Kind: repository.ChangeModified, Ticket: ticket("t1", 1, domain.TicketStatusOpen)},
		{Kind: repository.ChangeModified, Ticket: ticket("t1", 2, domain.TicketStatusCompleted)},
	}})
	feed.handler(repository.Snapshot{Changes: []repository.TicketChange{
		{Kind: repository.ChangeModified, Ticket: ticket("t2", 2, domain.TicketStatusEscalatedToOtherArea)},
	}})

	got := rec.snapshot()
	want := []struct {
		key string
		typ events.EventType
	}{
		{"t2@v1", events.EventTicketCreated},
		{"t1@v2", events.EventTicketCompleted},
		{"t2@v2", events.EventTicketEscalated},
	}
	if len(got) != len(want) {
		t.Fatalf("events = %+v", got)
	}
	for i, w := range want {
		if got[i].Key != w.key || got[i].Type != w.typ {
			t.Errorf("event %d = %s/%s, want %s/%s", i, got[i].Key, got[i].Type, w.key, w.typ)
		}
	}
}

func TestRemovedTicketsNeverRefire(t *testing.T) {
	feed := &fakeFeed{}
	rec := &recorder{}
	w := New(feed, rec, nil)
	_ = w.Start(context.Background())
	feed.handler(repository.Snapshot{Initial: true, Tickets: []domain.Ticket{ticket("t1", 1, domain.TicketStatusOpen)}})

	feed.handler(repository.Snapshot{Changes: []repository.TicketChange{
		{Kind: repository.ChangeRemoved, Ticket: domain.Ticket{ID: "t1"}},
	}})
	feed.handler(repository.Snapshot{Changes: []repository.TicketChange{
		{Kind: repository.ChangeAdded, Ticket: ticket("t1", 1, domain.TicketStatusOpen)},
	}})
	if len(rec.snapshot()) != 0 {
		t.Fatalf("re-added ticket emitted %+v", rec.snapshot())
	}
}

func TestResubscribeKeepsSeenSetAndRebaselines(t *testing.T) {
	feed := &fakeFeed{}
	rec := &recorder{}
	w := New(feed, rec, nil)
	ctx := context.Background()
	_ = w.Start(ctx)
	feed.handler(repository.Snapshot{Initial: true, Tickets: []domain.Ticket{ticket("t1", 1, domain.TicketStatusOpen)}})

	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if feed.unsubscribed != 1 || feed.subscriptions != 2 {
		t.Fatalf("subscriptions=%d unsubscribed=%d", feed.subscriptions, feed.unsubscribed)
	}

	// The first callback of the new life cycle is a baseline even though it
	// carries a ticket the watcher has not seen.
	feed.handler(repository.Snapshot{Initial: true, Tickets: []domain.Ticket{
		ticket("t1", 1, domain.TicketStatusOpen),
		ticket("t3", 1, domain.TicketStatusOpen),
	}})
	feed.handler(repository.Snapshot{Changes: []repository.TicketChange{
		{Kind: repository.ChangeAdded, Ticket: ticket("t1", 1, domain.TicketStatusOpen)},
	}})
	if len(rec.snapshot()) != 0 {
		t.Fatalf("resubscription emitted %+v", rec.snapshot())
	}

	w.Stop()
	w.Stop()
	if feed.unsubscribed != 2 {
		t.Fatalf("unsubscribed = %d", feed.unsubscribed)
	}
}

func TestWatcherOnMemstoreFeed(t *testing.T) {
	store := memstore.New()
	rec := &recorder{}
	w := New(store, rec, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repos := store.Repositories()
	existing := ticket("t1", 1, domain.TicketStatusOpen)
	if err := repos.Tickets.Create(ctx, &existing); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	fresh := ticket("t2", 1, domain.TicketStatusOpen)
	if err := repos.Tickets.Create(ctx, &fresh); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := rec.snapshot()
	if len(got) != 1 || got[0].Key != "t2@v1" || got[0].Type != events.EventTicketCreated {
		t.Fatalf("events = %+v", got)
	}
}

func TestUpdateOutsideBaselineIsNotCreated(t *testing.T) {
	feed := &fakeFeed{}
	rec := &recorder{}
	w := New(feed, rec, nil)
	_ = w.Start(context.Background())
	feed.handler(repository.Snapshot{Initial: true, Tickets: []domain.Ticket{ticket("recent", 1, domain.TicketStatusOpen)}})

	feed.handler(repository.Snapshot{Changes: []repository.TicketChange{
		{Kind: repository.ChangeModified, Ticket: ticket("old", 7, domain.TicketStatusInTreatment)},
	}})

	got := rec.snapshot()
	if len(got) != 1 {
		t.Fatalf("events = %d", len(got))
	}
	if got[0].Type == events.EventTicketCreated {
		t.Fatalf("update of an existing ticket emitted %s", got[0].Type)
	}
	if got[0].Key != "old@v7" {
		t.Fatalf("key = %s", got[0].Key)
	}
}
