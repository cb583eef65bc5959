package events

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

func TestPublishRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	calls := 0
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls++
		return errors.New("first failed")
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls++
		return nil
	})
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error {
		t.Fatal("updated handler must not run")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated})
	if err == nil {
		t.Fatal("expected joined handler error")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestTypeForStatus(t *testing.T) {
	if TypeForStatus(domain.TicketStatusCompleted) != EventTicketCompleted {
		t.Fatal("completed status must map to completed event")
	}
	if TypeForStatus(domain.TicketStatusCancelled) != EventTicketCancelled {
		t.Fatal("cancelled status must map to cancelled event")
	}
	if TypeForStatus(domain.TicketStatusInTreatment) != EventTicketUpdated {
		t.Fatal("other statuses map to updated")
	}
}

func TestNewTicketEventKey(t *testing.T) {
	ticket := domain.Ticket{ID: "t1", Version: 3, LinkedTicketIDs: []string{"x"}}
	evt := NewTicketEvent(EventTicketUpdated, ticket, "u1", "", ticket.UpdatedAt)
	if evt.Key != "t1@v3" {
		t.Fatalf("key = %s", evt.Key)
	}
	ticket.LinkedTicketIDs[0] = "y"
	if evt.Ticket.LinkedTicketIDs[0] != "x" {
		t.Fatal("event snapshot must not alias the ticket")
	}
}
