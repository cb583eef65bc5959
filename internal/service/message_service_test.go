package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

func newMessageService(f *fixture) *MessageService {
	return NewMessageService(MessageDependencies{
		TicketRepo:  f.repos.Tickets,
		MessageRepo: f.repos.Messages,
		OutboxRepo:  f.repos.Outbox,
		UnitOfWork:  f.repos.UnitOfWork,
		Clock:       f.clock.Now,
	})
}

func TestPostMessageAppendsEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	messages := newMessageService(f)
	ticket := f.create(t, domain.RoleOperator, domain.AreaLogistics)
	sender := domain.User{ID: "operator-1", Name: "Ana", Role: domain.RoleOperator}

	msg, err := messages.PostMessage(ctx, ticket.ID, sender, "  chairs arrive at noon  ")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Body != "chairs arrive at noon" || msg.SenderName != "Ana" || msg.TicketID != ticket.ID {
		t.Fatalf("message = %+v", msg)
	}

	evts := f.outbox(t)
	if len(evts) != 2 {
		t.Fatalf("outbox = %+v", evts)
	}
	evt := evts[1]
	if evt.Type != events.EventTicketMessage || evt.Key != events.MessageEventKey(ticket.ID, msg.ID) {
		t.Fatalf("event = %+v", evt)
	}
	if evt.Actor != "operator-1" || evt.Comment != msg.Body || evt.Ticket.ID != ticket.ID {
		t.Fatalf("event payload = %+v", evt)
	}

	stored, err := f.tickets.GetTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Version != ticket.Version {
		t.Fatalf("posting a message changed the ticket version to %d", stored.Version)
	}
}

func TestListMessagesOldestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	messages := newMessageService(f)
	ticket := f.create(t, domain.RoleOperator, domain.AreaLogistics)
	sender := domain.User{ID: "operator-1", Role: domain.RoleOperator}

	for _, body := range []string{"first", "second", "third"} {
		if _, err := messages.PostMessage(ctx, ticket.ID, sender, body); err != nil {
			t.Fatal(err)
		}
		f.clock.Advance(time.Minute)
	}

	items, err := messages.ListMessages(ctx, ticket.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 || items[0].Body != "first" || items[2].Body != "third" {
		t.Fatalf("items = %+v", items)
	}
}

func TestPostMessageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	messages := newMessageService(f)
	ticket := f.create(t, domain.RoleOperator, domain.AreaLogistics)
	sender := domain.User{ID: "operator-1", Role: domain.RoleOperator}

	if _, err := messages.PostMessage(ctx, ticket.ID, sender, "   "); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("blank body error = %v", err)
	}
	long := strings.Repeat("x", domain.MaxMessageLength+1)
	if _, err := messages.PostMessage(ctx, ticket.ID, sender, long); !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("long body error = %v", err)
	}
	if _, err := messages.PostMessage(ctx, "missing", sender, "hello"); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("missing ticket error = %v", err)
	}
	if _, err := messages.ListMessages(ctx, "missing"); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("list missing ticket error = %v", err)
	}
	if len(f.outbox(t)) != 1 {
		t.Fatal("rejected messages must not write events")
	}
}
