package events

import (
	"fmt"
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// EventType enumerates supported lifecycle event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "created"
	EventTicketUpdated   EventType = "updated"
	EventTicketEscalated EventType = "escalated"
	EventTicketCompleted EventType = "completed"
	EventTicketCancelled EventType = "cancelled"
	EventSLAViolated     EventType = "sla_violated"
	EventTicketMessage   EventType = "message"
)

// LifecycleTypes lists every event type the notification dispatcher handles.
var LifecycleTypes = []EventType{
	EventTicketCreated,
	EventTicketUpdated,
	EventTicketEscalated,
	EventTicketCompleted,
	EventTicketCancelled,
	EventSLAViolated,
	EventTicketMessage,
}

// Event is a lifecycle event. Engine events are stored in the outbox and carry
// a monotonically increasing Seq; watcher events have Seq == 0.
//
// Key identifies the logical change independently of its source, so the same
// ticket version observed by the engine and by the change feed dedups to one
// notification per recipient.
type Event struct {
	Seq           int64         `json:"seq"`
	Key           string        `json:"key"`
	Type          EventType     `json:"type"`
	TicketID      string        `json:"ticket_id"`
	TicketVersion int64         `json:"ticket_version"`
	Actor         string        `json:"actor"`
	Comment       string        `json:"comment,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	Ticket        domain.Ticket `json:"ticket"`
}

// TicketEventKey is the dedup key for a committed ticket version.
func TicketEventKey(ticketID string, version int64) string {
	return fmt.Sprintf("%s@v%d", ticketID, version)
}

// SLAEventKey is the dedup key for an SLA violation of a ticket.
func SLAEventKey(ticketID string) string {
	return ticketID + "@sla_violated"
}

// MessageEventKey is the dedup key for a message posted on a ticket.
func MessageEventKey(ticketID, messageID string) string {
	return ticketID + "@msg:" + messageID
}

// TypeForStatus names the event emitted when a ticket enters status.
func TypeForStatus(status domain.TicketStatus) EventType {
	switch status {
	case domain.TicketStatusCompleted:
		return EventTicketCompleted
	case domain.TicketStatusCancelled:
		return EventTicketCancelled
	default:
		return EventTicketUpdated
	}
}

// NewTicketEvent builds an event for a committed ticket snapshot.
func NewTicketEvent(eventType EventType, ticket domain.Ticket, actor, comment string, at time.Time) Event {
	return Event{
		Key:           TicketEventKey(ticket.ID, ticket.Version),
		Type:          eventType,
		TicketID:      ticket.ID,
		TicketVersion: ticket.Version,
		Actor:         actor,
		Comment:       comment,
		Timestamp:     at,
		Ticket:        ticket.Clone(),
	}
}

// NewMessageEvent builds the event for a message posted on ticket. The body
// travels in Comment and the sender is the actor.
func NewMessageEvent(ticket domain.Ticket, msg domain.TicketMessage) Event {
	return Event{
		Key:           MessageEventKey(ticket.ID, msg.ID),
		Type:          EventTicketMessage,
		TicketID:      ticket.ID,
		TicketVersion: ticket.Version,
		Actor:         msg.SenderID,
		Comment:       msg.Body,
		Timestamp:     msg.CreatedAt,
		Ticket:        ticket.Clone(),
	}
}
