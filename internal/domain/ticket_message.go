package domain

import "time"

// MaxMessageLength bounds a ticket message body in runes.
const MaxMessageLength = 4000

// TicketMessage is a free-text note posted on a ticket's conversation.
// Messages are append-only and do not change the ticket's version.
type TicketMessage struct {
	ID         string
	TicketID   string
	SenderID   string
	SenderName string
	SenderRole Role
	Body       string
	CreatedAt  time.Time
}
