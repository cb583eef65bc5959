package dto

import (
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// NotificationResponse is one stored notification.
type NotificationResponse struct {
	ID             string                  `json:"id"`
	Type           domain.NotificationType `json:"type"`
	Title          string                  `json:"title"`
	Message        string                  `json:"message"`
	SourceTicketID string                  `json:"source_ticket_id"`
	CreatedAt      time.Time               `json:"created_at"`
	Read           bool                    `json:"read"`
	ReadAt         *time.Time              `json:"read_at"`
}

// UnreadCountResponse payload.
type UnreadCountResponse struct {
	Unread int `json:"unread"`
}
