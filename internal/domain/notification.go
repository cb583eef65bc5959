package domain

import "time"

// NotificationType mirrors the event that produced a notification.
type NotificationType string

const (
	NotificationTicketCreated   NotificationType = "created"
	NotificationTicketUpdated   NotificationType = "updated"
	NotificationTicketEscalated NotificationType = "escalated"
	NotificationTicketCompleted NotificationType = "completed"
	NotificationTicketCancelled NotificationType = "cancelled"
	NotificationSLAViolated     NotificationType = "sla_violated"
	NotificationNewMessage      NotificationType = "new_message"
)

// Notification is a per-recipient record. It is written once by the
// dispatcher and afterwards only its read state changes.
type Notification struct {
	ID             string
	RecipientID    string
	Type           NotificationType
	Title          string
	Message        string
	SourceTicketID string
	EventKey       string
	CreatedAt      time.Time
	Read           bool
	ReadAt         *time.Time
}
