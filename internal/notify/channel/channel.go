// Package channel holds the delivery adapters used by the notification
// dispatcher.
package channel

import (
	"context"
	"errors"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/realtime"
)

// Channel names.
const (
	NameInApp       = "in_app"
	NameSystemAlert = "system_alert"
	NameAudio       = "audio"
	NameEmail       = "email"
)

// ErrSkipped is returned when a channel does not apply to the recipient, for
// example a disabled preference or no live session. It is not a failure.
var ErrSkipped = errors.New("channel skipped")

// Channel delivers a stored notification to one recipient.
type Channel interface {
	Name() string
	Send(ctx context.Context, recipient domain.User, n domain.Notification) error
}

func frameFor(kind realtime.FrameKind, n domain.Notification) realtime.Frame {
	return realtime.Frame{
		Kind:           kind,
		RecipientID:    n.RecipientID,
		NotificationID: n.ID,
		Type:           string(n.Type),
		Title:          n.Title,
		Message:        n.Message,
		TicketID:       n.SourceTicketID,
		CreatedAt:      n.CreatedAt,
	}
}
