package channel

import (
	"context"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/realtime"
)

// InApp pushes the notification to the recipient's live channel. Recipients
// without a session pick it up from the store later.
type InApp struct {
	broker realtime.Broker
}

func NewInApp(broker realtime.Broker) *InApp {
	return &InApp{broker: broker}
}

func (c *InApp) Name() string { return NameInApp }

func (c *InApp) Send(ctx context.Context, recipient domain.User, n domain.Notification) error {
	return c.broker.Publish(ctx, recipient.ID, frameFor(realtime.FrameNotification, n))
}

// SystemAlert asks a live client to raise an OS-level alert.
type SystemAlert struct {
	broker realtime.Broker
}

func NewSystemAlert(broker realtime.Broker) *SystemAlert {
	return &SystemAlert{broker: broker}
}

func (c *SystemAlert) Name() string { return NameSystemAlert }

func (c *SystemAlert) Send(ctx context.Context, recipient domain.User, n domain.Notification) error {
	if !recipient.SystemAlertsEnabled {
		return ErrSkipped
	}
	return publishIfLive(ctx, c.broker, recipient.ID, frameFor(realtime.FrameSystemAlert, n))
}

// Audio asks a live client to play a cue for the notification type.
type Audio struct {
	broker realtime.Broker
}

func NewAudio(broker realtime.Broker) *Audio {
	return &Audio{broker: broker}
}

func (c *Audio) Name() string { return NameAudio }

func (c *Audio) Send(ctx context.Context, recipient domain.User, n domain.Notification) error {
	if !recipient.SoundEnabled {
		return ErrSkipped
	}
	frame := frameFor(realtime.FrameAudio, n)
	frame.Sound = soundFor(n.Type)
	return publishIfLive(ctx, c.broker, recipient.ID, frame)
}

func soundFor(t domain.NotificationType) string {
	switch t {
	case domain.NotificationSLAViolated, domain.NotificationTicketEscalated:
		return "urgent"
	case domain.NotificationTicketCompleted:
		return "success"
	default:
		return "default"
	}
}

func publishIfLive(ctx context.Context, broker realtime.Broker, recipientID string, frame realtime.Frame) error {
	live, err := broker.HasSubscribers(ctx, recipientID)
	if err != nil {
		return err
	}
	if !live {
		return ErrSkipped
	}
	return broker.Publish(ctx, recipientID, frame)
}
