// Package realtime pushes live frames to connected sessions.
package realtime

import (
	"context"
	"sync"
	"time"
)

// FrameKind identifies what a live frame asks the client to do.
type FrameKind string

const (
	FrameNotification FrameKind = "notification"
	FrameSystemAlert  FrameKind = "system_alert"
	FrameAudio        FrameKind = "audio"
)

// Frame is one message on a recipient's live channel.
type Frame struct {
	Kind           FrameKind `json:"kind"`
	RecipientID    string    `json:"recipient_id"`
	NotificationID string    `json:"notification_id,omitempty"`
	Type           string    `json:"type,omitempty"`
	Title          string    `json:"title,omitempty"`
	Message        string    `json:"message,omitempty"`
	TicketID       string    `json:"ticket_id,omitempty"`
	Sound          string    `json:"sound,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Subscription is a broker-level subscription handle.
type Subscription interface {
	Close() error
}

// Broker fans frames out to every subscriber of a recipient, possibly across
// processes.
type Broker interface {
	Publish(ctx context.Context, recipientID string, frame Frame) error
	Subscribe(ctx context.Context, recipientID string, handler func(Frame)) (Subscription, error)
	// HasSubscribers reports whether any live session exists for recipientID.
	HasSubscribers(ctx context.Context, recipientID string) (bool, error)
}

// LocalBroker is an in-process Broker for single-node deployments and tests.
// Handlers run synchronously on the publishing goroutine.
type LocalBroker struct {
	mu       sync.RWMutex
	handlers map[string]map[uint64]func(Frame)
	nextID   uint64
}

// NewLocalBroker returns an empty broker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{handlers: make(map[string]map[uint64]func(Frame))}
}

func (b *LocalBroker) Publish(_ context.Context, recipientID string, frame Frame) error {
	b.mu.RLock()
	handlers := make([]func(Frame), 0, len(b.handlers[recipientID]))
	for _, h := range b.handlers[recipientID] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(frame)
	}
	return nil
}

func (b *LocalBroker) Subscribe(_ context.Context, recipientID string, handler func(Frame)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.handlers[recipientID] == nil {
		b.handlers[recipientID] = make(map[uint64]func(Frame))
	}
	b.handlers[recipientID][id] = handler
	return &localSubscription{broker: b, recipientID: recipientID, id: id}, nil
}

func (b *LocalBroker) HasSubscribers(_ context.Context, recipientID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[recipientID]) > 0, nil
}

type localSubscription struct {
	broker      *LocalBroker
	recipientID string
	id          uint64
}

func (s *localSubscription) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	delete(s.broker.handlers[s.recipientID], s.id)
	if len(s.broker.handlers[s.recipientID]) == 0 {
		delete(s.broker.handlers, s.recipientID)
	}
	return nil
}
