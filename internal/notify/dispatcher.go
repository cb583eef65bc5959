// Package notify turns lifecycle events into per-recipient notifications and
// pushes them through the delivery channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/notify/channel"
	"github.com/spec-kit/ticket-workflow/internal/observability"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

// Event sources as recorded in metrics.
const (
	SourceOutbox  = "outbox"
	SourceWatcher = "watcher"
)

// Dependencies wires the dispatcher.
type Dependencies struct {
	Users         repository.UserRepository
	Notifications repository.NotificationRepository
	Channels      []channel.Channel
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Clock         func() time.Time
	// Concurrency bounds how many recipients are handled at once.
	Concurrency int
}

// Dispatcher fans one event out to every relevant recipient.
type Dispatcher struct {
	users         repository.UserRepository
	notifications repository.NotificationRepository
	channels      []channel.Channel
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
	concurrency   int
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(deps Dependencies) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	concurrency := deps.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		users:         deps.Users,
		notifications: deps.Notifications,
		channels:      deps.Channels,
		metrics:       metrics,
		logger:        logger,
		now:           clock,
		concurrency:   concurrency,
	}
}

// Register subscribes the dispatcher to every lifecycle event on bus.
func (d *Dispatcher) Register(bus events.Dispatcher) {
	for _, t := range events.LifecycleTypes {
		bus.Subscribe(t, d.Handle)
	}
}

// Handle notifies every active user the event's ticket is relevant to, except
// the actor who caused the change. Administrators are always notified.
// Channel failures are logged and counted; only store failures are returned so
// the caller can retry the event. Retrying is safe because records are unique
// per recipient and event key.
func (d *Dispatcher) Handle(ctx context.Context, evt events.Event) error {
	source := SourceOutbox
	if evt.Seq == 0 {
		source = SourceWatcher
	}
	d.metrics.RecordEvent(source, string(evt.Type))

	users, err := d.users.ListActive(ctx)
	if err != nil {
		return apperrors.NewPersistenceError("list recipients", err)
	}

	actorName := evt.Actor
	for _, u := range users {
		if u.ID == evt.Actor && u.Name != "" {
			actorName = u.Name
		}
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		sem  = make(chan struct{}, d.concurrency)
	)
	for _, u := range users {
		if !wantsEvent(u, evt) {
			continue
		}
		u := u
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := d.notify(ctx, u, evt, actorName); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func wantsEvent(u domain.User, evt events.Event) bool {
	if u.ID == evt.Actor && u.Role != domain.RoleAdministrator {
		return false
	}
	return domain.IsRelevant(u, evt.Ticket)
}

func (d *Dispatcher) notify(ctx context.Context, recipient domain.User, evt events.Event, actorName string) error {
	kind, title, message := render(evt, actorName)
	n := domain.Notification{
		ID:             uuid.NewString(),
		RecipientID:    recipient.ID,
		Type:           kind,
		Title:          title,
		Message:        message,
		SourceTicketID: evt.TicketID,
		EventKey:       evt.Key,
		CreatedAt:      d.now().UTC(),
	}

	created, err := d.notifications.CreateIfAbsent(ctx, &n)
	if err != nil {
		return apperrors.NewPersistenceError(fmt.Sprintf("store notification for %s", recipient.ID), err)
	}
	if !created {
		d.metrics.RecordDelivery("store", observability.OutcomeDuplicate)
		return nil
	}

	var wg sync.WaitGroup
	for _, ch := range d.channels {
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.deliver(ctx, ch, recipient, n)
		}()
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, ch channel.Channel, recipient domain.User, n domain.Notification) {
	err := ch.Send(ctx, recipient, n)
	switch {
	case err == nil:
		d.metrics.RecordDelivery(ch.Name(), observability.OutcomeDelivered)
	case errors.Is(err, channel.ErrSkipped):
		d.metrics.RecordDelivery(ch.Name(), observability.OutcomeSkipped)
	default:
		d.metrics.RecordDelivery(ch.Name(), observability.OutcomeFailed)
		d.logger.Warn("notification delivery failed",
			zap.String("code", apperrors.CodeNotificationDelivery),
			zap.String("notification_id", n.ID),
			zap.Error(apperrors.NewDeliveryError(ch.Name(), recipient.ID, err)))
	}
}
