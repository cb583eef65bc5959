package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
)

const relayLockKey int64 = 7_310_001

// Publisher receives relayed events.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// OutboxRelay publishes committed outbox events in order. The cursor only
// advances past an event once it was published without error, so a failed
// event is retried on the next tick.
type OutboxRelay struct {
	outbox    repository.OutboxRepository
	locker    repository.Locker
	publisher Publisher
	logger    *zap.Logger
	consumer  string
	batchSize int
	interval  time.Duration
	wake      chan struct{}
}

// NewOutboxRelay creates a relay. locker may be nil on a single node.
func NewOutboxRelay(cfg config.OutboxConfig, outbox repository.OutboxRepository, locker repository.Locker, publisher Publisher, logger *zap.Logger) *OutboxRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "notification-dispatcher"
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &OutboxRelay{
		outbox:    outbox,
		locker:    locker,
		publisher: publisher,
		logger:    logger,
		consumer:  consumer,
		batchSize: batch,
		interval:  cfg.PollInterval(),
		wake:      make(chan struct{}, 1),
	}
}

// Wake triggers a drain without waiting for the next tick.
func (r *OutboxRelay) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run drains the outbox on every tick until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.logger.Info("outbox relay started", zap.String("consumer", r.consumer), zap.Duration("interval", r.interval))

	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("outbox relay drain failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// Drain relays batches until the outbox is caught up or an event fails. It
// returns how many events were published.
func (r *OutboxRelay) Drain(ctx context.Context) (int, error) {
	if r.locker != nil {
		release, ok, err := r.locker.TryLock(ctx, relayLockKey)
		if err != nil {
			return 0, fmt.Errorf("relay lock: %w", err)
		}
		if !ok {
			return 0, nil
		}
		defer release()
	}

	total := 0
	for {
		n, err := r.RunOnce(ctx)
		total += n
		if err != nil || n < r.batchSize {
			return total, err
		}
	}
}

// RunOnce relays at most one batch.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	cursor, err := r.outbox.GetCursor(ctx, r.consumer)
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	batch, err := r.outbox.ListAfter(ctx, cursor, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list outbox: %w", err)
	}

	for i, evt := range batch {
		if err := r.publisher.Publish(ctx, evt); err != nil {
			return i, fmt.Errorf("publish %s: %w", evt.Key, err)
		}
		if err := r.outbox.SaveCursor(ctx, r.consumer, evt.Seq); err != nil {
			return i + 1, fmt.Errorf("save cursor: %w", err)
		}
	}
	return len(batch), nil
}
