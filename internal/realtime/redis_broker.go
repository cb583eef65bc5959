package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker relays frames through Redis Pub/Sub so every API node can reach
// a recipient's sessions. One channel per recipient.
type RedisBroker struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisBroker builds a broker on client. Channels are named
// "<prefix>:<recipientID>".
func NewRedisBroker(client *redis.Client, prefix string, logger *zap.Logger) *RedisBroker {
	if prefix == "" {
		prefix = "notifications"
	}
	return &RedisBroker{client: client, prefix: prefix, logger: logger}
}

func (b *RedisBroker) channel(recipientID string) string {
	return fmt.Sprintf("%s:%s", b.prefix, recipientID)
}

func (b *RedisBroker) Publish(ctx context.Context, recipientID string, frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return b.client.Publish(ctx, b.channel(recipientID), payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, recipientID string, handler func(Frame)) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, b.channel(recipientID))
	// Wait for the subscription confirmation so frames published after
	// Subscribe returns are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", recipientID, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var frame Frame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				b.logger.Warn("dropping malformed frame", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			handler(frame)
		}
	}()
	return pubsub, nil
}

func (b *RedisBroker) HasSubscribers(ctx context.Context, recipientID string) (bool, error) {
	channel := b.channel(recipientID)
	counts, err := b.client.PubSubNumSub(ctx, channel).Result()
	if err != nil {
		return false, err
	}
	return counts[channel] > 0, nil
}
