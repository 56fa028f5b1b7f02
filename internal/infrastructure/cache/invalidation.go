package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultInvalidationChannel is the pub/sub channel for capability invalidations
const DefaultInvalidationChannel = "promptlab:capabilities:invalidate"

// RedisBroadcaster publishes tenant ids on a Redis pub/sub channel
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisBroadcaster uses client, which the caller keeps ownership of
func NewRedisBroadcaster(client *redis.Client, channel string, log *zap.Logger) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBroadcaster{client: client, channel: channel, logger: log}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, tenantID uint64) error {
	if err := b.client.Publish(ctx, b.channel, strconv.FormatUint(tenantID, 10)).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Listen subscribes to the channel and calls fn per message until ctx is done
func (b *RedisBroadcaster) Listen(ctx context.Context, fn func(tenantID uint64)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("Subscribed to capability invalidations", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			id, err := strconv.ParseUint(msg.Payload, 10, 64)
			if err != nil {
				b.logger.Warn("Ignoring malformed invalidation", zap.String("payload", msg.Payload))
				continue
			}
			fn(id)
		}
	}
}

var _ Broadcaster = (*RedisBroadcaster)(nil)
