package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBroker fans change events out across instances. Publish writes to the
// Redis channel; Run subscribes to it and dispatches into the local hub.
type RedisBroker struct {
	client  *redis.Client
	channel string
	local   Publisher
	logger  *slog.Logger
}

// NewRedisBroker creates a broker relaying through the given Redis channel
func NewRedisBroker(client *redis.Client, channel string, local Publisher, logger *slog.Logger) *RedisBroker {
	return &RedisBroker{
		client:  client,
		channel: channel,
		local:   local,
		logger:  logger.With("component", "redis_broker"),
	}
}

// Publish sends ev to every subscribed instance
func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding change event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing to redis: %w", err)
	}
	return nil
}

// Run consumes the Redis channel until ctx is cancelled
func (b *RedisBroker) Run(ctx context.Context) error {
	ps := b.client.Subscribe(ctx, b.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}
	b.logger.Info("relaying change events", "channel", b.channel)

	// subscription messages after the first confirmation mean go-redis reconnected
	ch := ps.ChannelWithSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(ctx, msg)
		}
	}
}

func (b *RedisBroker) handle(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case *redis.Subscription:
		if m.Kind != "subscribe" {
			return
		}
		// relayed events published while disconnected are lost
		if err := Invalidate(ctx, b.local); err != nil {
			b.logger.Error("failed to invalidate after resubscribe", "error", err)
			return
		}
		b.logger.Info("invalidated change tables after resubscribe", "channel", b.channel)
	case *redis.Message:
		ev, err := DecodePayload([]byte(m.Payload))
		if err != nil {
			b.logger.Warn("dropping malformed relayed event", "error", err)
			return
		}
		if err := b.local.Publish(ctx, ev); err != nil {
			b.logger.Error("failed to dispatch relayed event", "table", ev.Table, "error", err)
		}
	}
}
