package realtime

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tripsync/pkg/redis"
)

// RedisBridge carries change events between server instances over Redis
// pub/sub. Publish sends to the shared channel, Run forwards everything
// received on it into the local sink.
type RedisBridge struct {
	client  *redis.Client
	channel string
	sink    Publisher
	logger  *zap.Logger
}

// NewRedisBridge creates a bridge on the environment-prefixed channel
func NewRedisBridge(client *redis.Client, channel string, sink Publisher, logger *zap.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBridge{
		client:  client,
		channel: client.KeyBuilder.KeyRealtime(channel),
		sink:    sink,
		logger:  logger,
	}
}

// Publish sends event to every server instance, this one included
func (b *RedisBridge) Publish(ctx context.Context, event ChangeEvent) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Close is a no-op; the subscription ends with Run's context and the
// client is owned by the caller
func (b *RedisBridge) Close() error {
	return nil
}

// Run forwards received events into the sink until ctx is done
func (b *RedisBridge) Run(ctx context.Context) error {
	ps, err := b.client.Subscribe(ctx, b.channel)
	if err != nil {
		return err
	}
	defer ps.Close()

	b.logger.Info("Listening for change events", zap.String("driver", "redis"), zap.String("channel", b.channel))

	messages := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Redis bridge shutting down")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			event, err := Decode([]byte(msg.Payload))
			if err != nil {
				b.logger.Error("Invalid change event", zap.Error(err))
				continue
			}
			if err := b.sink.Publish(ctx, event); err != nil {
				b.logger.Error("Failed to forward change event", zap.String("room_id", event.RoomID), zap.Error(err))
			}
		}
	}
}
