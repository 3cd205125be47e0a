package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	SourceDatabase = "postgres"
	SourceLocal    = "local"
	SourceRedis    = "redis"
)

// LocalBus delivers published changes straight to an in-process dispatcher.
type LocalBus struct {
	sink Dispatcher
}

func NewLocalBus(sink Dispatcher) *LocalBus {
	return &LocalBus{sink: sink}
}

func (b *LocalBus) Publish(_ context.Context, c Change) error {
	b.sink.Dispatch(SourceLocal, c)
	return nil
}

// RedisBus fans changes out to every API instance through a Redis pub/sub channel.
type RedisBus struct {
	client  *redis.Client
	channel string
	sink    Dispatcher
	logger  *zap.Logger
}

func NewRedisBus(client *redis.Client, channel string, sink Dispatcher, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{client: client, channel: channel, sink: sink, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Run relays messages from the channel to the sink until ctx is done.
func (b *RedisBus) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("redis bus subscribed", zap.String("channel", b.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c, err := ParseChange([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("dropping malformed bus message", zap.Error(err))
				continue
			}
			b.sink.Dispatch(SourceRedis, c)
		}
	}
}
