package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBus carries lifecycle events over Redis pub/sub. The client is
// injected; its lifecycle belongs to the process entry point.
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisBus(client *redis.Client, logger *slog.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, data).Err()
}

// Subscribe registers h on channel and pumps messages until ctx is
// cancelled. Handler panics are contained so one bad message cannot
// take the consumer down.
func (b *RedisBus) Subscribe(ctx context.Context, channel string, h Handler) error {
	sub := b.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.dispatch(ctx, channel, h, []byte(msg.Payload))
			}
		}
	}()
	return nil
}

func (b *RedisBus) dispatch(ctx context.Context, channel string, h Handler, payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("bus handler panic", "channel", channel, "error", rec)
		}
	}()
	h(ctx, payload)
}
