package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker fans signals out through redis pub/sub so several server processes share feeds.
type RedisBroker struct {
	Client *redis.Client
	Prefix string
	Log    *zap.Logger
}

func NewRedisBroker(client *redis.Client, prefix string, log *zap.Logger) *RedisBroker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBroker{Client: client, Prefix: prefix, Log: log}
}

func (b *RedisBroker) channel(topic string) string {
	if b.Prefix == "" {
		return topic
	}
	return b.Prefix + ":" + topic
}

func (b *RedisBroker) Publish(ctx context.Context, topic string) error {
	return b.Client.Publish(ctx, b.channel(topic), "changed").Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	ps := b.Client.Subscribe(ctx, b.channel(topic))
	// wait for the subscription confirmation so no publish is lost after return
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	out := make(chan struct{}, 1)
	msgs := ps.Channel()
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					b.Log.Warn("redis feed closed", zap.String("topic", topic))
					return
				}
				notify(out)
			}
		}
	}()
	return out, nil
}
