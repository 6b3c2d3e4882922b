package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/narvaro/internal/models"
)

// RedisBridge distributes events through a redis channel so that observers
// connected to other processes see them too. Published events come back via
// the subscription and are fanned out to the local hub from there, which
// keeps delivery single-path.
type RedisBridge struct {
	hub     *Hub
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
}

func NewRedisBridge(redisURL, channel string, hub *Hub) (*RedisBridge, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBridge{
		hub:     hub,
		client:  client,
		channel: channel,
		pubsub:  client.Subscribe(ctx, channel),
		cancel:  cancel,
	}

	go b.consume(ctx)

	return b, nil
}

func (b *RedisBridge) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-b.pubsub.Channel():
			if !ok {
				return
			}
			var event models.CheckinEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Debug.Printf("Dropping malformed broadcast payload: %v", err)
				continue
			}
			_ = b.hub.Publish(ctx, event)
		}
	}
}

func (b *RedisBridge) Publish(ctx context.Context, event models.CheckinEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (b *RedisBridge) Subscribe(ctx context.Context) (<-chan models.CheckinEvent, func()) {
	return b.hub.Subscribe(ctx)
}

func (b *RedisBridge) Close() error {
	b.cancel()
	if err := b.pubsub.Close(); err != nil {
		logger.Debug.Printf("Failed to close pubsub: %v", err)
	}
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return b.hub.Close()
}
