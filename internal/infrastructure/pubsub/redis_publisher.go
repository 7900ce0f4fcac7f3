// Package pubsub fans record change events out over redis so other
// dashboard instances sharing the database keep their read models current.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/application/dispatcher"
	"github.com/ieeeucsd/dashboard-finance/internal/domain/event"
)

// Publisher is the part of the redis client the publisher needs
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher forwards every dispatched event to a redis channel
type RedisPublisher struct {
	client  Publisher
	channel string
	logger  *zap.Logger
}

// Connect parses url, pings the server and returns the client
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisPublisher creates a publisher writing to channel
func NewRedisPublisher(client Publisher, channel string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// Register subscribes the publisher to every event type
func (p *RedisPublisher) Register(d dispatcher.Dispatcher) {
	d.SubscribeAll("redis-publisher", p.HandleEvent)
}

// HandleEvent publishes evt as JSON
func (p *RedisPublisher) HandleEvent(ctx context.Context, evt *event.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("channel", p.channel),
			zap.String("event_type", string(evt.Type)),
			zap.String("record_id", evt.RecordID),
			zap.Error(err))
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published",
		zap.String("channel", p.channel),
		zap.String("event_type", string(evt.Type)),
		zap.Int64("receivers", receivers))
	return nil
}

// Decode parses a message published by HandleEvent
func Decode(payload string) (*event.Event, error) {
	var evt event.Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if !evt.Type.IsValid() {
		return nil, fmt.Errorf("unknown event type %q", evt.Type)
	}
	return &evt, nil
}

// Subscribe relays events published on channel to handler until ctx is
// cancelled. Handlers must be idempotent since an instance also receives its
// own events.
func Subscribe(ctx context.Context, client *redis.Client, channel string, handler dispatcher.Handler, logger *zap.Logger) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			evt, err := Decode(msg.Payload)
			if err != nil {
				logger.Warn("Dropping malformed event", zap.String("channel", channel), zap.Error(err))
				continue
			}
			if err := handler(ctx, evt); err != nil {
				logger.Error("Failed to apply remote event",
					zap.String("event_type", string(evt.Type)),
					zap.String("record_id", evt.RecordID),
					zap.Error(err))
			}
		}
	}
}
