package events

import (
	"context"
	"fmt"

	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/leeforge/mediaedit/json"
	"github.com/leeforge/mediaedit/logging"
)

// redisPublisher is the part of *redis.Client the forwarder needs.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisForwarder republishes every bus event as JSON on a Redis channel so
// other processes can follow edits. Nothing is stored.
type RedisForwarder struct {
	client  redisPublisher
	channel string
	logger  logging.Logger
	subs    []Subscription
}

func NewRedisForwarder(client redisPublisher, channel string, logger logging.Logger) *RedisForwarder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RedisForwarder{
		client:  client,
		channel: channel,
		logger:  logger.Named("redis-forwarder"),
	}
}

// Attach subscribes the forwarder to every topic on bus.
func (f *RedisForwarder) Attach(bus *Bus) {
	f.subs = bus.SubscribeAll(f.Forward)
}

func (f *RedisForwarder) Detach() {
	for _, s := range f.subs {
		s.Unsubscribe()
	}
	f.subs = nil
}

func (f *RedisForwarder) Forward(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.Name, err)
	}
	if err := f.client.Publish(ctx, f.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.Name, err)
	}
	f.logger.Debug("event forwarded",
		zap.String("event", event.Name),
		zap.String("channel", f.channel),
		logging.MediaID(event.MediaID))
	return nil
}
