package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink appends protocol events to a Redis stream. Off-chain indexers
// consume the stream with XREAD to mirror protocol state; the stream is
// approximately trimmed to MaxLen so a slow consumer cannot grow it unbounded.
type RedisSink struct {
	client *redis.Client
	config RedisConfig
	logger *Logger
}

// NewRedisSink connects to Redis and returns a sink ready to subscribe.
func NewRedisSink(cfg RedisConfig, logger *Logger) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisSink{
		client: client,
		config: cfg,
		logger: logger.NewComponentLogger("redis-sink"),
	}, nil
}

// Handle appends one event to the stream. It is wired as an EventSubscriber;
// delivery failures are logged and swallowed so the protocol path never
// blocks on the sink.
func (s *RedisSink) Handle(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode event for redis stream")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: s.config.Stream,
		Values: map[string]interface{}{
			"id":      event.ID,
			"type":    event.Type,
			"payload": string(payload),
		},
	}
	if s.config.MaxLen > 0 {
		args.MaxLen = s.config.MaxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		s.logger.WithError(err).WithField("type", event.Type).Error("failed to append event to redis stream")
	}
}

// Close releases the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
