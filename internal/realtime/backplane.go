package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"violation-service/internal/logging"
	rt "violation-service/pkg/realtime"
)

// Backplane relays envelopes between hubs running in different processes.
type Backplane interface {
	Publish(ctx context.Context, env rt.Envelope) error
	// Run delivers envelopes from other hubs until ctx is done.
	Run(ctx context.Context, deliver func(rt.Envelope))
}

const redisTopic = "realtime:events"

// RedisBackplane uses one Redis pub/sub topic for every channel. A single
// topic keeps the publish order of each instance intact for subscribers.
type RedisBackplane struct {
	client *redis.Client
	logger *logging.Logger
}

func NewRedisBackplane(uri string, logger *logging.Logger) (*RedisBackplane, error) {
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis uri: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisBackplane{client: client, logger: logger}, nil
}

func (b *RedisBackplane) Publish(ctx context.Context, env rt.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, redisTopic, data).Err()
}

func (b *RedisBackplane) Run(ctx context.Context, deliver func(rt.Envelope)) {
	backoff := time.Second
	for ctx.Err() == nil {
		err := b.receive(ctx, deliver, func() { backoff = time.Second })
		if ctx.Err() != nil {
			return
		}
		b.logger.Warnf("Redis subscriber error: %v, retrying in %s", err, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (b *RedisBackplane) receive(ctx context.Context, deliver func(rt.Envelope), healthy func()) error {
	pubsub := b.client.Subscribe(ctx, redisTopic)
	defer pubsub.Close()
	b.logger.Infof("Redis backplane subscribed to %s", redisTopic)

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		healthy()
		var env rt.Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			b.logger.Errorf("Failed to unmarshal backplane envelope: %v", err)
			continue
		}
		deliver(env)
	}
}

func (b *RedisBackplane) Close() error {
	return b.client.Close()
}
