package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backoffice/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisRelay shares events between instances over a redis pub/sub channel.
// Local events go straight to the hub; remote ones are replayed into it.
type RedisRelay struct {
	client   *redis.Client
	channel  string
	hub      *Hub
	instance string
	logger   *zap.Logger
}

// NewRedisClient connects and pings redis
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisRelay wires hub to channel
func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:   client,
		channel:  channel,
		hub:      hub,
		instance: uuid.NewString(),
		logger:   logger.Named("progress-relay"),
	}
}

// Publish delivers locally and forwards to other instances
func (r *RedisRelay) Publish(evt Event) {
	r.hub.Publish(evt)

	payload, err := r.encode(evt)
	if err != nil {
		r.logger.Warn("Failed to encode relay event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("Failed to publish relay event", zap.Error(err))
	}
}

// Run subscribes to the channel until ctx is done
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.logger.Info("Relaying progress events", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RedisRelay) encode(evt Event) (string, error) {
	raw, err := json.Marshal(envelope{Origin: r.instance, Event: evt})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// handle replays a remote payload into the hub; own messages are ignored
func (r *RedisRelay) handle(payload string) bool {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("Ignoring malformed relay message", zap.Error(err))
		return false
	}
	if env.Origin == r.instance {
		return false
	}
	r.hub.Publish(env.Event)
	return true
}
