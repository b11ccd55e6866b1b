package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Notifier broadcasts slot changes between instances sharing a backend.
type Notifier interface {
	Publish(ctx context.Context, namespace string) error
	// Listen blocks until ctx is done, calling fn for changes made elsewhere.
	Listen(ctx context.Context, fn func(namespace string)) error
}

// LocalNotifier is used when only one instance touches the backend.
type LocalNotifier struct{}

func (LocalNotifier) Publish(context.Context, string) error { return nil }

func (LocalNotifier) Listen(ctx context.Context, _ func(string)) error {
	<-ctx.Done()
	return nil
}

// DefaultChannel is the Redis channel slot changes are published on.
const DefaultChannel = "basket:changes"

type changeMessage struct {
	Origin    string `json:"origin"`
	Namespace string `json:"namespace"`
}

// RedisNotifier fans slot changes out over Redis pub/sub. Each instance tags
// its messages with an origin id and ignores its own echoes.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

// NewRedisNotifier connects to redisURL and verifies the connection.
func NewRedisNotifier(redisURL string, logger *slog.Logger) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisNotifierWithClient(client, logger), nil
}

func NewRedisNotifierWithClient(client *redis.Client, logger *slog.Logger) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		channel: DefaultChannel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Origin returns the id this instance stamps on its messages.
func (n *RedisNotifier) Origin() string {
	return n.origin
}

func (n *RedisNotifier) Publish(ctx context.Context, namespace string) error {
	data, err := json.Marshal(changeMessage{Origin: n.origin, Namespace: namespace})
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Listen(ctx context.Context, fn func(string)) error {
	pubsub := n.client.Subscribe(ctx, n.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", n.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var change changeMessage
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				n.logger.Warn("decode slot change", "error", err)
				continue
			}
			if change.Origin == n.origin {
				continue
			}
			fn(change.Namespace)
		}
	}
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
