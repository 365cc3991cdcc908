package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReloadChannel carries configuration reload requests between processes.
const ReloadChannel = "config-reload"

// ReloadMessage is the payload published on ReloadChannel.
type ReloadMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(ctx context.Context, redisURL string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisNotifier{client: client}, nil
}

func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

func (n *RedisNotifier) PublishReload(ctx context.Context, source string) error {
	payload, err := json.Marshal(ReloadMessage{Timestamp: time.Now().UTC(), Source: source})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, ReloadChannel, payload).Err()
}

// SubscribeReload emits one signal per message on ReloadChannel until ctx is
// done. Bursts collapse into a single pending signal.
func (n *RedisNotifier) SubscribeReload(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	sub := n.client.Subscribe(ctx, ReloadChannel)

	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var m ReloadMessage
				if err := json.Unmarshal([]byte(msg.Payload), &m); err == nil && m.Source != "" {
					log.Printf("[info] redis: reload requested by %s", m.Source)
				} else {
					log.Printf("[info] redis: reload requested")
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out
}
