package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisRelay fans changes out between server instances over Redis pub/sub.
//
// Each instance forwards its own commits to the channel and delivers
// everyone else's into its local feed. Its own messages come back through
// the subscription too; they are skipped by origin.
type RedisRelay struct {
	client  *redis.Client
	channel string
	feed    *Feed
}

// Compile-time check.
var _ Forwarder = (*RedisRelay)(nil)

// NewRedisRelay connects to Redis and verifies the connection.
func NewRedisRelay(url, channel string, feed *Feed) (*RedisRelay, error) {
	if url == "" {
		return nil, errors.New("redis relay: url is empty")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis relay: parse url: %w", err)
	}

	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis relay: ping: %w", err)
	}

	return &RedisRelay{client: c, channel: channel, feed: feed}, nil
}

// Forward publishes a locally committed change.
func (r *RedisRelay) Forward(ctx context.Context, c Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("redis relay: marshal change: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis relay: publish: %w", err)
	}
	return nil
}

// Run consumes the channel until ctx is cancelled. Started with `go relay.Run(ctx)`.
func (r *RedisRelay) Run(ctx context.Context) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	log.Printf("[relay] subscribed to %s (origin=%s)", r.channel, r.feed.Origin())

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handleMessage(msg.Payload)
		}
	}
}

func (r *RedisRelay) handleMessage(payload string) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		log.Printf("[relay] invalid change payload: %v", err)
		return
	}
	if c.Origin == r.feed.Origin() {
		return
	}
	r.feed.Deliver(c)
}

// Close closes the Redis client.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}
