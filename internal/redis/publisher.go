package redis

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Publisher sends payloads over Redis pub/sub. Delivery is at most once:
// nothing is kept for a channel nobody listens on.
type Publisher struct {
	client  *redis.Client
	dropped atomic.Int64
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	receivers, err := p.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	if receivers == 0 {
		p.dropped.Add(1)
	}
	return nil
}

// Dropped reports how many publishes reached no subscriber.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}
