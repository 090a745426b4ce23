package redis

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe delivers messages from the given channels until ctx ends.
// Names containing glob characters are pattern subscriptions.
func (s *Subscriber) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	var exact, patterns []string
	for _, c := range channels {
		if strings.ContainsAny(c, "*?[") {
			patterns = append(patterns, c)
		} else {
			exact = append(exact, c)
		}
	}

	sub := s.client.Subscribe(ctx)
	defer sub.Close()
	if len(exact) > 0 {
		if err := sub.Subscribe(ctx, exact...); err != nil {
			return err
		}
	}
	if len(patterns) > 0 {
		if err := sub.PSubscribe(ctx, patterns...); err != nil {
			return err
		}
	}

	// confirmations arrive one per channel; waiting for them keeps a publish
	// made right after Subscribe returns from being lost
	for range len(exact) + len(patterns) {
		if _, err := sub.Receive(ctx); err != nil {
			return err
		}
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			handler(msg.Channel, []byte(msg.Payload))
		}
	}
}
