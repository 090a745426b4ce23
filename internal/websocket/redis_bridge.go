package websocket

import (
	"context"

	"todo-system/internal/events"
	"todo-system/internal/outbox"
)

// RedisBridge relays todo change envelopes published by the outbox
// processor to the clients on ChannelTodos.
type RedisBridge struct {
	subscriber events.Subscriber
	hub        *Hub
}

func NewRedisBridge(subscriber events.Subscriber, hub *Hub) *RedisBridge {
	return &RedisBridge{subscriber: subscriber, hub: hub}
}

func (b *RedisBridge) Run(ctx context.Context) error {
	return b.subscriber.Subscribe(ctx, []string{outbox.TodoChannel}, func(channel string, payload []byte) {
		b.hub.Broadcast(channelKey(channel), payload)
	})
}

func channelKey(channel string) string {
	if channel == outbox.TodoChannel {
		return ChannelTodos
	}
	return channel
}

// EventForwarder returns a consumer handler that pushes broker messages
// to the clients on channel.
func (h *Hub) EventForwarder(channel string) events.MessageHandler {
	return func(ctx context.Context, msg events.Message) error {
		h.Broadcast(channel, msg.Value)
		return nil
	}
}
