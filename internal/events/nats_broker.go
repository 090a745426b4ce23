package events

import (
	"context"
	"fmt"
	"time"

	"todo-system/pkg/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const headerMessageKey = "Message-Key"

// NATSConfig configures the NATS backed broker.
type NATSConfig struct {
	URL  string
	Name string
	// Timeout bounds the flush after each publish. Default 5s.
	Timeout time.Duration
}

// NATSBroker maps topics onto subjects and consumer groups onto queue groups.
type NATSBroker struct {
	conn    *nats.Conn
	timeout time.Duration
	logger  *logger.Logger
}

func NewNATSBroker(cfg NATSConfig, l *logger.Logger) (*NATSBroker, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	nc, err := nats.Connect(url, func(o *nats.Options) error {
		if cfg.Name != "" {
			o.Name = cfg.Name
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBroker{conn: nc, timeout: timeout, logger: l}, nil
}

func (b *NATSBroker) PublishMessage(ctx context.Context, msg Message) error {
	out := nats.NewMsg(msg.Topic)
	out.Data = msg.Value
	out.Header.Set(headerMessageKey, msg.Key)
	for k, v := range msg.Headers {
		out.Header.Set(k, v)
	}
	if err := b.conn.PublishMsg(out); err != nil {
		return err
	}

	flushCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.conn.FlushWithContext(flushCtx)
}

func (b *NATSBroker) Consume(ctx context.Context, topic, group string, handler MessageHandler) error {
	cb := func(m *nats.Msg) {
		msg := Message{
			Topic:   m.Subject,
			Key:     m.Header.Get(headerMessageKey),
			Headers: make(map[string]string, len(m.Header)),
			Value:   m.Data,
		}
		for k := range m.Header {
			if k != headerMessageKey {
				msg.Headers[k] = m.Header.Get(k)
			}
		}
		if err := handler(ctx, msg); err != nil {
			b.logger.Error(ctx, "message handler failed", zap.String("topic", topic), zap.Error(err))
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if group != "" {
		sub, err = b.conn.QueueSubscribe(topic, group, cb)
	} else {
		sub, err = b.conn.Subscribe(topic, cb)
	}
	if err != nil {
		return err
	}
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return err
	}

	<-ctx.Done()
	_ = sub.Unsubscribe()
	return ctx.Err()
}

func (b *NATSBroker) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Drain()
}
