package redis

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
	// PoolSize and DialTimeout fall back to go-redis defaults when zero.
	PoolSize    int
	DialTimeout time.Duration
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

var (
	client     *redis.Client
	clientOnce sync.Once
)

// Initialize creates the process wide client. Only the first call has an effect.
func Initialize(cfg Config) {
	clientOnce.Do(func() {
		client = NewClient(cfg)
	})
}

// GetClient returns the process wide client and panics before Initialize.
func GetClient() *redis.Client {
	if client == nil {
		panic("redis client not initialized. Call Initialize() first")
	}
	return client
}

// NewClient builds a standalone client, used by tests and tools.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})
}

const (
	pingAttempts = 5
	pingTimeout  = 3 * time.Second
)

// Ping waits for the server, retrying with a growing pause since a freshly
// started container takes a moment to accept connections.
func Ping(ctx context.Context, c *redis.Client) error {
	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = c.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
		}
	}
	return fmt.Errorf("redis %s unreachable after %d attempts: %w", c.Options().Addr, pingAttempts, err)
}
