package main

import (
	"context"
	"errors"
	"time"

	"todo-system/internal/redis"
	"todo-system/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	workerRetryMin = time.Second
	workerRetryMax = 30 * time.Second
)

// checkRedis reports whether Redis answers. The API keeps running without
// it: the rate limiter fails open, the cache falls through to the upstream
// and Redis-backed workers retry until the server shows up.
func checkRedis(ctx context.Context, rdb *goredis.Client, l *logger.Logger) bool {
	if err := redis.Ping(ctx, rdb); err != nil {
		l.Warn(ctx, "redis unavailable, running degraded",
			zap.String("addr", rdb.Options().Addr),
			zap.Error(err),
		)
		return false
	}
	return true
}

// supervise runs fn until it returns nil or ctx ends, restarting it with a
// doubling pause after each failure.
func supervise(ctx context.Context, name string, fn func(context.Context) error, l *logger.Logger) {
	wait := workerRetryMin
	for {
		err := fn(ctx)
		if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		l.Warn(ctx, "background worker failed, restarting",
			zap.String("worker", name),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		wait = min(wait*2, workerRetryMax)
	}
}
