package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key pattern:
// - ratelimit:{partition} - window TTL, per-window request counter

// RateLimitConfig contains configuration for rate limiting
type RateLimitConfig struct {
	Limit  int           // Max requests per window
	Window time.Duration // Window length
}

// DefaultRateLimitConfig returns 100 requests per minute.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:  100,
		Window: time.Minute,
	}
}

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool          // Whether the action is allowed
	Remaining int           // Remaining actions in the window
	ResetIn   time.Duration // Time until the window resets
	Limit     int           // The limit for this action
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
	}
}

// The window starts with the first request: only the INCR that creates the
// key sets its expiry, so later requests never extend it.
var fixedWindowScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = redis.call('INCR', key)
	if current == 1 then
		redis.call('EXPIRE', key, window)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		redis.call('EXPIRE', key, window)
		ttl = window
	end

	if current <= limit then
		return {1, limit - current, ttl}
	end
	return {0, 0, ttl}
`)

// Allow counts one request against partition and reports whether it fits the window.
func (r *RateLimiter) Allow(ctx context.Context, partition string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s", partition)
	return r.checkLimit(ctx, key, r.config.Limit, r.config.Window)
}

// checkLimit performs the actual rate limit check using a fixed window counter
func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := fixedWindowScript.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}

	allowed, _ := resultSlice[0].(int64)
	remaining, _ := resultSlice[1].(int64)
	ttl, _ := resultSlice[2].(int64)

	return &RateLimitResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetIn:   time.Duration(ttl) * time.Second,
		Limit:     limit,
	}, nil
}

// Reset clears the counter for a partition (admin operation)
func (r *RateLimiter) Reset(ctx context.Context, partition string) error {
	return r.client.Del(ctx, fmt.Sprintf("ratelimit:%s", partition)).Err()
}
