package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CacheStore keeps JSON encoded values in Redis.
type CacheStore struct {
	client     *goredis.Client
	defaultTTL time.Duration
}

// NewCacheStore creates a new cache store
func NewCacheStore(client *goredis.Client, defaultTTL time.Duration) *CacheStore {
	return &CacheStore{
		client:     client,
		defaultTTL: defaultTTL,
	}
}

// Get decodes the cached value at key into dest. A miss returns false and no error.
func (c *CacheStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil // Cache miss
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value under key. ttl <= 0 uses the store default.
func (c *CacheStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *CacheStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// RemoveByPattern deletes every key matching a glob pattern.
// Note: This requires scanning, so use sparingly
func (c *CacheStore) RemoveByPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keysToDelete []string
	for iter.Next(ctx) {
		keysToDelete = append(keysToDelete, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keysToDelete) > 0 {
		return c.client.Del(ctx, keysToDelete...).Err()
	}
	return nil
}

// GetOrSet returns the cached value for key, or calls load, caches its
// result and returns it. The bool reports whether the value came from cache.
func GetOrSet[T any](ctx context.Context, c *CacheStore, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, bool, error) {
	var cached T
	hit, err := c.Get(ctx, key, &cached)
	if err == nil && hit {
		return cached, true, nil
	}

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	// a failed cache write must not fail the read
	_ = c.Set(ctx, key, value, ttl)
	return value, false, nil
}

// Ping checks if Redis is available
func (c *CacheStore) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
