package redis

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

type item struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

func TestCacheStore_SetGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewCacheStore(client, time.Minute)
	ctx := context.Background()

	var miss item
	hit, err := cache.Get(ctx, "k", &miss)
	if err != nil || hit {
		t.Fatalf("Get() on empty cache = %v, %v; want miss", hit, err)
	}

	if err := cache.Set(ctx, "k", item{ID: 1, Title: "one"}, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if ttl := mr.TTL("k"); ttl != time.Minute {
		t.Errorf("TTL = %v, want default of 1m", ttl)
	}

	var got item
	hit, err = cache.Get(ctx, "k", &got)
	if err != nil || !hit {
		t.Fatalf("Get() = %v, %v; want hit", hit, err)
	}
	if got.Title != "one" {
		t.Errorf("Get() title = %q, want one", got.Title)
	}

	mr.FastForward(2 * time.Minute)
	hit, _ = cache.Get(ctx, "k", &got)
	if hit {
		t.Error("Get() after expiry should miss")
	}
}

func TestCacheStore_RemoveByPattern(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewCacheStore(client, time.Minute)
	ctx := context.Background()

	for _, key := range []string{"external:todos:all", "external:todos:id:1", "other:key"} {
		if err := cache.Set(ctx, key, 1, 0); err != nil {
			t.Fatalf("Set(%s) error = %v", key, err)
		}
	}

	if err := cache.RemoveByPattern(ctx, "external:todos:*"); err != nil {
		t.Fatalf("RemoveByPattern() error = %v", err)
	}
	if mr.Exists("external:todos:all") || mr.Exists("external:todos:id:1") {
		t.Error("matching keys should be removed")
	}
	if !mr.Exists("other:key") {
		t.Error("non matching key should survive")
	}
}

func TestGetOrSet(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewCacheStore(client, time.Minute)
	ctx := context.Background()

	var calls int32
	load := func(context.Context) ([]item, error) {
		atomic.AddInt32(&calls, 1)
		return []item{{ID: 1, Title: "one"}}, nil
	}

	first, hit, err := GetOrSet(ctx, cache, "list", 0, load)
	if err != nil || hit || len(first) != 1 {
		t.Fatalf("first GetOrSet() = %v, %v, %v", first, hit, err)
	}
	second, hit, err := GetOrSet(ctx, cache, "list", 0, load)
	if err != nil || !hit || second[0].Title != "one" {
		t.Fatalf("second GetOrSet() = %v, %v, %v", second, hit, err)
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	_, _, err = GetOrSet(ctx, cache, "failing", 0, func(context.Context) (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Errorf("GetOrSet() error = %v, want loader error", err)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	client, mr := setupTestRedis(t)
	rl := NewRateLimiter(client, RateLimitConfig{Limit: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := rl.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if res.Remaining != 2-i {
			t.Errorf("request %d remaining = %d, want %d", i+1, res.Remaining, 2-i)
		}
	}

	res, err := rl.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if res.Allowed {
		t.Error("fourth request should be blocked")
	}

	other, _ := rl.Allow(ctx, "user-2")
	if !other.Allowed {
		t.Error("a different partition has its own window")
	}

	mr.FastForward(61 * time.Second)
	res, _ = rl.Allow(ctx, "user-1")
	if !res.Allowed {
		t.Error("request after the window should be allowed")
	}
}

func TestRateLimiter_WindowAnchoredAtFirstRequest(t *testing.T) {
	client, mr := setupTestRedis(t)
	rl := NewRateLimiter(client, RateLimitConfig{Limit: 2, Window: time.Minute})
	ctx := context.Background()

	if res, _ := rl.Allow(ctx, "burst"); !res.Allowed {
		t.Fatal("first request should be allowed")
	}
	mr.FastForward(20 * time.Second)
	for i := 0; i < 5; i++ {
		if _, err := rl.Allow(ctx, "burst"); err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
	}
	if ttl := mr.TTL("ratelimit:burst"); ttl > 40*time.Second {
		t.Errorf("TTL = %v, later requests extended the window", ttl)
	}

	mr.FastForward(41 * time.Second)
	res, _ := rl.Allow(ctx, "burst")
	if !res.Allowed || res.Remaining != 1 {
		t.Errorf("after the window = %+v, want a fresh window", res)
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	client, _ := setupTestRedis(t)
	rl := NewRateLimiter(client, RateLimitConfig{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	_, _ = rl.Allow(ctx, "ip")
	if err := rl.Reset(ctx, "ip"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	res, _ := rl.Allow(ctx, "ip")
	if !res.Allowed {
		t.Error("request after Reset should be allowed")
	}
}

func TestPublisherSubscriber(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 2)
	go func() {
		_ = NewSubscriber(client).Subscribe(ctx, []string{"todos:events", "audit:*"}, func(channel string, payload []byte) {
			received <- channel + "|" + string(payload)
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for mr.PubSubNumPat() == 0 || mr.PubSubNumSub("todos:events")["todos:events"] == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	pub := NewPublisher(client)
	if err := pub.Publish(ctx, "todos:events", []byte("hello")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := pub.Publish(ctx, "audit:login", []byte("tester")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := pub.Publish(ctx, "nobody:listens", []byte("lost")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	want := map[string]bool{"todos:events|hello": true, "audit:login|tester": true}
	for range 2 {
		select {
		case got := <-received:
			if !want[got] {
				t.Errorf("received %q", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("message not delivered")
		}
	}
	if pub.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", pub.Dropped())
	}
}

func TestPing(t *testing.T) {
	_, mr := setupTestRedis(t)
	host, port, _ := strings.Cut(mr.Addr(), ":")
	c := NewClient(Config{Host: host, Port: port})
	defer c.Close()

	if err := Ping(context.Background(), c); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := Ping(ctx, c); err == nil {
		t.Error("Ping() against a closed server should fail")
	}
}
