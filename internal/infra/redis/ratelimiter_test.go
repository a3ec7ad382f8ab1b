package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestRedisRateLimiterAllow(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)

	now := time.Unix(1_700_000_000, 0)
	limiter, err := newRedisRateLimiter(rdb, 2, "", func() time.Time { return now })
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	for i, want := range []bool{true, true, false} {
		allowed, err := limiter.Allow(context.Background(), "user:7")
		if err != nil {
			t.Fatalf("Allow() call %d error = %v", i+1, err)
		}
		if allowed != want {
			t.Fatalf("Allow() call %d = %v, want %v", i+1, allowed, want)
		}
	}

	now = now.Add(time.Second)
	allowed, err := limiter.Allow(context.Background(), "user:7")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("new second window should allow call")
	}
}

func TestRedisRateLimiterAllowPerSubject(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)

	now := time.Unix(1_700_000_100, 0)
	limiter, err := newRedisRateLimiter(rdb, 1, "", func() time.Time { return now })
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	if allowed, _ := limiter.Allow(context.Background(), "user:1"); !allowed {
		t.Fatal("user 1 should be allowed on first poll")
	}
	if allowed, _ := limiter.Allow(context.Background(), "USER:2"); !allowed {
		t.Fatal("user 2 should be allowed on first poll")
	}
	if allowed, _ := limiter.Allow(context.Background(), "user:1"); allowed {
		t.Fatal("user 1 second poll should be rejected")
	}
}

func TestRedisRateLimiterKeyExpires(t *testing.T) {
	t.Parallel()

	rdb, mr := newTestRedisClient(t)

	now := time.Unix(1_700_000_200, 0)
	limiter, err := newRedisRateLimiter(rdb, 3, "test:poll", func() time.Time { return now })
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	if _, err := limiter.Allow(context.Background(), "user:9"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	key := "test:poll:user:9:1700000200"
	if !mr.Exists(key) {
		t.Fatalf("key %q should exist", key)
	}
	if ttl := mr.TTL(key); ttl != time.Second {
		t.Fatalf("TTL(%q) = %v, want 1s", key, ttl)
	}
}

func TestRedisRateLimiterErrors(t *testing.T) {
	t.Parallel()

	rdb, mr := newTestRedisClient(t)
	limiter, err := newRedisRateLimiter(rdb, 0, "", nil)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}
	if got := limiter.LimitPerSecond(); got != defaultLimitPerSec {
		t.Fatalf("LimitPerSecond() = %d, want %d", got, defaultLimitPerSec)
	}

	if _, err := limiter.Allow(context.Background(), " "); err == nil {
		t.Fatal("Allow() with empty subject should fail")
	}

	mr.Close()
	if _, err := limiter.Allow(context.Background(), "user:1"); err == nil {
		t.Fatal("Allow() should fail when redis is unreachable")
	}

	if _, err := NewRedisRateLimiter(nil, 5); err == nil {
		t.Fatal("NewRedisRateLimiter(nil) should fail")
	}
}

func newTestRedisClient(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb, mr
}
