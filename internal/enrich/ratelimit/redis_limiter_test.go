package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// fakeRedisCounter implements redisWindowCounter in-process, incrementing a
// per-key counter without any network round trip.
type fakeRedisCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeRedisCounter() *fakeRedisCounter {
	return &fakeRedisCounter{counts: map[string]int64{}}
}

func (f *fakeRedisCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	f.counts[key]++
	n := f.counts[key]
	f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedisCounter) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func TestRedisLimiter_AllowsUnderQPS(t *testing.T) {
	l := &RedisLimiter{client: newFakeRedisCounter(), key: "test:chat", qps: 1000}
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
}

func TestRedisLimiter_BlocksOverQPSUntilContextDone(t *testing.T) {
	l := &RedisLimiter{client: newFakeRedisCounter(), key: "test:embed", qps: 1}
	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	deadline, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	if err := l.Acquire(deadline); err == nil {
		t.Fatalf("expected second acquire in the same window to block until deadline")
	}
}
