package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// redisWindowCounter is the subset of *redis.Client a RedisLimiter needs,
// narrowed so the sliding-window logic can be tested against a fake instead
// of a live server.
type redisWindowCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
}

// RedisLimiter enforces a QPS ceiling across every worker process sharing
// addr, using a fixed one-second window per limiter key (INCR +
// EXPIRE), grounded on the teacher's RedisDedupeStore connection/ping
// construction pattern.
type RedisLimiter struct {
	client redisWindowCounter
	key    string
	qps    float64
}

// NewRedisLimiters connects to addr and returns chat/embed limiters sharing
// the connection, each keyed separately so their windows don't interfere.
// Called from cmd/ingestd only when REDIS_ADDR is set; the process-local
// Limiters from New remain the default for single-instance deployments.
func NewRedisLimiters(addr string, chatQPS, embedQPS float64) (*Limiters, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ratelimit: redis ping failed: %w", err)
	}
	return &Limiters{
		Chat:  &RedisLimiter{client: c, key: "ratelimit:chat", qps: clamp(chatQPS)},
		Embed: &RedisLimiter{client: c, key: "ratelimit:embed", qps: clamp(embedQPS)},
	}, nil
}

// Acquire blocks until the current one-second window has spare capacity
// under qps, polling with a short backoff. Unlike the local token-bucket
// limiter this does not guarantee perfectly even spacing, only a ceiling on
// requests per window, which is sufficient for the spec's QPS cap.
func (r *RedisLimiter) Acquire(ctx context.Context) error {
	for {
		window := time.Now().Unix()
		windowKey := fmt.Sprintf("%s:%d", r.key, window)
		count, err := r.client.Incr(ctx, windowKey).Result()
		if err != nil {
			return fmt.Errorf("ratelimit: redis incr: %w", err)
		}
		if count == 1 {
			r.client.Expire(ctx, windowKey, 2*time.Second)
		}
		if float64(count) <= r.qps {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
