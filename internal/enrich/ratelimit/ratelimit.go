// Package ratelimit implements the two independent QPS gates (C7) the AI
// Client acquires a permit from before every chat or embedding call. One AI
// call always costs exactly one permit — the scheduler never batches
// requests under a single acquisition.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// MinQPS is the floor both limiters enforce regardless of configuration.
const MinQPS = 0.1

// Limiter acquires a permit, blocking until one is available or ctx is done.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Limiters bundles the chat and embed gates the AI Client draws from.
type Limiters struct {
	Chat  Limiter
	Embed Limiter
}

// New builds process-local token-bucket limiters from configured QPS,
// clamped to MinQPS, grounded on golang.org/x/time/rate (not present in the
// teacher's own go.mod, adopted from the sibling pack repo that already
// depends on it for the same token-bucket concern).
func New(chatQPS, embedQPS float64) *Limiters {
	return &Limiters{
		Chat:  &localLimiter{l: rate.NewLimiter(rate.Limit(clamp(chatQPS)), 1)},
		Embed: &localLimiter{l: rate.NewLimiter(rate.Limit(clamp(embedQPS)), 1)},
	}
}

func clamp(qps float64) float64 {
	if qps < MinQPS {
		return MinQPS
	}
	return qps
}

type localLimiter struct {
	l *rate.Limiter
}

func (p *localLimiter) Acquire(ctx context.Context) error {
	return p.l.Wait(ctx)
}
