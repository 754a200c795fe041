package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNew_ClampsMinQPS(t *testing.T) {
	l := New(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Chat.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
}

func TestLocalLimiter_BlocksUntilAvailable(t *testing.T) {
	l := New(1000, 1000)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := l.Embed.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
}

func TestLocalLimiter_RespectsContextCancellation(t *testing.T) {
	l := New(0.1, 0.1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_ = l.Chat.Acquire(context.Background()) // drain initial burst
	if err := l.Chat.Acquire(ctx); err == nil {
		t.Fatalf("expected context deadline error")
	}
}
