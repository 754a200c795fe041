package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inFlightEntry struct {
	msg   Message
	timer *time.Timer
}

// MemoryQueue is an in-process Queue backed by a buffered channel, used by
// tests and single-process local runs. Visibility timeouts are emulated
// with per-message timers that re-enqueue on expiry.
type MemoryQueue struct {
	mu         sync.Mutex
	ch         chan Message
	inFlight   map[string]*inFlightEntry
	visibility time.Duration
}

// NewMemoryQueue builds a MemoryQueue with the given default visibility
// timeout and channel capacity.
func NewMemoryQueue(visibility time.Duration, capacity int) *MemoryQueue {
	if visibility <= 0 {
		visibility = 300 * time.Second
	}
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{
		ch:         make(chan Message, capacity),
		inFlight:   make(map[string]*inFlightEntry),
		visibility: visibility,
	}
}

func (q *MemoryQueue) Send(_ context.Context, msg Message) error {
	msg.ReceiptHandle = uuid.NewString()
	select {
	case q.ch <- msg:
		return nil
	default:
		return fmt.Errorf("queue: memory queue full")
	}
}

func (q *MemoryQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	var msgs []Message
	for len(msgs) < max {
		select {
		case m := <-q.ch:
			q.arm(m, q.visibility)
			msgs = append(msgs, m)
		case <-ctx.Done():
			return msgs, ctx.Err()
		default:
			return msgs, nil
		}
	}
	return msgs, nil
}

// arm schedules redelivery after delay unless Delete or ExtendVisibility
// intervenes first.
func (q *MemoryQueue) arm(m Message, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry := &inFlightEntry{msg: m}
	entry.timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.inFlight, m.ReceiptHandle)
		q.mu.Unlock()
		q.ch <- m
	})
	q.inFlight[m.ReceiptHandle] = entry
}

func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.inFlight[receiptHandle]; ok {
		e.timer.Stop()
		delete(q.inFlight, receiptHandle)
	}
	return nil
}

func (q *MemoryQueue) ExtendVisibility(_ context.Context, receiptHandle string, delay time.Duration) error {
	q.mu.Lock()
	e, ok := q.inFlight[receiptHandle]
	if ok {
		e.timer.Stop()
		delete(q.inFlight, receiptHandle)
	}
	q.mu.Unlock()
	if !ok {
		return nil
	}
	q.arm(e.msg, delay)
	return nil
}
