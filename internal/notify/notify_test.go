package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu  sync.Mutex
	got []Event
}

func (f *fakeSink) Forward(ctx context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, ev)
	return nil
}

func (f *fakeSink) events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.got))
	copy(out, f.got)
	return out
}

func TestRegistry_PublishAndSubscribe(t *testing.T) {
	r := NewRegistry()
	ch, cancel := r.Subscribe("job1")
	defer cancel()

	r.Publish(Event{JobID: "job1", Type: "progress", Processed: 1, Total: 2})

	select {
	case ev := <-ch:
		require.Equal(t, "progress", ev.Type)
		require.Equal(t, 1, ev.Processed)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRegistry_RecentEventsRingBounded(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 15; i++ {
		r.Publish(Event{JobID: "job1", Type: "progress", Processed: i})
	}
	recent := r.RecentEvents("job1")
	require.Len(t, recent, ringSize)
	require.Equal(t, 5, recent[0].Processed)
	require.Equal(t, 14, recent[len(recent)-1].Processed)
}

func TestRegistry_CompleteSendsCompleteEvent(t *testing.T) {
	r := NewRegistry()
	ch, cancel := r.Subscribe("job1")
	defer cancel()

	r.Complete("job1", Event{JobID: "job1"})

	select {
	case ev, ok := <-ch:
		require.True(t, ok)
		require.Equal(t, "complete", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for complete event")
	}
}

func TestRegistry_UnsubscribeClosesChannel(t *testing.T) {
	r := NewRegistry()
	ch, cancel := r.Subscribe("job1")
	cancel()

	_, ok := <-ch
	require.False(t, ok)
}

func TestRegistry_ForwardsToSink(t *testing.T) {
	r := NewRegistry()
	sink := &fakeSink{}
	r.SetSink(sink)

	r.Publish(Event{JobID: "job1", Type: "progress", Processed: 1})

	require.Eventually(t, func() bool {
		return len(sink.events()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "progress", sink.events()[0].Type)
}
