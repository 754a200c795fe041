package jobtracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"semanticpipe/internal/notify"
	"semanticpipe/internal/obs"
	"semanticpipe/internal/pipeline"
)

type fakeStore struct {
	jt         pipeline.JobTracker
	tripOn     int
	calls      int
	completed  bool
}

func (f *fakeStore) CreateJob(context.Context, pipeline.JobTracker) error { return nil }
func (f *fakeStore) GetJob(context.Context, string) (pipeline.JobTracker, error) {
	return f.jt, nil
}
func (f *fakeStore) UpdateProgress(_ context.Context, _ string, success bool) (pipeline.JobTracker, bool, error) {
	f.calls++
	f.jt.ProcessedItems++
	if success {
		f.jt.SuccessCount++
	} else {
		f.jt.FailureCount++
	}
	tripped := f.jt.ProcessedItems >= f.tripOn
	if tripped {
		f.jt.Status = pipeline.JobFinalizing
	}
	return f.jt, tripped, nil
}
func (f *fakeStore) MarkCompleted(context.Context, string) error {
	f.completed = true
	return nil
}

type fakeConsolidator struct {
	calls int
}

func (c *fakeConsolidator) Consolidate(context.Context, string, string) error {
	c.calls++
	return nil
}

func TestRecordProgress_ConsolidatesExactlyOnceOnTrip(t *testing.T) {
	store := &fakeStore{jt: pipeline.JobTracker{JobID: "j1", CleansedDataStoreID: "b1", TotalItems: 2}, tripOn: 2}
	cons := &fakeConsolidator{}
	tracker := New(store, cons, nil, obs.NopLogger{})

	require.NoError(t, tracker.RecordProgress(context.Background(), "j1", true))
	require.Equal(t, 0, cons.calls)
	require.False(t, store.completed)

	require.NoError(t, tracker.RecordProgress(context.Background(), "j1", false))
	require.Equal(t, 1, cons.calls)
	require.True(t, store.completed)
}

type fakeNotifier struct {
	published []notify.Event
	completed bool
}

func (n *fakeNotifier) Publish(ev notify.Event)                { n.published = append(n.published, ev) }
func (n *fakeNotifier) Complete(jobID string, ev notify.Event) { n.completed = true }

func TestRecordProgress_PublishesEventsAndCompletesOnTrip(t *testing.T) {
	store := &fakeStore{jt: pipeline.JobTracker{JobID: "j1", CleansedDataStoreID: "b1", TotalItems: 1}, tripOn: 1}
	cons := &fakeConsolidator{}
	notifier := &fakeNotifier{}
	tracker := New(store, cons, notifier, obs.NopLogger{})

	require.NoError(t, tracker.RecordProgress(context.Background(), "j1", true))
	require.Len(t, notifier.published, 1)
	require.Equal(t, 1, notifier.published[0].Processed)
	require.True(t, notifier.completed)
}
