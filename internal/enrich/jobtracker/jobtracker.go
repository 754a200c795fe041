// Package jobtracker wires the Job Tracker (C12): it calls the store's
// atomic UpdateProgress and, the one time it reports tripped, invokes
// consolidation exactly once for that job.
package jobtracker

import (
	"context"
	"fmt"
	"time"

	"semanticpipe/internal/notify"
	"semanticpipe/internal/obs"
	"semanticpipe/internal/persistence"
)

// Consolidator is invoked exactly once per job when the row lock reports
// processedItems >= totalItems. It resolves the CleansedBatch version
// itself from cleansedDataID.
type Consolidator interface {
	Consolidate(ctx context.Context, jobID, cleansedDataID string) error
}

// Notifier is the subset of notify.Registry the tracker pushes progress
// events to. Nil-safe: a Tracker built without one simply skips notification.
type Notifier interface {
	Publish(ev notify.Event)
	Complete(jobID string, ev notify.Event)
}

// Tracker is the Job Tracker (C12) wiring.
type Tracker struct {
	store        persistence.JobTrackerStore
	consolidator Consolidator
	notifier     Notifier
	log          obs.Logger
}

// New builds a Tracker. notifier may be nil to skip progress events.
func New(store persistence.JobTrackerStore, consolidator Consolidator, notifier Notifier, log obs.Logger) *Tracker {
	return &Tracker{store: store, consolidator: consolidator, notifier: notifier, log: log}
}

// RecordProgress increments the job's counters and, if this call is the one
// that observes completion, runs consolidation and marks the job completed.
func (t *Tracker) RecordProgress(ctx context.Context, jobID string, success bool) error {
	jt, tripped, err := t.store.UpdateProgress(ctx, jobID, success)
	if err != nil {
		return fmt.Errorf("jobtracker: update progress: %w", err)
	}

	ev := notify.Event{
		JobID:     jt.JobID,
		Type:      "progress",
		Processed: jt.ProcessedItems,
		Total:     jt.TotalItems,
		Success:   jt.SuccessCount,
		Failure:   jt.FailureCount,
		At:        time.Now().UTC(),
	}
	if t.notifier != nil {
		t.notifier.Publish(ev)
	}

	if !tripped {
		return nil
	}

	if err := t.consolidator.Consolidate(ctx, jt.JobID, jt.CleansedDataStoreID); err != nil {
		t.log.Error("jobtracker: consolidation failed", "jobId", jobID, "error", err)
		return fmt.Errorf("jobtracker: consolidate: %w", err)
	}
	if err := t.store.MarkCompleted(ctx, jobID); err != nil {
		return fmt.Errorf("jobtracker: mark completed: %w", err)
	}
	if t.notifier != nil {
		t.notifier.Complete(jobID, ev)
	}
	return nil
}
