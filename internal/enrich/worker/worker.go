// Package worker is the Worker Pool (C10): a fixed number of goroutines
// draining the Queue, each running the per-message lifecycle of §4.7 and
// invoking the Job Tracker's atomic progress update on every branch that
// reaches persistence.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"semanticpipe/internal/enrich/aiclient"
	"semanticpipe/internal/enrich/jobtracker"
	"semanticpipe/internal/enrich/persist"
	"semanticpipe/internal/enrich/queue"
	"semanticpipe/internal/obs"
	"semanticpipe/internal/persistence"
)

// Config controls pool sizing and throttle handling.
type Config struct {
	PoolSize         int
	ReceiveBatchSize int
	ThrottleDelay    time.Duration
	ShutdownDrain    time.Duration
}

// Pool is the Worker Pool (C10).
type Pool struct {
	cfg       Config
	q         queue.Queue
	ai        *aiclient.Client
	persister *persist.Persister
	tracker   *jobtracker.Tracker
	batches   persistence.RawStore
	log       obs.Logger
}

// New builds a Pool. cfg zero values default to a pool of 4 workers, batch
// size 10, 180s throttle delay, 60s shutdown drain.
func New(cfg Config, q queue.Queue, ai *aiclient.Client, persister *persist.Persister, tracker *jobtracker.Tracker, batches persistence.RawStore, log obs.Logger) *Pool {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.ReceiveBatchSize <= 0 {
		cfg.ReceiveBatchSize = 10
	}
	if cfg.ThrottleDelay <= 0 {
		cfg.ThrottleDelay = 180 * time.Second
	}
	if cfg.ShutdownDrain <= 0 {
		cfg.ShutdownDrain = 60 * time.Second
	}
	return &Pool{cfg: cfg, q: q, ai: ai, persister: persister, tracker: tracker, batches: batches, log: log}
}

// Run launches the fixed goroutine pool and blocks until ctx is cancelled,
// then drains in-flight work for up to cfg.ShutdownDrain before returning.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(context.Background())
	for i := 0; i < p.cfg.PoolSize; i++ {
		g.Go(func() error {
			p.loop(gctx, ctx.Done())
			return nil
		})
	}

	<-ctx.Done()
	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(p.cfg.ShutdownDrain):
		return fmt.Errorf("worker: shutdown drain exceeded %s", p.cfg.ShutdownDrain)
	}
}

// loop repeatedly polls the queue until stop fires, at which point it
// finishes any message already in hand and returns without picking up more.
func (p *Pool) loop(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		msgs, err := p.q.Receive(ctx, p.cfg.ReceiveBatchSize)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.log.Error("worker: receive failed", "error", err)
			continue
		}
		for _, m := range msgs {
			p.handle(ctx, m)
		}
		if len(msgs) == 0 {
			select {
			case <-stop:
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
}

// handle runs the per-message lifecycle of §4.7 steps 1-4: malformed
// decoding is handled upstream by the queue implementation, so this starts
// at step 2 (load the CleansedBatch the message references; drop silently
// if it no longer exists).
func (p *Pool) handle(ctx context.Context, m queue.Message) {
	batch, err := p.batches.GetCleansedBatch(ctx, m.CleansedDataStoreID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			if delErr := p.q.Delete(ctx, m.ReceiptHandle); delErr != nil {
				p.log.Error("worker: delete orphaned message failed", "error", delErr)
			}
			return
		}
		p.log.Error("worker: load cleansed batch failed", "error", err)
		return
	}

	content := m.CleansedContent
	contextMap := map[string]any{}
	if m.Context.Envelope.SourcePath != "" || m.Context.Envelope.UsagePath != "" {
		contextMap["envelope"] = m.Context.Envelope
	}
	if len(m.Context.Facets) > 0 {
		contextMap["facets"] = m.Context.Facets
	}
	contextMap["fullContextId"] = m.SourcePath + "::" + m.OriginalFieldName
	contextMap["sourcePath"] = m.SourcePath
	contextMap["provenance"] = map[string]any{"modelId": m.Model}

	result, err := p.ai.EnrichItem(ctx, content, contextMap)

	if errors.Is(err, aiclient.ErrThrottled) {
		if extErr := p.q.ExtendVisibility(ctx, m.ReceiptHandle, p.cfg.ThrottleDelay); extErr != nil {
			p.log.Error("worker: extend visibility failed", "error", extErr)
		}
		return
	}

	var success bool
	if err != nil {
		if perr := p.persister.PersistError(ctx, m, batch.Version, err.Error()); perr != nil {
			p.log.Error("worker: persist error failed", "error", perr)
		}
		success = false
	} else if result.Error != "" {
		if perr := p.persister.PersistError(ctx, m, batch.Version, result.Error); perr != nil {
			p.log.Error("worker: persist error failed", "error", perr)
		}
		success = false
	} else {
		if perr := p.persister.PersistSuccess(ctx, m, batch.Version, result, contextMap); perr != nil {
			p.log.Error("worker: persist success failed", "error", perr)
		}
		success = true
	}

	if delErr := p.q.Delete(ctx, m.ReceiptHandle); delErr != nil {
		p.log.Error("worker: delete message failed", "error", delErr)
	}

	if trackErr := p.tracker.RecordProgress(ctx, m.JobID, success); trackErr != nil {
		p.log.Error("worker: update job progress failed", "error", trackErr)
	}
}
