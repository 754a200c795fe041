// Package ingest is the Ingestion Orchestrator (C6): it ties the Cleanser,
// Hasher, Extractor, and Dedup Store together into the single end-to-end
// sequence that turns a (sourceURI, payload) pair into a CleansedBatch and,
// once pending enrichment, one queued QueueMessage per kept item.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"semanticpipe/internal/enrich/queue"
	"semanticpipe/internal/ingest/extract"
	"semanticpipe/internal/ingest/extract/ojson"
	"semanticpipe/internal/ingest/hash"
	"semanticpipe/internal/obs"
	"semanticpipe/internal/persistence"
	"semanticpipe/internal/pipeline"
)

// Loader resolves a sourceURI to raw payload bytes, abstracting over
// object-store and local-filesystem collaborators.
type Loader interface {
	Load(ctx context.Context, sourceURI string) ([]byte, error)
}

// fatalStatusErr pairs a terminal CleansedBatchStatus with the sentinel
// error that produced it, so Ingest can return both in one place.
type fatalStatusErr struct {
	status pipeline.CleansedBatchStatus
	err    error
}

func (f fatalStatusErr) Error() string { return f.err.Error() }
func (f fatalStatusErr) Unwrap() error { return f.err }

// Orchestrator runs the six-step ingestion sequence (§4.4).
type Orchestrator struct {
	loader Loader
	raw    persistence.RawStore
	dedup  persistence.DedupStore
	queue  queue.Queue
	jobs   persistence.JobTrackerStore
	log    obs.Logger
}

// Option configures an Orchestrator during construction.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
func WithLogger(l obs.Logger) Option { return func(o *Orchestrator) { o.log = l } }

// New builds an Orchestrator from its storage and transport collaborators.
func New(loader Loader, raw persistence.RawStore, dedup persistence.DedupStore, q queue.Queue, jobs persistence.JobTrackerStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		loader: loader,
		raw:    raw,
		dedup:  dedup,
		queue:  q,
		jobs:   jobs,
		log:    obs.NopLogger{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ingest runs the full sequence described in §4.4 for one sourceURI,
// resolving the payload bytes via the Loader.
func (o *Orchestrator) Ingest(ctx context.Context, sourceURI string) (pipeline.CleansedBatch, error) {
	if sourceURI == "" {
		return terminalBatch(sourceURI, pipeline.StatusInvalidURI), fatalStatusErr{pipeline.StatusInvalidURI, ErrInvalidURI}
	}

	payload, err := o.loader.Load(ctx, sourceURI)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return terminalBatch(sourceURI, pipeline.StatusSourceFileNotFound), fatalStatusErr{pipeline.StatusSourceFileNotFound, ErrSourceFileNotFound}
		}
		return terminalBatch(sourceURI, pipeline.StatusDownloadFailed), fatalStatusErr{pipeline.StatusDownloadFailed, fmt.Errorf("%w: %v", ErrDownloadFailed, err)}
	}
	return o.ingestPayload(ctx, sourceURI, payload)
}

// IngestPayload runs the same §4.4 sequence for a caller-supplied payload,
// bypassing the Loader entirely — used by the JSON-body ingestion endpoint,
// where the request body already is the document and there is nothing to
// download.
func (o *Orchestrator) IngestPayload(ctx context.Context, sourceURI string, payload []byte) (pipeline.CleansedBatch, error) {
	if sourceURI == "" {
		return terminalBatch(sourceURI, pipeline.StatusInvalidURI), fatalStatusErr{pipeline.StatusInvalidURI, ErrInvalidURI}
	}
	return o.ingestPayload(ctx, sourceURI, payload)
}

// ingestPayload implements §4.4 steps 2-6 once a sourceURI and its raw
// payload bytes are in hand, regardless of how those bytes were obtained.
func (o *Orchestrator) ingestPayload(ctx context.Context, sourceURI string, payload []byte) (pipeline.CleansedBatch, error) {
	if len(payload) == 0 {
		return terminalBatch(sourceURI, pipeline.StatusEmptyPayload), fatalStatusErr{pipeline.StatusEmptyPayload, ErrEmptyPayload}
	}

	version, err := o.resolveRawVersion(ctx, sourceURI, payload)
	if err != nil {
		return pipeline.CleansedBatch{}, err
	}
	if version.reused {
		return version.batch, nil
	}

	root, err := ojson.Parse(payload)
	if err != nil {
		return terminalBatch(sourceURI, pipeline.StatusJSONParseError), fatalStatusErr{pipeline.StatusJSONParseError, fmt.Errorf("%w: %v", ErrJSONParse, err)}
	}
	result, err := extract.Extract(root, sourceURI)
	if err != nil {
		return terminalBatch(sourceURI, pipeline.StatusExtractionFailed), fatalStatusErr{pipeline.StatusExtractionFailed, fmt.Errorf("%w: %v", ErrExtractionFailed, err)}
	}
	for _, w := range result.Warnings {
		o.log.Info("ingest: extraction warning", "sourceUri", sourceURI, "warning", w)
	}

	kept, err := o.dedupItems(ctx, result.Items)
	if err != nil {
		return pipeline.CleansedBatch{}, err
	}

	if len(kept) == 0 {
		prev, err := o.raw.GetLatestCleansedBatchForSource(ctx, sourceURI)
		if err == nil {
			return prev, nil
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return pipeline.CleansedBatch{}, err
		}
		return terminalBatch(sourceURI, pipeline.StatusProcessedNoChanges), nil
	}

	batch := pipeline.CleansedBatch{
		ID:             uuid.NewString(),
		SourceUploadID: sourceURI,
		Version:        version.num,
		Items:          kept,
		Status:         pipeline.StatusCleansedPendingEnrich,
		CleansedAt:     time.Now().UTC(),
	}
	if err := o.raw.SaveCleansedBatch(ctx, batch); err != nil {
		return pipeline.CleansedBatch{}, fmt.Errorf("ingest: save cleansed batch: %w", err)
	}

	if err := o.startEnrichment(ctx, batch); err != nil {
		return batch, fmt.Errorf("ingest: start enrichment: %w", err)
	}
	batch.Status = pipeline.StatusEnrichmentInProgress
	return batch, nil
}

type rawVersion struct {
	num    int
	reused bool
	batch  pipeline.CleansedBatch
}

// resolveRawVersion implements §4.4 step 2: flip/insert the RawSource row
// for sourceURI, or signal that an unchanged payload's existing
// CleansedBatch should be returned as-is.
func (o *Orchestrator) resolveRawVersion(ctx context.Context, sourceURI string, payload []byte) (rawVersion, error) {
	payloadHash := hash.Content(string(payload), "")

	latest, err := o.raw.GetLatestRaw(ctx, sourceURI)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		rs := pipeline.RawSource{
			SourceURI:   sourceURI,
			Version:     1,
			ContentText: string(payload),
			ContentHash: payloadHash,
			ReceivedAt:  time.Now().UTC(),
			Status:      pipeline.RawStatusReceived,
			Latest:      true,
		}
		if err := o.raw.InsertRawVersion(ctx, rs); err != nil {
			return rawVersion{}, fmt.Errorf("ingest: insert raw version: %w", err)
		}
		return rawVersion{num: 1}, nil
	case err != nil:
		return rawVersion{}, fmt.Errorf("ingest: get latest raw: %w", err)
	}

	if latest.ContentHash == payloadHash {
		batch, err := o.raw.GetLatestCleansedBatchForSource(ctx, sourceURI)
		if err == nil {
			return rawVersion{num: latest.Version, reused: true, batch: batch}, nil
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return rawVersion{}, fmt.Errorf("ingest: get latest cleansed batch: %w", err)
		}
		return rawVersion{num: latest.Version}, nil
	}

	rs := pipeline.RawSource{
		SourceURI:   sourceURI,
		Version:     latest.Version + 1,
		ContentText: string(payload),
		ContentHash: payloadHash,
		ReceivedAt:  time.Now().UTC(),
		Status:      pipeline.RawStatusReceived,
		Latest:      true,
	}
	if err := o.raw.InsertRawVersion(ctx, rs); err != nil {
		return rawVersion{}, fmt.Errorf("ingest: insert raw version: %w", err)
	}
	return rawVersion{num: rs.Version}, nil
}

// dedupItems implements §4.4 step 4: consult the ContentHashRow for every
// extracted item, keeping and upserting only those whose content or
// context changed.
func (o *Orchestrator) dedupItems(ctx context.Context, items []pipeline.Item) ([]pipeline.Item, error) {
	kept := make([]pipeline.Item, 0, len(items))
	for _, item := range items {
		usagePath := item.Envelope.UsagePath
		if usagePath == "" {
			usagePath = item.SourcePath
		}
		contextStr, err := canonicalContext(item.Envelope, item.Facets)
		if err != nil {
			return nil, fmt.Errorf("ingest: serialize item context: %w", err)
		}
		item.ContentHash = hash.Content(item.CleansedContent, "")
		item.ContextHash = hash.Content(item.CleansedContent, contextStr)

		row, err := o.dedup.Lookup(ctx, item.SourcePath, item.ItemType, usagePath)
		changed := errors.Is(err, persistence.ErrNotFound)
		if err != nil && !changed {
			return nil, fmt.Errorf("ingest: dedup lookup: %w", err)
		}
		if !changed && (row.ContentHash != item.ContentHash || row.ContextHash != item.ContextHash) {
			changed = true
		}
		if !changed {
			continue
		}

		if err := o.dedup.Upsert(ctx, pipeline.ContentHashRow{
			SourcePath:  item.SourcePath,
			ItemType:    item.ItemType,
			UsagePath:   usagePath,
			ContentHash: item.ContentHash,
			ContextHash: item.ContextHash,
			UpdatedAt:   time.Now().UTC(),
		}); err != nil {
			return nil, fmt.Errorf("ingest: dedup upsert: %w", err)
		}
		kept = append(kept, item)
	}
	return kept, nil
}

// startEnrichment implements the CLEANSED_PENDING_ENRICHMENT →
// ENRICHMENT_IN_PROGRESS transition from §4.7: create the JobTracker and
// publish one QueueMessage per item.
func (o *Orchestrator) startEnrichment(ctx context.Context, batch pipeline.CleansedBatch) error {
	// One job per cleansed batch: the batch ID doubles as the job ID, so the
	// progress URL built from the batch ID names this job's event stream.
	jobID := batch.ID
	if err := o.jobs.CreateJob(ctx, pipeline.JobTracker{
		JobID:               jobID,
		CleansedDataStoreID: batch.ID,
		TotalItems:          len(batch.Items),
		Status:              pipeline.JobRunning,
		UpdatedAt:           time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("create job tracker: %w", err)
	}

	for _, item := range batch.Items {
		msg := queue.Message{QueueMessage: pipeline.QueueMessage{
			JobID:               jobID,
			CleansedDataStoreID: batch.ID,
			SourcePath:          item.SourcePath,
			OriginalFieldName:   item.OriginalFieldName,
			CleansedContent:     item.CleansedContent,
			Model:               item.Model,
			Context:             pipeline.QueueContext{Envelope: item.Envelope, Facets: item.Facets},
			TotalItems:          len(batch.Items),
		}}
		if err := o.queue.Send(ctx, msg); err != nil {
			return fmt.Errorf("publish queue message: %w", err)
		}
	}

	if err := o.raw.UpdateCleansedBatchStatus(ctx, batch.ID, pipeline.StatusEnrichmentInProgress, nil); err != nil {
		return fmt.Errorf("update cleansed batch status: %w", err)
	}
	return nil
}

// canonicalContext serializes envelope and facets deterministically: the
// standard library sorts map keys when marshaling, so the same logical
// context always yields the same byte string.
func canonicalContext(env pipeline.Envelope, facets pipeline.Facets) (string, error) {
	payload := struct {
		Envelope pipeline.Envelope `json:"envelope"`
		Facets   pipeline.Facets   `json:"facets"`
	}{Envelope: env, Facets: facets}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func terminalBatch(sourceURI string, status pipeline.CleansedBatchStatus) pipeline.CleansedBatch {
	return pipeline.CleansedBatch{
		SourceUploadID: sourceURI,
		Status:         status,
		CleansedAt:     time.Now().UTC(),
	}
}
