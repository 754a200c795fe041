// Package persistence defines the storage interfaces the pipeline depends
// on for raw/cleansed snapshots, dedup state, enrichment results, job
// tracking, consolidated sections, and vector chunks — plus a Postgres
// implementation and an in-memory fallback/test double of each.
package persistence

import (
	"context"
	"errors"

	"semanticpipe/internal/pipeline"
)

// ErrNotFound is returned by lookup methods when the row does not exist.
var ErrNotFound = errors.New("persistence: not found")

// RawStore manages RawSource and CleansedBatch rows (§3 RawSource, CleansedBatch).
type RawStore interface {
	// GetLatestRaw returns the RawSource row with latest=true for sourceURI.
	GetLatestRaw(ctx context.Context, sourceURI string) (pipeline.RawSource, error)
	// InsertRawVersion flips the previous latest row (if any) to latest=false
	// and inserts rs as the new latest, all in one transaction.
	InsertRawVersion(ctx context.Context, rs pipeline.RawSource) error

	SaveCleansedBatch(ctx context.Context, batch pipeline.CleansedBatch) error
	GetCleansedBatch(ctx context.Context, id string) (pipeline.CleansedBatch, error)
	GetLatestCleansedBatchForSource(ctx context.Context, sourceUploadID string) (pipeline.CleansedBatch, error)
	UpdateCleansedBatchStatus(ctx context.Context, id string, status pipeline.CleansedBatchStatus, diagnostics *pipeline.EnrichmentSummary) error
}

// DedupStore tracks per-(sourcePath,itemType,usagePath) content hashes (C4).
type DedupStore interface {
	Lookup(ctx context.Context, sourcePath, itemType, usagePath string) (pipeline.ContentHashRow, error)
	Upsert(ctx context.Context, row pipeline.ContentHashRow) error
}

// EnrichedStore persists EnrichedElement rows (C11).
type EnrichedStore interface {
	SaveEnrichedElement(ctx context.Context, el pipeline.EnrichedElement) error
	ListEnrichedElements(ctx context.Context, cleansedDataID string, version int) ([]pipeline.EnrichedElement, error)
}

// JobTrackerStore manages JobTracker rows with row-level locking (C12).
type JobTrackerStore interface {
	CreateJob(ctx context.Context, jt pipeline.JobTracker) error
	GetJob(ctx context.Context, jobID string) (pipeline.JobTracker, error)
	// UpdateProgress increments processedItems and successCount/failureCount
	// under a row lock. tripped reports whether this call observed
	// processedItems >= totalItems and flipped status to FINALIZING — the
	// caller that receives tripped=true is responsible for running
	// finalization exactly once.
	UpdateProgress(ctx context.Context, jobID string, success bool) (tracker pipeline.JobTracker, tripped bool, err error)
	MarkCompleted(ctx context.Context, jobID string) error
}

// ConsolidatedStore persists ConsolidatedSection rows (C13).
type ConsolidatedStore interface {
	SectionExists(ctx context.Context, sectionURI, sectionPath, originalFieldName, cleansedText string, version int) (bool, error)
	SaveSection(ctx context.Context, sec pipeline.ConsolidatedSection) (id string, err error)
	// ListSectionsByCleansedData lists the sections saved for a CleansedBatch,
	// looked up by the batch's SourceUploadID and version (sections do not
	// store the batch ID itself).
	ListSectionsByCleansedData(ctx context.Context, sourceUploadID string, version int) ([]pipeline.ConsolidatedSection, error)
}

// ChunkStore persists ContentChunk rows with their vectors (C15).
type ChunkStore interface {
	SaveChunk(ctx context.Context, chunk pipeline.ContentChunk) error
}

// SearchFilter narrows a similarity search (C17).
type SearchFilter struct {
	OriginalFieldName string
	Tags              []string
	Keywords          []string
	ContextMap        map[string]any
	Threshold         *float64
}

// SearchHit is one ranked result from SimilaritySearch.
type SearchHit struct {
	ChunkID     string
	SectionID   string
	ChunkText   string
	SourceField string
	SectionPath string
	Distance    float64
	Tags        []string
	Keywords    []string
	Facets      pipeline.Facets
	Envelope    pipeline.Envelope
}

// VectorSearchStore runs cosine similarity search over content_chunks (C17).
type VectorSearchStore interface {
	SimilaritySearch(ctx context.Context, vector []float32, filter SearchFilter, limit int) ([]SearchHit, error)
}

// Store is the aggregate persistence surface the pipeline wires against.
type Store interface {
	RawStore
	DedupStore
	EnrichedStore
	JobTrackerStore
	ConsolidatedStore
	ChunkStore
	VectorSearchStore
	Close()
}
