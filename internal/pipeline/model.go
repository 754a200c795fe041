// Package pipeline holds the shared data model for the ingestion and
// enrichment pipeline: the types every stage (extraction, dedup,
// enrichment, consolidation, search) passes between each other.
package pipeline

import "time"

// Envelope carries structural context about where a content unit lives in
// the source document tree. It is inherited down the tree and snapshotted
// onto every Item at the point it is emitted.
type Envelope struct {
	SourcePath     string         `json:"sourcePath"`
	UsagePath      string         `json:"usagePath"`
	PathHierarchy  []string       `json:"pathHierarchy"`
	Model          string         `json:"model,omitempty"`
	Locale         string         `json:"locale,omitempty"`
	Language       string         `json:"language,omitempty"`
	Country        string         `json:"country,omitempty"`
	SectionName    string         `json:"sectionName,omitempty"`
	Provenance     map[string]any `json:"provenance,omitempty"`
}

// Facets is lateral key/value metadata inherited down the document tree.
type Facets map[string]any

// Clone returns a shallow copy so children can extend without mutating the
// parent's map.
func (f Facets) Clone() Facets {
	out := make(Facets, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Item is a single content-bearing unit produced by the Extractor.
type Item struct {
	SourcePath        string
	ItemType          string
	OriginalFieldName string
	CleansedContent   string
	Model             string
	ContentHash       string
	ContextHash       string
	Envelope          Envelope
	Facets            Facets
}

// RawSourceStatus enumerates terminal and in-flight states for a RawSource.
type RawSourceStatus string

const (
	RawStatusReceived RawSourceStatus = "RECEIVED"
	RawStatusFailed   RawSourceStatus = "FAILED"
)

// RawSource is an immutable snapshot of an ingested payload, keyed by
// (SourceURI, Version).
type RawSource struct {
	ID          string
	SourceURI   string
	Version     int
	ContentText string
	Binary      []byte
	ContentHash string
	ReceivedAt  time.Time
	Status      RawSourceStatus
	Latest      bool
}

// CleansedBatchStatus enumerates all statuses a CleansedBatch can settle in,
// including the terminal ingestion statuses and the final enrichment
// statuses computed in §4.12.
type CleansedBatchStatus string

const (
	StatusInvalidURI               CleansedBatchStatus = "INVALID_URI"
	StatusSourceFileNotFound       CleansedBatchStatus = "SOURCE_FILE_NOT_FOUND"
	StatusDownloadFailed           CleansedBatchStatus = "DOWNLOAD_FAILED"
	StatusEmptyPayload             CleansedBatchStatus = "EMPTY_PAYLOAD"
	StatusEmptyContentLoaded       CleansedBatchStatus = "EMPTY_CONTENT_LOADED"
	StatusJSONParseError           CleansedBatchStatus = "JSON_PARSE_ERROR"
	StatusExtractionFailed         CleansedBatchStatus = "EXTRACTION_FAILED"
	StatusFileError                CleansedBatchStatus = "FILE_ERROR"
	StatusProcessedNoChanges       CleansedBatchStatus = "PROCESSED_NO_CHANGES"
	StatusCleansedPendingEnrich    CleansedBatchStatus = "CLEANSED_PENDING_ENRICHMENT"
	StatusEnrichmentInProgress     CleansedBatchStatus = "ENRICHMENT_IN_PROGRESS"
	StatusEnrichedNoItems          CleansedBatchStatus = "ENRICHED_NO_ITEMS_TO_PROCESS"
	StatusEnrichedAllSkippedEmpty  CleansedBatchStatus = "ENRICHED_ALL_SKIPPED_EMPTY_TEXT"
	StatusEnrichedComplete         CleansedBatchStatus = "ENRICHED_COMPLETE"
	StatusPartiallyEnriched        CleansedBatchStatus = "PARTIALLY_ENRICHED"
	StatusEnrichmentFailedAll      CleansedBatchStatus = "ENRICHMENT_FAILED_ALL_ATTEMPTED"
	StatusEnrichmentSkippedAllRate CleansedBatchStatus = "ENRICHMENT_SKIPPED_ALL_RATE_LIMIT"
	StatusEnrichmentIssuesDetected CleansedBatchStatus = "ENRICHMENT_ISSUES_DETECTED"
)

// EnrichmentSummary is the persisted diagnostics payload described in §4.12.
type EnrichmentSummary struct {
	TotalDeserializedItems   int      `json:"totalDeserializedItems"`
	ItemsAttempted           int      `json:"itemsAttempted"`
	SuccessfullyEnriched     int      `json:"successfullyEnriched"`
	FailedEnrichmentAttempts int      `json:"failedEnrichmentAttempts"`
	SkippedByRateLimit       int      `json:"skippedByRateLimit"`
	ItemProcessingErrors     []string `json:"itemProcessingErrorMessages,omitempty"`
}

// CleansedBatch is 1:1 with the RawSource version it was produced from.
type CleansedBatch struct {
	ID              string
	SourceUploadID  string
	Version         int
	Items           []Item
	Status          CleansedBatchStatus
	CleansedAt      time.Time
	CleansingErrors string
	Diagnostics     *EnrichmentSummary
}

// ContentHashRow is the dedup state keyed by (SourcePath, ItemType, UsagePath).
type ContentHashRow struct {
	SourcePath  string
	ItemType    string
	UsagePath   string
	ContentHash string
	ContextHash string
	UpdatedAt   time.Time
}

// EnrichedStatus enumerates EnrichedElement outcomes.
type EnrichedStatus string

const (
	EnrichedOK                     EnrichedStatus = "ENRICHED"
	EnrichedErrorProvider          EnrichedStatus = "ERROR_PROVIDER"
	EnrichedErrorValidationFailed  EnrichedStatus = "ERROR_VALIDATION_FAILED"
	EnrichedErrorUnexpected        EnrichedStatus = "ERROR_UNEXPECTED"
)

// EnrichedElement is one record per successful or failed enrichment attempt.
type EnrichedElement struct {
	ID                    string
	CleansedDataID        string
	Version               int
	ItemSourcePath        string
	ItemOriginalFieldName string
	CleansedText          string
	EnrichedAt            time.Time
	Summary               string
	Keywords              []string
	Tags                  []string
	Sentiment             string
	Classification        string
	ModelUsed             string
	EnrichmentMetadata    map[string]any
	Status                EnrichedStatus
	Context               map[string]any
}

// ConsolidatedSection is a merged, searchable row per (section, field, text, version).
type ConsolidatedSection struct {
	ID                string
	SourceUploadID    string
	Version           int
	SectionPath       string
	SectionURI        string
	OriginalFieldName string
	CleansedText      string
	ContentHash       string
	SavedAt           time.Time
	Summary           string
	Keywords          []string
	Tags              []string
	Sentiment         string
	Classification    string
	Facets            Facets
	Envelope          Envelope
}

// ContentChunk is a vector-indexed fragment of a ConsolidatedSection's text.
type ContentChunk struct {
	ID          string
	SectionID   string
	ChunkText   string
	SourceField string
	SectionPath string
	Vector      []float32
	CreatedAt   time.Time
}

// JobStatus enumerates JobTracker lifecycle states.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobRunning    JobStatus = "RUNNING"
	JobFinalizing JobStatus = "FINALIZING"
	JobCompleted  JobStatus = "COMPLETED"
)

// JobTracker is the mutable counter row that determines when a job is
// complete. It is mutated exclusively under row lock by the worker that
// just processed an item (§4.7 updateJobProgress).
type JobTracker struct {
	JobID               string
	CleansedDataStoreID string
	TotalItems          int
	ProcessedItems      int
	SuccessCount        int
	FailureCount        int
	Status              JobStatus
	UpdatedAt           time.Time
}

// QueueMessage is the transport object published for each cleansed Item.
type QueueMessage struct {
	JobID               string         `json:"jobId"`
	CleansedDataStoreID string         `json:"cleansedDataStoreId"`
	SourcePath          string         `json:"sourcePath"`
	OriginalFieldName   string         `json:"originalFieldName"`
	CleansedContent     string         `json:"cleansedContent"`
	Model               string         `json:"model"`
	Context             QueueContext   `json:"context"`
	TotalItems          int            `json:"totalItems"`
}

// QueueContext mirrors the envelope/facets carried on a QueueMessage.
type QueueContext struct {
	Envelope Envelope `json:"envelope"`
	Facets   Facets   `json:"facets"`
}
