package ingest

import "errors"

// Sentinel errors surfaced by the ingestion orchestrator, matching a
// fatal CleansedBatchStatus one-for-one.
var (
	ErrInvalidURI         = errors.New("ingest: invalid source uri")
	ErrSourceFileNotFound = errors.New("ingest: source file not found")
	ErrDownloadFailed     = errors.New("ingest: download failed")
	ErrEmptyPayload       = errors.New("ingest: empty payload")
	ErrEmptyContentLoaded = errors.New("ingest: empty content loaded")
	ErrJSONParse          = errors.New("ingest: json parse error")
	ErrExtractionFailed   = errors.New("ingest: extraction failed")
	ErrFile               = errors.New("ingest: file error")
)
