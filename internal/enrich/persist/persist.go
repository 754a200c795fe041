// Package persist is the Enrichment Persister (C11): it writes one
// EnrichedElement per worker outcome, success or failure, with the
// enrichmentMetadata shapes described in §4.8.
package persist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"semanticpipe/internal/enrich/aiclient"
	"semanticpipe/internal/enrich/queue"
	"semanticpipe/internal/persistence"
	"semanticpipe/internal/pipeline"
)

// Persister is the Enrichment Persister (C11).
type Persister struct {
	store persistence.EnrichedStore
}

// New builds a Persister over store.
func New(store persistence.EnrichedStore) *Persister {
	return &Persister{store: store}
}

// PersistSuccess writes an ENRICHED row. contextMap is the augmented
// context (fullContextId, sourcePath, provenance.modelId, plus the original
// envelope/facets) the worker validated the result against. version is the
// CleansedBatch version the worker loaded the message's batch at.
func (p *Persister) PersistSuccess(ctx context.Context, m queue.Message, version int, result aiclient.EnrichmentResult, contextMap map[string]any) error {
	el := pipeline.EnrichedElement{
		ID:                    uuid.NewString(),
		CleansedDataID:        m.CleansedDataStoreID,
		Version:               version,
		ItemSourcePath:        m.SourcePath,
		ItemOriginalFieldName: m.OriginalFieldName,
		CleansedText:          m.CleansedContent,
		EnrichedAt:            time.Now().UTC(),
		Summary:               result.Summary,
		Keywords:              result.Keywords,
		Tags:                  result.Tags,
		Sentiment:             result.Sentiment,
		Classification:        result.Classification,
		ModelUsed:             m.Model,
		EnrichmentMetadata: map[string]any{
			"enrichedWithModel":   m.Model,
			"enrichmentTimestamp": time.Now().UTC().Format(time.RFC3339Nano),
		},
		Status:  pipeline.EnrichedOK,
		Context: contextMap,
	}
	if err := p.store.SaveEnrichedElement(ctx, el); err != nil {
		return fmt.Errorf("persist: save enriched element: %w", err)
	}
	return nil
}

// PersistError writes an ERROR_* row. The status distinguishes provider
// failures (non-2xx, network, SDK errors) from validation failures (parsed
// but malformed enrichment payload) so diagnostics can tell them apart.
func (p *Persister) PersistError(ctx context.Context, m queue.Message, version int, message string) error {
	status := pipeline.EnrichedErrorValidationFailed
	if isProviderFailure(message) {
		status = pipeline.EnrichedErrorProvider
	}
	el := pipeline.EnrichedElement{
		ID:                    uuid.NewString(),
		CleansedDataID:        m.CleansedDataStoreID,
		Version:               version,
		ItemSourcePath:        m.SourcePath,
		ItemOriginalFieldName: m.OriginalFieldName,
		CleansedText:          m.CleansedContent,
		EnrichedAt:            time.Now().UTC(),
		ModelUsed:             m.Model,
		EnrichmentMetadata: map[string]any{
			"enrichmentError": message,
		},
		Status: status,
	}
	if err := p.store.SaveEnrichedElement(ctx, el); err != nil {
		return fmt.Errorf("persist: save error element: %w", err)
	}
	return nil
}

func isProviderFailure(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range []string{"aiclient: provider error", "status", "decode"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
