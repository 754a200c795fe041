package persist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"semanticpipe/internal/enrich/aiclient"
	"semanticpipe/internal/enrich/queue"
	"semanticpipe/internal/pipeline"
)

type fakeEnrichedStore struct {
	saved []pipeline.EnrichedElement
}

func (f *fakeEnrichedStore) SaveEnrichedElement(_ context.Context, el pipeline.EnrichedElement) error {
	f.saved = append(f.saved, el)
	return nil
}

func (f *fakeEnrichedStore) ListEnrichedElements(_ context.Context, _ string, _ int) ([]pipeline.EnrichedElement, error) {
	return f.saved, nil
}

func TestPersistSuccess_WritesEnrichedRow(t *testing.T) {
	store := &fakeEnrichedStore{}
	p := New(store)

	m := queue.Message{QueueMessage: pipeline.QueueMessage{
		CleansedDataStoreID: "batch1", SourcePath: "/a", OriginalFieldName: "copy", Model: "claude-x",
	}}
	result := aiclient.EnrichmentResult{Summary: "s", Keywords: []string{"k"}, Sentiment: "positive", Classification: "promo", Tags: []string{"t"}}

	require.NoError(t, p.PersistSuccess(context.Background(), m, 3, result, map[string]any{"fullContextId": "/a::copy"}))
	require.Len(t, store.saved, 1)
	require.Equal(t, pipeline.EnrichedOK, store.saved[0].Status)
	require.Equal(t, 3, store.saved[0].Version)
	require.Equal(t, "claude-x", store.saved[0].EnrichmentMetadata["enrichedWithModel"])
}

func TestPersistError_ValidationVsProvider(t *testing.T) {
	store := &fakeEnrichedStore{}
	p := New(store)
	m := queue.Message{QueueMessage: pipeline.QueueMessage{CleansedDataStoreID: "batch1"}}

	require.NoError(t, p.PersistError(context.Background(), m, 1, "invalid JSON: unexpected token"))
	require.Equal(t, pipeline.EnrichedErrorValidationFailed, store.saved[0].Status)

	require.NoError(t, p.PersistError(context.Background(), m, 1, "aiclient: provider error: embed status 500"))
	require.Equal(t, pipeline.EnrichedErrorProvider, store.saved[1].Status)
	require.Equal(t, "aiclient: provider error: embed status 500", store.saved[1].EnrichmentMetadata["enrichmentError"])
}
