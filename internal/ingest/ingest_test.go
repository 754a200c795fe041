package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"semanticpipe/internal/enrich/queue"
	"semanticpipe/internal/persistence"
	"semanticpipe/internal/pipeline"
)

type fakeLoader struct {
	payload []byte
	err     error
}

func (f fakeLoader) Load(ctx context.Context, sourceURI string) ([]byte, error) {
	return f.payload, f.err
}

func newOrchestrator(payload string) (*Orchestrator, *persistence.MemoryStore, *queue.MemoryQueue) {
	store := persistence.NewMemoryStore()
	q := queue.NewMemoryQueue(5*time.Minute, 16)
	o := New(fakeLoader{payload: []byte(payload)}, store, store, q, store)
	return o, store, q
}

func TestIngest_FirstPassCreatesCleansedBatchAndEnqueues(t *testing.T) {
	o, _, q := newOrchestrator(`{"content":{"sections":[{"_model":"hero-section","_path":"/en_US/hero","copy":"Hello world"}]}}`)

	batch, err := o.Ingest(context.Background(), "/src/a.json")
	require.NoError(t, err)
	require.Equal(t, pipeline.StatusEnrichmentInProgress, batch.Status)
	require.Len(t, batch.Items, 1)
	require.NotEmpty(t, batch.Items[0].ContentHash)
	require.NotEmpty(t, batch.Items[0].ContextHash)

	msgs, err := q.Receive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, batch.ID, msgs[0].CleansedDataStoreID)
	require.Equal(t, 1, msgs[0].TotalItems)
}

func TestIngest_SamePayloadReturnsExistingBatch(t *testing.T) {
	payload := `{"content":{"sections":[{"_model":"hero-section","_path":"/en_US/hero","copy":"Hello world"}]}}`
	o, _, _ := newOrchestrator(payload)

	first, err := o.Ingest(context.Background(), "/src/a.json")
	require.NoError(t, err)

	second, err := o.Ingest(context.Background(), "/src/a.json")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestIngest_UnchangedItemsReturnPreviousBatch(t *testing.T) {
	store := persistence.NewMemoryStore()
	q := queue.NewMemoryQueue(5*time.Minute, 16)

	first := New(fakeLoader{payload: []byte(`{"content":{"sections":[{"_model":"hero-section","_path":"/en_US/hero","copy":"Hello world"}]}}`)}, store, store, q, store)
	firstBatch, err := first.Ingest(context.Background(), "/src/a.json")
	require.NoError(t, err)

	// A different raw payload that produces the same single extracted item:
	// the RawSource version advances but the dedup store drops the item as
	// unchanged, so no new CleansedBatch should be created.
	second := New(fakeLoader{payload: []byte(`{"content":{"sections":[{"_model":"hero-section","_path":"/en_US/hero","copy":"Hello   world"}]}}`)}, store, store, q, store)
	secondBatch, err := second.Ingest(context.Background(), "/src/a.json")
	require.NoError(t, err)
	require.Equal(t, firstBatch.ID, secondBatch.ID)
}

func TestIngest_EmptyPayloadIsFatal(t *testing.T) {
	o, _, _ := newOrchestrator("")
	_, err := o.Ingest(context.Background(), "/src/a.json")
	require.ErrorIs(t, err, ErrEmptyPayload)
}

func TestIngest_InvalidURIIsFatal(t *testing.T) {
	o, _, _ := newOrchestrator(`{}`)
	_, err := o.Ingest(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidURI)
}

func TestIngest_LoaderNotFoundMapsToSourceFileNotFound(t *testing.T) {
	store := persistence.NewMemoryStore()
	q := queue.NewMemoryQueue(5*time.Minute, 16)
	o := New(fakeLoader{err: persistence.ErrNotFound}, store, store, q, store)

	_, err := o.Ingest(context.Background(), "/src/missing.json")
	require.ErrorIs(t, err, ErrSourceFileNotFound)
}

func TestIngest_LoaderFailureMapsToDownloadFailed(t *testing.T) {
	store := persistence.NewMemoryStore()
	q := queue.NewMemoryQueue(5*time.Minute, 16)
	o := New(fakeLoader{err: errors.New("network blip")}, store, store, q, store)

	_, err := o.Ingest(context.Background(), "/src/a.json")
	require.ErrorIs(t, err, ErrDownloadFailed)
}

func TestIngest_MalformedJSONIsFatal(t *testing.T) {
	o, _, _ := newOrchestrator(`{not json`)
	_, err := o.Ingest(context.Background(), "/src/a.json")
	require.ErrorIs(t, err, ErrJSONParse)
}
