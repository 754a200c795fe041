package consolidate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"semanticpipe/internal/obs"
	"semanticpipe/internal/persistence"
	"semanticpipe/internal/pipeline"
)

type fakeEmbedder struct {
	vectors [][]float32
}

func (f *fakeEmbedder) GenerateEmbeddingsInBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.vectors != nil {
		return f.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func TestConsolidate_MergesSectionsAndChunks(t *testing.T) {
	store := persistence.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SaveCleansedBatch(ctx, pipeline.CleansedBatch{
		ID: "batch1", SourceUploadID: "doc1", Version: 1,
	}))

	require.NoError(t, store.SaveEnrichedElement(ctx, pipeline.EnrichedElement{
		ID: "e1", CleansedDataID: "batch1", Version: 1,
		ItemSourcePath: "/home", ItemOriginalFieldName: "copy",
		CleansedText: "Hello world.",
		Status:       pipeline.EnrichedOK,
		Summary:      "s", Keywords: []string{"k"}, Tags: []string{"t"},
		Context: map[string]any{
			"envelope": pipeline.Envelope{UsagePath: "/home" + usagePathDelimiter + "hero"},
		},
	}))

	c := New(Config{}, store, store, store, store, store, &fakeEmbedder{}, obs.NopLogger{})
	require.NoError(t, c.Consolidate(ctx, "job1", "batch1"))

	sections, err := store.ListSectionsByCleansedData(ctx, "doc1", 1)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	require.Equal(t, "/home", sections[0].SectionPath)
	require.Equal(t, "hero", sections[0].SectionURI)
}

func TestConsolidate_SkipsNonEnrichedElements(t *testing.T) {
	store := persistence.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SaveCleansedBatch(ctx, pipeline.CleansedBatch{ID: "batch1", Version: 1}))
	require.NoError(t, store.SaveEnrichedElement(ctx, pipeline.EnrichedElement{
		ID: "e1", CleansedDataID: "batch1", Version: 1, Status: pipeline.EnrichedErrorProvider,
	}))

	c := New(Config{}, store, store, store, store, store, &fakeEmbedder{}, obs.NopLogger{})
	require.NoError(t, c.Consolidate(ctx, "job1", "batch1"))

	sections, err := store.ListSectionsByCleansedData(ctx, "", 1)
	require.NoError(t, err)
	require.Empty(t, sections)
}

func TestSplitUsagePath_NoDelimiter(t *testing.T) {
	path, uri := splitUsagePath("/a/b/c")
	require.Equal(t, "/a/b/c", path)
	require.Equal(t, "/a/b/c", uri)
}

func TestSplitUsagePath_WithDelimiter(t *testing.T) {
	path, uri := splitUsagePath("/a/b" + usagePathDelimiter + "frag")
	require.Equal(t, "/a/b", path)
	require.Equal(t, "frag", uri)
}
