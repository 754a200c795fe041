package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"semanticpipe/internal/pipeline"
)

func TestMemoryStore_RawVersioning(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.InsertRawVersion(ctx, pipeline.RawSource{ID: "1", SourceURI: "src", Version: 1}))
	require.NoError(t, s.InsertRawVersion(ctx, pipeline.RawSource{ID: "2", SourceURI: "src", Version: 2}))

	latest, err := s.GetLatestRaw(ctx, "src")
	require.NoError(t, err)
	require.Equal(t, 2, latest.Version)
	require.True(t, latest.Latest)
}

func TestMemoryStore_UpdateProgress_TripsOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateJob(ctx, pipeline.JobTracker{JobID: "j1", TotalItems: 2, Status: pipeline.JobPending}))

	_, tripped1, err := s.UpdateProgress(ctx, "j1", true)
	require.NoError(t, err)
	require.False(t, tripped1)

	jt, tripped2, err := s.UpdateProgress(ctx, "j1", false)
	require.NoError(t, err)
	require.True(t, tripped2)
	require.Equal(t, 2, jt.ProcessedItems)
	require.Equal(t, 1, jt.SuccessCount)
	require.Equal(t, 1, jt.FailureCount)
	require.Equal(t, pipeline.JobFinalizing, jt.Status)
}

func TestMemoryStore_SimilaritySearch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	secID, err := s.SaveSection(ctx, pipeline.ConsolidatedSection{
		ID: "sec1", SourceUploadID: "doc1", Version: 1, OriginalFieldName: "headline",
		Tags: []string{"Promo"}, Keywords: []string{"sale"},
	})
	require.NoError(t, err)

	require.NoError(t, s.SaveChunk(ctx, pipeline.ContentChunk{ID: "c1", SectionID: secID, ChunkText: "a", Vector: []float32{1, 0}}))
	require.NoError(t, s.SaveChunk(ctx, pipeline.ContentChunk{ID: "c2", SectionID: secID, ChunkText: "b", Vector: []float32{0, 1}}))

	hits, err := s.SimilaritySearch(ctx, []float32{1, 0}, SearchFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "c1", hits[0].ChunkID)

	hits, err = s.SimilaritySearch(ctx, []float32{1, 0}, SearchFilter{Tags: []string{"promo"}}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	hits, err = s.SimilaritySearch(ctx, []float32{1, 0}, SearchFilter{OriginalFieldName: "other"}, 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}
