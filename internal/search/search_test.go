package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"semanticpipe/internal/persistence"
	"semanticpipe/internal/pipeline"
)

type fakeEmbedder struct {
	vector []float32
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}

func seedStore(t *testing.T, store *persistence.MemoryStore, sec pipeline.ConsolidatedSection, vector []float32) {
	t.Helper()
	id, err := store.SaveSection(context.Background(), sec)
	require.NoError(t, err)
	err = store.SaveChunk(context.Background(), pipeline.ContentChunk{
		SectionID:   id,
		ChunkText:   sec.CleansedText,
		SourceField: sec.OriginalFieldName,
		SectionPath: sec.SectionPath,
		Vector:      vector,
	})
	require.NoError(t, err)
}

func TestSearch_RanksByDistanceAndConvertsScore(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedStore(t, store, pipeline.ConsolidatedSection{
		SourceUploadID:    "job1",
		OriginalFieldName: "body",
		CleansedText:      "close match",
		Tags:              []string{"news"},
		Keywords:          []string{"alpha"},
	}, []float32{1, 0, 0})
	seedStore(t, store, pipeline.ConsolidatedSection{
		SourceUploadID:    "job1",
		OriginalFieldName: "body",
		CleansedText:      "far match",
		Tags:              []string{"sports"},
		Keywords:          []string{"beta"},
	}, []float32{0, 1, 0})

	s := New(store, &fakeEmbedder{vector: []float32{1, 0, 0}})
	hits, err := s.Search(context.Background(), Query{Text: "q", Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "close match", hits[0].ChunkText)
	require.InDelta(t, 1.0, hits[0].Score, 1e-6)
	require.Less(t, hits[1].Score, hits[0].Score)
}

func TestSearch_ThresholdFiltersLowScoringHits(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedStore(t, store, pipeline.ConsolidatedSection{
		SourceUploadID: "job1",
		CleansedText:   "orthogonal",
	}, []float32{0, 1, 0})

	s := New(store, &fakeEmbedder{vector: []float32{1, 0, 0}})
	threshold := 0.5
	hits, err := s.Search(context.Background(), Query{Text: "q", Threshold: &threshold})
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestRefine_HarvestsTagsKeywordsAndContextChips(t *testing.T) {
	store := persistence.NewMemoryStore()
	seedStore(t, store, pipeline.ConsolidatedSection{
		SourceUploadID:    "job1",
		OriginalFieldName: "body",
		CleansedText:      "article one",
		Tags:              []string{"news"},
		Keywords:          []string{"alpha"},
		Facets:            pipeline.Facets{"sectionModel": "article", "eventType": "publish"},
		Envelope:          pipeline.Envelope{SectionName: "frontpage", Locale: "en-US", Country: "US"},
	}, []float32{1, 0, 0})
	seedStore(t, store, pipeline.ConsolidatedSection{
		SourceUploadID:    "job1",
		OriginalFieldName: "body",
		CleansedText:      "article two",
		Tags:              []string{"news"},
		Keywords:          []string{"alpha"},
		Facets:            pipeline.Facets{"sectionModel": "article", "eventType": "publish"},
		Envelope:          pipeline.Envelope{SectionName: "frontpage", Locale: "en-US", Country: "US"},
	}, []float32{1, 0, 0})

	s := New(store, &fakeEmbedder{vector: []float32{1, 0, 0}})
	chips, err := s.Refine(context.Background(), "q")
	require.NoError(t, err)
	require.NotEmpty(t, chips)

	byType := map[string]Chip{}
	for _, c := range chips {
		byType[c.Type] = c
	}
	tag, ok := byType["Tag"]
	require.True(t, ok)
	require.Equal(t, "news", tag.Value)
	require.Equal(t, 2, tag.Count)

	kw, ok := byType["Keyword"]
	require.True(t, ok)
	require.Equal(t, "alpha", kw.Value)

	ctxChip, ok := byType["Context:facets.sectionModel"]
	require.True(t, ok)
	require.Equal(t, "article", ctxChip.Value)

	locale, ok := byType["Context:envelope.locale"]
	require.True(t, ok)
	require.Equal(t, "en-US", locale.Value)
}

func TestRefine_LimitsToTopTenChips(t *testing.T) {
	store := persistence.NewMemoryStore()
	for i := 0; i < 15; i++ {
		seedStore(t, store, pipeline.ConsolidatedSection{
			SourceUploadID: "job1",
			CleansedText:   "x",
			Tags:           []string{string(rune('a' + i))},
		}, []float32{1, 0, 0})
	}

	s := New(store, &fakeEmbedder{vector: []float32{1, 0, 0}})
	chips, err := s.Refine(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, chips, topChips)
}
