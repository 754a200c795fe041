// Package search is the Refiner & Search (C17): it embeds a query, runs
// cosine similarity search with the requested filters, and harvests chips
// for query refinement.
package search

import (
	"context"
	"fmt"
	"sort"

	"semanticpipe/internal/persistence"
	"semanticpipe/internal/pipeline"
)

// Embedder is the subset of the AI Client search needs.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Hit is a ranked search result with the distance converted to a
// user-facing score.
type Hit struct {
	ChunkID     string
	SectionID   string
	ChunkText   string
	SourceField string
	SectionPath string
	Score       float64
	Tags        []string
	Keywords    []string
	Facets      pipeline.Facets
	Envelope    pipeline.Envelope
}

// Query narrows a search call.
type Query struct {
	Text              string
	OriginalFieldName string
	Limit             int
	Tags              []string
	Keywords          []string
	ContextMap        map[string]any
	Threshold         *float64
}

// Searcher is C17.
type Searcher struct {
	store persistence.VectorSearchStore
	ai    Embedder
}

// New builds a Searcher.
func New(store persistence.VectorSearchStore, ai Embedder) *Searcher {
	return &Searcher{store: store, ai: ai}
}

// Search implements §4.14's search() operation.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Hit, error) {
	vector, err := s.ai.GenerateEmbedding(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	hits, err := s.store.SimilaritySearch(ctx, vector, persistence.SearchFilter{
		OriginalFieldName: q.OriginalFieldName,
		Tags:              q.Tags,
		Keywords:          q.Keywords,
		ContextMap:        q.ContextMap,
		Threshold:         q.Threshold,
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("search: similarity search: %w", err)
	}

	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{
			ChunkID:     h.ChunkID,
			SectionID:   h.SectionID,
			ChunkText:   h.ChunkText,
			SourceField: h.SourceField,
			SectionPath: h.SectionPath,
			Score:       1 - h.Distance,
			Tags:        h.Tags,
			Keywords:    h.Keywords,
			Facets:      h.Facets,
			Envelope:    h.Envelope,
		}
	}
	return out, nil
}

// Chip is a refinement suggestion harvested from recent search hits.
type Chip struct {
	Type  string
	Value string
	Score float64
	Count int
}

const (
	refineThreshold = 0.9
	refineLimit     = 20
	topChips        = 10
)

// Refine implements §4.14's refine() operation: run Search with the fixed
// threshold/limit, harvest tags, keywords, and selected nested context
// fields as chips, and rank by summed (1-distance) score.
func (s *Searcher) Refine(ctx context.Context, query string) ([]Chip, error) {
	threshold := refineThreshold
	hits, err := s.storeRefineHits(ctx, query, threshold)
	if err != nil {
		return nil, err
	}

	type chipKey struct{ typ, value string }
	type accum struct {
		score float64
		count int
	}
	chips := map[chipKey]*accum{}
	add := func(typ, value string, score float64) {
		if value == "" {
			return
		}
		key := chipKey{typ, value}
		a, ok := chips[key]
		if !ok {
			a = &accum{}
			chips[key] = a
		}
		a.score += score
		a.count++
	}

	for _, h := range hits {
		for _, tag := range h.Tags {
			add("Tag", tag, h.Score)
		}
		for _, kw := range h.Keywords {
			add("Keyword", kw, h.Score)
		}
		if v, ok := h.Facets["sectionModel"].(string); ok {
			add("Context:facets.sectionModel", v, h.Score)
		}
		if v, ok := h.Facets["eventType"].(string); ok {
			add("Context:facets.eventType", v, h.Score)
		}
		add("Context:envelope.sectionName", h.Envelope.SectionName, h.Score)
		add("Context:envelope.locale", h.Envelope.Locale, h.Score)
		add("Context:envelope.country", h.Envelope.Country, h.Score)
	}

	out := make([]Chip, 0, len(chips))
	for key, a := range chips {
		out = append(out, Chip{Type: key.typ, Value: key.value, Score: a.score, Count: a.count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topChips {
		out = out[:topChips]
	}
	return out, nil
}

func (s *Searcher) storeRefineHits(ctx context.Context, query string, threshold float64) ([]Hit, error) {
	return s.Search(ctx, Query{Text: query, Limit: refineLimit, Threshold: &threshold})
}
