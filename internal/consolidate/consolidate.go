// Package consolidate is the Consolidator (C13): invoked once per job at
// finalization, it merges each EnrichedElement into a searchable
// ConsolidatedSection, then chunks and embeds the section text (C14/C15).
package consolidate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"semanticpipe/internal/consolidate/chunker"
	"semanticpipe/internal/obs"
	"semanticpipe/internal/persistence"
	"semanticpipe/internal/pipeline"
)

// usagePathDelimiter splits a usagePath into container (sectionPath) and
// fragment (sectionUri) per §4.9 step 2.
const usagePathDelimiter = " ::ref:: "

// Embedder is the subset of the AI Client the Vector Writer (C15) needs.
type Embedder interface {
	GenerateEmbeddingsInBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config controls deduplication and chunking behavior.
type Config struct {
	DeduplicateConsolidated bool
	Chunker                 chunker.Config
}

// Consolidator is C13, wired with C14 (chunker) and C15 (vector writer).
type Consolidator struct {
	cfg      Config
	enriched persistence.EnrichedStore
	raw      persistence.RawStore
	dedup    persistence.DedupStore
	sections persistence.ConsolidatedStore
	chunks   persistence.ChunkStore
	ai       Embedder
	log      obs.Logger
}

// New builds a Consolidator.
func New(cfg Config, enriched persistence.EnrichedStore, raw persistence.RawStore, dedup persistence.DedupStore, sections persistence.ConsolidatedStore, chunks persistence.ChunkStore, ai Embedder, log obs.Logger) *Consolidator {
	return &Consolidator{cfg: cfg, enriched: enriched, raw: raw, dedup: dedup, sections: sections, chunks: chunks, ai: ai, log: log}
}

// Consolidate resolves cleansedDataID's CleansedBatch, merges every
// EnrichedElement of its current version into ConsolidatedSection rows, then
// chunks and embeds them. Vector-write failures are recorded but never roll
// back section persistence or job completion (§4.11, §5).
func (c *Consolidator) Consolidate(ctx context.Context, jobID, cleansedDataID string) error {
	batch, err := c.raw.GetCleansedBatch(ctx, cleansedDataID)
	if err != nil {
		return fmt.Errorf("consolidate: load cleansed batch: %w", err)
	}

	elements, err := c.enriched.ListEnrichedElements(ctx, cleansedDataID, batch.Version)
	if err != nil {
		return fmt.Errorf("consolidate: list enriched elements: %w", err)
	}

	type chunkJob struct {
		sectionID   string
		sourceField string
		sectionPath string
		text        string
	}
	var pending []chunkJob

	for _, el := range elements {
		if el.Status != pipeline.EnrichedOK {
			continue
		}
		sectionPath, sectionURI := splitUsagePath(usagePathOf(el))

		if c.cfg.DeduplicateConsolidated {
			exists, err := c.sections.SectionExists(ctx, sectionURI, sectionPath, el.ItemOriginalFieldName, el.CleansedText, batch.Version)
			if err != nil {
				return fmt.Errorf("consolidate: check section exists: %w", err)
			}
			if exists {
				continue
			}
		}

		contentHash := ""
		if row, err := c.dedup.Lookup(ctx, el.ItemSourcePath, el.ItemOriginalFieldName, usagePathOf(el)); err == nil {
			contentHash = row.ContentHash
		}

		sec := pipeline.ConsolidatedSection{
			ID:                uuid.NewString(),
			SourceUploadID:    batch.SourceUploadID,
			Version:           batch.Version,
			SectionPath:       sectionPath,
			SectionURI:        sectionURI,
			OriginalFieldName: el.ItemOriginalFieldName,
			CleansedText:      el.CleansedText,
			ContentHash:       contentHash,
			SavedAt:           time.Now().UTC(),
			Summary:           el.Summary,
			Keywords:          el.Keywords,
			Tags:              el.Tags,
			Sentiment:         el.Sentiment,
			Classification:    el.Classification,
			Facets:            facetsFromContext(el.Context),
			Envelope:          envelopeFromContext(el.Context),
		}

		secID, err := c.sections.SaveSection(ctx, sec)
		if err != nil {
			return fmt.Errorf("consolidate: save section: %w", err)
		}

		for _, text := range chunker.Split(el.CleansedText, c.cfg.Chunker) {
			pending = append(pending, chunkJob{sectionID: secID, sourceField: el.ItemOriginalFieldName, sectionPath: sectionPath, text: text})
		}
	}

	if len(pending) == 0 {
		return nil
	}

	texts := make([]string, len(pending))
	for i, j := range pending {
		texts[i] = j.text
	}
	vectors, err := c.ai.GenerateEmbeddingsInBatch(ctx, texts)
	if err != nil {
		c.log.Error("consolidate: batch embedding failed", "jobId", jobID, "error", err)
		return nil
	}

	saved := len(pending)
	if len(vectors) < saved {
		saved = len(vectors)
	}
	if len(vectors) != len(pending) {
		c.log.Warn("consolidate: embedding count mismatch", "jobId", jobID, "chunks", len(pending), "vectors", len(vectors))
	}

	for i := 0; i < saved; i++ {
		chunk := pipeline.ContentChunk{
			ID:          uuid.NewString(),
			SectionID:   pending[i].sectionID,
			ChunkText:   pending[i].text,
			SourceField: pending[i].sourceField,
			SectionPath: pending[i].sectionPath,
			Vector:      vectors[i],
			CreatedAt:   time.Now().UTC(),
		}
		if err := c.chunks.SaveChunk(ctx, chunk); err != nil {
			c.log.Error("consolidate: save chunk failed", "jobId", jobID, "sectionId", chunk.SectionID, "error", err)
		}
	}
	return nil
}

// usagePathOf extracts context.envelope.usagePath, falling back to
// itemSourcePath per §4.9 step 1.
func usagePathOf(el pipeline.EnrichedElement) string {
	if env, ok := el.Context["envelope"]; ok {
		switch v := env.(type) {
		case pipeline.Envelope:
			if v.UsagePath != "" {
				return v.UsagePath
			}
		case map[string]any:
			if up, ok := v["usagePath"].(string); ok && up != "" {
				return up
			}
		}
	}
	return el.ItemSourcePath
}

func splitUsagePath(usagePath string) (sectionPath, sectionURI string) {
	if idx := strings.Index(usagePath, usagePathDelimiter); idx >= 0 {
		return usagePath[:idx], usagePath[idx+len(usagePathDelimiter):]
	}
	return usagePath, usagePath
}

func facetsFromContext(ctx map[string]any) pipeline.Facets {
	if v, ok := ctx["facets"]; ok {
		switch f := v.(type) {
		case pipeline.Facets:
			return f
		case map[string]any:
			return pipeline.Facets(f)
		}
	}
	return nil
}

func envelopeFromContext(ctx map[string]any) pipeline.Envelope {
	if v, ok := ctx["envelope"]; ok {
		if env, ok := v.(pipeline.Envelope); ok {
			return env
		}
	}
	return pipeline.Envelope{}
}
