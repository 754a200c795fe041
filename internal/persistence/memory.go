package persistence

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"semanticpipe/internal/pipeline"
)

// MemoryStore is an in-process Store used by tests and single-process
// deployments without a configured database, grounded on the teacher's
// memory_vector.go/memory_search.go fallback pattern generalized to the
// full pipeline schema.
type MemoryStore struct {
	mu sync.Mutex

	rawBySourceLatest map[string]pipeline.RawSource
	rawAll            []pipeline.RawSource

	batches           map[string]pipeline.CleansedBatch
	latestBatchBySrc  map[string]string

	hashRows map[string]pipeline.ContentHashRow

	enriched map[string][]pipeline.EnrichedElement

	jobs map[string]pipeline.JobTracker

	sections       map[string]pipeline.ConsolidatedSection
	sectionsByJob  map[string][]string

	chunks []pipeline.ContentChunk
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rawBySourceLatest: map[string]pipeline.RawSource{},
		batches:           map[string]pipeline.CleansedBatch{},
		latestBatchBySrc:  map[string]string{},
		hashRows:          map[string]pipeline.ContentHashRow{},
		enriched:          map[string][]pipeline.EnrichedElement{},
		jobs:              map[string]pipeline.JobTracker{},
		sections:          map[string]pipeline.ConsolidatedSection{},
		sectionsByJob:     map[string][]string{},
	}
}

func (m *MemoryStore) Close() {}

func (m *MemoryStore) GetLatestRaw(ctx context.Context, sourceURI string) (pipeline.RawSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.rawBySourceLatest[sourceURI]
	if !ok {
		return pipeline.RawSource{}, ErrNotFound
	}
	return rs, nil
}

func (m *MemoryStore) InsertRawVersion(ctx context.Context, rs pipeline.RawSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.rawBySourceLatest[rs.SourceURI]; ok {
		prev.Latest = false
		for i := range m.rawAll {
			if m.rawAll[i].ID == prev.ID {
				m.rawAll[i] = prev
			}
		}
	}
	rs.Latest = true
	if rs.ID == "" {
		rs.ID = uuid.NewString()
	}
	m.rawBySourceLatest[rs.SourceURI] = rs
	m.rawAll = append(m.rawAll, rs)
	return nil
}

func (m *MemoryStore) SaveCleansedBatch(ctx context.Context, batch pipeline.CleansedBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	m.batches[batch.ID] = batch
	m.latestBatchBySrc[batch.SourceUploadID] = batch.ID
	return nil
}

func (m *MemoryStore) GetCleansedBatch(ctx context.Context, id string) (pipeline.CleansedBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return pipeline.CleansedBatch{}, ErrNotFound
	}
	return b, nil
}

func (m *MemoryStore) GetLatestCleansedBatchForSource(ctx context.Context, sourceUploadID string) (pipeline.CleansedBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.latestBatchBySrc[sourceUploadID]
	if !ok {
		return pipeline.CleansedBatch{}, ErrNotFound
	}
	return m.batches[id], nil
}

func (m *MemoryStore) UpdateCleansedBatchStatus(ctx context.Context, id string, status pipeline.CleansedBatchStatus, diagnostics *pipeline.EnrichmentSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	if diagnostics != nil {
		b.Diagnostics = diagnostics
	}
	m.batches[id] = b
	return nil
}

func hashKey(sourcePath, itemType, usagePath string) string {
	return sourcePath + "\x00" + itemType + "\x00" + usagePath
}

func (m *MemoryStore) Lookup(ctx context.Context, sourcePath, itemType, usagePath string) (pipeline.ContentHashRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.hashRows[hashKey(sourcePath, itemType, usagePath)]
	if !ok {
		return pipeline.ContentHashRow{}, ErrNotFound
	}
	return row, nil
}

func (m *MemoryStore) Upsert(ctx context.Context, row pipeline.ContentHashRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row.UpdatedAt = time.Now().UTC()
	m.hashRows[hashKey(row.SourcePath, row.ItemType, row.UsagePath)] = row
	return nil
}

func (m *MemoryStore) SaveEnrichedElement(ctx context.Context, el pipeline.EnrichedElement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el.ID == "" {
		el.ID = uuid.NewString()
	}
	key := el.CleansedDataID
	m.enriched[key] = append(m.enriched[key], el)
	return nil
}

func (m *MemoryStore) ListEnrichedElements(ctx context.Context, cleansedDataID string, version int) ([]pipeline.EnrichedElement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pipeline.EnrichedElement
	for _, el := range m.enriched[cleansedDataID] {
		if el.Version == version {
			out = append(out, el)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateJob(ctx context.Context, jt pipeline.JobTracker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	jt.UpdatedAt = time.Now().UTC()
	m.jobs[jt.JobID] = jt
	return nil
}

func (m *MemoryStore) GetJob(ctx context.Context, jobID string) (pipeline.JobTracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jt, ok := m.jobs[jobID]
	if !ok {
		return pipeline.JobTracker{}, ErrNotFound
	}
	return jt, nil
}

// UpdateProgress mimics the Postgres row-lock semantics with a mutex: the
// whole read-modify-write is atomic under m.mu, which is what the real
// SELECT ... FOR UPDATE transaction achieves across processes.
func (m *MemoryStore) UpdateProgress(ctx context.Context, jobID string, success bool) (pipeline.JobTracker, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jt, ok := m.jobs[jobID]
	if !ok {
		return pipeline.JobTracker{}, false, ErrNotFound
	}
	jt.ProcessedItems++
	if success {
		jt.SuccessCount++
	} else {
		jt.FailureCount++
	}
	jt.UpdatedAt = time.Now().UTC()
	tripped := false
	if jt.ProcessedItems >= jt.TotalItems && jt.Status != pipeline.JobFinalizing && jt.Status != pipeline.JobCompleted {
		jt.Status = pipeline.JobFinalizing
		tripped = true
	} else if jt.Status == pipeline.JobPending {
		jt.Status = pipeline.JobRunning
	}
	m.jobs[jobID] = jt
	return jt, tripped, nil
}

func (m *MemoryStore) MarkCompleted(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	jt, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	jt.Status = pipeline.JobCompleted
	jt.UpdatedAt = time.Now().UTC()
	m.jobs[jobID] = jt
	return nil
}

func (m *MemoryStore) SectionExists(ctx context.Context, sectionURI, sectionPath, originalFieldName, cleansedText string, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sections {
		if s.SectionURI == sectionURI && s.SectionPath == sectionPath &&
			s.OriginalFieldName == originalFieldName && s.CleansedText == cleansedText && s.Version == version {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) SaveSection(ctx context.Context, sec pipeline.ConsolidatedSection) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sec.ID == "" {
		sec.ID = uuid.NewString()
	}
	sec.SavedAt = time.Now().UTC()
	m.sections[sec.ID] = sec
	m.sectionsByJob[sec.SourceUploadID] = append(m.sectionsByJob[sec.SourceUploadID], sec.ID)
	return sec.ID, nil
}

func (m *MemoryStore) ListSectionsByCleansedData(ctx context.Context, sourceUploadID string, version int) ([]pipeline.ConsolidatedSection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pipeline.ConsolidatedSection
	for _, id := range m.sectionsByJob[sourceUploadID] {
		if s, ok := m.sections[id]; ok && s.Version == version {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveChunk(ctx context.Context, chunk pipeline.ContentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	chunk.CreatedAt = time.Now().UTC()
	m.chunks = append(m.chunks, chunk)
	return nil
}

// SimilaritySearch performs brute-force cosine similarity over all stored
// chunks, matching the scale the rest of the in-memory store is built for
// (tests, single-process use) rather than production search volume.
func (m *MemoryStore) SimilaritySearch(ctx context.Context, vector []float32, filter SearchFilter, limit int) ([]SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sectionByID := m.sections
	type scored struct {
		hit  SearchHit
		dist float64
	}
	var candidates []scored
	for _, c := range m.chunks {
		sec, ok := sectionByID[c.SectionID]
		if !ok {
			continue
		}
		if filter.OriginalFieldName != "" && !strings.EqualFold(sec.OriginalFieldName, filter.OriginalFieldName) {
			continue
		}
		if len(filter.Tags) > 0 && !containsAllSubstr(sec.Tags, filter.Tags) {
			continue
		}
		if len(filter.Keywords) > 0 && !containsAllSubstr(sec.Keywords, filter.Keywords) {
			continue
		}
		if len(filter.ContextMap) > 0 && !contextMatches(sec, filter.ContextMap) {
			continue
		}
		dist := cosineDistance(vector, c.Vector)
		if filter.Threshold != nil && dist >= *filter.Threshold {
			continue
		}
		candidates = append(candidates, scored{
			hit: SearchHit{
				ChunkID:     c.ID,
				SectionID:   c.SectionID,
				ChunkText:   c.ChunkText,
				SourceField: c.SourceField,
				SectionPath: c.SectionPath,
				Distance:    dist,
				Tags:        sec.Tags,
				Keywords:    sec.Keywords,
				Facets:      sec.Facets,
				Envelope:    sec.Envelope,
			},
			dist: dist,
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]SearchHit, len(candidates))
	for i, c := range candidates {
		out[i] = c.hit
	}
	return out, nil
}

func containsAllSubstr(haystack, needles []string) bool {
	for _, needle := range needles {
		found := false
		for _, h := range haystack {
			if strings.Contains(strings.ToLower(h), strings.ToLower(needle)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func contextMatches(sec pipeline.ConsolidatedSection, ctxMap map[string]any) bool {
	for k, v := range ctxMap {
		fv, ok := sec.Facets[k]
		if !ok || fmt.Sprintf("%v", fv) != fmt.Sprintf("%v", v) {
			return false
		}
	}
	return true
}

func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return math.MaxFloat64
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return math.MaxFloat64
	}
	cosine := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - cosine
}
