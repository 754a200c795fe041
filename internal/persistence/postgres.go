package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"semanticpipe/internal/pipeline"
)

// PostgresStore is the primary Store implementation, grounded on the
// teacher's postgres_vector.go/postgres_search.go bootstrap-on-construct
// pattern and evolving_memory_store_postgres.go's BeginTx/defer-Rollback
// transaction idiom.
type PostgresStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPostgresStore opens the schema (idempotent CREATE TABLE/EXTENSION) and
// returns a ready Store. dimensions is the fixed embedding vector width D.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, dimensions int) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, dimensions: dimensions}
	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) bootstrap(ctx context.Context) error {
	vecType := "vector"
	if s.dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", s.dimensions)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS raw_data_store (
			id TEXT PRIMARY KEY,
			source_uri TEXT NOT NULL,
			version INT NOT NULL,
			content_text TEXT,
			binary_payload BYTEA,
			content_hash TEXT,
			received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			status TEXT NOT NULL,
			latest BOOLEAN NOT NULL DEFAULT true
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_source_uri ON raw_data_store(source_uri)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_raw_latest_per_source ON raw_data_store(source_uri) WHERE latest`,
		`CREATE TABLE IF NOT EXISTS cleansed_data_store (
			id TEXT PRIMARY KEY,
			source_upload_id TEXT NOT NULL,
			version INT NOT NULL,
			items JSONB NOT NULL DEFAULT '[]'::jsonb,
			status TEXT NOT NULL,
			cleansed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			cleansing_errors TEXT,
			diagnostics JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cleansed_source ON cleansed_data_store(source_upload_id, version DESC)`,
		`CREATE TABLE IF NOT EXISTS content_hashes (
			source_path TEXT NOT NULL,
			item_type TEXT NOT NULL,
			usage_path TEXT NOT NULL,
			content_hash TEXT,
			context_hash TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (source_path, item_type, usage_path)
		)`,
		`CREATE TABLE IF NOT EXISTS enriched_content_elements (
			id TEXT PRIMARY KEY,
			cleansed_data_id TEXT NOT NULL,
			version INT NOT NULL,
			item_source_path TEXT,
			item_original_field_name TEXT,
			cleansed_text TEXT,
			enriched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			summary TEXT,
			keywords JSONB,
			tags JSONB,
			sentiment TEXT,
			classification TEXT,
			model_used TEXT,
			enrichment_metadata JSONB,
			status TEXT NOT NULL,
			context JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_enriched_cleansed ON enriched_content_elements(cleansed_data_id, version)`,
		`CREATE TABLE IF NOT EXISTS job_tracker (
			job_id TEXT PRIMARY KEY,
			cleansed_data_store_id TEXT NOT NULL,
			total_items INT NOT NULL,
			processed_items INT NOT NULL DEFAULT 0,
			success_count INT NOT NULL DEFAULT 0,
			failure_count INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS consolidated_enriched_sections (
			id TEXT PRIMARY KEY,
			source_upload_id TEXT NOT NULL,
			version INT NOT NULL,
			section_path TEXT,
			section_uri TEXT,
			original_field_name TEXT,
			cleansed_text TEXT,
			content_hash TEXT,
			saved_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			summary TEXT,
			keywords JSONB,
			tags JSONB,
			sentiment TEXT,
			classification TEXT,
			facets JSONB,
			envelope JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sections_source ON consolidated_enriched_sections(source_upload_id, version)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS content_chunks (
			id TEXT PRIMARY KEY,
			section_id TEXT NOT NULL REFERENCES consolidated_enriched_sections(id) ON DELETE CASCADE,
			chunk_text TEXT,
			source_field TEXT,
			section_path TEXT,
			vector %s,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vecType),
		`CREATE INDEX IF NOT EXISTS idx_chunks_section ON content_chunks(section_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("persistence: bootstrap: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) GetLatestRaw(ctx context.Context, sourceURI string) (pipeline.RawSource, error) {
	var rs pipeline.RawSource
	err := s.pool.QueryRow(ctx, `
		SELECT id, source_uri, version, content_text, binary_payload, content_hash, received_at, status, latest
		FROM raw_data_store WHERE source_uri=$1 AND latest`, sourceURI).
		Scan(&rs.ID, &rs.SourceURI, &rs.Version, &rs.ContentText, &rs.Binary, &rs.ContentHash, &rs.ReceivedAt, &rs.Status, &rs.Latest)
	if err != nil {
		if err == pgx.ErrNoRows {
			return pipeline.RawSource{}, ErrNotFound
		}
		return pipeline.RawSource{}, fmt.Errorf("persistence: get latest raw: %w", err)
	}
	return rs, nil
}

// InsertRawVersion flips the previous latest row and inserts rs as the new
// latest in one transaction, serializing concurrent ingestions of the same
// sourceUri (§5 ordering guarantee).
func (s *PostgresStore) InsertRawVersion(ctx context.Context, rs pipeline.RawSource) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("persistence: begin insert raw version: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE raw_data_store SET latest=false WHERE source_uri=$1 AND latest`, rs.SourceURI); err != nil {
		return fmt.Errorf("persistence: flip previous latest: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO raw_data_store(id, source_uri, version, content_text, binary_payload, content_hash, received_at, status, latest)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,true)`,
		rs.ID, rs.SourceURI, rs.Version, rs.ContentText, rs.Binary, rs.ContentHash, rs.ReceivedAt, rs.Status); err != nil {
		return fmt.Errorf("persistence: insert raw version: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) SaveCleansedBatch(ctx context.Context, batch pipeline.CleansedBatch) error {
	items, err := json.Marshal(batch.Items)
	if err != nil {
		return fmt.Errorf("persistence: marshal items: %w", err)
	}
	var diag any
	if batch.Diagnostics != nil {
		diag = batch.Diagnostics
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO cleansed_data_store(id, source_upload_id, version, items, status, cleansed_at, cleansing_errors, diagnostics)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET items=EXCLUDED.items, status=EXCLUDED.status, diagnostics=EXCLUDED.diagnostics`,
		batch.ID, batch.SourceUploadID, batch.Version, items, batch.Status, batch.CleansedAt, batch.CleansingErrors, diag)
	if err != nil {
		return fmt.Errorf("persistence: save cleansed batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanBatch(row pgx.Row) (pipeline.CleansedBatch, error) {
	var b pipeline.CleansedBatch
	var items []byte
	var diag []byte
	if err := row.Scan(&b.ID, &b.SourceUploadID, &b.Version, &items, &b.Status, &b.CleansedAt, &b.CleansingErrors, &diag); err != nil {
		if err == pgx.ErrNoRows {
			return pipeline.CleansedBatch{}, ErrNotFound
		}
		return pipeline.CleansedBatch{}, fmt.Errorf("persistence: scan cleansed batch: %w", err)
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &b.Items); err != nil {
			return pipeline.CleansedBatch{}, fmt.Errorf("persistence: unmarshal items: %w", err)
		}
	}
	if len(diag) > 0 {
		var s pipeline.EnrichmentSummary
		if err := json.Unmarshal(diag, &s); err == nil {
			b.Diagnostics = &s
		}
	}
	return b, nil
}

func (s *PostgresStore) GetCleansedBatch(ctx context.Context, id string) (pipeline.CleansedBatch, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, source_upload_id, version, items, status, cleansed_at, cleansing_errors, diagnostics
		FROM cleansed_data_store WHERE id=$1`, id)
	return s.scanBatch(row)
}

func (s *PostgresStore) GetLatestCleansedBatchForSource(ctx context.Context, sourceUploadID string) (pipeline.CleansedBatch, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, source_upload_id, version, items, status, cleansed_at, cleansing_errors, diagnostics
		FROM cleansed_data_store WHERE source_upload_id=$1 ORDER BY version DESC LIMIT 1`, sourceUploadID)
	return s.scanBatch(row)
}

func (s *PostgresStore) UpdateCleansedBatchStatus(ctx context.Context, id string, status pipeline.CleansedBatchStatus, diagnostics *pipeline.EnrichmentSummary) error {
	var diag any
	if diagnostics != nil {
		diag = diagnostics
	}
	_, err := s.pool.Exec(ctx, `UPDATE cleansed_data_store SET status=$2, diagnostics=COALESCE($3, diagnostics) WHERE id=$1`, id, status, diag)
	if err != nil {
		return fmt.Errorf("persistence: update cleansed batch status: %w", err)
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, sourcePath, itemType, usagePath string) (pipeline.ContentHashRow, error) {
	var row pipeline.ContentHashRow
	err := s.pool.QueryRow(ctx, `
		SELECT source_path, item_type, usage_path, content_hash, context_hash, updated_at
		FROM content_hashes WHERE source_path=$1 AND item_type=$2 AND usage_path=$3`,
		sourcePath, itemType, usagePath).
		Scan(&row.SourcePath, &row.ItemType, &row.UsagePath, &row.ContentHash, &row.ContextHash, &row.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return pipeline.ContentHashRow{}, ErrNotFound
		}
		return pipeline.ContentHashRow{}, fmt.Errorf("persistence: lookup content hash: %w", err)
	}
	return row, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, row pipeline.ContentHashRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO content_hashes(source_path, item_type, usage_path, content_hash, context_hash, updated_at)
		VALUES ($1,$2,$3,$4,$5, now())
		ON CONFLICT (source_path, item_type, usage_path)
		DO UPDATE SET content_hash=EXCLUDED.content_hash, context_hash=EXCLUDED.context_hash, updated_at=now()`,
		row.SourcePath, row.ItemType, row.UsagePath, row.ContentHash, row.ContextHash)
	if err != nil {
		return fmt.Errorf("persistence: upsert content hash: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveEnrichedElement(ctx context.Context, el pipeline.EnrichedElement) error {
	keywords, _ := json.Marshal(el.Keywords)
	tags, _ := json.Marshal(el.Tags)
	meta, _ := json.Marshal(el.EnrichmentMetadata)
	context, _ := json.Marshal(el.Context)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO enriched_content_elements(
			id, cleansed_data_id, version, item_source_path, item_original_field_name, cleansed_text,
			enriched_at, summary, keywords, tags, sentiment, classification, model_used,
			enrichment_metadata, status, context)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		el.ID, el.CleansedDataID, el.Version, el.ItemSourcePath, el.ItemOriginalFieldName, el.CleansedText,
		el.EnrichedAt, el.Summary, keywords, tags, el.Sentiment, el.Classification, el.ModelUsed,
		meta, el.Status, context)
	if err != nil {
		return fmt.Errorf("persistence: save enriched element: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEnrichedElements(ctx context.Context, cleansedDataID string, version int) ([]pipeline.EnrichedElement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, cleansed_data_id, version, item_source_path, item_original_field_name, cleansed_text,
			enriched_at, summary, keywords, tags, sentiment, classification, model_used, enrichment_metadata, status, context
		FROM enriched_content_elements WHERE cleansed_data_id=$1 AND version=$2`, cleansedDataID, version)
	if err != nil {
		return nil, fmt.Errorf("persistence: list enriched elements: %w", err)
	}
	defer rows.Close()

	var out []pipeline.EnrichedElement
	for rows.Next() {
		var el pipeline.EnrichedElement
		var keywords, tags, meta, ctxJSON []byte
		if err := rows.Scan(&el.ID, &el.CleansedDataID, &el.Version, &el.ItemSourcePath, &el.ItemOriginalFieldName,
			&el.CleansedText, &el.EnrichedAt, &el.Summary, &keywords, &tags, &el.Sentiment, &el.Classification,
			&el.ModelUsed, &meta, &el.Status, &ctxJSON); err != nil {
			return nil, fmt.Errorf("persistence: scan enriched element: %w", err)
		}
		_ = json.Unmarshal(keywords, &el.Keywords)
		_ = json.Unmarshal(tags, &el.Tags)
		_ = json.Unmarshal(meta, &el.EnrichmentMetadata)
		_ = json.Unmarshal(ctxJSON, &el.Context)
		out = append(out, el)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateJob(ctx context.Context, jt pipeline.JobTracker) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_tracker(job_id, cleansed_data_store_id, total_items, processed_items, success_count, failure_count, status, updated_at)
		VALUES ($1,$2,$3,0,0,0,$4, now())`,
		jt.JobID, jt.CleansedDataStoreID, jt.TotalItems, jt.Status)
	if err != nil {
		return fmt.Errorf("persistence: create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (pipeline.JobTracker, error) {
	var jt pipeline.JobTracker
	err := s.pool.QueryRow(ctx, `
		SELECT job_id, cleansed_data_store_id, total_items, processed_items, success_count, failure_count, status, updated_at
		FROM job_tracker WHERE job_id=$1`, jobID).
		Scan(&jt.JobID, &jt.CleansedDataStoreID, &jt.TotalItems, &jt.ProcessedItems, &jt.SuccessCount, &jt.FailureCount, &jt.Status, &jt.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return pipeline.JobTracker{}, ErrNotFound
		}
		return pipeline.JobTracker{}, fmt.Errorf("persistence: get job: %w", err)
	}
	return jt, nil
}

// UpdateProgress implements §4.7's updateJobProgress under a row-level
// pessimistic lock so exactly one worker observes the trip to FINALIZING
// even when concurrent workers race on the last item.
func (s *PostgresStore) UpdateProgress(ctx context.Context, jobID string, success bool) (pipeline.JobTracker, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return pipeline.JobTracker{}, false, fmt.Errorf("persistence: begin update progress: %w", err)
	}
	defer tx.Rollback(ctx)

	var jt pipeline.JobTracker
	err = tx.QueryRow(ctx, `
		SELECT job_id, cleansed_data_store_id, total_items, processed_items, success_count, failure_count, status, updated_at
		FROM job_tracker WHERE job_id=$1 FOR UPDATE`, jobID).
		Scan(&jt.JobID, &jt.CleansedDataStoreID, &jt.TotalItems, &jt.ProcessedItems, &jt.SuccessCount, &jt.FailureCount, &jt.Status, &jt.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return pipeline.JobTracker{}, false, ErrNotFound
		}
		return pipeline.JobTracker{}, false, fmt.Errorf("persistence: lock job: %w", err)
	}

	jt.ProcessedItems++
	if success {
		jt.SuccessCount++
	} else {
		jt.FailureCount++
	}
	tripped := false
	switch {
	case jt.ProcessedItems >= jt.TotalItems && jt.Status != pipeline.JobFinalizing && jt.Status != pipeline.JobCompleted:
		jt.Status = pipeline.JobFinalizing
		tripped = true
	case jt.Status == pipeline.JobPending:
		jt.Status = pipeline.JobRunning
	}
	jt.UpdatedAt = time.Now().UTC()

	if _, err := tx.Exec(ctx, `
		UPDATE job_tracker SET processed_items=$2, success_count=$3, failure_count=$4, status=$5, updated_at=$6
		WHERE job_id=$1`, jt.JobID, jt.ProcessedItems, jt.SuccessCount, jt.FailureCount, jt.Status, jt.UpdatedAt); err != nil {
		return pipeline.JobTracker{}, false, fmt.Errorf("persistence: update job progress: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return pipeline.JobTracker{}, false, fmt.Errorf("persistence: commit update progress: %w", err)
	}
	return jt, tripped, nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE job_tracker SET status=$2, updated_at=now() WHERE job_id=$1`, jobID, pipeline.JobCompleted)
	if err != nil {
		return fmt.Errorf("persistence: mark completed: %w", err)
	}
	return nil
}

func (s *PostgresStore) SectionExists(ctx context.Context, sectionURI, sectionPath, originalFieldName, cleansedText string, version int) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM consolidated_enriched_sections
			WHERE section_uri=$1 AND section_path=$2 AND original_field_name=$3 AND cleansed_text=$4 AND version=$5)`,
		sectionURI, sectionPath, originalFieldName, cleansedText, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("persistence: section exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SaveSection(ctx context.Context, sec pipeline.ConsolidatedSection) (string, error) {
	keywords, _ := json.Marshal(sec.Keywords)
	tags, _ := json.Marshal(sec.Tags)
	facets, _ := json.Marshal(sec.Facets)
	envelope, _ := json.Marshal(sec.Envelope)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO consolidated_enriched_sections(
			id, source_upload_id, version, section_path, section_uri, original_field_name, cleansed_text,
			content_hash, saved_at, summary, keywords, tags, sentiment, classification, facets, envelope)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),$9,$10,$11,$12,$13,$14,$15)`,
		sec.ID, sec.SourceUploadID, sec.Version, sec.SectionPath, sec.SectionURI, sec.OriginalFieldName, sec.CleansedText,
		sec.ContentHash, sec.Summary, keywords, tags, sec.Sentiment, sec.Classification, facets, envelope)
	if err != nil {
		return "", fmt.Errorf("persistence: save section: %w", err)
	}
	return sec.ID, nil
}

func (s *PostgresStore) ListSectionsByCleansedData(ctx context.Context, sourceUploadID string, version int) ([]pipeline.ConsolidatedSection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_upload_id, version, section_path, section_uri, original_field_name, cleansed_text,
			content_hash, saved_at, summary, keywords, tags, sentiment, classification, facets, envelope
		FROM consolidated_enriched_sections WHERE source_upload_id=$1 AND version=$2`, sourceUploadID, version)
	if err != nil {
		return nil, fmt.Errorf("persistence: list sections: %w", err)
	}
	defer rows.Close()

	var out []pipeline.ConsolidatedSection
	for rows.Next() {
		var sec pipeline.ConsolidatedSection
		var keywords, tags, facets, envelope []byte
		if err := rows.Scan(&sec.ID, &sec.SourceUploadID, &sec.Version, &sec.SectionPath, &sec.SectionURI,
			&sec.OriginalFieldName, &sec.CleansedText, &sec.ContentHash, &sec.SavedAt, &sec.Summary,
			&keywords, &tags, &sec.Sentiment, &sec.Classification, &facets, &envelope); err != nil {
			return nil, fmt.Errorf("persistence: scan section: %w", err)
		}
		_ = json.Unmarshal(keywords, &sec.Keywords)
		_ = json.Unmarshal(tags, &sec.Tags)
		_ = json.Unmarshal(facets, &sec.Facets)
		_ = json.Unmarshal(envelope, &sec.Envelope)
		out = append(out, sec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveChunk(ctx context.Context, chunk pipeline.ContentChunk) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO content_chunks(id, section_id, chunk_text, source_field, section_path, vector, created_at)
		VALUES ($1,$2,$3,$4,$5,$6::vector, now())`,
		chunk.ID, chunk.SectionID, chunk.ChunkText, chunk.SourceField, chunk.SectionPath, toVectorLiteral(chunk.Vector))
	if err != nil {
		return fmt.Errorf("persistence: save chunk: %w", err)
	}
	return nil
}

// SimilaritySearch ranks content_chunks by cosine distance (<=>), the
// standardized metric for all similarity search per the domain's design
// notes, joining in the owning section's tags/keywords/facets for filtering
// and chip aggregation.
func (s *PostgresStore) SimilaritySearch(ctx context.Context, vector []float32, filter SearchFilter, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	vecLit := toVectorLiteral(vector)
	var where []string
	args := []any{vecLit}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.OriginalFieldName != "" {
		where = append(where, fmt.Sprintf("lower(sec.original_field_name)=lower(%s)", arg(filter.OriginalFieldName)))
	}
	for _, tag := range filter.Tags {
		where = append(where, fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements_text(sec.tags) t WHERE t ILIKE %s)", arg("%"+tag+"%")))
	}
	for _, kw := range filter.Keywords {
		where = append(where, fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements_text(sec.keywords) k WHERE k ILIKE %s)", arg("%"+kw+"%")))
	}
	if len(filter.ContextMap) > 0 {
		where = append(where, fmt.Sprintf("sec.facets @> %s::jsonb", arg(mustJSON(filter.ContextMap))))
	}
	if filter.Threshold != nil {
		where = append(where, fmt.Sprintf("(c.vector <=> $1::vector) < %s", arg(*filter.Threshold)))
	}
	limitPlaceholder := arg(limit)

	query := fmt.Sprintf(`
		SELECT c.id, c.section_id, c.chunk_text, c.source_field, c.section_path,
			c.vector <=> $1::vector AS distance, sec.tags, sec.keywords, sec.facets, sec.envelope
		FROM content_chunks c
		JOIN consolidated_enriched_sections sec ON sec.id = c.section_id
		%s
		ORDER BY c.vector <=> $1::vector ASC
		LIMIT %s`, whereClause(where), limitPlaceholder)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("persistence: similarity search: %w", err)
	}
	defer rows.Close()

	var out []SearchHit
	for rows.Next() {
		var hit SearchHit
		var tags, keywords, facets, envelope []byte
		if err := rows.Scan(&hit.ChunkID, &hit.SectionID, &hit.ChunkText, &hit.SourceField, &hit.SectionPath,
			&hit.Distance, &tags, &keywords, &facets, &envelope); err != nil {
			return nil, fmt.Errorf("persistence: scan search hit: %w", err)
		}
		_ = json.Unmarshal(tags, &hit.Tags)
		_ = json.Unmarshal(keywords, &hit.Keywords)
		_ = json.Unmarshal(facets, &hit.Facets)
		_ = json.Unmarshal(envelope, &hit.Envelope)
		out = append(out, hit)
	}
	return out, rows.Err()
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conds, " AND ")
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

// toVectorLiteral renders a float32 vector as the Postgres pgvector literal.
func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}
