package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"semanticpipe/internal/ingest"
	"semanticpipe/internal/notify"
	"semanticpipe/internal/persistence"
	"semanticpipe/internal/pipeline"
	"semanticpipe/internal/search"
)

// PipelineServer exposes the ingestion/enrichment/search HTTP surface (§6).
type PipelineServer struct {
	orchestrator *ingest.Orchestrator
	batches      persistence.RawStore
	notifier     *notify.Registry
	searcher     *search.Searcher
	mux          *http.ServeMux
}

// NewPipelineServer builds a PipelineServer and registers its routes.
func NewPipelineServer(o *ingest.Orchestrator, batches persistence.RawStore, n *notify.Registry, s *search.Searcher) *PipelineServer {
	srv := &PipelineServer{orchestrator: o, batches: batches, notifier: n, searcher: s, mux: http.NewServeMux()}
	srv.registerRoutes()
	return srv
}

// ServeHTTP satisfies http.Handler.
func (s *PipelineServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *PipelineServer) registerRoutes() {
	s.mux.HandleFunc("GET /extract-cleanse-enrich-and-store", s.handleExtractCleanseEnrichAndStore)
	s.mux.HandleFunc("POST /ingest-json-payload", s.handleIngestJSONPayload)
	s.mux.HandleFunc("GET /cleansed-data-status/{id}", s.handleCleansedDataStatus)
	s.mux.HandleFunc("GET /progress/{jobId}", s.handleProgress)
	s.mux.HandleFunc("GET /api/refine", s.handleRefine)
	s.mux.HandleFunc("POST /api/search", s.handleSearch)
}

type acceptedResponse struct {
	JobID          string `json:"jobId,omitempty"`
	CleansedDataID string `json:"cleansedDataId"`
	ProgressURL    string `json:"progressUrl,omitempty"`
}

func (s *PipelineServer) handleExtractCleanseEnrichAndStore(w http.ResponseWriter, r *http.Request) {
	sourceURI := r.URL.Query().Get("sourceUri")
	if sourceURI == "" {
		writeError(w, http.StatusBadRequest, "sourceUri query parameter is required")
		return
	}
	s.ingestAndRespond(w, r, sourceURI)
}

func (s *PipelineServer) handleIngestJSONPayload(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	sourceURI := "api-payload-" + uuid.NewString()
	batch, err := s.orchestrator.IngestPayload(r.Context(), sourceURI, payload)
	if err != nil {
		writeIngestError(w, err)
		return
	}
	respondAccepted(w, batch)
}

func (s *PipelineServer) ingestAndRespond(w http.ResponseWriter, r *http.Request, sourceURI string) {
	batch, err := s.orchestrator.Ingest(r.Context(), sourceURI)
	if err != nil {
		writeIngestError(w, err)
		return
	}
	respondAccepted(w, batch)
}

func respondAccepted(w http.ResponseWriter, batch pipeline.CleansedBatch) {
	resp := acceptedResponse{CleansedDataID: batch.ID}
	if batch.Status == pipeline.StatusEnrichmentInProgress {
		resp.ProgressURL = "/progress/" + batch.ID
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidURI):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrSourceFileNotFound), errors.Is(err, ingest.ErrEmptyPayload), errors.Is(err, ingest.ErrEmptyContentLoaded):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ingest.ErrJSONParse), errors.Is(err, ingest.ErrExtractionFailed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ingest.ErrDownloadFailed), errors.Is(err, ingest.ErrFile):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *PipelineServer) handleCleansedDataStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	batch, err := s.batches.GetCleansedBatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "cleansed data not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *PipelineServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	notify.Stream(r.Context(), w, s.notifier, jobID)
}

func (s *PipelineServer) handleRefine(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	chips, err := s.searcher.Refine(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chips)
}

type searchRequest struct {
	Query             string         `json:"query"`
	Tags              []string       `json:"tags"`
	Keywords          []string       `json:"keywords"`
	Context           map[string]any `json:"context"`
	OriginalFieldName string         `json:"original_field_name"`
}

func (s *PipelineServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	hits, err := s.searcher.Search(r.Context(), search.Query{
		Text:              req.Query,
		Tags:              req.Tags,
		Keywords:          req.Keywords,
		ContextMap:        req.Context,
		OriginalFieldName: req.OriginalFieldName,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
