// Package api implements the REST surface over the ingestion and
// retrieval service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/contextforge/contextforge/internal/models"
	"github.com/contextforge/contextforge/internal/observability"
	"github.com/contextforge/contextforge/internal/repository"
	"github.com/contextforge/contextforge/internal/search"
)

// Service is the orchestration surface the handlers call into.
type Service interface {
	CreateSource(ctx context.Context, title string, kind models.SourceKind, enabledKinds []string) (*models.Source, error)
	GetSource(ctx context.Context, id uuid.UUID) (*models.Source, error)
	ListSources(ctx context.Context) ([]*models.Source, error)
	DeleteSource(ctx context.Context, id uuid.UUID) error
	Ingest(ctx context.Context, sourceID uuid.UUID, raw *models.RawDocument) (*models.IngestResult, error)
	StartCrawl(ctx context.Context, sourceID uuid.UUID, seedURL string, maxPages, maxDepth int) (*models.CrawlJob, error)
	CrawlStatus(ctx context.Context, jobID uuid.UUID) (*models.CrawlJob, error)
	CancelCrawl(jobID uuid.UUID) error
	Search(ctx context.Context, req search.Request) (*models.SearchResponse, error)
	Health(ctx context.Context) error
}

// Handler handles API requests
type Handler struct {
	service Service
	logger  observability.Logger
}

// NewHandler creates a new API handler
func NewHandler(service Service, logger observability.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.WithPrefix("api"),
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", h.health).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/sources", h.createSource).Methods("POST")
	api.HandleFunc("/sources", h.listSources).Methods("GET")
	api.HandleFunc("/sources/{id}", h.getSource).Methods("GET")
	api.HandleFunc("/sources/{id}", h.deleteSource).Methods("DELETE")

	api.HandleFunc("/ingest", h.ingest).Methods("POST")

	api.HandleFunc("/crawls", h.startCrawl).Methods("POST")
	api.HandleFunc("/crawls/{id}", h.crawlStatus).Methods("GET")
	api.HandleFunc("/crawls/{id}", h.cancelCrawl).Methods("DELETE")

	api.HandleFunc("/search", h.search).Methods("POST")
}

func (h *Handler) createSource(w http.ResponseWriter, r *http.Request) {
	var req CreateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		h.respondError(w, "title is required", http.StatusBadRequest)
		return
	}
	if req.Kind == "" {
		req.Kind = string(models.SourceKindUpload)
	}

	source, err := h.service.CreateSource(r.Context(), req.Title, models.SourceKind(req.Kind), req.EnabledKinds)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, source, http.StatusCreated)
}

func (h *Handler) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.service.ListSources(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if sources == nil {
		sources = []*models.Source{}
	}

	h.respondJSON(w, map[string]interface{}{
		"sources": sources,
		"count":   len(sources),
	}, http.StatusOK)
}

func (h *Handler) getSource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	source, err := h.service.GetSource(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, source, http.StatusOK)
}

func (h *Handler) deleteSource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteSource(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		h.respondError(w, "invalid source_id", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		h.respondError(w, "content is required", http.StatusBadRequest)
		return
	}

	raw := &models.RawDocument{
		Title:       req.Title,
		URL:         req.URL,
		ContentType: req.ContentType,
		Body:        []byte(req.Content),
	}

	result, err := h.service.Ingest(r.Context(), sourceID, raw)
	if err != nil {
		h.logger.Error("Ingestion failed", map[string]interface{}{
			"source_id": req.SourceID,
			"error":     err.Error(),
		})
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, IngestResponse{
		DocumentID:   result.DocumentID,
		ChunksStored: result.ChunksStored,
		ChunksTotal:  result.ChunksTotal,
		Exhausted:    result.Exhausted,
	}, http.StatusOK)
}

func (h *Handler) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req StartCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		h.respondError(w, "invalid source_id", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		h.respondError(w, "url is required", http.StatusBadRequest)
		return
	}

	job, err := h.service.StartCrawl(r.Context(), sourceID, req.URL, req.MaxPages, req.MaxDepth)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	}, http.StatusAccepted)
}

func (h *Handler) crawlStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	job, err := h.service.CrawlStatus(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, job, http.StatusOK)
}

func (h *Handler) cancelCrawl(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.CancelCrawl(id); err != nil {
		h.respondError(w, err.Error(), http.StatusConflict)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"job_id": id,
		"status": "cancelling",
	}, http.StatusAccepted)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		h.respondError(w, "query is required", http.StatusBadRequest)
		return
	}

	var sourceIDs []uuid.UUID
	for _, raw := range req.SourceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.respondError(w, "invalid source id "+raw, http.StatusBadRequest)
			return
		}
		sourceIDs = append(sourceIDs, id)
	}

	resp, err := h.service.Search(r.Context(), search.Request{
		Query:     req.Query,
		SourceIDs: sourceIDs,
		Type:      models.SearchType(req.SearchType),
		Limit:     req.Limit,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if resp.Results == nil {
		resp.Results = []models.SearchResult{}
	}

	h.respondJSON(w, SearchResponse{
		Results:        resp.Results,
		SearchTypeUsed: string(resp.SearchTypeUsed),
		LatencyMS:      resp.LatencyMS,
	}, http.StatusOK)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Health(r.Context()); err != nil {
		h.respondJSON(w, map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		}, http.StatusServiceUnavailable)
		return
	}
	h.respondJSON(w, map[string]interface{}{"status": "ok"}, http.StatusOK)
}

// pathID parses the {id} path variable, responding 400 on garbage.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		h.respondError(w, err.Error(), http.StatusNotFound)
		return
	}
	h.respondError(w, err.Error(), http.StatusInternalServerError)
}

// respondJSON sends a JSON response
func (h *Handler) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// respondError sends an error response
func (h *Handler) respondError(w http.ResponseWriter, message string, statusCode int) {
	h.respondJSON(w, errorResponse{Error: message}, statusCode)
}
