package api

import (
	"github.com/google/uuid"

	"github.com/contextforge/contextforge/internal/models"
)

// CreateSourceRequest registers a new ingestion origin.
type CreateSourceRequest struct {
	Title        string   `json:"title"`
	Kind         string   `json:"kind"`
	EnabledKinds []string `json:"enabled_kinds,omitempty"`
}

// IngestRequest submits one document for ingestion.
type IngestRequest struct {
	SourceID    string `json:"source_id"`
	Title       string `json:"title"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content"`
}

// IngestResponse reports what was persisted. Exhausted flags a partial
// run cut short by provider quota.
type IngestResponse struct {
	DocumentID   uuid.UUID `json:"document_id"`
	ChunksStored int       `json:"chunks_stored"`
	ChunksTotal  int       `json:"chunks_total"`
	Exhausted    bool      `json:"exhausted"`
}

// StartCrawlRequest starts a bounded crawl for a source.
type StartCrawlRequest struct {
	SourceID string `json:"source_id"`
	URL      string `json:"url"`
	MaxPages int    `json:"max_pages,omitempty"`
	MaxDepth int    `json:"max_depth,omitempty"`
}

// SearchRequest is a retrieval query. SourceIDs scopes the search;
// empty means all sources.
type SearchRequest struct {
	Query      string   `json:"query"`
	SourceIDs  []string `json:"source_ids,omitempty"`
	SearchType string   `json:"search_type,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// SearchResponse carries ranked results plus the strategy actually
// used and the observed latency.
type SearchResponse struct {
	Results        []models.SearchResult `json:"results"`
	SearchTypeUsed string                `json:"search_type_used"`
	LatencyMS      int64                 `json:"latency_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
}
