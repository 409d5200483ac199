// Package models defines the core data model for the ingestion and
// retrieval pipeline: sources, documents, chunks, crawl jobs and the
// structured results the pipeline hands back to callers.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ContentKind labels what a chunk of text contains. It decides which
// vector collection the chunk is routed to.
type ContentKind string

const (
	ContentKindProse ContentKind = "prose"
	ContentKindCode  ContentKind = "code"
	ContentKindMedia ContentKind = "media"
)

// AllContentKinds lists every kind a source may enable.
func AllContentKinds() []ContentKind {
	return []ContentKind{ContentKindProse, ContentKindCode, ContentKindMedia}
}

// SourceKind identifies how a source's documents arrive.
type SourceKind string

const (
	SourceKindUpload SourceKind = "upload"
	SourceKindCrawl  SourceKind = "crawl"
	SourceKindAPI    SourceKind = "api"
)

// SourceStatus is the lifecycle status of a source.
const (
	SourceStatusPending    = "pending"
	SourceStatusProcessing = "processing"
	SourceStatusCompleted  = "completed"
	SourceStatusFailed     = "failed"
)

// CollectionNames maps a content kind to the vector collection holding
// that kind's chunks for one source. Stored as JSONB on the sources row.
type CollectionNames map[ContentKind]string

// Value implements driver.Valuer for JSONB storage.
func (c CollectionNames) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *CollectionNames) Scan(src interface{}) error {
	if src == nil {
		*c = CollectionNames{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CollectionNames", src)
	}
	return json.Unmarshal(data, c)
}

// Source is a logical ingestion origin: one uploaded file set, one crawl
// target, or one API feed. A source exclusively owns its documents and
// its vector collections.
type Source struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	Title           string          `json:"title" db:"title"`
	Kind            SourceKind      `json:"kind" db:"kind"`
	Status          string          `json:"status" db:"status"`
	CollectionNames CollectionNames `json:"collection_names" db:"collection_names"`
	EnabledKinds    pq.StringArray  `json:"enabled_kinds" db:"enabled_kinds"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// KindEnabled reports whether the source accepts chunks of the given kind.
// A source with no explicit list accepts everything.
func (s *Source) KindEnabled(kind ContentKind) bool {
	if len(s.EnabledKinds) == 0 {
		return true
	}
	for _, k := range s.EnabledKinds {
		if k == string(kind) {
			return true
		}
	}
	return false
}

// Document is one ingested unit owned by exactly one source.
type Document struct {
	ID          uuid.UUID `json:"id" db:"id"`
	SourceID    uuid.UUID `json:"source_id" db:"source_id"`
	Title       string    `json:"title" db:"title"`
	DocKind     string    `json:"doc_kind" db:"doc_kind"`
	URL         string    `json:"url" db:"url"`
	ContentHash string    `json:"content_hash" db:"content_hash"`
	ChunkCount  int       `json:"chunk_count" db:"chunk_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Chunk is the atomic unit of embedding and retrieval: a contiguous
// passage of a document's text. The embedding vector itself lives in the
// vector store under EmbeddingID; the row only carries the reference.
type Chunk struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	DocumentID     uuid.UUID   `json:"document_id" db:"document_id"`
	ChunkIndex     int         `json:"chunk_index" db:"chunk_index"`
	Content        string      `json:"content" db:"content"`
	ContentKind    ContentKind `json:"content_kind" db:"content_kind"`
	CollectionName string      `json:"collection_name" db:"collection_name"`
	EmbeddingID    uuid.UUID   `json:"embedding_id" db:"embedding_id"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`

	// In-memory only, never persisted to the relational store.
	Embedding []float32 `json:"-" db:"-"`
}

// CrawlJob statuses.
const (
	CrawlStatusPending   = "pending"
	CrawlStatusRunning   = "running"
	CrawlStatusCompleted = "completed"
	CrawlStatusFailed    = "failed"
	CrawlStatusAborted   = "aborted"
)

// CrawlJob is a bounded recursive fetch tied to one source. Only the
// owning crawl loop mutates it; everyone else sees snapshots.
type CrawlJob struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	SourceID     uuid.UUID  `json:"source_id" db:"source_id"`
	SeedURL      string     `json:"seed_url" db:"seed_url"`
	Status       string     `json:"status" db:"status"`
	PagesCrawled int        `json:"pages_crawled" db:"pages_crawled"`
	PagesTotal   int        `json:"pages_total" db:"pages_total"`
	MaxPages     int        `json:"max_pages" db:"max_pages"`
	MaxDepth     int        `json:"max_depth" db:"max_depth"`
	CurrentDepth int        `json:"current_depth" db:"current_depth"`
	ErrorCount   int        `json:"error_count" db:"error_count"`
	ErrorMessage string     `json:"error_message" db:"error_message"`
	StartedAt    *time.Time `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Terminal reports whether the job has reached a terminal state.
func (j *CrawlJob) Terminal() bool {
	switch j.Status {
	case CrawlStatusCompleted, CrawlStatusFailed, CrawlStatusAborted:
		return true
	}
	return false
}

// RawDocument is the input handed to the ingestion pipeline before
// parsing: raw bytes plus whatever the caller knows about them.
type RawDocument struct {
	Title       string
	URL         string
	ContentType string
	Body        []byte
}

// IngestResult reports what one Ingest call actually persisted. Partial
// success (quota exhaustion mid-batch) is a valid terminal outcome and is
// reported as such, never upgraded to full success or downgraded to
// failure.
type IngestResult struct {
	DocumentID   uuid.UUID `json:"document_id"`
	ChunksStored int       `json:"chunks_stored"`
	ChunksTotal  int       `json:"chunks_total"`
	Exhausted    bool      `json:"exhausted"`
}

// MatchType tags which retrieval path produced a search result.
type MatchType string

const (
	MatchTypeVector MatchType = "vector"
	MatchTypeText   MatchType = "text"
	MatchTypeBoth   MatchType = "both"
)

// SearchType selects the retrieval strategy for a query.
type SearchType string

const (
	SearchTypeVector SearchType = "vector"
	SearchTypeHybrid SearchType = "hybrid"
	SearchTypeAuto   SearchType = "auto"
)

// SearchResult is one ranked passage. Query-time only, never persisted.
type SearchResult struct {
	ChunkID     uuid.UUID   `json:"chunk_id"`
	Content     string      `json:"content"`
	Score       float64     `json:"score"`
	MatchType   MatchType   `json:"match_type"`
	SourceID    uuid.UUID   `json:"source_id"`
	ContentKind ContentKind `json:"content_kind"`
}

// SearchResponse wraps the ranked results with the strategy actually used
// and the observed latency.
type SearchResponse struct {
	Results        []SearchResult `json:"results"`
	SearchTypeUsed SearchType     `json:"search_type_used"`
	LatencyMS      int64          `json:"latency_ms"`
}
