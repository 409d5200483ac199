// Package service wires the ingestion and retrieval components behind
// one orchestrating facade used by the HTTP layer.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/contextforge/contextforge/internal/crawler"
	"github.com/contextforge/contextforge/internal/models"
	"github.com/contextforge/contextforge/internal/observability"
	"github.com/contextforge/contextforge/internal/pipeline"
	"github.com/contextforge/contextforge/internal/repository"
	"github.com/contextforge/contextforge/internal/search"
	"github.com/contextforge/contextforge/internal/vector"
)

// Service orchestrates sources, ingestion, crawls and search. Every
// collaborator arrives through the constructor; the service owns no
// global state.
type Service struct {
	db        *sqlx.DB
	sources   *repository.SourceRepository
	documents *repository.DocumentRepository
	router    *vector.Router
	pipeline  *pipeline.Pipeline
	crawls    *crawler.Manager
	engine    *search.Engine
	logger    observability.Logger
}

// NewService creates the orchestration service
func NewService(
	db *sqlx.DB,
	sources *repository.SourceRepository,
	documents *repository.DocumentRepository,
	router *vector.Router,
	p *pipeline.Pipeline,
	crawls *crawler.Manager,
	engine *search.Engine,
	logger observability.Logger,
) *Service {
	return &Service{
		db:        db,
		sources:   sources,
		documents: documents,
		router:    router,
		pipeline:  p,
		crawls:    crawls,
		engine:    engine,
		logger:    logger.WithPrefix("service"),
	}
}

// CreateSource registers a new ingestion origin
func (s *Service) CreateSource(ctx context.Context, title string, kind models.SourceKind, enabledKinds []string) (*models.Source, error) {
	if title == "" {
		return nil, fmt.Errorf("source title cannot be empty")
	}
	switch kind {
	case models.SourceKindUpload, models.SourceKindCrawl, models.SourceKindAPI:
	default:
		return nil, fmt.Errorf("invalid source kind %q", kind)
	}
	for _, k := range enabledKinds {
		switch models.ContentKind(k) {
		case models.ContentKindProse, models.ContentKindCode, models.ContentKindMedia:
		default:
			return nil, fmt.Errorf("invalid content kind %q", k)
		}
	}

	source := &models.Source{
		Title:        title,
		Kind:         kind,
		EnabledKinds: enabledKinds,
	}
	if err := s.sources.Create(ctx, source); err != nil {
		return nil, err
	}

	s.logger.Info("Source created", map[string]interface{}{
		"source_id": source.ID.String(),
		"title":     title,
		"kind":      string(kind),
	})
	return source, nil
}

// GetSource retrieves one source
func (s *Service) GetSource(ctx context.Context, id uuid.UUID) (*models.Source, error) {
	return s.sources.Get(ctx, id)
}

// ListSources retrieves all sources
func (s *Service) ListSources(ctx context.Context) ([]*models.Source, error) {
	return s.sources.List(ctx)
}

// DeleteSource removes a source, its documents and chunks (database
// cascade) and every vector collection it owns.
func (s *Service) DeleteSource(ctx context.Context, id uuid.UUID) error {
	source, err := s.sources.Get(ctx, id)
	if err != nil {
		return err
	}

	// Collections go first: if the row delete then fails the mapping
	// still exists and the delete can be retried.
	if err := s.router.Drop(ctx, source); err != nil {
		return fmt.Errorf("failed to drop vector collections: %w", err)
	}

	if err := s.sources.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Source deleted", map[string]interface{}{
		"source_id": id.String(),
	})
	return nil
}

// Ingest runs one document through the pipeline, tracking the source's
// lifecycle status around the run.
func (s *Service) Ingest(ctx context.Context, sourceID uuid.UUID, raw *models.RawDocument) (*models.IngestResult, error) {
	if err := s.sources.UpdateStatus(ctx, sourceID, models.SourceStatusProcessing); err != nil {
		return nil, err
	}

	result, err := s.pipeline.Ingest(ctx, sourceID, raw)
	if err != nil {
		s.setStatus(ctx, sourceID, models.SourceStatusFailed)
		return result, err
	}

	s.setStatus(ctx, sourceID, models.SourceStatusCompleted)
	return result, nil
}

// StartCrawl starts a bounded crawl feeding the source
func (s *Service) StartCrawl(ctx context.Context, sourceID uuid.UUID, seedURL string, maxPages, maxDepth int) (*models.CrawlJob, error) {
	if _, err := s.sources.Get(ctx, sourceID); err != nil {
		return nil, err
	}
	return s.crawls.Start(ctx, sourceID, seedURL, maxPages, maxDepth)
}

// CrawlStatus returns the latest snapshot of a crawl job
func (s *Service) CrawlStatus(ctx context.Context, jobID uuid.UUID) (*models.CrawlJob, error) {
	return s.crawls.Status(ctx, jobID)
}

// CancelCrawl aborts a running crawl job
func (s *Service) CancelCrawl(jobID uuid.UUID) error {
	return s.crawls.Cancel(jobID)
}

// Search answers a retrieval query
func (s *Service) Search(ctx context.Context, req search.Request) (*models.SearchResponse, error) {
	return s.engine.Search(ctx, req)
}

// Health verifies the relational store is reachable
func (s *Service) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

// Shutdown stops background crawl work
func (s *Service) Shutdown(ctx context.Context) error {
	return s.crawls.Shutdown(ctx)
}

func (s *Service) setStatus(ctx context.Context, sourceID uuid.UUID, status string) {
	if err := s.sources.UpdateStatus(ctx, sourceID, status); err != nil {
		s.logger.Error("Failed to update source status", map[string]interface{}{
			"source_id": sourceID.String(),
			"status":    status,
			"error":     err.Error(),
		})
	}
}
