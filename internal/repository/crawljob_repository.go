package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/contextforge/contextforge/internal/models"
)

// CrawlJobRepository handles crawl job data access
type CrawlJobRepository struct {
	db *sqlx.DB
}

// NewCrawlJobRepository creates a new crawl job repository
func NewCrawlJobRepository(db *sqlx.DB) *CrawlJobRepository {
	return &CrawlJobRepository{db: db}
}

// Create inserts a new crawl job in the pending state
func (r *CrawlJobRepository) Create(ctx context.Context, job *models.CrawlJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.CrawlStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO crawl_jobs (
			id, source_id, seed_url, status, pages_crawled, pages_total,
			max_pages, max_depth, current_depth, error_count, error_message,
			started_at, completed_at, created_at
		) VALUES (
			:id, :source_id, :seed_url, :status, :pages_crawled, :pages_total,
			:max_pages, :max_depth, :current_depth, :error_count, :error_message,
			:started_at, :completed_at, :created_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, job)
	if err != nil {
		return fmt.Errorf("failed to create crawl job: %w", err)
	}

	return nil
}

// Get retrieves a crawl job snapshot by ID
func (r *CrawlJobRepository) Get(ctx context.Context, id uuid.UUID) (*models.CrawlJob, error) {
	var job models.CrawlJob
	query := `
		SELECT id, source_id, seed_url, status, pages_crawled, pages_total,
		       max_pages, max_depth, current_depth, error_count, error_message,
		       started_at, completed_at, created_at
		FROM crawl_jobs
		WHERE id = $1`

	err := r.db.GetContext(ctx, &job, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("crawl job %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get crawl job: %w", err)
	}

	return &job, nil
}

// Update persists the owning crawl loop's latest view of the job
func (r *CrawlJobRepository) Update(ctx context.Context, job *models.CrawlJob) error {
	query := `
		UPDATE crawl_jobs
		SET status = :status,
		    pages_crawled = :pages_crawled,
		    pages_total = :pages_total,
		    current_depth = :current_depth,
		    error_count = :error_count,
		    error_message = :error_message,
		    started_at = :started_at,
		    completed_at = :completed_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, job)
	if err != nil {
		return fmt.Errorf("failed to update crawl job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("crawl job %s: %w", job.ID, ErrNotFound)
	}

	return nil
}

// ListBySource retrieves a source's crawl jobs, newest first
func (r *CrawlJobRepository) ListBySource(ctx context.Context, sourceID uuid.UUID) ([]*models.CrawlJob, error) {
	query := `
		SELECT id, source_id, seed_url, status, pages_crawled, pages_total,
		       max_pages, max_depth, current_depth, error_count, error_message,
		       started_at, completed_at, created_at
		FROM crawl_jobs
		WHERE source_id = $1
		ORDER BY created_at DESC`

	var jobs []*models.CrawlJob
	err := r.db.SelectContext(ctx, &jobs, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl jobs: %w", err)
	}

	return jobs, nil
}
