package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contextforge/contextforge/internal/models"
	"github.com/contextforge/contextforge/internal/observability"
)

// Ingestor feeds fetched pages into the ingestion pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, sourceID uuid.UUID, raw *models.RawDocument) (*models.IngestResult, error)
}

// errQuotaExhausted stops a run outright: the provider will reject
// every remaining page the same way.
var errQuotaExhausted = errors.New("embedding quota exhausted")

// PageFetcher retrieves one page and its outgoing links.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*models.RawDocument, []string, error)
}

// JobStore persists crawl job snapshots.
type JobStore interface {
	Update(ctx context.Context, job *models.CrawlJob) error
}

// JobConfig bounds one crawl run.
type JobConfig struct {
	// ErrorThreshold aborts the job once error_count exceeds it; a
	// burst of failures is a systemic problem, not bad luck with pages
	ErrorThreshold int
}

// frontierItem is one queued URL with its discovery depth.
type frontierItem struct {
	url   string
	depth int
}

// Job executes one crawl. The frontier queue and visited set are
// private to the run; only the owning Run loop mutates the job record,
// so readers polling through the store always see consistent snapshots.
type Job struct {
	record   *models.CrawlJob
	fetcher  PageFetcher
	ingestor Ingestor
	store    JobStore
	config   JobConfig
	logger   observability.Logger
}

// NewJob wraps a pending crawl job record for execution
func NewJob(record *models.CrawlJob, fetcher PageFetcher, ingestor Ingestor, store JobStore, config JobConfig, logger observability.Logger) *Job {
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = 10
	}
	return &Job{
		record:   record,
		fetcher:  fetcher,
		ingestor: ingestor,
		store:    store,
		config:   config,
		logger:   logger.WithPrefix("crawl-job"),
	}
}

// Run drives the job to a terminal state. Cancellation via ctx is
// observed between frontier pops, never mid-fetch, and lands the job
// in aborted. The returned error reflects persistence problems only;
// crawl-level failures are recorded on the job itself.
func (j *Job) Run(ctx context.Context) error {
	now := time.Now()
	j.record.Status = models.CrawlStatusRunning
	j.record.StartedAt = &now
	if err := j.persist(ctx); err != nil {
		return err
	}

	j.logger.Info("Crawl started", map[string]interface{}{
		"job_id":    j.record.ID.String(),
		"seed_url":  j.record.SeedURL,
		"max_pages": j.record.MaxPages,
		"max_depth": j.record.MaxDepth,
	})

	frontier := []frontierItem{{url: j.record.SeedURL, depth: 0}}
	visited := map[string]bool{j.record.SeedURL: true}
	j.record.PagesTotal = 1

	for len(frontier) > 0 && j.record.PagesCrawled < j.record.MaxPages {
		if ctx.Err() != nil {
			return j.finish(models.CrawlStatusAborted, "crawl cancelled")
		}

		item := frontier[0]
		frontier = frontier[1:]

		if item.depth > j.record.CurrentDepth {
			j.record.CurrentDepth = item.depth
		}

		links, err := j.crawlPage(ctx, item)
		if err != nil {
			if errors.Is(err, errQuotaExhausted) {
				if item.depth == 0 && j.record.PagesCrawled == 0 {
					return j.finish(models.CrawlStatusFailed, err.Error())
				}
				return j.finish(models.CrawlStatusAborted, err.Error())
			}

			j.record.ErrorCount++
			j.logger.Warn("Page failed", map[string]interface{}{
				"job_id":      j.record.ID.String(),
				"url":         item.url,
				"error_count": j.record.ErrorCount,
				"error":       err.Error(),
			})

			// The seed failing means there is nothing to crawl at all.
			if item.depth == 0 && j.record.PagesCrawled == 0 {
				return j.finish(models.CrawlStatusFailed, fmt.Sprintf("seed page failed: %v", err))
			}
			if j.record.ErrorCount > j.config.ErrorThreshold {
				return j.finish(models.CrawlStatusAborted, "error threshold exceeded")
			}
			continue
		}

		j.record.PagesCrawled++

		if item.depth < j.record.MaxDepth && j.record.PagesCrawled < j.record.MaxPages {
			for _, link := range links {
				if visited[link] {
					continue
				}
				visited[link] = true
				frontier = append(frontier, frontierItem{url: link, depth: item.depth + 1})
				j.record.PagesTotal++
			}
		}

		if err := j.persist(ctx); err != nil {
			return err
		}
	}

	return j.finish(models.CrawlStatusCompleted, "")
}

// crawlPage fetches one URL and ingests its content.
func (j *Job) crawlPage(ctx context.Context, item frontierItem) ([]string, error) {
	raw, links, err := j.fetcher.Fetch(ctx, item.url)
	if err != nil {
		return nil, err
	}

	result, err := j.ingestor.Ingest(ctx, j.record.SourceID, raw)
	if err != nil {
		return nil, fmt.Errorf("ingest failed: %w", err)
	}
	if result.Exhausted {
		return nil, fmt.Errorf("%w after %d chunks", errQuotaExhausted, result.ChunksStored)
	}

	return links, nil
}

// finish records the terminal state.
func (j *Job) finish(status string, message string) error {
	now := time.Now()
	j.record.Status = status
	j.record.CompletedAt = &now
	if message != "" {
		j.record.ErrorMessage = message
	}

	j.logger.Info("Crawl finished", map[string]interface{}{
		"job_id":        j.record.ID.String(),
		"status":        status,
		"pages_crawled": j.record.PagesCrawled,
		"error_count":   j.record.ErrorCount,
	})

	// Terminal snapshots must land even when the run context is
	// already cancelled.
	return j.persist(context.Background())
}

func (j *Job) persist(ctx context.Context) error {
	if err := j.store.Update(ctx, j.record); err != nil {
		return fmt.Errorf("failed to persist crawl job: %w", err)
	}
	return nil
}
