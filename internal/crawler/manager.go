package crawler

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextforge/contextforge/internal/models"
	"github.com/contextforge/contextforge/internal/observability"
)

// JobRepository persists crawl jobs and serves status polls.
type JobRepository interface {
	Create(ctx context.Context, job *models.CrawlJob) error
	Update(ctx context.Context, job *models.CrawlJob) error
	Get(ctx context.Context, id uuid.UUID) (*models.CrawlJob, error)
}

// ManagerConfig bounds crawl execution across jobs.
type ManagerConfig struct {
	// MaxPages and MaxDepth cap what callers may request
	MaxPages int
	MaxDepth int

	// ErrorThreshold is handed to each job
	ErrorThreshold int

	// JobTimeout is the wall-clock bound per job
	JobTimeout time.Duration

	// MaxConcurrentJobs limits simultaneously running crawls; further
	// jobs wait in pending
	MaxConcurrentJobs int
}

// DefaultManagerConfig returns sensible defaults
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxPages:          100,
		MaxDepth:          3,
		ErrorThreshold:    10,
		JobTimeout:        30 * time.Minute,
		MaxConcurrentJobs: 3,
	}
}

// Manager starts crawl jobs, bounds their concurrency, and serves
// status polls from persisted snapshots. Crawls run detached from the
// request that started them; callers poll rather than await.
type Manager struct {
	repo     JobRepository
	fetcher  PageFetcher
	ingestor Ingestor
	config   ManagerConfig
	logger   observability.Logger

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
	slots   chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewManager creates a crawl manager
func NewManager(repo JobRepository, fetcher PageFetcher, ingestor Ingestor, config ManagerConfig, logger observability.Logger) *Manager {
	defaults := DefaultManagerConfig()
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = defaults.MaxDepth
	}
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = defaults.ErrorThreshold
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if config.MaxConcurrentJobs <= 0 {
		config.MaxConcurrentJobs = defaults.MaxConcurrentJobs
	}

	return &Manager{
		repo:     repo,
		fetcher:  fetcher,
		ingestor: ingestor,
		config:   config,
		logger:   logger.WithPrefix("crawl-manager"),
		cancels:  make(map[uuid.UUID]context.CancelFunc),
		slots:    make(chan struct{}, config.MaxConcurrentJobs),
	}
}

// Start creates a pending crawl job and schedules it. Requested bounds
// above the configured maximums are clamped, not rejected.
func (m *Manager) Start(ctx context.Context, sourceID uuid.UUID, seedURL string, maxPages, maxDepth int) (*models.CrawlJob, error) {
	parsed, err := url.Parse(seedURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid seed url %q", seedURL)
	}

	if maxPages <= 0 || maxPages > m.config.MaxPages {
		maxPages = m.config.MaxPages
	}
	if maxDepth <= 0 || maxDepth > m.config.MaxDepth {
		maxDepth = m.config.MaxDepth
	}

	record := &models.CrawlJob{
		SourceID: sourceID,
		SeedURL:  seedURL,
		Status:   models.CrawlStatusPending,
		MaxPages: maxPages,
		MaxDepth: maxDepth,
	}
	if err := m.repo.Create(ctx, record); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("crawl manager is shut down")
	}
	jobCtx, cancel := context.WithCancel(context.Background())
	m.cancels[record.ID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(jobCtx, record)

	return record, nil
}

// run executes one job inside a concurrency slot and the configured
// wall-clock bound.
func (m *Manager) run(ctx context.Context, record *models.CrawlJob) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.cancels, record.ID)
		m.mu.Unlock()
	}()

	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		record.Status = models.CrawlStatusAborted
		record.ErrorMessage = "cancelled before start"
		if err := m.repo.Update(context.Background(), record); err != nil {
			m.logger.Error("Failed to persist cancelled job", map[string]interface{}{
				"job_id": record.ID.String(),
				"error":  err.Error(),
			})
		}
		return
	}
	defer func() { <-m.slots }()

	runCtx, cancel := context.WithTimeout(ctx, m.config.JobTimeout)
	defer cancel()

	job := NewJob(record, m.fetcher, m.ingestor, m.repo, JobConfig{
		ErrorThreshold: m.config.ErrorThreshold,
	}, m.logger)

	if err := job.Run(runCtx); err != nil {
		m.logger.Error("Crawl job persistence failed", map[string]interface{}{
			"job_id": record.ID.String(),
			"error":  err.Error(),
		})
	}
}

// Cancel requests an abort of a running job. The job observes the
// cancellation at its next frontier pop.
func (m *Manager) Cancel(id uuid.UUID) error {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("crawl job %s is not running", id)
	}
	cancel()
	return nil
}

// Status returns the latest persisted snapshot of a job
func (m *Manager) Status(ctx context.Context, id uuid.UUID) (*models.CrawlJob, error) {
	return m.repo.Get(ctx, id)
}

// Shutdown cancels all running jobs and waits for them to persist
// their terminal snapshots, or until ctx expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
