package crawler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/contextforge/contextforge/internal/models"
	"github.com/contextforge/contextforge/internal/observability"
)

func waitTerminal(t *testing.T, m *Manager, id uuid.UUID) *models.CrawlJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.Status(context.Background(), id)
		if err == nil && job.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("crawl job did not reach a terminal state")
	return nil
}

func TestManager_RunsJobToCompletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	site := newFakeSite(map[string][]string{
		"https://example.com":   {"https://example.com/a"},
		"https://example.com/a": nil,
	})
	store := &recordingStore{}
	m := NewManager(store, site, &fakeIngestor{}, DefaultManagerConfig(), observability.NewNoopLogger())

	record, err := m.Start(context.Background(), uuid.New(), "https://example.com", 10, 2)
	require.NoError(t, err)

	job := waitTerminal(t, m, record.ID)
	assert.Equal(t, models.CrawlStatusCompleted, job.Status)
	assert.Equal(t, 2, job.PagesCrawled)

	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_RejectsInvalidSeed(t *testing.T) {
	m := NewManager(&recordingStore{}, newFakeSite(nil), &fakeIngestor{}, DefaultManagerConfig(), observability.NewNoopLogger())

	_, err := m.Start(context.Background(), uuid.New(), "ftp://example.com", 10, 2)
	assert.Error(t, err)
}

func TestManager_ClampsBounds(t *testing.T) {
	defer goleak.VerifyNone(t)

	site := newFakeSite(map[string][]string{"https://example.com": nil})
	store := &recordingStore{}
	config := DefaultManagerConfig()
	config.MaxPages = 5
	config.MaxDepth = 2
	m := NewManager(store, site, &fakeIngestor{}, config, observability.NewNoopLogger())

	record, err := m.Start(context.Background(), uuid.New(), "https://example.com", 10000, 50)
	require.NoError(t, err)
	assert.Equal(t, 5, record.MaxPages)
	assert.Equal(t, 2, record.MaxDepth)

	waitTerminal(t, m, record.ID)
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_CancelAbortsRunningJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	// An endless site: every page links to a fresh one, so only the
	// cancel can end the run.
	site := newFakeSite(nil)
	site.links = map[string][]string{"https://example.com": {"https://example.com/p1"}}
	for i := 1; i < 10000; i++ {
		site.links[pageN(i)] = []string{pageN(i + 1)}
	}

	store := &recordingStore{}
	m := NewManager(store, site, &fakeIngestor{}, DefaultManagerConfig(), observability.NewNoopLogger())

	record, err := m.Start(context.Background(), uuid.New(), "https://example.com", 10000, 10000)
	require.NoError(t, err)

	// Let it crawl a little before pulling the plug.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if job, err := m.Status(context.Background(), record.ID); err == nil && job.PagesCrawled > 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, m.Cancel(record.ID))

	job := waitTerminal(t, m, record.ID)
	assert.Equal(t, models.CrawlStatusAborted, job.Status)
	assert.LessOrEqual(t, job.PagesCrawled, job.MaxPages)

	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_ShutdownStopsJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	site := newFakeSite(nil)
	site.links = map[string][]string{"https://example.com": {pageN(1)}}
	for i := 1; i < 10000; i++ {
		site.links[pageN(i)] = []string{pageN(i + 1)}
	}

	store := &recordingStore{}
	m := NewManager(store, site, &fakeIngestor{}, DefaultManagerConfig(), observability.NewNoopLogger())

	_, err := m.Start(context.Background(), uuid.New(), "https://example.com", 10000, 10000)
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, m.Shutdown(shutdownCtx))
}

func pageN(i int) string {
	return fmt.Sprintf("https://example.com/p%d", i)
}
