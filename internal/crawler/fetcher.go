// Package crawler implements bounded recursive web crawls that feed
// fetched pages into the ingestion pipeline.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/contextforge/contextforge/internal/models"
	"github.com/contextforge/contextforge/internal/observability"
	"github.com/contextforge/contextforge/internal/processor"
	"github.com/contextforge/contextforge/internal/resilience"
)

// maxPageBytes caps how much of a response body a crawl will read.
const maxPageBytes = 10 << 20

// FetcherConfig configures page fetching.
type FetcherConfig struct {
	// UserAgent identifies the crawler to origin servers
	UserAgent string

	// Timeout bounds one fetch including the body read
	Timeout time.Duration

	// RequestsPerSecond is the politeness cap applied per host
	RequestsPerSecond float64
}

// Fetcher retrieves pages over HTTP with a per-host politeness limit
// and extracts same-host links for the crawl frontier.
type Fetcher struct {
	client    *http.Client
	limiter   *resilience.RateLimiter
	userAgent string
	logger    observability.Logger
}

// NewFetcher creates a Fetcher
func NewFetcher(config FetcherConfig, logger observability.Logger) *Fetcher {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 4
	}
	if config.UserAgent == "" {
		config.UserAgent = "contextforge-crawler/1.0"
	}

	limiter := resilience.NewRateLimiter(resilience.RateLimiterConfig{
		RequestsPerSecond: config.RequestsPerSecond,
		BurstSize:         1,
	}, logger)
	limiter.SetKeyLimits(config.RequestsPerSecond, 1)

	return &Fetcher{
		client:    &http.Client{Timeout: config.Timeout},
		limiter:   limiter,
		userAgent: config.UserAgent,
		logger:    logger.WithPrefix("fetcher"),
	}
}

// Fetch retrieves one page and returns it as a raw document plus the
// absolute same-host links it references.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*models.RawDocument, []string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, nil, fmt.Errorf("invalid crawl url %q", pageURL)
	}

	if err := f.limiter.WaitForKey(ctx, parsed.Host); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s failed: %w", pageURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("fetch %s returned status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", pageURL, err)
	}

	contentType := resp.Header.Get("Content-Type")
	raw := &models.RawDocument{
		Title:       pageTitle(parsed),
		URL:         pageURL,
		ContentType: contentType,
		Body:        body,
	}

	var links []string
	if strings.Contains(contentType, "text/html") {
		links = f.extractSameHostLinks(parsed, body)
	}

	return raw, links, nil
}

// extractSameHostLinks resolves anchors against the page URL and keeps
// only http(s) links on the same host, fragments stripped.
func (f *Fetcher) extractSameHostLinks(base *url.URL, body []byte) []string {
	hrefs, err := processor.ExtractLinks(body)
	if err != nil {
		f.logger.Debug("Link extraction failed", map[string]interface{}{
			"url":   base.String(),
			"error": err.Error(),
		})
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	for _, href := range hrefs {
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		if abs.Host != base.Host {
			continue
		}
		abs.Fragment = ""
		link := abs.String()
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	}
	return links
}

// pageTitle derives a display title from the URL path.
func pageTitle(u *url.URL) string {
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return u.Host
	}
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}
