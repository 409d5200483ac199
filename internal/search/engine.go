// Package search provides hybrid retrieval: dense vector similarity
// fanned out across collections, merged with lexical full-text relevance
// from the relational store.
package search

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/contextforge/contextforge/internal/cache"
	"github.com/contextforge/contextforge/internal/models"
	"github.com/contextforge/contextforge/internal/observability"
	"github.com/contextforge/contextforge/internal/repository"
	"github.com/contextforge/contextforge/internal/vector"
)

// QueryEmbedder produces a single query embedding.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChunkSearcher is the lexical side of hybrid search plus content
// hydration for vector-only hits.
type ChunkSearcher interface {
	SearchText(ctx context.Context, query string, sourceIDs []uuid.UUID, limit int) ([]repository.TextMatch, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Chunk, error)
}

// SourceLister resolves the sources a search is scoped to.
type SourceLister interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Source, error)
	List(ctx context.Context) ([]*models.Source, error)
}

// Config holds the merge weights and candidate sizing.
type Config struct {
	// VectorWeight and TextWeight combine normalized scores for chunks
	// found by both retrieval paths
	VectorWeight float64
	TextWeight   float64

	// Oversample multiplies the requested limit when gathering
	// candidates per collection; minimum 2
	Oversample int

	// DefaultLimit applies when a request carries no limit
	DefaultLimit int
}

// DefaultConfig returns the default weights and sizing
func DefaultConfig() Config {
	return Config{
		VectorWeight: 0.7,
		TextWeight:   0.3,
		Oversample:   2,
		DefaultLimit: 10,
	}
}

// Request is one search invocation.
type Request struct {
	Query     string
	SourceIDs []uuid.UUID
	Type      models.SearchType
	Limit     int
}

// Engine runs hybrid search over the vector store and the relational
// full-text index.
type Engine struct {
	embedder QueryEmbedder
	store    vector.Store
	chunks   ChunkSearcher
	sources  SourceLister
	embCache *cache.EmbeddingCache
	config   Config
	logger   observability.Logger
}

// NewEngine creates a search engine. embCache may be nil; the engine
// then embeds every query directly.
func NewEngine(
	embedder QueryEmbedder,
	store vector.Store,
	chunks ChunkSearcher,
	sources SourceLister,
	embCache *cache.EmbeddingCache,
	config Config,
	logger observability.Logger,
) *Engine {
	if config.VectorWeight <= 0 && config.TextWeight <= 0 {
		config.VectorWeight = 0.7
		config.TextWeight = 0.3
	}
	if config.Oversample < 2 {
		config.Oversample = 2
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 10
	}
	return &Engine{
		embedder: embedder,
		store:    store,
		chunks:   chunks,
		sources:  sources,
		embCache: embCache,
		config:   config,
		logger:   logger.WithPrefix("search"),
	}
}

// candidate accumulates the two retrieval paths' scores for one chunk.
type candidate struct {
	chunkID     uuid.UUID
	content     string
	sourceID    uuid.UUID
	contentKind models.ContentKind

	vectorScore float64
	textScore   float64
	inVector    bool
	inText      bool

	// arrival is the candidate's position in its first result set,
	// used for stable tie-breaking after the weighted merge
	arrival int
}

// Search runs the requested retrieval strategy and returns ranked
// results scoped to the requested sources.
func (e *Engine) Search(ctx context.Context, req Request) (*models.SearchResponse, error) {
	start := time.Now()

	if req.Query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = e.config.DefaultLimit
	}

	targets, sourceSet, err := e.resolveTargets(ctx, req.SourceIDs)
	if err != nil {
		return nil, err
	}

	searchType := e.resolveType(req.Type)

	queryVector, err := e.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidateLimit := limit * e.config.Oversample

	var (
		mu         sync.Mutex
		vectorHits []vector.SearchHit
		textHits   []repository.TextMatch
	)

	g, gctx := errgroup.WithContext(ctx)

	scope := make([]string, len(req.SourceIDs))
	for i, id := range req.SourceIDs {
		scope[i] = id.String()
	}

	for _, collection := range targets {
		collection := collection
		g.Go(func() error {
			hits, err := e.store.Search(gctx, collection, queryVector, candidateLimit, scope)
			if err != nil {
				return fmt.Errorf("vector search in %s failed: %w", collection, err)
			}
			mu.Lock()
			vectorHits = append(vectorHits, hits...)
			mu.Unlock()
			return nil
		})
	}

	if searchType == models.SearchTypeHybrid {
		g.Go(func() error {
			textScope := req.SourceIDs
			if len(textScope) == 0 {
				textScope = sourceIDsFromSet(sourceSet)
			}
			hits, err := e.chunks.SearchText(gctx, req.Query, textScope, candidateLimit)
			if err != nil {
				// Lexical failure degrades the query to vector-only
				// instead of failing it.
				e.logger.Warn("Text search failed, degrading to vector-only", map[string]interface{}{
					"error": err.Error(),
				})
				return nil
			}
			mu.Lock()
			textHits = hits
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if searchType == models.SearchTypeHybrid && len(textHits) == 0 && len(vectorHits) > 0 {
		// Merge still runs; results simply carry no text contribution.
		e.logger.Debug("No lexical matches for query", nil)
	}

	results := e.merge(vectorHits, textHits, sourceSet, limit)

	if err := e.hydrate(ctx, results); err != nil {
		return nil, err
	}

	return &models.SearchResponse{
		Results:        results,
		SearchTypeUsed: searchType,
		LatencyMS:      time.Since(start).Milliseconds(),
	}, nil
}

// resolveTargets maps the requested source scope to the set of vector
// collections to fan out over, plus the allowed source set for
// isolation filtering.
func (e *Engine) resolveTargets(ctx context.Context, sourceIDs []uuid.UUID) ([]string, map[uuid.UUID]bool, error) {
	var scoped []*models.Source

	if len(sourceIDs) == 0 {
		all, err := e.sources.List(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list sources: %w", err)
		}
		scoped = all
	} else {
		for _, id := range sourceIDs {
			source, err := e.sources.Get(ctx, id)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to resolve source %s: %w", id, err)
			}
			scoped = append(scoped, source)
		}
	}

	sourceSet := make(map[uuid.UUID]bool, len(scoped))
	seen := make(map[string]bool)
	var collections []string
	for _, source := range scoped {
		sourceSet[source.ID] = true
		for _, name := range source.CollectionNames {
			if !seen[name] {
				seen[name] = true
				collections = append(collections, name)
			}
		}
	}
	sort.Strings(collections)

	return collections, sourceSet, nil
}

func (e *Engine) resolveType(t models.SearchType) models.SearchType {
	switch t {
	case models.SearchTypeVector:
		return models.SearchTypeVector
	case models.SearchTypeHybrid:
		return models.SearchTypeHybrid
	default:
		// auto: the relational store always carries the full-text
		// index, so hybrid is available whenever a chunk searcher is.
		if e.chunks != nil {
			return models.SearchTypeHybrid
		}
		return models.SearchTypeVector
	}
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.embCache != nil {
		if vec, err := e.embCache.GetEmbedding(ctx, query); err == nil {
			return vec, nil
		}
	}

	vec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	if e.embCache != nil {
		if err := e.embCache.SetEmbedding(ctx, query, vec); err != nil {
			e.logger.Debug("Failed to cache query embedding", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return vec, nil
}

// merge combines the two candidate sets: independent min-max
// normalization, weighted sum for chunks in both, ranked descending with
// match_type "both" winning ties and original order preserved otherwise.
func (e *Engine) merge(vectorHits []vector.SearchHit, textHits []repository.TextMatch, sourceSet map[uuid.UUID]bool, limit int) []models.SearchResult {
	byID := make(map[uuid.UUID]*candidate)
	var ordered []*candidate
	arrival := 0

	vectorNorm := normalizeVector(vectorHits)
	for i, hit := range vectorHits {
		hitSource, err := uuid.Parse(hit.SourceID)
		if err != nil || !sourceSet[hitSource] {
			continue
		}
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			continue
		}
		c, ok := byID[id]
		if !ok {
			c = &candidate{
				chunkID:     id,
				sourceID:    hitSource,
				contentKind: models.ContentKind(hit.ContentKind),
				arrival:     arrival,
			}
			arrival++
			byID[id] = c
			ordered = append(ordered, c)
		}
		c.inVector = true
		if vectorNorm[i] > c.vectorScore {
			c.vectorScore = vectorNorm[i]
		}
	}

	textNorm := normalizeText(textHits)
	for i, hit := range textHits {
		if !sourceSet[hit.SourceID] {
			continue
		}
		c, ok := byID[hit.ChunkID]
		if !ok {
			c = &candidate{
				chunkID:     hit.ChunkID,
				sourceID:    hit.SourceID,
				contentKind: hit.ContentKind,
				arrival:     arrival,
			}
			arrival++
			byID[hit.ChunkID] = c
			ordered = append(ordered, c)
		}
		c.inText = true
		c.content = hit.Content
		if textNorm[i] > c.textScore {
			c.textScore = textNorm[i]
		}
	}

	results := make([]models.SearchResult, 0, len(ordered))
	for _, c := range ordered {
		var score float64
		var matchType models.MatchType
		switch {
		case c.inVector && c.inText:
			score = e.config.VectorWeight*c.vectorScore + e.config.TextWeight*c.textScore
			matchType = models.MatchTypeBoth
		case c.inVector:
			score = e.config.VectorWeight * c.vectorScore
			matchType = models.MatchTypeVector
		default:
			score = e.config.TextWeight * c.textScore
			matchType = models.MatchTypeText
		}
		results = append(results, models.SearchResult{
			ChunkID:     c.chunkID,
			Content:     c.content,
			Score:       score,
			MatchType:   matchType,
			SourceID:    c.sourceID,
			ContentKind: c.contentKind,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return matchRank(results[i].MatchType) < matchRank(results[j].MatchType)
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results
}

// matchRank orders equal-score results: both before single-path hits.
func matchRank(t models.MatchType) int {
	if t == models.MatchTypeBoth {
		return 0
	}
	return 1
}

// hydrate fills Content for results that only appeared in the vector set.
func (e *Engine) hydrate(ctx context.Context, results []models.SearchResult) error {
	var missing []uuid.UUID
	for _, r := range results {
		if r.Content == "" {
			missing = append(missing, r.ChunkID)
		}
	}
	if len(missing) == 0 || e.chunks == nil {
		return nil
	}

	chunks, err := e.chunks.GetByIDs(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to load result content: %w", err)
	}

	content := make(map[uuid.UUID]string, len(chunks))
	for _, c := range chunks {
		content[c.ID] = c.Content
	}
	for i := range results {
		if results[i].Content == "" {
			results[i].Content = content[results[i].ChunkID]
		}
	}
	return nil
}

// normalizeVector min-max scales vector scores to [0,1] across the set.
// A degenerate set (all scores equal) maps to 1.0.
func normalizeVector(hits []vector.SearchHit) []float64 {
	scores := make([]float64, len(hits))
	for i, h := range hits {
		scores[i] = h.Score
	}
	return minMax(scores)
}

func normalizeText(hits []repository.TextMatch) []float64 {
	scores := make([]float64, len(hits))
	for i, h := range hits {
		scores[i] = h.Rank
	}
	return minMax(scores)
}

func minMax(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}

	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	norm := make([]float64, len(scores))
	if max == min {
		for i := range norm {
			norm[i] = 1.0
		}
		return norm
	}
	for i, s := range scores {
		norm[i] = (s - min) / (max - min)
	}
	return norm
}

func sourceIDsFromSet(set map[uuid.UUID]bool) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}
