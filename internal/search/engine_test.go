package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/contextforge/internal/models"
	"github.com/contextforge/contextforge/internal/observability"
	"github.com/contextforge/contextforge/internal/repository"
	"github.com/contextforge/contextforge/internal/vector"
)

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{0.1, 0.2, 0.3}, nil
}

// scriptedStore returns canned hits per collection.
type scriptedStore struct {
	vector.MockStore
	hits map[string][]vector.SearchHit
	err  error
}

func (s *scriptedStore) Search(ctx context.Context, collection string, vec []float32, limit int, sourceIDs []string) ([]vector.SearchHit, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.hits[collection], nil
}

type fakeChunks struct {
	matches   []repository.TextMatch
	searchErr error
	byID      map[uuid.UUID]string
	searches  int
}

func (f *fakeChunks) SearchText(ctx context.Context, query string, sourceIDs []uuid.UUID, limit int) ([]repository.TextMatch, error) {
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.matches, nil
}

func (f *fakeChunks) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Chunk, error) {
	var chunks []*models.Chunk
	for _, id := range ids {
		if content, ok := f.byID[id]; ok {
			chunks = append(chunks, &models.Chunk{ID: id, Content: content})
		}
	}
	return chunks, nil
}

type fakeSources struct {
	sources map[uuid.UUID]*models.Source
}

func (f *fakeSources) Get(ctx context.Context, id uuid.UUID) (*models.Source, error) {
	source, ok := f.sources[id]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", id, repository.ErrNotFound)
	}
	return source, nil
}

func (f *fakeSources) List(ctx context.Context) ([]*models.Source, error) {
	var all []*models.Source
	for _, s := range f.sources {
		all = append(all, s)
	}
	return all, nil
}

func newTestSource(name string) *models.Source {
	return &models.Source{
		ID: uuid.New(),
		CollectionNames: models.CollectionNames{
			models.ContentKindProse: name,
		},
	}
}

func TestEngine_HybridMerge(t *testing.T) {
	source := newTestSource("docs_prose")
	chunkA := uuid.New()
	chunkB := uuid.New()
	chunkC := uuid.New()

	store := &scriptedStore{hits: map[string][]vector.SearchHit{
		"docs_prose": {
			{ID: chunkA.String(), Score: 0.9, SourceID: source.ID.String(), ContentKind: "prose"},
			{ID: chunkB.String(), Score: 0.4, SourceID: source.ID.String(), ContentKind: "prose"},
		},
	}}
	chunks := &fakeChunks{
		matches: []repository.TextMatch{
			{ChunkID: chunkA, Content: "chunk a", Rank: 0.6, SourceID: source.ID, ContentKind: models.ContentKindProse},
			{ChunkID: chunkC, Content: "chunk c", Rank: 0.3, SourceID: source.ID, ContentKind: models.ContentKindProse},
		},
		byID: map[uuid.UUID]string{chunkB: "chunk b"},
	}
	sources := &fakeSources{sources: map[uuid.UUID]*models.Source{source.ID: source}}

	engine := NewEngine(&fakeEmbedder{}, store, chunks, sources, nil, DefaultConfig(), observability.NewNoopLogger())

	resp, err := engine.Search(context.Background(), Request{
		Query:     "test query",
		SourceIDs: []uuid.UUID{source.ID},
		Type:      models.SearchTypeHybrid,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, models.SearchTypeHybrid, resp.SearchTypeUsed)

	// A appears in both sets and normalizes to 1.0 on each side:
	// 0.7*1.0 + 0.3*1.0 = 1.0. B and C are the minima of their sets
	// and normalize to 0.0.
	assert.Equal(t, chunkA, resp.Results[0].ChunkID)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-9)
	assert.Equal(t, models.MatchTypeBoth, resp.Results[0].MatchType)

	// B and C tie at 0.0; neither is a "both" match, so original
	// arrival order holds: B (vector set) before C (text set).
	assert.Equal(t, chunkB, resp.Results[1].ChunkID)
	assert.InDelta(t, 0.0, resp.Results[1].Score, 1e-9)
	assert.Equal(t, models.MatchTypeVector, resp.Results[1].MatchType)

	assert.Equal(t, chunkC, resp.Results[2].ChunkID)
	assert.InDelta(t, 0.0, resp.Results[2].Score, 1e-9)
	assert.Equal(t, models.MatchTypeText, resp.Results[2].MatchType)

	// Vector-only hit B had its content hydrated from the chunk rows.
	assert.Equal(t, "chunk b", resp.Results[1].Content)
}

func TestEngine_CrossDomainIsolation(t *testing.T) {
	sourceX := newTestSource("x_prose")
	sourceY := newTestSource("y_prose")
	leaked := uuid.New()
	own := uuid.New()

	// X's collection somehow contains a higher-scoring chunk owned by
	// Y; it must never surface in a search scoped to X.
	store := &scriptedStore{hits: map[string][]vector.SearchHit{
		"x_prose": {
			{ID: leaked.String(), Score: 0.99, SourceID: sourceY.ID.String(), ContentKind: "prose"},
			{ID: own.String(), Score: 0.5, SourceID: sourceX.ID.String(), ContentKind: "prose"},
		},
	}}
	chunks := &fakeChunks{byID: map[uuid.UUID]string{own: "ours"}}
	sources := &fakeSources{sources: map[uuid.UUID]*models.Source{
		sourceX.ID: sourceX,
		sourceY.ID: sourceY,
	}}

	engine := NewEngine(&fakeEmbedder{}, store, chunks, sources, nil, DefaultConfig(), observability.NewNoopLogger())

	resp, err := engine.Search(context.Background(), Request{
		Query:     "test query",
		SourceIDs: []uuid.UUID{sourceX.ID},
		Type:      models.SearchTypeVector,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, own, resp.Results[0].ChunkID)
	assert.Equal(t, sourceX.ID, resp.Results[0].SourceID)
}

func TestEngine_AutoResolvesHybrid(t *testing.T) {
	source := newTestSource("docs_prose")
	store := &scriptedStore{hits: map[string][]vector.SearchHit{}}
	chunks := &fakeChunks{}
	sources := &fakeSources{sources: map[uuid.UUID]*models.Source{source.ID: source}}

	engine := NewEngine(&fakeEmbedder{}, store, chunks, sources, nil, DefaultConfig(), observability.NewNoopLogger())

	resp, err := engine.Search(context.Background(), Request{
		Query: "anything",
		Type:  models.SearchTypeAuto,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SearchTypeHybrid, resp.SearchTypeUsed)
	assert.Equal(t, 1, chunks.searches)
}

func TestEngine_VectorTypeSkipsLexical(t *testing.T) {
	source := newTestSource("docs_prose")
	store := &scriptedStore{hits: map[string][]vector.SearchHit{}}
	chunks := &fakeChunks{}
	sources := &fakeSources{sources: map[uuid.UUID]*models.Source{source.ID: source}}

	engine := NewEngine(&fakeEmbedder{}, store, chunks, sources, nil, DefaultConfig(), observability.NewNoopLogger())

	resp, err := engine.Search(context.Background(), Request{
		Query: "anything",
		Type:  models.SearchTypeVector,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SearchTypeVector, resp.SearchTypeUsed)
	assert.Equal(t, 0, chunks.searches)
}

func TestEngine_LexicalFailureDegrades(t *testing.T) {
	source := newTestSource("docs_prose")
	chunkID := uuid.New()

	store := &scriptedStore{hits: map[string][]vector.SearchHit{
		"docs_prose": {
			{ID: chunkID.String(), Score: 0.8, SourceID: source.ID.String(), ContentKind: "prose"},
		},
	}}
	chunks := &fakeChunks{
		searchErr: errors.New("text index unavailable"),
		byID:      map[uuid.UUID]string{chunkID: "content"},
	}
	sources := &fakeSources{sources: map[uuid.UUID]*models.Source{source.ID: source}}

	engine := NewEngine(&fakeEmbedder{}, store, chunks, sources, nil, DefaultConfig(), observability.NewNoopLogger())

	resp, err := engine.Search(context.Background(), Request{
		Query:     "test query",
		SourceIDs: []uuid.UUID{source.ID},
		Type:      models.SearchTypeHybrid,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, models.MatchTypeVector, resp.Results[0].MatchType)
}

func TestEngine_TruncatesToLimit(t *testing.T) {
	source := newTestSource("docs_prose")

	var hits []vector.SearchHit
	byID := map[uuid.UUID]string{}
	for i := 0; i < 8; i++ {
		id := uuid.New()
		hits = append(hits, vector.SearchHit{
			ID: id.String(), Score: float64(i) * 0.1, SourceID: source.ID.String(), ContentKind: "prose",
		})
		byID[id] = "c"
	}

	store := &scriptedStore{hits: map[string][]vector.SearchHit{"docs_prose": hits}}
	chunks := &fakeChunks{byID: byID}
	sources := &fakeSources{sources: map[uuid.UUID]*models.Source{source.ID: source}}

	engine := NewEngine(&fakeEmbedder{}, store, chunks, sources, nil, DefaultConfig(), observability.NewNoopLogger())

	resp, err := engine.Search(context.Background(), Request{
		Query:     "test query",
		SourceIDs: []uuid.UUID{source.ID},
		Type:      models.SearchTypeVector,
		Limit:     3,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
	// Highest raw scores first.
	assert.InDelta(t, 0.7, resp.Results[0].Score, 1e-9)
}

func TestEngine_EmptyQuery(t *testing.T) {
	engine := NewEngine(&fakeEmbedder{}, &scriptedStore{}, &fakeChunks{}, &fakeSources{}, nil, DefaultConfig(), observability.NewNoopLogger())

	_, err := engine.Search(context.Background(), Request{Query: ""})
	assert.Error(t, err)
}
