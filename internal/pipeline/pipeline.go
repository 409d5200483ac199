// Package pipeline orchestrates document ingestion: parse, chunk,
// classify, embed, route and persist, with the vector store and the
// relational store kept consistent by a two-phase write per chunk.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/contextforge/contextforge/internal/embedding"
	"github.com/contextforge/contextforge/internal/models"
	"github.com/contextforge/contextforge/internal/observability"
	"github.com/contextforge/contextforge/internal/processor"
	"github.com/contextforge/contextforge/internal/vector"
)

// Embedder is the batching embedding client.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) (*embedding.BatchResult, error)
	Dimensions() int
}

// Router resolves and prepares vector collections.
type Router interface {
	Resolve(ctx context.Context, source *models.Source, kind models.ContentKind) (string, error)
	EnsureExists(ctx context.Context, name string, dimension int) error
	EnsureSearchable(ctx context.Context, name string) error
}

// SourceStore is the slice of source persistence the pipeline needs.
type SourceStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Source, error)
}

// DocumentStore is the slice of document persistence the pipeline needs.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetBySourceAndHash(ctx context.Context, sourceID uuid.UUID, hash string) (*models.Document, error)
	SetChunkCount(ctx context.Context, id uuid.UUID, count int) error
}

// ChunkStore is the slice of chunk persistence the pipeline needs.
type ChunkStore interface {
	Create(ctx context.Context, chunk *models.Chunk) error
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.Chunk, error)
}

// Pipeline ingests one document at a time. Concurrent Ingest calls are
// independent; calls against the same source coordinate only through
// the router's idempotent collection handling.
type Pipeline struct {
	sources    SourceStore
	documents  DocumentStore
	chunks     ChunkStore
	store      vector.Store
	router     Router
	embedder   Embedder
	parser     *processor.Parser
	chunker    *processor.Chunker
	classifier *processor.Classifier
	logger     observability.Logger
}

// NewPipeline creates an ingestion pipeline
func NewPipeline(
	sources SourceStore,
	documents DocumentStore,
	chunks ChunkStore,
	store vector.Store,
	router Router,
	embedder Embedder,
	chunker *processor.Chunker,
	logger observability.Logger,
) *Pipeline {
	return &Pipeline{
		sources:    sources,
		documents:  documents,
		chunks:     chunks,
		store:      store,
		router:     router,
		embedder:   embedder,
		parser:     processor.NewParser(),
		chunker:    chunker,
		classifier: processor.NewClassifier(),
		logger:     logger.WithPrefix("pipeline"),
	}
}

// group is the set of chunks bound for one collection.
type group struct {
	collection string
	kind       models.ContentKind
	indexes    []int
}

// Ingest processes one raw document for the source. Quota exhaustion
// mid-batch yields a partial result with Exhausted set and a nil error;
// everything stored up to that point stays stored.
func (p *Pipeline) Ingest(ctx context.Context, sourceID uuid.UUID, raw *models.RawDocument) (*models.IngestResult, error) {
	source, err := p.sources.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	text, err := p.parser.Parse(raw)
	if err != nil {
		return nil, err
	}

	hash := contentHash(text)
	chunkTexts := p.chunker.Chunk(text)

	existing, err := p.documents.GetBySourceAndHash(ctx, sourceID, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ChunkCount == len(chunkTexts) {
		// Identical content already fully ingested; re-ingestion is a
		// no-op rather than a duplicate.
		p.logger.Debug("Document content unchanged, skipping", map[string]interface{}{
			"document_id": existing.ID.String(),
		})
		return &models.IngestResult{
			DocumentID:   existing.ID,
			ChunksStored: existing.ChunkCount,
			ChunksTotal:  len(chunkTexts),
		}, nil
	}

	var doc *models.Document
	if existing != nil {
		// Same content but an incomplete earlier run: replace the
		// existing document's chunks in place.
		if err := p.removeChunks(ctx, existing.ID); err != nil {
			return nil, err
		}
		doc = existing
	} else {
		doc = &models.Document{
			SourceID:    sourceID,
			Title:       raw.Title,
			DocKind:     raw.ContentType,
			URL:         raw.URL,
			ContentHash: hash,
		}
		if err := p.documents.Create(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to create document: %w", err)
		}
	}

	result := &models.IngestResult{
		DocumentID:  doc.ID,
		ChunksTotal: len(chunkTexts),
	}

	if len(chunkTexts) == 0 {
		if err := p.documents.SetChunkCount(ctx, doc.ID, 0); err != nil {
			return nil, err
		}
		return result, nil
	}

	groups, err := p.route(ctx, source, chunkTexts)
	if err != nil {
		return nil, err
	}

	touched := make(map[string]bool)
	for _, grp := range groups {
		stored, exhausted, err := p.ingestGroup(ctx, doc, grp, chunkTexts)
		result.ChunksStored += stored
		if stored > 0 {
			touched[grp.collection] = true
		}
		if err != nil {
			p.finishCount(ctx, doc.ID, result.ChunksStored)
			return result, err
		}
		if exhausted {
			result.Exhausted = true
			break
		}
	}

	if err := p.documents.SetChunkCount(ctx, doc.ID, result.ChunksStored); err != nil {
		return result, err
	}

	for collection := range touched {
		if err := p.router.EnsureSearchable(ctx, collection); err != nil {
			p.logger.Warn("Failed to build index after load", map[string]interface{}{
				"collection": collection,
				"error":      err.Error(),
			})
		}
	}

	return result, nil
}

// route classifies every chunk and resolves its target collection,
// ensuring each distinct collection exists before embedding starts.
// Chunks of a kind the source has disabled fall back to prose when
// prose is enabled and are dropped otherwise.
func (p *Pipeline) route(ctx context.Context, source *models.Source, chunkTexts []string) ([]group, error) {
	byCollection := make(map[string]*group)

	for i, text := range chunkTexts {
		kind := p.classifier.Classify(text)
		if !source.KindEnabled(kind) {
			if !source.KindEnabled(models.ContentKindProse) {
				p.logger.Debug("Dropping chunk of disabled kind", map[string]interface{}{
					"source_id": source.ID.String(),
					"kind":      string(kind),
				})
				continue
			}
			kind = models.ContentKindProse
		}

		collection, err := p.router.Resolve(ctx, source, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve collection: %w", err)
		}

		grp, ok := byCollection[collection]
		if !ok {
			if err := p.router.EnsureExists(ctx, collection, p.embedder.Dimensions()); err != nil {
				return nil, fmt.Errorf("failed to ensure collection %s: %w", collection, err)
			}
			grp = &group{collection: collection, kind: kind}
			byCollection[collection] = grp
		}
		grp.indexes = append(grp.indexes, i)
	}

	groups := make([]group, 0, len(byCollection))
	for _, grp := range byCollection {
		groups = append(groups, *grp)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].collection < groups[j].collection
	})
	return groups, nil
}

// ingestGroup embeds one collection's chunks and writes each embedded
// chunk with a two-phase write: vector first, then the row referencing
// it. A failed vector write skips that chunk; a failed row write
// deletes the orphaned vector and aborts.
func (p *Pipeline) ingestGroup(ctx context.Context, doc *models.Document, grp group, chunkTexts []string) (int, bool, error) {
	texts := make([]string, len(grp.indexes))
	for i, idx := range grp.indexes {
		texts[i] = chunkTexts[idx]
	}

	batch, embedErr := p.embedder.EmbedBatch(ctx, texts)
	if batch == nil {
		batch = &embedding.BatchResult{}
	}

	stored := 0
	for _, iv := range batch.Embedded {
		ordinal := grp.indexes[iv.Index]
		chunk := &models.Chunk{
			ID:             uuid.New(),
			DocumentID:     doc.ID,
			ChunkIndex:     ordinal,
			Content:        chunkTexts[ordinal],
			ContentKind:    grp.kind,
			CollectionName: grp.collection,
		}
		chunk.EmbeddingID = chunk.ID

		point := vector.Point{
			ID:          chunk.ID.String(),
			SourceID:    doc.SourceID.String(),
			DocumentID:  doc.ID.String(),
			ContentKind: string(grp.kind),
			Vector:      iv.Vector,
		}

		if err := p.store.Upsert(ctx, grp.collection, []vector.Point{point}); err != nil {
			p.logger.Error("Vector write failed, skipping chunk", map[string]interface{}{
				"collection":  grp.collection,
				"chunk_index": ordinal,
				"error":       err.Error(),
			})
			continue
		}

		if err := p.chunks.Create(ctx, chunk); err != nil {
			// The vector is already written; remove it so the stores
			// cannot drift apart.
			if delErr := p.store.Delete(ctx, grp.collection, []string{point.ID}); delErr != nil {
				p.logger.Error("Failed to delete orphaned vector", map[string]interface{}{
					"collection": grp.collection,
					"id":         point.ID,
					"error":      delErr.Error(),
				})
			}
			return stored, false, fmt.Errorf("failed to store chunk %d: %w", ordinal, err)
		}
		stored++
	}

	if embedErr != nil {
		return stored, false, fmt.Errorf("embedding failed: %w", embedErr)
	}

	return stored, batch.Exhausted, nil
}

// removeChunks deletes a document's chunk rows and their vectors, used
// when re-ingestion replaces an incomplete earlier run.
func (p *Pipeline) removeChunks(ctx context.Context, documentID uuid.UUID) error {
	deleted, err := p.chunks.DeleteByDocument(ctx, documentID)
	if err != nil {
		return err
	}

	byCollection := make(map[string][]string)
	for _, chunk := range deleted {
		byCollection[chunk.CollectionName] = append(byCollection[chunk.CollectionName], chunk.EmbeddingID.String())
	}
	for collection, ids := range byCollection {
		if err := p.store.Delete(ctx, collection, ids); err != nil {
			return fmt.Errorf("failed to delete stale vectors in %s: %w", collection, err)
		}
	}
	return nil
}

// finishCount best-effort records the stored-chunk count when an error
// is already on its way to the caller.
func (p *Pipeline) finishCount(ctx context.Context, documentID uuid.UUID, count int) {
	if err := p.documents.SetChunkCount(ctx, documentID, count); err != nil {
		p.logger.Error("Failed to update chunk count", map[string]interface{}{
			"document_id": documentID.String(),
			"error":       err.Error(),
		})
	}
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
