package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/contextforge/contextforge/internal/models"
)

// TextMatch is one lexical search hit from the full-text index.
type TextMatch struct {
	ChunkID     uuid.UUID          `db:"chunk_id"`
	Content     string             `db:"content"`
	Rank        float64            `db:"rank"`
	SourceID    uuid.UUID          `db:"source_id"`
	ContentKind models.ContentKind `db:"content_kind"`
}

// ChunkRepository handles chunk data access, including the lexical
// side of hybrid search.
type ChunkRepository struct {
	db *sqlx.DB
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *sqlx.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Create inserts a chunk row. The caller must already have written the
// chunk's vector to the vector store; the row only references it.
func (r *ChunkRepository) Create(ctx context.Context, chunk *models.Chunk) error {
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO chunks (
			id, document_id, chunk_index, content, content_kind,
			collection_name, embedding_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)`

	_, err := r.db.ExecContext(ctx, query,
		chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.Content,
		chunk.ContentKind, chunk.CollectionName, chunk.EmbeddingID,
		chunk.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chunk: %w", err)
	}

	return nil
}

// ListByDocument retrieves a document's chunks in ordinal order
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.Chunk, error) {
	query := `
		SELECT id, document_id, chunk_index, content, content_kind,
		       collection_name, embedding_id, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index`

	var chunks []*models.Chunk
	err := r.db.SelectContext(ctx, &chunks, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	return chunks, nil
}

// Get retrieves one chunk by ID
func (r *ChunkRepository) Get(ctx context.Context, id uuid.UUID) (*models.Chunk, error) {
	var chunk models.Chunk
	query := `
		SELECT id, document_id, chunk_index, content, content_kind,
		       collection_name, embedding_id, created_at
		FROM chunks
		WHERE id = $1`

	err := r.db.GetContext(ctx, &chunk, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}

	return &chunk, nil
}

// GetByIDs retrieves chunks for a set of IDs, in no particular order
func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, document_id, chunk_index, content, content_kind,
		       collection_name, embedding_id, created_at
		FROM chunks
		WHERE id = ANY($1)`

	var chunks []*models.Chunk
	err := r.db.SelectContext(ctx, &chunks, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks by ids: %w", err)
	}

	return chunks, nil
}

// DeleteByDocument removes all of a document's chunks and returns the
// deleted rows so the caller can clean up the matching vectors.
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.Chunk, error) {
	query := `
		DELETE FROM chunks
		WHERE document_id = $1
		RETURNING id, document_id, chunk_index, content, content_kind,
		          collection_name, embedding_id, created_at`

	var chunks []*models.Chunk
	err := r.db.SelectContext(ctx, &chunks, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete chunks: %w", err)
	}

	return chunks, nil
}

// CountByDocument returns how many chunk rows a document owns
func (r *ChunkRepository) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// SearchText runs a full-text query over chunk content scoped to the
// given sources, ranked by relevance.
func (r *ChunkRepository) SearchText(ctx context.Context, query string, sourceIDs []uuid.UUID, limit int) ([]TextMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	sqlQuery := `
		SELECT c.id AS chunk_id,
		       c.content,
		       c.content_kind,
		       d.source_id,
		       ts_rank(to_tsvector('english', c.content), plainto_tsquery('english', $1)) AS rank
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.source_id = ANY($2)
		  AND to_tsvector('english', c.content) @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $3`

	var matches []TextMatch
	err := r.db.SelectContext(ctx, &matches, sqlQuery, query, pq.Array(sourceIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}

	return matches, nil
}
