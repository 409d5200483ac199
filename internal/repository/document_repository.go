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

// DocumentRepository handles document data access
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	query := `
		INSERT INTO documents (
			id, source_id, title, doc_kind, url, content_hash, chunk_count,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.SourceID, doc.Title, doc.DocKind, doc.URL,
		doc.ContentHash, doc.ChunkCount, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

// Get retrieves a document by ID
func (r *DocumentRepository) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	query := `
		SELECT id, source_id, title, doc_kind, url, content_hash, chunk_count,
		       created_at, updated_at
		FROM documents
		WHERE id = $1`

	err := r.db.GetContext(ctx, &doc, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return &doc, nil
}

// GetBySourceAndHash finds a source's document by content hash.
// Returns nil, nil when no such document exists; re-ingestion uses
// this to decide between create and update-in-place.
func (r *DocumentRepository) GetBySourceAndHash(ctx context.Context, sourceID uuid.UUID, hash string) (*models.Document, error) {
	var doc models.Document
	query := `
		SELECT id, source_id, title, doc_kind, url, content_hash, chunk_count,
		       created_at, updated_at
		FROM documents
		WHERE source_id = $1 AND content_hash = $2`

	err := r.db.GetContext(ctx, &doc, query, sourceID, hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document by hash: %w", err)
	}

	return &doc, nil
}

// ListBySource retrieves all documents owned by a source
func (r *DocumentRepository) ListBySource(ctx context.Context, sourceID uuid.UUID) ([]*models.Document, error) {
	query := `
		SELECT id, source_id, title, doc_kind, url, content_hash, chunk_count,
		       created_at, updated_at
		FROM documents
		WHERE source_id = $1
		ORDER BY created_at DESC`

	var docs []*models.Document
	err := r.db.SelectContext(ctx, &docs, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	return docs, nil
}

// SetChunkCount records how many chunks were actually stored for the
// document
func (r *DocumentRepository) SetChunkCount(ctx context.Context, id uuid.UUID, count int) error {
	query := `
		UPDATE documents
		SET chunk_count = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, count, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set chunk count: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}

	return nil
}

// Delete removes a document; chunks cascade at the database level
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}

	return nil
}
