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

// SourceRepository handles source data access
type SourceRepository struct {
	db *sqlx.DB
}

// NewSourceRepository creates a new source repository
func NewSourceRepository(db *sqlx.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// Create inserts a new source
func (r *SourceRepository) Create(ctx context.Context, source *models.Source) error {
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}
	if source.Status == "" {
		source.Status = models.SourceStatusPending
	}
	if source.CollectionNames == nil {
		source.CollectionNames = models.CollectionNames{}
	}
	now := time.Now()
	if source.CreatedAt.IsZero() {
		source.CreatedAt = now
	}
	source.UpdatedAt = now

	query := `
		INSERT INTO sources (
			id, title, kind, status, collection_names, enabled_kinds,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)`

	_, err := r.db.ExecContext(ctx, query,
		source.ID, source.Title, source.Kind, source.Status,
		source.CollectionNames, source.EnabledKinds,
		source.CreatedAt, source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	return nil
}

// Get retrieves a source by ID
func (r *SourceRepository) Get(ctx context.Context, id uuid.UUID) (*models.Source, error) {
	var source models.Source
	query := `
		SELECT id, title, kind, status, collection_names, enabled_kinds,
		       created_at, updated_at
		FROM sources
		WHERE id = $1`

	err := r.db.GetContext(ctx, &source, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}

	return &source, nil
}

// List retrieves all sources, newest first
func (r *SourceRepository) List(ctx context.Context) ([]*models.Source, error) {
	query := `
		SELECT id, title, kind, status, collection_names, enabled_kinds,
		       created_at, updated_at
		FROM sources
		ORDER BY created_at DESC`

	var sources []*models.Source
	err := r.db.SelectContext(ctx, &sources, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	return sources, nil
}

// ListIDs returns the IDs of every source. Used to scope searches that
// carry no explicit domain filter.
func (r *SourceRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM sources ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list source ids: %w", err)
	}
	return ids, nil
}

// UpdateStatus transitions a source's lifecycle status
func (r *SourceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE sources
		SET status = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update source status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}

	return nil
}

// SetCollectionName records a collection assignment in the source's
// collection_names map
func (r *SourceRepository) SetCollectionName(ctx context.Context, sourceID uuid.UUID, kind models.ContentKind, name string) error {
	query := `
		UPDATE sources
		SET collection_names = jsonb_set(collection_names, ARRAY[$1], to_jsonb($2::text)),
		    updated_at = $3
		WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, string(kind), name, time.Now(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to set collection name: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("source %s: %w", sourceID, ErrNotFound)
	}

	return nil
}

// CollectionNameTaken reports whether any source other than
// excludeSource already claims the collection name
func (r *SourceRepository) CollectionNameTaken(ctx context.Context, name string, excludeSource uuid.UUID) (bool, error) {
	var taken bool
	query := `
		SELECT EXISTS(
			SELECT 1
			FROM sources s, jsonb_each_text(s.collection_names) kv
			WHERE kv.value = $1 AND s.id <> $2
		)`

	err := r.db.GetContext(ctx, &taken, query, name, excludeSource)
	if err != nil {
		return false, fmt.Errorf("failed to check collection name: %w", err)
	}

	return taken, nil
}

// Delete removes a source. Documents and chunks cascade at the
// database level; vector collections are the caller's responsibility.
func (r *SourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}

	return nil
}
