// Package vector abstracts the vector store: collection lifecycle,
// point upserts keyed by chunk ID, and similarity search. One Store
// client is shared across all requests for the life of the process.
package vector

import (
	"context"
	"errors"
)

// ErrCollectionNotFound is returned when an operation targets a
// collection that does not exist.
var ErrCollectionNotFound = errors.New("collection not found")

// Point is one stored vector plus the payload needed for filtered
// search. ID is the owning chunk's identifier.
type Point struct {
	ID          string
	SourceID    string
	DocumentID  string
	ContentKind string
	Vector      []float32
}

// SearchHit is one similarity match. Score is the raw similarity as
// reported by the store, higher is better.
type SearchHit struct {
	ID          string
	Score       float64
	SourceID    string
	ContentKind string
}

// Store is the vector store client surface used by the pipeline and
// the search engine.
type Store interface {
	// EnsureCollection creates the collection if absent, without a
	// similarity index so bulk loads stay cheap. Safe under concurrent
	// first-creation.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// EnsureSearchable builds the similarity index and loads the
	// collection for querying. Idempotent; called after bulk loads and
	// before searches, never per insert.
	EnsureSearchable(ctx context.Context, name string) error

	// HasCollection reports whether the collection exists
	HasCollection(ctx context.Context, name string) (bool, error)

	// Upsert writes points into the collection, replacing any existing
	// points with the same IDs
	Upsert(ctx context.Context, collection string, points []Point) error

	// Delete removes points by ID. Missing IDs are not an error.
	Delete(ctx context.Context, collection string, ids []string) error

	// Search returns the top-limit most similar points. A non-empty
	// sourceIDs list restricts hits to those sources.
	Search(ctx context.Context, collection string, vector []float32, limit int, sourceIDs []string) ([]SearchHit, error)

	// DropCollection removes the collection and all its points
	DropCollection(ctx context.Context, name string) error

	// Close releases the underlying client
	Close(ctx context.Context) error
}
