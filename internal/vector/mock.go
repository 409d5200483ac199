package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MockStore is a thread-safe in-memory Store for tests. FailUpsert and
// FailDelete inject faults for exercising the pipeline's compensation
// paths.
type MockStore struct {
	mu          sync.Mutex
	collections map[string]*mockCollection

	// FailUpsert, if set, is consulted before each Upsert
	FailUpsert func(collection string, points []Point) error

	// FailDelete, if set, is consulted before each Delete
	FailDelete func(collection string, ids []string) error

	// CreateCalls counts EnsureCollection calls that actually created
	CreateCalls int
}

type mockCollection struct {
	dimension  int
	searchable bool
	points     map[string]Point
}

// NewMockStore creates an empty MockStore
func NewMockStore() *MockStore {
	return &MockStore{
		collections: make(map[string]*mockCollection),
	}
}

// EnsureCollection implements Store
func (m *MockStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[name]; ok {
		return nil
	}
	m.collections[name] = &mockCollection{
		dimension: dimension,
		points:    make(map[string]Point),
	}
	m.CreateCalls++
	return nil
}

// EnsureSearchable implements Store
func (m *MockStore) EnsureSearchable(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	coll.searchable = true
	return nil
}

// HasCollection implements Store
func (m *MockStore) HasCollection(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.collections[name]
	return ok, nil
}

// Upsert implements Store
func (m *MockStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if m.FailUpsert != nil {
		if err := m.FailUpsert(collection, points); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	for _, p := range points {
		coll.points[p.ID] = p
	}
	return nil
}

// Delete implements Store
func (m *MockStore) Delete(ctx context.Context, collection string, ids []string) error {
	if m.FailDelete != nil {
		if err := m.FailDelete(collection, ids); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	for _, id := range ids {
		delete(coll.points, id)
	}
	return nil
}

// Search implements Store using cosine similarity
func (m *MockStore) Search(ctx context.Context, collection string, vector []float32, limit int, sourceIDs []string) ([]SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	allowed := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		allowed[id] = true
	}

	var hits []SearchHit
	for _, p := range coll.points {
		if len(allowed) > 0 && !allowed[p.SourceID] {
			continue
		}
		hits = append(hits, SearchHit{
			ID:          p.ID,
			Score:       cosineSimilarity(vector, p.Vector),
			SourceID:    p.SourceID,
			ContentKind: p.ContentKind,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// DropCollection implements Store
func (m *MockStore) DropCollection(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

// Close implements Store
func (m *MockStore) Close(ctx context.Context) error {
	return nil
}

// PointCount returns the number of stored points in a collection
func (m *MockStore) PointCount(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		return 0
	}
	return len(coll.points)
}

// HasPoint reports whether a point with the given ID exists
func (m *MockStore) HasPoint(collection, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		return false
	}
	_, ok = coll.points[id]
	return ok
}

// CollectionNames returns the names of all existing collections
func (m *MockStore) CollectionNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
