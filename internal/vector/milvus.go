package vector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/contextforge/contextforge/internal/observability"
)

// Field names shared by every collection
const (
	FieldID          = "id"
	FieldSourceID    = "source_id"
	FieldDocumentID  = "document_id"
	FieldContentKind = "content_kind"
	FieldVector      = "vector"
)

const idMaxLength = "64"

// MilvusStore implements Store against a Milvus deployment.
type MilvusStore struct {
	client *milvusclient.Client
	logger observability.Logger

	// searchable tracks collections whose index is already built and
	// loaded, so repeated EnsureSearchable calls skip the round trips.
	mu         sync.Mutex
	searchable map[string]bool
}

// NewMilvusStore connects to Milvus at the given address
func NewMilvusStore(ctx context.Context, address string, logger observability.Logger) (*MilvusStore, error) {
	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: address,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", address, err)
	}

	return &MilvusStore{
		client:     client,
		logger:     logger.WithPrefix("milvus"),
		searchable: make(map[string]bool),
	}, nil
}

// EnsureCollection implements Store. The collection is created without
// a similarity index; EnsureSearchable builds it after bulk loads so
// inserts never pay incremental index maintenance.
func (s *MilvusStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: name,
		Description:    "Chunk vectors for one source and content kind",
		Fields: []*entity.Field{
			{
				Name:       FieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": idMaxLength,
				},
			},
			{
				Name:     FieldSourceID,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": idMaxLength,
				},
			},
			{
				Name:     FieldDocumentID,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": idMaxLength,
				},
			},
			{
				Name:     FieldContentKind,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     FieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", dimension),
				},
			},
		},
	}

	createOpt := milvusclient.NewCreateCollectionOption(name, schema)
	if err := s.client.CreateCollection(ctx, createOpt); err != nil {
		// Two callers may race on first creation; the loser re-checks
		// instead of failing.
		exists, checkErr := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	s.logger.Info("Created collection", map[string]interface{}{
		"collection": name,
		"dimension":  dimension,
	})
	return nil
}

// EnsureSearchable implements Store
func (s *MilvusStore) EnsureSearchable(ctx context.Context, name string) error {
	s.mu.Lock()
	if s.searchable[name] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	indexes, err := s.client.ListIndexes(ctx, milvusclient.NewListIndexOption(name))
	if err != nil {
		return fmt.Errorf("failed to list indexes for %s: %w", name, err)
	}

	if len(indexes) == 0 {
		idx := index.NewHNSWIndex(entity.COSINE, 16, 200)
		task, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, FieldVector, idx))
		if err != nil {
			if !strings.Contains(err.Error(), "already exist") {
				return fmt.Errorf("failed to create index on %s: %w", name, err)
			}
		} else if err := task.Await(ctx); err != nil {
			return fmt.Errorf("index build on %s did not complete: %w", name, err)
		}
		s.logger.Info("Built similarity index", map[string]interface{}{
			"collection": name,
		})
	}

	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to load collection %s: %w", name, err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("load of collection %s did not complete: %w", name, err)
	}

	s.mu.Lock()
	s.searchable[name] = true
	s.mu.Unlock()
	return nil
}

// HasCollection implements Store
func (s *MilvusStore) HasCollection(ctx context.Context, name string) (bool, error) {
	return s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
}

// Upsert implements Store
func (s *MilvusStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	dim := len(points[0].Vector)
	ids := make([]string, len(points))
	sourceIDs := make([]string, len(points))
	documentIDs := make([]string, len(points))
	kinds := make([]string, len(points))
	vectors := make([][]float32, len(points))

	for i, p := range points {
		ids[i] = p.ID
		sourceIDs[i] = p.SourceID
		documentIDs[i] = p.DocumentID
		kinds[i] = p.ContentKind
		vectors[i] = p.Vector
	}

	opt := milvusclient.NewColumnBasedInsertOption(collection,
		column.NewColumnVarChar(FieldID, ids),
		column.NewColumnVarChar(FieldSourceID, sourceIDs),
		column.NewColumnVarChar(FieldDocumentID, documentIDs),
		column.NewColumnVarChar(FieldContentKind, kinds),
		column.NewColumnFloatVector(FieldVector, dim, vectors),
	)

	if _, err := s.client.Upsert(ctx, opt); err != nil {
		return fmt.Errorf("failed to upsert %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

// Delete implements Store
func (s *MilvusStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	opt := milvusclient.NewDeleteOption(collection).WithStringIDs(FieldID, ids)
	if _, err := s.client.Delete(ctx, opt); err != nil {
		return fmt.Errorf("failed to delete %d points from %s: %w", len(ids), collection, err)
	}
	return nil
}

// Search implements Store
func (s *MilvusStore) Search(ctx context.Context, collection string, vector []float32, limit int, sourceIDs []string) ([]SearchHit, error) {
	opt := milvusclient.NewSearchOption(collection, limit, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(FieldVector).
		WithOutputFields(FieldSourceID, FieldContentKind)

	if len(sourceIDs) > 0 {
		opt = opt.WithFilter(sourceFilterExpr(sourceIDs))
	}

	results, err := s.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("vector search in %s failed: %w", collection, err)
	}

	var hits []SearchHit
	for _, rs := range results {
		sourceCol := rs.GetColumn(FieldSourceID)
		kindCol := rs.GetColumn(FieldContentKind)

		for i := 0; i < rs.ResultCount; i++ {
			id, err := rs.IDs.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read hit id: %w", err)
			}

			hit := SearchHit{
				ID:    id,
				Score: float64(rs.Scores[i]),
			}
			if sourceCol != nil {
				if v, err := sourceCol.GetAsString(i); err == nil {
					hit.SourceID = v
				}
			}
			if kindCol != nil {
				if v, err := kindCol.GetAsString(i); err == nil {
					hit.ContentKind = v
				}
			}
			hits = append(hits, hit)
		}
	}

	return hits, nil
}

// DropCollection implements Store
func (s *MilvusStore) DropCollection(ctx context.Context, name string) error {
	if err := s.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name)); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}

	s.mu.Lock()
	delete(s.searchable, name)
	s.mu.Unlock()

	s.logger.Info("Dropped collection", map[string]interface{}{
		"collection": name,
	})
	return nil
}

// Close implements Store
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// sourceFilterExpr builds a Milvus boolean expression restricting hits
// to the given source IDs.
func sourceFilterExpr(sourceIDs []string) string {
	quoted := make([]string, len(sourceIDs))
	for i, id := range sourceIDs {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return fmt.Sprintf("%s in [%s]", FieldSourceID, strings.Join(quoted, ", "))
}
