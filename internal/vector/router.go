package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/contextforge/contextforge/internal/models"
	"github.com/contextforge/contextforge/internal/observability"
)

const maxCollectionNameLength = 64

// Registry persists the source-to-collection-name mapping. Implemented
// by the source repository.
type Registry interface {
	// CollectionNameTaken reports whether any source other than
	// excludeSource already claims the name
	CollectionNameTaken(ctx context.Context, name string, excludeSource uuid.UUID) (bool, error)

	// SetCollectionName records the name for (sourceID, kind)
	SetCollectionName(ctx context.Context, sourceID uuid.UUID, kind models.ContentKind, name string) error
}

// Router maps a (source, content kind) pair to a concrete vector
// collection, deriving names from source titles and creating
// collections on demand. Resolution is memoized and deduplicated so
// concurrent ingestions of one source agree on a single name.
type Router struct {
	store    Store
	registry Registry
	logger   observability.Logger

	group   singleflight.Group
	names   *lru.Cache[string, string]
	ensured *lru.Cache[string, struct{}]
}

// NewRouter creates a Router
func NewRouter(store Store, registry Registry, logger observability.Logger) (*Router, error) {
	names, err := lru.New[string, string](4096)
	if err != nil {
		return nil, err
	}
	ensured, err := lru.New[string, struct{}](4096)
	if err != nil {
		return nil, err
	}

	return &Router{
		store:    store,
		registry: registry,
		logger:   logger.WithPrefix("collection-router"),
		names:    names,
		ensured:  ensured,
	}, nil
}

// Resolve returns the collection name for the source and content kind,
// deriving and persisting one on first use. The derived name is the
// sanitized source title plus the kind, disambiguated with a numeric
// suffix when two sources sanitize to the same name.
func (r *Router) Resolve(ctx context.Context, source *models.Source, kind models.ContentKind) (string, error) {
	cacheKey := source.ID.String() + "|" + string(kind)
	if name, ok := r.names.Get(cacheKey); ok {
		return name, nil
	}

	if name, ok := source.CollectionNames[kind]; ok && name != "" {
		r.names.Add(cacheKey, name)
		return name, nil
	}

	v, err, _ := r.group.Do("resolve|"+cacheKey, func() (interface{}, error) {
		if name, ok := r.names.Get(cacheKey); ok {
			return name, nil
		}

		name, err := r.deriveName(ctx, source, kind)
		if err != nil {
			return "", err
		}
		if err := r.registry.SetCollectionName(ctx, source.ID, kind, name); err != nil {
			return "", fmt.Errorf("failed to persist collection name %s: %w", name, err)
		}

		r.names.Add(cacheKey, name)
		r.logger.Info("Assigned collection", map[string]interface{}{
			"source_id":    source.ID.String(),
			"content_kind": string(kind),
			"collection":   name,
		})
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// EnsureExists idempotently creates the collection. Concurrent callers
// for the same name collapse into one store call, and the store itself
// performs a conditional create, so two racing first-ingestions never
// produce two collections.
func (r *Router) EnsureExists(ctx context.Context, name string, dimension int) error {
	if _, ok := r.ensured.Get(name); ok {
		return nil
	}

	_, err, _ := r.group.Do("ensure|"+name, func() (interface{}, error) {
		if _, ok := r.ensured.Get(name); ok {
			return nil, nil
		}
		if err := r.store.EnsureCollection(ctx, name, dimension); err != nil {
			return nil, err
		}
		r.ensured.Add(name, struct{}{})
		return nil, nil
	})
	return err
}

// EnsureSearchable builds the collection's similarity index and loads
// it for querying. Called after bulk loads and before searches.
func (r *Router) EnsureSearchable(ctx context.Context, name string) error {
	return r.store.EnsureSearchable(ctx, name)
}

// Drop removes every collection in the source's mapping and forgets
// the cached assignments. Used by source deletion.
func (r *Router) Drop(ctx context.Context, source *models.Source) error {
	for kind, name := range source.CollectionNames {
		if err := r.store.DropCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to drop collection %s: %w", name, err)
		}
		r.names.Remove(source.ID.String() + "|" + string(kind))
		r.ensured.Remove(name)
	}
	return nil
}

// deriveName builds a store-legal collection name and resolves title
// collisions against other sources with a numeric suffix.
func (r *Router) deriveName(ctx context.Context, source *models.Source, kind models.ContentKind) (string, error) {
	base := sanitizeName(source.Title)
	if base == "" {
		base = "src_" + strings.ReplaceAll(source.ID.String()[:8], "-", "")
	}
	base = base + "_" + string(kind)
	if len(base) > maxCollectionNameLength-4 {
		base = base[:maxCollectionNameLength-4]
		base = strings.TrimRight(base, "_")
	}

	candidate := base
	for n := 2; ; n++ {
		taken, err := r.registry.CollectionNameTaken(ctx, candidate, source.ID)
		if err != nil {
			return "", fmt.Errorf("failed to check collection name %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, n)
	}
}

// sanitizeName lowercases the title and squeezes everything outside
// [a-z0-9] into single underscores.
func sanitizeName(title string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, c := range strings.ToLower(title) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	name := strings.Trim(b.String(), "_")
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "c_" + name
	}
	return name
}
