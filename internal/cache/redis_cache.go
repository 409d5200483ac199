// Package cache provides Redis-backed caching for query embeddings and
// other hot lookups. Caching is best-effort: a Redis outage degrades to
// recomputing, never to failing the request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/contextforge/contextforge/internal/observability"
)

var (
	// ErrCacheMiss is returned when a cache key is not found
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheInvalid is returned when cached data cannot be decoded
	ErrCacheInvalid = errors.New("invalid cached data")
)

// Config controls cache behavior.
type Config struct {
	// Enabled gates all cache operations; when false every Get is a
	// miss and every Set is a no-op.
	Enabled bool

	// DefaultTTL applies when a Set passes ttl == 0
	DefaultTTL time.Duration

	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		DefaultTTL: 24 * time.Hour,
		KeyPrefix:  "cf:",
	}
}

// RedisCache implements caching using Redis
type RedisCache struct {
	client *redis.Client
	config Config
	logger observability.Logger

	hits   int64
	misses int64
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(client *redis.Client, config Config, logger observability.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		config: config,
		logger: logger.WithPrefix("redis-cache"),
	}
}

// Get retrieves a value from the cache
func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if !rc.config.Enabled {
		return nil, ErrCacheMiss
	}

	val, err := rc.client.Get(ctx, rc.makeKey(key)).Bytes()
	if err == redis.Nil {
		atomic.AddInt64(&rc.misses, 1)
		return nil, ErrCacheMiss
	}
	if err != nil {
		rc.logger.Error("Cache get error", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("cache get error: %w", err)
	}

	atomic.AddInt64(&rc.hits, 1)
	return val, nil
}

// Set stores a value in the cache
func (rc *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !rc.config.Enabled {
		return nil
	}

	if ttl == 0 {
		ttl = rc.config.DefaultTTL
	}

	if err := rc.client.Set(ctx, rc.makeKey(key), value, ttl).Err(); err != nil {
		rc.logger.Error("Cache set error", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return fmt.Errorf("cache set error: %w", err)
	}

	return nil
}

// Delete removes a value from the cache
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if !rc.config.Enabled {
		return nil
	}

	if err := rc.client.Del(ctx, rc.makeKey(key)).Err(); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}

	return nil
}

// Exists checks if a key exists in the cache
func (rc *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	if !rc.config.Enabled {
		return false, nil
	}

	count, err := rc.client.Exists(ctx, rc.makeKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists error: %w", err)
	}

	return count > 0, nil
}

// GetJSON retrieves and unmarshals a JSON value from the cache
func (rc *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := rc.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheInvalid, err)
	}

	return nil
}

// SetJSON marshals and stores a JSON value in the cache
func (rc *RedisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	return rc.Set(ctx, key, data, ttl)
}

// Stats returns hit/miss counters since startup
func (rc *RedisCache) Stats() map[string]interface{} {
	hits := atomic.LoadInt64(&rc.hits)
	misses := atomic.LoadInt64(&rc.misses)
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return map[string]interface{}{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": hitRate,
	}
}

func (rc *RedisCache) makeKey(key string) string {
	return rc.config.KeyPrefix + key
}

// EmbeddingCache caches query embeddings keyed by model and query text,
// so repeated searches skip the provider round trip.
type EmbeddingCache struct {
	cache  *RedisCache
	model  string
	logger observability.Logger
}

// NewEmbeddingCache creates an embedding cache scoped to one model.
// Different models produce incompatible vectors, so the model name is
// part of every key.
func NewEmbeddingCache(cache *RedisCache, model string, logger observability.Logger) *EmbeddingCache {
	return &EmbeddingCache{
		cache:  cache,
		model:  model,
		logger: logger.WithPrefix("emb-cache"),
	}
}

// GetEmbedding retrieves a cached embedding for the query text
func (ec *EmbeddingCache) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32
	if err := ec.cache.GetJSON(ctx, ec.key(text), &embedding); err != nil {
		return nil, err
	}

	ec.logger.Debug("Embedding cache hit", map[string]interface{}{
		"model": ec.model,
	})

	return embedding, nil
}

// SetEmbedding stores a query embedding
func (ec *EmbeddingCache) SetEmbedding(ctx context.Context, text string, embedding []float32) error {
	return ec.cache.SetJSON(ctx, ec.key(text), embedding, 7*24*time.Hour)
}

func (ec *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(ec.model + ":" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}
