package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/contextforge/internal/observability"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return NewRedisCache(client, DefaultConfig(), observability.NewNoopLogger())
}

func TestRedisCache_SetGet(t *testing.T) {
	rc := newTestCache(t)
	ctx := context.Background()

	err := rc.Set(ctx, "greeting", []byte("hello"), time.Minute)
	require.NoError(t, err)

	val, err := rc.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), val)
}

func TestRedisCache_Miss(t *testing.T) {
	rc := newTestCache(t)

	_, err := rc.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)

	stats := rc.Stats()
	assert.Equal(t, int64(1), stats["misses"])
}

func TestRedisCache_Disabled(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	cfg := DefaultConfig()
	cfg.Enabled = false
	rc := NewRedisCache(client, cfg, observability.NewNoopLogger())
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "k", []byte("v"), 0))
	_, err := rc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_JSONRoundTrip(t *testing.T) {
	rc := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, rc.SetJSON(ctx, "p", payload{Name: "docs", Count: 3}, 0))

	var got payload
	require.NoError(t, rc.GetJSON(ctx, "p", &got))
	assert.Equal(t, "docs", got.Name)
	assert.Equal(t, 3, got.Count)
}

func TestRedisCache_InvalidJSON(t *testing.T) {
	rc := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "bad", []byte("{not json"), 0))

	var dest map[string]string
	err := rc.GetJSON(ctx, "bad", &dest)
	assert.ErrorIs(t, err, ErrCacheInvalid)
}

func TestEmbeddingCache_RoundTrip(t *testing.T) {
	rc := newTestCache(t)
	ec := NewEmbeddingCache(rc, "text-embedding-3-small", observability.NewNoopLogger())
	ctx := context.Background()

	vec := []float32{0.1, 0.2, 0.3}
	require.NoError(t, ec.SetEmbedding(ctx, "how do refunds work", vec))

	got, err := ec.GetEmbedding(ctx, "how do refunds work")
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = ec.GetEmbedding(ctx, "different question")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestEmbeddingCache_ModelScoped(t *testing.T) {
	rc := newTestCache(t)
	small := NewEmbeddingCache(rc, "model-a", observability.NewNoopLogger())
	large := NewEmbeddingCache(rc, "model-b", observability.NewNoopLogger())
	ctx := context.Background()

	require.NoError(t, small.SetEmbedding(ctx, "query", []float32{1}))

	_, err := large.GetEmbedding(ctx, "query")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
