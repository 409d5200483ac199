package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*OpenAIProvider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewOpenAIProvider(OpenAIConfig{
		Endpoint:   server.URL,
		APIKey:     "test-key",
		Model:      "text-embedding-3-small",
		Dimensions: 4,
	})
	require.NoError(t, err)
	return provider, server
}

func TestOpenAIProvider_EmbedBatch(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"alpha", "beta"}, req.Input)

		// Return data out of order; the index field decides placement.
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 1, "embedding": []float32{0, 1, 0, 0}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0, 0, 0}},
			},
		})
	})

	vectors, err := provider.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0, 0, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1, 0, 0}, vectors[1])
}

func TestOpenAIProvider_RateLimitError(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"message": "Rate limit reached",
				"type":    "requests",
				"code":    "rate_limit_exceeded",
			},
		})
	})

	_, err := provider.EmbedBatch(context.Background(), []string{"alpha"})
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.RateLimited())
	assert.False(t, pe.QuotaExhausted())
	require.NotNil(t, pe.RetryAfter)
	assert.Equal(t, float64(2), pe.RetryAfter.Seconds())
}

func TestOpenAIProvider_QuotaExhaustedError(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"message": "You exceeded your current quota",
				"type":    "insufficient_quota",
				"code":    "insufficient_quota",
			},
		})
	})

	_, err := provider.EmbedBatch(context.Background(), []string{"alpha"})
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.QuotaExhausted())
}

func TestOpenAIProvider_CountMismatch(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0, 0, 0}},
			},
		})
	})

	_, err := provider.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeInvalidVector, pe.Code)
}

func TestNewOpenAIProvider_Validation(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Model: "m", Dimensions: 4})
	assert.Error(t, err)

	_, err = NewOpenAIProvider(OpenAIConfig{APIKey: "k", Dimensions: 4})
	assert.Error(t, err)

	_, err = NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "m"})
	assert.Error(t, err)
}
