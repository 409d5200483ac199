package embedding

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/contextforge/internal/observability"
)

func testBatcherConfig() BatcherConfig {
	return BatcherConfig{
		SubBatchSize:    100,
		MaxRetries:      3,
		RetryDelay:      time.Millisecond,
		SubBatchTimeout: 5 * time.Second,
		RateLimitRPM:    0,
	}
}

func makeTexts(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = "chunk text"
	}
	return texts
}

func TestBatcher_EmbedBatch_Success(t *testing.T) {
	provider := NewMockProvider(8)
	batcher := NewBatcher(provider, testBatcherConfig(), observability.NewNoopLogger())

	result, err := batcher.EmbedBatch(context.Background(), makeTexts(250))
	require.NoError(t, err)

	assert.False(t, result.Exhausted)
	assert.Nil(t, result.FailedAt)
	assert.Empty(t, result.Rejected)
	require.Len(t, result.Embedded, 250)

	// Vectors come back in input order with their original indexes.
	for i, iv := range result.Embedded {
		assert.Equal(t, i, iv.Index)
		assert.Len(t, iv.Vector, 8)
	}

	// 250 texts at sub-batch size 100 means exactly 3 provider calls.
	assert.Equal(t, 3, provider.Calls())
}

func TestBatcher_EmbedBatch_Empty(t *testing.T) {
	provider := NewMockProvider(8)
	batcher := NewBatcher(provider, testBatcherConfig(), observability.NewNoopLogger())

	result, err := batcher.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Embedded)
	assert.Equal(t, 0, provider.Calls())
}

func TestBatcher_EmbedBatch_QuotaExhaustionHaltsCleanly(t *testing.T) {
	provider := NewMockProvider(8)
	provider.Fail = func(call int) error {
		if call == 1 {
			return &ProviderError{
				Provider:   "mock",
				Code:       ErrCodeQuotaExhausted,
				Message:    "quota exceeded",
				StatusCode: http.StatusPaymentRequired,
			}
		}
		return nil
	}
	batcher := NewBatcher(provider, testBatcherConfig(), observability.NewNoopLogger())

	result, err := batcher.EmbedBatch(context.Background(), makeTexts(250))

	// Quota exhaustion is a structured partial outcome, not an error.
	require.NoError(t, err)
	assert.True(t, result.Exhausted)
	require.NotNil(t, result.FailedAt)
	assert.Equal(t, 100, *result.FailedAt)
	assert.Len(t, result.Embedded, 100)

	// No further sub-batches after the cutoff, and no retries of it.
	assert.Equal(t, 2, provider.Calls())
}

func TestBatcher_EmbedBatch_RateLimitRetried(t *testing.T) {
	provider := NewMockProvider(8)
	provider.Fail = func(call int) error {
		if call == 0 {
			return &ProviderError{
				Provider:   "mock",
				Code:       ErrCodeRateLimited,
				Message:    "slow down",
				StatusCode: http.StatusTooManyRequests,
			}
		}
		return nil
	}
	batcher := NewBatcher(provider, testBatcherConfig(), observability.NewNoopLogger())

	result, err := batcher.EmbedBatch(context.Background(), makeTexts(10))
	require.NoError(t, err)
	assert.False(t, result.Exhausted)
	assert.Len(t, result.Embedded, 10)

	// First attempt rate-limited, second succeeded.
	assert.Equal(t, 2, provider.Calls())
}

func TestBatcher_EmbedBatch_NonRetryableErrorFailsFast(t *testing.T) {
	provider := NewMockProvider(8)
	provider.Fail = func(call int) error {
		return &ProviderError{
			Provider:   "mock",
			Code:       "invalid_request_error",
			Message:    "bad input",
			StatusCode: http.StatusBadRequest,
		}
	}
	batcher := NewBatcher(provider, testBatcherConfig(), observability.NewNoopLogger())

	result, err := batcher.EmbedBatch(context.Background(), makeTexts(10))
	require.Error(t, err)
	require.NotNil(t, result.FailedAt)
	assert.Equal(t, 0, *result.FailedAt)
	assert.Empty(t, result.Embedded)
	assert.Equal(t, 1, provider.Calls())
}

func TestBatcher_EmbedBatch_ZeroVectorRejectedSiblingsKept(t *testing.T) {
	provider := NewMockProvider(8)
	provider.ZeroAt = map[int]bool{3: true}
	batcher := NewBatcher(provider, testBatcherConfig(), observability.NewNoopLogger())

	result, err := batcher.EmbedBatch(context.Background(), makeTexts(10))
	require.NoError(t, err)

	assert.Equal(t, []int{3}, result.Rejected)
	require.Len(t, result.Embedded, 9)
	for _, iv := range result.Embedded {
		assert.NotEqual(t, 3, iv.Index)
	}
}

func TestBatcher_EmbedQuery(t *testing.T) {
	provider := NewMockProvider(8)
	batcher := NewBatcher(provider, testBatcherConfig(), observability.NewNoopLogger())

	vec, err := batcher.EmbedQuery(context.Background(), "what is hybrid search")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestBatcher_EmbedQuery_ZeroVector(t *testing.T) {
	provider := NewMockProvider(8)
	provider.ZeroAt = map[int]bool{0: true}
	batcher := NewBatcher(provider, testBatcherConfig(), observability.NewNoopLogger())

	_, err := batcher.EmbedQuery(context.Background(), "query")
	require.Error(t, err)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeInvalidVector, pe.Code)
}

func TestProviderError_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       *ProviderError
		rate      bool
		quota     bool
		retryable bool
	}{
		{
			name:      "rate limited by status",
			err:       &ProviderError{StatusCode: http.StatusTooManyRequests},
			rate:      true,
			retryable: true,
		},
		{
			name:      "rate limited by code",
			err:       &ProviderError{Code: ErrCodeRateLimited},
			rate:      true,
			retryable: true,
		},
		{
			name:  "quota by status",
			err:   &ProviderError{StatusCode: http.StatusPaymentRequired},
			quota: true,
		},
		{
			name:  "quota by code",
			err:   &ProviderError{Code: ErrCodeQuotaExhausted},
			quota: true,
		},
		{
			name:      "server error retryable",
			err:       &ProviderError{StatusCode: http.StatusServiceUnavailable},
			retryable: true,
		},
		{
			name: "bad request not retryable",
			err:  &ProviderError{StatusCode: http.StatusBadRequest},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.rate, tt.err.RateLimited())
			assert.Equal(t, tt.quota, tt.err.QuotaExhausted())
			assert.Equal(t, tt.retryable, tt.err.Retryable())
		})
	}
}
