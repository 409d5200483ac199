package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/contextforge/contextforge/internal/observability"
	"github.com/contextforge/contextforge/internal/resilience"
)

// IndexedVector pairs an embedding with the position of its input text.
type IndexedVector struct {
	Index  int
	Vector []float32
}

// BatchResult is the structured outcome of one EmbedBatch call.
// Exhausted means the provider hit a hard quota cutoff mid-batch;
// Embedded then carries only what succeeded before the cutoff and
// FailedAt points at the first text that was not embedded. Rejected
// lists texts whose vectors failed validation; their siblings are
// unaffected.
type BatchResult struct {
	Embedded  []IndexedVector
	Rejected  []int
	FailedAt  *int
	Exhausted bool
}

// BatcherConfig configures sub-batch sizing and retry behavior.
type BatcherConfig struct {
	// SubBatchSize is the number of texts per provider call
	SubBatchSize int

	// MaxRetries is retry attempts per sub-batch on transient errors
	MaxRetries int

	// RetryDelay is the initial backoff delay
	RetryDelay time.Duration

	// SubBatchTimeout bounds each sub-batch including its retries
	SubBatchTimeout time.Duration

	// RateLimitRPM caps provider requests per minute; 0 disables
	RateLimitRPM int
}

// DefaultBatcherConfig returns sensible defaults
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		SubBatchSize:    100,
		MaxRetries:      3,
		RetryDelay:      time.Second,
		SubBatchTimeout: 30 * time.Second,
		RateLimitRPM:    300,
	}
}

// Batcher splits embedding work into provider-sized sub-batches and
// absorbs transient provider failures. Sub-batches are issued
// sequentially so the provider's rate limits see a steady stream, not
// a burst.
type Batcher struct {
	provider Provider
	config   BatcherConfig
	limiter  *resilience.RateLimiter
	breaker  *resilience.CircuitBreaker
	logger   observability.Logger
}

// NewBatcher creates a new Batcher around the given provider
func NewBatcher(provider Provider, config BatcherConfig, logger observability.Logger) *Batcher {
	if config.SubBatchSize <= 0 {
		config.SubBatchSize = DefaultBatcherConfig().SubBatchSize
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultBatcherConfig().RetryDelay
	}
	if config.SubBatchTimeout <= 0 {
		config.SubBatchTimeout = DefaultBatcherConfig().SubBatchTimeout
	}

	var limiter *resilience.RateLimiter
	if config.RateLimitRPM > 0 {
		limiter = resilience.NewRateLimiter(resilience.RateLimiterConfig{
			RequestsPerSecond: float64(config.RateLimitRPM) / 60.0,
			BurstSize:         1,
		}, logger)
	}

	return &Batcher{
		provider: provider,
		config:   config,
		limiter:  limiter,
		breaker:  resilience.NewCircuitBreaker("embedding-provider", resilience.DefaultCircuitBreakerConfig(), logger),
		logger:   logger.WithPrefix("embedding-batcher"),
	}
}

// Dimensions returns the provider's fixed output dimensionality
func (b *Batcher) Dimensions() int {
	return b.provider.Dimensions()
}

// EmbedBatch embeds texts in sequential sub-batches. Quota exhaustion
// is an expected terminal condition and comes back as a structured
// partial result, not an error; everything else that stops the batch
// returns both the partial result and the cause.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error) {
	result := &BatchResult{}
	if len(texts) == 0 {
		return result, nil
	}

	for offset := 0; offset < len(texts); offset += b.config.SubBatchSize {
		end := offset + b.config.SubBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := b.embedSubBatch(ctx, texts[offset:end])
		if err != nil {
			failedAt := offset
			result.FailedAt = &failedAt

			if IsQuotaExhausted(err) {
				b.logger.Error("Embedding quota exhausted, halting batch", map[string]interface{}{
					"embedded":  len(result.Embedded),
					"remaining": len(texts) - offset,
				})
				result.Exhausted = true
				return result, nil
			}

			return result, fmt.Errorf("sub-batch at offset %d failed: %w", offset, err)
		}

		for i, vec := range vectors {
			idx := offset + i
			if err := b.validateVector(vec); err != nil {
				b.logger.Error("Provider returned invalid vector", map[string]interface{}{
					"index": idx,
					"error": err.Error(),
				})
				result.Rejected = append(result.Rejected, idx)
				continue
			}
			result.Embedded = append(result.Embedded, IndexedVector{Index: idx, Vector: vec})
		}
	}

	return result, nil
}

// EmbedQuery embeds a single query text. Unlike EmbedBatch there is no
// partial outcome: the caller gets a vector or an error.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := b.embedSubBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, &ProviderError{
			Provider: b.provider.Name(),
			Code:     ErrCodeInvalidVector,
			Message:  fmt.Sprintf("expected 1 query vector, got %d", len(vectors)),
		}
	}
	if err := b.validateVector(vectors[0]); err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedSubBatch issues one provider call with its own timeout,
// retrying rate-limit and transient failures with jittered exponential
// backoff. Quota exhaustion and circuit-open short-circuit the retry
// loop.
func (b *Batcher) embedSubBatch(ctx context.Context, texts []string) ([][]float32, error) {
	subCtx, cancel := context.WithTimeout(ctx, b.config.SubBatchTimeout)
	defer cancel()

	var vectors [][]float32
	attempt := 0

	operation := func() error {
		attempt++
		if b.limiter != nil {
			if err := b.limiter.Wait(subCtx); err != nil {
				return backoff.Permanent(err)
			}
		}

		err := b.breaker.Execute(func() error {
			v, embedErr := b.provider.EmbedBatch(subCtx, texts)
			if embedErr != nil {
				return embedErr
			}
			vectors = v
			return nil
		})
		if err == nil {
			return nil
		}

		if errors.Is(err, resilience.ErrCircuitOpen) {
			return backoff.Permanent(err)
		}

		var pe *ProviderError
		if errors.As(err, &pe) {
			if pe.QuotaExhausted() {
				return backoff.Permanent(err)
			}
			if pe.Retryable() {
				b.logger.Warn("Retrying embedding sub-batch", map[string]interface{}{
					"attempt":      attempt,
					"rate_limited": pe.RateLimited(),
					"error":        pe.Message,
				})
				return err
			}
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.config.RetryDelay
	bo.RandomizationFactor = 0.5

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(b.config.MaxRetries)), subCtx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	if len(vectors) != len(texts) {
		return nil, &ProviderError{
			Provider: b.provider.Name(),
			Code:     ErrCodeInvalidVector,
			Message:  fmt.Sprintf("expected %d vectors, got %d", len(texts), len(vectors)),
		}
	}

	return vectors, nil
}

// validateVector rejects wrong-dimension and all-zero vectors before
// they can reach storage.
func (b *Batcher) validateVector(vec []float32) error {
	want := b.provider.Dimensions()
	if len(vec) != want {
		return &ProviderError{
			Provider: b.provider.Name(),
			Code:     ErrCodeInvalidVector,
			Message:  fmt.Sprintf("vector has %d dimensions, want %d", len(vec), want),
		}
	}
	for _, v := range vec {
		if v != 0 {
			return nil
		}
	}
	return &ProviderError{
		Provider: b.provider.Name(),
		Code:     ErrCodeInvalidVector,
		Message:  "vector is all-zero",
	}
}
