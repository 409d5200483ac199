// Package embedding turns text into vectors through an external
// provider, with batching, retry and quota discipline handled by the
// Batcher so callers never see transient provider noise.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Provider error codes. Rate limiting is transient and retryable;
// quota exhaustion is an account-level cutoff and never retried.
const (
	ErrCodeRateLimited    = "rate_limit_exceeded"
	ErrCodeQuotaExhausted = "insufficient_quota"
	ErrCodeInvalidVector  = "invalid_vector"
	ErrCodeRequestFailed  = "request_failed"
)

// ProviderError is a structured error from an embedding provider.
type ProviderError struct {
	Provider   string
	Code       string
	Message    string
	StatusCode int
	RetryAfter *time.Duration
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error (%s): %s", e.Provider, e.Code, e.Message)
}

// Retryable reports whether the error is worth retrying.
func (e *ProviderError) Retryable() bool {
	if e.QuotaExhausted() {
		return false
	}
	if e.RateLimited() {
		return true
	}
	switch e.StatusCode {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return e.Code == ErrCodeRequestFailed
}

// RateLimited reports whether the provider asked us to slow down.
func (e *ProviderError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == ErrCodeRateLimited
}

// QuotaExhausted reports a hard account-level cutoff.
func (e *ProviderError) QuotaExhausted() bool {
	return e.StatusCode == http.StatusPaymentRequired || e.Code == ErrCodeQuotaExhausted
}

// IsQuotaExhausted reports whether err wraps a quota-exhaustion
// provider error.
func IsQuotaExhausted(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.QuotaExhausted()
}

// IsRateLimited reports whether err wraps a rate-limit provider error.
func IsRateLimited(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.RateLimited()
}

// Provider generates embeddings for batches of texts. Implementations
// must return exactly one vector per input text, in input order.
type Provider interface {
	// Name identifies the provider for logging and errors
	Name() string

	// Dimensions returns the fixed output dimensionality
	Dimensions() int

	// EmbedBatch embeds up to one provider-sized batch of texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
