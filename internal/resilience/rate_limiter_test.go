package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/contextforge/contextforge/internal/observability"
)

func TestRateLimiter_Allow(t *testing.T) {
	logger := observability.NewNoopLogger()
	config := RateLimiterConfig{
		RequestsPerSecond: 10,
		BurstSize:         5,
	}
	rl := NewRateLimiter(config, logger)

	// Should allow requests up to burst size immediately
	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow())
	}
}

func TestRateLimiter_Wait(t *testing.T) {
	logger := observability.NewNoopLogger()
	config := RateLimiterConfig{
		RequestsPerSecond: 100,
		BurstSize:         10,
	}
	rl := NewRateLimiter(config, logger)

	err := rl.Wait(context.Background())
	assert.NoError(t, err)
}

func TestRateLimiter_WaitWithTimeout(t *testing.T) {
	logger := observability.NewNoopLogger()
	config := RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
	}
	rl := NewRateLimiter(config, logger)

	// Consume the burst
	assert.True(t, rl.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	assert.Error(t, err)
}

func TestRateLimiter_PerKeyIsolation(t *testing.T) {
	logger := observability.NewNoopLogger()
	config := RateLimiterConfig{
		RequestsPerSecond: 1000,
		BurstSize:         1000,
	}
	rl := NewRateLimiter(config, logger)
	rl.SetKeyLimits(1, 1)

	// Exhausting one key's limiter must not affect another key.
	assert.True(t, rl.AllowForKey("example.com"))
	assert.False(t, rl.AllowForKey("example.com"))
	assert.True(t, rl.AllowForKey("other.org"))
}

func TestRateLimiter_WaitForKey(t *testing.T) {
	logger := observability.NewNoopLogger()
	config := RateLimiterConfig{
		RequestsPerSecond: 100,
		BurstSize:         10,
	}
	rl := NewRateLimiter(config, logger)

	err := rl.WaitForKey(context.Background(), "example.com")
	assert.NoError(t, err)
}
