package resilience

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/contextforge/contextforge/internal/observability"
)

// RateLimiterConfig configures rate limiter behavior
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained request rate
	RequestsPerSecond float64

	// BurstSize is the maximum burst size
	BurstSize int
}

// DefaultRateLimiterConfig returns sensible defaults
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 100,
		BurstSize:         50,
	}
}

// RateLimiter enforces a global request rate plus independent per-key
// rates. The crawler keys by target host so one slow site never starves
// another; the embedding batcher uses only the global limit.
type RateLimiter struct {
	config      RateLimiterConfig
	global      *rate.Limiter
	keyLimiters map[string]*rate.Limiter
	keyRate     float64
	keyBurst    int
	logger      observability.Logger

	mu sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimiterConfig, logger observability.Logger) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultRateLimiterConfig().RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}

	return &RateLimiter{
		config:      config,
		global:      rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstSize),
		keyLimiters: make(map[string]*rate.Limiter),
		keyRate:     config.RequestsPerSecond,
		keyBurst:    config.BurstSize,
		logger:      logger.WithPrefix("rate-limiter"),
	}
}

// SetKeyLimits overrides the rate applied to per-key limiters created
// after the call. Existing limiters keep their rate.
func (rl *RateLimiter) SetKeyLimits(requestsPerSecond float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.keyRate = requestsPerSecond
	if burst > 0 {
		rl.keyBurst = burst
	}
}

// Allow checks if a request is allowed under the global limit
func (rl *RateLimiter) Allow() bool {
	return rl.global.Allow()
}

// Wait blocks until a request is allowed under the global limit
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.global.Wait(ctx)
}

// WaitForKey blocks until both the global and the key-scoped limiters
// admit a request. Limiters are created on first use of a key.
func (rl *RateLimiter) WaitForKey(ctx context.Context, key string) error {
	if err := rl.global.Wait(ctx); err != nil {
		return err
	}
	return rl.keyLimiter(key).Wait(ctx)
}

// AllowForKey checks admission without blocking.
func (rl *RateLimiter) AllowForKey(key string) bool {
	if !rl.global.Allow() {
		return false
	}
	return rl.keyLimiter(key).Allow()
}

func (rl *RateLimiter) keyLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.keyLimiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.keyRate), rl.keyBurst)
		rl.keyLimiters[key] = limiter
		rl.logger.Debug("Created key limiter", map[string]interface{}{
			"key":  key,
			"rate": rl.keyRate,
		})
	}
	return limiter
}
