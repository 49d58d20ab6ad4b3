package governance

import (
	"sync"
	"time"
)

// RateLimitConfig defines per-service rate limit settings.
type RateLimitConfig struct {
	RequestsPerSecond int
	BurstSize         int
}

// RateLimiter implements token bucket rate limiting keyed by service slug.
// Services without configured limits are never throttled.
type RateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
}

// NewRateLimiter creates a rate limiter with per-service limits.
func NewRateLimiter(config map[string]RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{buckets: make(map[string]*tokenBucket, len(config))}
	for slug, cfg := range config {
		rl.buckets[slug] = newTokenBucket(cfg.RequestsPerSecond, cfg.BurstSize)
	}
	return rl
}

// Allow reports whether a request for the service should proceed.
func (rl *RateLimiter) Allow(slug string) bool {
	rl.mu.RLock()
	bucket, exists := rl.buckets[slug]
	rl.mu.RUnlock()

	if !exists {
		return true
	}
	return bucket.take()
}

// tokenBucket implements a token bucket algorithm for rate limiting.
type tokenBucket struct {
	mu         sync.Mutex
	rate       float64
	capacity   float64
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(rps, burstSize int) *tokenBucket {
	if rps <= 0 {
		rps = 100
	}
	if burstSize <= 0 {
		burstSize = rps
	}
	return &tokenBucket{
		rate:       float64(rps),
		capacity:   float64(burstSize),
		tokens:     float64(burstSize),
		lastRefill: time.Now(),
	}
}

// take attempts to consume one token from the bucket.
func (tb *tokenBucket) take() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// refill adds tokens to the bucket based on elapsed time.
func (tb *tokenBucket) refill() {
	now := time.Now()
	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}
