// Package policy implements the per-event policy pipeline: rate limiting,
// retry with jittered backoff, circuit breaking, and timeout enforcement,
// composed in a single canonical order around every outbound operation.
package policy

import (
	"sync"
	"time"
)

// TokenBucket refills capacity tokens per refillWindow, demand-driven: no
// background timer runs, refill is computed lazily on the next TryConsume.
type TokenBucket struct {
	mu           sync.Mutex
	capacity     float64
	burst        float64
	refillWindow time.Duration
	tokens       float64
	lastRefill   time.Time
	now          func() time.Time
}

// NewTokenBucket creates a bucket starting full (capacity+burst tokens).
func NewTokenBucket(capacity, burst int, refillWindow time.Duration) *TokenBucket {
	return newTokenBucket(capacity, burst, refillWindow, time.Now)
}

func newTokenBucket(capacity, burst int, refillWindow time.Duration, now func() time.Time) *TokenBucket {
	b := &TokenBucket{
		capacity:     float64(capacity),
		burst:        float64(burst),
		refillWindow: refillWindow,
		now:          now,
	}
	b.tokens = b.capacity + b.burst
	b.lastRefill = now()
	return b
}

// TryConsume attempts to consume one token. Returns (true, 0) on success,
// or (false, retryAfter) when the bucket is empty.
func (b *TokenBucket) TryConsume() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	retryAfter := time.Duration(float64(b.refillWindow) / b.capacity)
	if retryAfter <= 0 {
		retryAfter = b.refillWindow
	}
	return false, retryAfter
}

func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 || b.refillWindow <= 0 {
		return
	}

	periods := float64(elapsed) / float64(b.refillWindow)
	if periods < 1 {
		return
	}
	whole := float64(int64(periods))
	b.tokens += whole * b.capacity
	max := b.capacity + b.burst
	if b.tokens > max {
		b.tokens = max
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(whole) * b.refillWindow)
}

// Tokens reports the current token count (for tests/observability).
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}
