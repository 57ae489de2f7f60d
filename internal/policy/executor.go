package policy

import (
	"context"
	"time"
)

// Config bundles the four policy components applied uniformly around every
// outbound operation.
type Config struct {
	RateLimit      RateLimitConfig
	Retry          RetryConfig
	CircuitBreaker CircuitBreakerConfig
	Timeout        TimeoutConfig
}

// Executor composes C1-C4 in the canonical order:
//
//	operation_timeout ⟶ retry ⟶ rate_limit.acquire ⟶ circuit_breaker.guard(op)
//
// operation_timeout bounds the total duration including all retries and
// their backoff waits; a rate limiter delay wait (ActionDelay) sleeps
// without observing the deadline. circuit_breaker wraps op innermost, but
// its admission check runs before rate_limit.acquire, so an open breaker
// rejects before a token is even consumed.
type Executor struct {
	cfg       Config
	overrides []RoomPattern
	limiter   *Limiter
	breaker   *CircuitBreaker
}

// NewExecutor builds an Executor. overrides configure the rate limiter's
// per-room overrides (see RoomPattern).
func NewExecutor(cfg Config, overrides ...RoomPattern) *Executor {
	return &Executor{
		cfg:       cfg,
		overrides: overrides,
		limiter:   NewLimiter(cfg.RateLimit, overrides...),
		breaker:   NewCircuitBreaker(cfg.CircuitBreaker),
	}
}

// Execute runs op through the full pipeline for the given room/conversation/
// user scoping keys.
func (e *Executor) Execute(ctx context.Context, roomKey, convKey, userKey string, op Operation) (any, error) {
	return e.run(ctx, roomKey, convKey, userKey, e.cfg.Timeout, op, true)
}

// ExecuteWithoutRateLimit skips C1 (admission control) but still applies
// timeout, retry, and circuit breaking.
func (e *Executor) ExecuteWithoutRateLimit(ctx context.Context, op Operation) (any, error) {
	return e.run(ctx, "", "", "", e.cfg.Timeout, op, false)
}

// ExecuteWithTimeout overrides the configured operation timeout for this call.
func (e *Executor) ExecuteWithTimeout(ctx context.Context, roomKey, convKey, userKey string, customOperationTimeout time.Duration, op Operation) (any, error) {
	cfg := e.cfg.Timeout
	cfg.Operation = customOperationTimeout
	return e.run(ctx, roomKey, convKey, userKey, cfg, op, true)
}

func (e *Executor) run(ctx context.Context, roomKey, convKey, userKey string, timeoutCfg TimeoutConfig, op Operation, rateLimit bool) (any, error) {
	return Run(ctx, timeoutCfg, TimeoutOperation, func(ctx context.Context) (any, error) {
		return Retry(ctx, e.cfg.Retry, func(ctx context.Context) (any, error) {
			if err := e.breaker.Allow(); err != nil {
				return nil, err
			}

			if rateLimit {
				if err := e.limiter.Acquire(roomKey, convKey, userKey); err != nil {
					return nil, err
				}
			}

			result, err := op(ctx)
			if err != nil {
				e.breaker.RecordFailure(err)
				return nil, err
			}
			e.breaker.RecordSuccess()
			return result, nil
		})
	})
}

// IsCircuitAllowed lets callers fail fast without entering the timeout
// budget, e.g. to short-circuit before doing expensive request assembly.
func (e *Executor) IsCircuitAllowed() bool {
	return e.breaker.Allow() == nil
}

// Reset clears the limiter's buckets and the breaker; it does not cancel
// any in-flight operation.
func (e *Executor) Reset() {
	e.limiter = NewLimiter(e.cfg.RateLimit, e.overrides...)
	e.breaker.Reset()
}

// Breaker exposes the underlying breaker for operator controls (open/close).
func (e *Executor) Breaker() *CircuitBreaker { return e.breaker }
