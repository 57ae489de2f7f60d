package policy

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/kessler-labs/switchboard/internal/errs"
)

// BackoffStrategy computes the wait before attempt N+1, given that attempt
// N (0-indexed) just failed.
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff doubles (times multiplier) each attempt, capped at max.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func (b ExponentialBackoff) Next(attempt int) time.Duration {
	mult := b.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := float64(b.Initial)
	for i := 0; i < attempt; i++ {
		d *= mult
	}
	if time.Duration(d) > b.Max && b.Max > 0 {
		return b.Max
	}
	return time.Duration(d)
}

// LinearBackoff adds Step per attempt, capped at Max.
type LinearBackoff struct {
	Initial time.Duration
	Step    time.Duration
	Max     time.Duration
}

func (b LinearBackoff) Next(attempt int) time.Duration {
	d := b.Initial + time.Duration(attempt)*b.Step
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// FixedBackoff always waits the same duration.
type FixedBackoff struct {
	Delay time.Duration
}

func (b FixedBackoff) Next(int) time.Duration { return b.Delay }

// RetryConfig configures a retry executor.
type RetryConfig struct {
	MaxAttempts      int
	Backoff          BackoffStrategy
	RetryableCodes   map[errs.Code]bool // nil means "use the error's own Retryable flag"
	MaxTotalDuration time.Duration      // 0 means unbounded
	Jitter           float64            // uniform in [-Jitter, +Jitter], e.g. 0.1 = ±10%
}

func (c RetryConfig) isRetryable(err error) bool {
	if c.RetryableCodes != nil {
		return c.RetryableCodes[errs.CodeOf(err)]
	}
	return errs.IsRetryable(err)
}

func (c RetryConfig) jittered(d time.Duration) time.Duration {
	if c.Jitter <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * c.Jitter // in [-Jitter, +Jitter]
	jittered := float64(d) * (1 + delta)
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}

// Operation is the unit of work the retry executor wraps.
type Operation func(ctx context.Context) (any, error)

// Retry invokes op up to cfg.MaxAttempts times, waiting cfg.Backoff.Next
// between attempts (jittered), stopping early on a non-retryable error,
// an exhausted attempt budget, or MaxTotalDuration elapsing. It adds no
// timeout of its own — that is the caller's (the policy executor's) job.
func Retry(ctx context.Context, cfg RetryConfig, op Operation) (any, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if cfg.MaxTotalDuration > 0 && attempt > 0 && time.Since(start) >= cfg.MaxTotalDuration {
			break
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isLastAttempt(attempt, maxAttempts) && cfg.isRetryable(err) {
			wait := cfg.jittered(backoffFor(cfg.Backoff, attempt))
			if cfg.MaxTotalDuration > 0 && time.Since(start)+wait >= cfg.MaxTotalDuration {
				break
			}
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil, errs.Wrap(errs.Cancelled, "retry cancelled", ctx.Err())
			}
		}
		break
	}

	return nil, lastErr
}

func isLastAttempt(attempt, maxAttempts int) bool {
	return attempt >= maxAttempts-1
}

func backoffFor(strategy BackoffStrategy, attempt int) time.Duration {
	if strategy == nil {
		return 0
	}
	return strategy.Next(attempt)
}
