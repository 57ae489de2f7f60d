package policy

import (
	"context"
	"time"

	"github.com/kessler-labs/switchboard/internal/errs"
)

// TimeoutClass names one of the four timeout budgets a policy can bound.
type TimeoutClass string

const (
	TimeoutConnection TimeoutClass = "connection"
	TimeoutRequest     TimeoutClass = "request"
	TimeoutOperation   TimeoutClass = "operation"
	TimeoutIdle        TimeoutClass = "idle"
)

// TimeoutConfig holds the wall-clock deadline for each class.
type TimeoutConfig struct {
	Connection time.Duration
	Request    time.Duration
	Operation  time.Duration
	Idle       time.Duration
}

func (c TimeoutConfig) durationFor(class TimeoutClass) time.Duration {
	switch class {
	case TimeoutConnection:
		return c.Connection
	case TimeoutRequest:
		return c.Request
	case TimeoutOperation:
		return c.Operation
	case TimeoutIdle:
		return c.Idle
	default:
		return 0
	}
}

// Run wraps fn in a context.WithTimeout deadline for the named class,
// propagating cancellation to fn and converting a deadline-exceeded into
// errs.Timeout. A zero duration means no deadline.
func Run(ctx context.Context, cfg TimeoutConfig, class TimeoutClass, fn Operation) (any, error) {
	d := cfg.durationFor(class)
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	result, err := fn(ctx)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return nil, errs.Newf(errs.Timeout, "%s timeout exceeded after %s", class, d)
	}
	return result, err
}
