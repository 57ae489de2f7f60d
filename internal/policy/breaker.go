package policy

import (
	"sync"
	"time"

	"github.com/kessler-labs/switchboard/internal/errs"
)

// CircuitState is the three-state machine closed/open/halfOpen.
type CircuitState string

const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half_open"
)

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	FailureWindow    time.Duration
	RecoveryTimeout  time.Duration
	SuccessThreshold int
	TriggerErrors    map[errs.Code]bool // nil defaults to {network_error, timeout, server_error}
}

func (c CircuitBreakerConfig) triggers(err error) bool {
	code := errs.CodeOf(err)
	if c.TriggerErrors != nil {
		return c.TriggerErrors[code]
	}
	switch code {
	case errs.NetworkError, errs.Timeout, errs.ServerError:
		return true
	default:
		return false
	}
}

// CircuitBreaker guards an operation with the classical three-state
// closed/open/halfOpen machine, tracking failures in a rolling window
// implemented as a bounded timestamp slice (no external stats library).
type CircuitBreaker struct {
	mu               sync.Mutex
	cfg              CircuitBreakerConfig
	state            CircuitState
	failureTimes     []time.Time
	successCount     int
	openedAt         time.Time
	lastFailureTime  time.Time
	now              func() time.Time
}

// NewCircuitBreaker builds a breaker starting in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return newCircuitBreaker(cfg, time.Now)
}

func newCircuitBreaker(cfg CircuitBreakerConfig, now func() time.Time) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: StateClosed, now: now}
}

// Allow reports whether the breaker currently admits a call, lazily moving
// open → halfOpen once the recovery timeout has elapsed.
func (b *CircuitBreaker) Allow() error {
	if !b.cfg.Enabled {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
			b.state = StateHalfOpen
			b.successCount = 0
			return nil
		}
		return errs.New(errs.CircuitOpen, "circuit breaker is open")
	default:
		return nil
	}
}

// RecordSuccess reports a successful call outcome.
func (b *CircuitBreaker) RecordSuccess() {
	if !b.cfg.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureTimes = nil
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failureTimes = nil
			b.successCount = 0
		}
	}
}

// RecordFailure reports a failed call outcome; err's code determines
// whether it counts toward tripping the breaker.
func (b *CircuitBreaker) RecordFailure(err error) {
	if !b.cfg.Enabled || !b.cfg.triggers(err) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.lastFailureTime = now

	switch b.state {
	case StateHalfOpen:
		b.trip(now)
	case StateClosed:
		b.failureTimes = append(b.failureTimes, now)
		b.failureTimes = trimWindow(b.failureTimes, now, b.cfg.FailureWindow)
		if len(b.failureTimes) >= b.cfg.FailureThreshold {
			b.trip(now)
		}
	}
}

func (b *CircuitBreaker) trip(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
	b.successCount = 0
}

func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cut := 0
	for i, t := range times {
		if now.Sub(t) <= window {
			cut = i
			break
		}
		cut = i + 1
	}
	return times[cut:]
}

// State returns the current state (for observability/tests).
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Open forces the breaker open (operational override).
func (b *CircuitBreaker) Open() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trip(b.now())
}

// Close forces the breaker closed, clearing counters.
func (b *CircuitBreaker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureTimes = nil
	b.successCount = 0
}

// Reset clears counters and returns to closed (same as Close; kept as a
// distinct name operators recognize from dashboards and logs).
func (b *CircuitBreaker) Reset() {
	b.Close()
}
