package idempotency

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kessler-labs/switchboard/internal/errs"
)

// Config configures a Guard.
type Config struct {
	LockTimeout     time.Duration
	RecordTTL       time.Duration
	RetryFailed     bool
	CleanupInterval time.Duration
}

// Fn is the processor the guard wraps; a normal return completes the
// record, a returned error fails it. Fn must never panic for expected
// failures — use an error — but if it does, the guard recovers and
// records a failed outcome, since it is the one designated recovery point
// above which no panic may escape.
type Fn func() (any, error)

// Guard is the single entry point for exactly-once processing: Process
// acquires a lock via the Store's atomic tryAcquire, invokes Fn at most
// once per eventID across all instances, and records the outcome.
type Guard struct {
	store      Store
	cfg        Config
	instanceID string

	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
}

// NewGuard builds a Guard with a fresh instance id used as lock holder.
func NewGuard(store Store, cfg Config) *Guard {
	return &Guard{
		store:      store,
		cfg:        cfg,
		instanceID: uuid.NewString(),
	}
}

// Process is the single entry point for exactly-once processing: check
// cached outcome, acquire the lock, invoke fn, record the outcome.
func (g *Guard) Process(eventID string, fn Fn) (result any, success bool, err error) {
	existing, err := g.store.Get(eventID)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		switch existing.Status {
		case StatusCompleted:
			return existing.Result.Value, true, nil
		case StatusFailed:
			if !g.cfg.RetryFailed {
				return nil, false, errs.New(errs.Unknown, existing.Result.Error)
			}
			// The store never acquires over a terminal record, so drop
			// the failed one and fall through to re-acquisition.
			if err := g.store.Release(eventID); err != nil {
				return nil, false, err
			}
		case StatusProcessing:
			if existing.LockValid(timeNow()) {
				return nil, false, errs.New(errs.AlreadyProcessing, "already being processed by another instance")
			}
			// lock expired, fall through
		}
	}

	acquired, err := g.store.TryAcquire(eventID, g.instanceID, g.cfg.LockTimeout, g.cfg.RecordTTL)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, errs.New(errs.AlreadyProcessing, "lock acquisition failed")
	}

	return g.invoke(eventID, fn)
}

func (g *Guard) invoke(eventID string, fn Fn) (result any, success bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("panic: %v", rec)
			g.store.Fail(eventID, msg)
			result, success, err = nil, false, errs.New(errs.Unknown, msg)
		}
	}()

	value, callErr := fn()
	if callErr != nil {
		errText := callErr.Error()
		if ferr := g.store.Fail(eventID, errText); ferr != nil {
			return nil, false, ferr
		}
		return nil, false, callErr
	}

	if cerr := g.store.Complete(eventID, Result{Success: true, Value: value}); cerr != nil {
		return nil, false, cerr
	}
	return value, true, nil
}

// StartCleanup launches a background ticker that calls the store's Cleanup
// every CleanupInterval until StopCleanup is called.
func (g *Guard) StartCleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ticker != nil || g.cfg.CleanupInterval <= 0 {
		return
	}
	g.ticker = time.NewTicker(g.cfg.CleanupInterval)
	g.done = make(chan struct{})

	ticker, done := g.ticker, g.done
	go func() {
		for {
			select {
			case <-ticker.C:
				if n, err := g.store.Cleanup(); err != nil {
					slog.Error("idempotency cleanup failed", "error", err)
				} else if n > 0 {
					slog.Info("idempotency cleanup removed expired records", "count", n)
				}
			case <-done:
				return
			}
		}
	}()
}

// StopCleanup halts the background cleanup ticker, if running.
func (g *Guard) StopCleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ticker == nil {
		return
	}
	g.ticker.Stop()
	close(g.done)
	g.ticker = nil
}

// InstanceID returns the UUID this guard uses as lock holder.
func (g *Guard) InstanceID() string { return g.instanceID }

func timeNow() time.Time { return time.Now() }
