package idempotency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kessler-labs/switchboard/internal/errs"
)

// S1 — Exactly-once under duplicate delivery.
func TestGuard_S1_ExactlyOnceUnderDuplicateDelivery(t *testing.T) {
	store := NewMemStore()
	g := NewGuard(store, Config{LockTimeout: time.Minute, RecordTTL: time.Hour})

	var calls int32
	var wg sync.WaitGroup
	results := make([]any, 2)
	successes := make([]bool, 2)

	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			r, ok, _ := g.Process("evt-1", func() (any, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(20 * time.Millisecond)
				return "response-1", nil
			})
			results[i] = r
			successes[i] = ok
		}(i)
	}
	close(start)
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected processor to run exactly once, ran %d times", calls)
	}

	successCount := 0
	for _, ok := range successes {
		if ok {
			successCount++
		}
	}
	if successCount != 1 {
		t.Errorf("expected exactly 1 of 2 concurrent calls to succeed, got %d", successCount)
	}
}

func TestGuard_CachedCompletedResultReturnedWithoutSideEffects(t *testing.T) {
	store := NewMemStore()
	g := NewGuard(store, Config{LockTimeout: time.Minute, RecordTTL: time.Hour})

	calls := 0
	g.Process("evt-1", func() (any, error) {
		calls++
		return "first", nil
	})

	result, ok, err := g.Process("evt-1", func() (any, error) {
		calls++
		return "second", nil
	})
	if err != nil || !ok {
		t.Fatalf("expected cached success, got %v %v %v", result, ok, err)
	}
	if result != "first" {
		t.Errorf("expected cached value 'first', got %v", result)
	}
	if calls != 1 {
		t.Errorf("expected fn invoked exactly once, got %d", calls)
	}
}

func TestGuard_FailedRecordNotRetriedByDefault(t *testing.T) {
	store := NewMemStore()
	g := NewGuard(store, Config{LockTimeout: time.Minute, RecordTTL: time.Hour, RetryFailed: false})

	g.Process("evt-1", func() (any, error) {
		return nil, errs.New(errs.ServerError, "boom")
	})

	calls := 0
	_, ok, err := g.Process("evt-1", func() (any, error) {
		calls++
		return "should not run", nil
	})
	if ok {
		t.Fatal("expected failure to remain failed")
	}
	if calls != 0 {
		t.Error("expected fn to not be invoked again when retryFailed is false")
	}
	if err == nil {
		t.Error("expected an error echoing the prior failure")
	}
}

func TestGuard_RetryFailedReacquires(t *testing.T) {
	store := NewMemStore()
	g := NewGuard(store, Config{LockTimeout: time.Minute, RecordTTL: time.Hour, RetryFailed: true})

	g.Process("evt-1", func() (any, error) {
		return nil, errs.New(errs.ServerError, "boom")
	})

	result, ok, err := g.Process("evt-1", func() (any, error) {
		return "recovered", nil
	})
	if err != nil || !ok || result != "recovered" {
		t.Fatalf("expected retry to succeed, got %v %v %v", result, ok, err)
	}
}

// S6 — Idempotency lock expiration.
func TestGuard_S6_LockExpirationAllowsReacquisition(t *testing.T) {
	store := NewMemStore()
	g := NewGuard(store, Config{LockTimeout: 100 * time.Millisecond, RecordTTL: time.Hour})

	// Instance A acquires but never completes (simulated death).
	store.TryAcquire("evt-1", "instance-a", 100*time.Millisecond, time.Hour)

	time.Sleep(150 * time.Millisecond)

	result, ok, err := g.Process("evt-1", func() (any, error) {
		return "instance-b-result", nil
	})
	if err != nil || !ok {
		t.Fatalf("expected instance B to reacquire and complete: %v %v %v", result, ok, err)
	}
	if result != "instance-b-result" {
		t.Errorf("unexpected result: %v", result)
	}
}

func TestGuard_ValidLockRejectsConcurrentInstance(t *testing.T) {
	store := NewMemStore()
	g := NewGuard(store, Config{LockTimeout: time.Minute, RecordTTL: time.Hour})

	store.TryAcquire("evt-1", "instance-a", time.Minute, time.Hour)

	_, ok, err := g.Process("evt-1", func() (any, error) {
		return "should not run", nil
	})
	if ok {
		t.Fatal("expected second instance to be rejected")
	}
	if errs.CodeOf(err) != errs.AlreadyProcessing {
		t.Errorf("expected already_processing, got %v", err)
	}
}

func TestGuard_PanicIsRecoveredAsFailed(t *testing.T) {
	store := NewMemStore()
	g := NewGuard(store, Config{LockTimeout: time.Minute, RecordTTL: time.Hour})

	_, ok, err := g.Process("evt-1", func() (any, error) {
		panic("unexpected")
	})
	if ok {
		t.Fatal("expected panic to be recorded as a failure, not a success")
	}
	if err == nil {
		t.Error("expected an error to be returned for a recovered panic")
	}

	r, _ := store.Get("evt-1")
	if r.Status != StatusFailed {
		t.Errorf("expected store record status failed, got %s", r.Status)
	}
}

func TestGuard_StartStopCleanup(t *testing.T) {
	store := NewMemStore()
	g := NewGuard(store, Config{LockTimeout: time.Minute, RecordTTL: 10 * time.Millisecond, CleanupInterval: 20 * time.Millisecond})

	store.TryAcquire("evt-1", "a", time.Minute, 10*time.Millisecond)
	g.StartCleanup()
	defer g.StopCleanup()

	time.Sleep(60 * time.Millisecond)

	// Cleanup only removes once ExpiresAt has passed; by now it should be gone.
	// Get already hides expired records, so look at the map itself.
	store.mu.Lock()
	_, present := store.records["evt-1"]
	store.mu.Unlock()
	if present {
		t.Error("expected cleanup ticker to have removed the expired record")
	}
}
