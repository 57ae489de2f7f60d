package idempotency

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStore_TryAcquireCompleteGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idempotency.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	ok, err := s.TryAcquire("evt-1", "holder-a", time.Minute, time.Hour)
	if err != nil || !ok {
		t.Fatalf("expected acquire to succeed: %v %v", ok, err)
	}

	ok, err = s.TryAcquire("evt-1", "holder-b", time.Minute, time.Hour)
	if err != nil || ok {
		t.Fatalf("expected second acquire to fail while lock valid: %v %v", ok, err)
	}

	if err := s.Complete("evt-1", Result{Success: true, Value: "done"}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	r, err := s.Get("evt-1")
	if err != nil || r == nil {
		t.Fatalf("expected record: %v %v", r, err)
	}
	if r.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", r.Status)
	}
}

func TestSQLiteStore_CleanupRemovesExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idempotency.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	s.TryAcquire("evt-1", "a", time.Minute, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	n, err := s.Cleanup()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 record removed, got %d", n)
	}
}

func TestSQLiteStore_FailRecordsErrorMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idempotency.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	s.TryAcquire("evt-1", "a", time.Minute, time.Hour)
	if err := s.Fail("evt-1", "boom"); err != nil {
		t.Fatal(err)
	}

	r, err := s.Get("evt-1")
	if err != nil || r == nil {
		t.Fatalf("expected record: %v %v", r, err)
	}
	if r.Status != StatusFailed || r.Result == nil || r.Result.Error != "boom" {
		t.Errorf("unexpected record: %+v", r)
	}
}
