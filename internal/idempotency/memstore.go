package idempotency

import (
	"sync"
	"time"
)

// MemStore is the default in-memory Store, guarded by a single mutex since
// TryAcquire's compare-and-set must be atomic against racing callers.
type MemStore struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemStore builds an empty in-memory store.
func NewMemStore() *MemStore {
	return newMemStore(time.Now)
}

func newMemStore(now func() time.Time) *MemStore {
	return &MemStore{records: make(map[string]*Record), now: now}
}

func (s *MemStore) Get(eventID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[eventID]
	if !ok {
		return nil, nil
	}
	if r.IsExpired(s.now()) {
		return nil, nil
	}
	return cloneRecord(r), nil
}

func (s *MemStore) TryAcquire(eventID, holder string, lockTTL, recordTTL time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, ok := s.records[eventID]

	canAcquire := !ok ||
		existing.IsExpired(now) ||
		(existing.Status == StatusProcessing && !existing.LockValid(now))

	if !canAcquire {
		return false, nil
	}

	s.records[eventID] = &Record{
		EventID:       eventID,
		Status:        StatusProcessing,
		CreatedAt:     now,
		ExpiresAt:     now.Add(recordTTL),
		LockHolder:    holder,
		LockExpiresAt: now.Add(lockTTL),
	}
	return true, nil
}

func (s *MemStore) Complete(eventID string, result Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[eventID]
	if !ok {
		return nil
	}
	r.Status = StatusCompleted
	r.Result = &result
	r.CompletedAt = s.now()
	r.LockHolder = ""
	r.LockExpiresAt = time.Time{}
	return nil
}

func (s *MemStore) Fail(eventID string, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[eventID]
	if !ok {
		return nil
	}
	r.Status = StatusFailed
	r.Result = &Result{Success: false, Error: errorMessage}
	r.CompletedAt = s.now()
	r.LockHolder = ""
	r.LockExpiresAt = time.Time{}
	return nil
}

func (s *MemStore) Release(eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, eventID)
	return nil
}

func (s *MemStore) Cleanup() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, r := range s.records {
		if r.IsExpired(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

func cloneRecord(r *Record) *Record {
	cp := *r
	if r.Result != nil {
		res := *r.Result
		cp.Result = &res
	}
	return &cp
}
