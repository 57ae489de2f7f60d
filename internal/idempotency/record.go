// Package idempotency provides exactly-once processing semantics over
// at-least-once platform delivery: lockable records with a
// processing/completed/failed/expired lifecycle, safe for multi-instance
// deployments.
package idempotency

import "time"

// Status is the lifecycle state of a Record.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// Result is the cached outcome of a completed or failed record.
type Result struct {
	Success bool
	Value   any
	Error   string
}

// Record is the per-event idempotency ledger entry.
type Record struct {
	EventID       string
	Status        Status
	Result        *Result
	CreatedAt     time.Time
	CompletedAt   time.Time
	ExpiresAt     time.Time
	LockHolder    string
	LockExpiresAt time.Time
}

// LockValid reports whether the record's lock has not yet expired.
func (r *Record) LockValid(now time.Time) bool {
	return !r.LockExpiresAt.IsZero() && now.Before(r.LockExpiresAt)
}

// IsExpired reports whether the record's TTL has elapsed.
func (r *Record) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
