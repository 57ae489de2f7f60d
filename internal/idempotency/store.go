package idempotency

import "time"

// Store is the idempotency record contract. Implementations must make
// TryAcquire atomic against concurrent callers racing on the same eventID;
// an in-memory store guards itself with a mutex, a distributed store must
// use a compare-and-set primitive of its backing system.
type Store interface {
	// Get returns the record for eventID, or nil if absent or expired
	// (expired records are treated as absent).
	Get(eventID string) (*Record, error)

	// TryAcquire atomically creates a fresh processing record if none
	// exists, the existing one's lock has expired, or its status is
	// expired. Returns false if another holder currently owns a valid lock
	// or a terminal record already exists.
	TryAcquire(eventID, holder string, lockTTL, recordTTL time.Duration) (bool, error)

	// Complete transitions a processing record to completed, attaching result.
	Complete(eventID string, result Result) error

	// Fail transitions a processing record to failed with errorMessage.
	Fail(eventID string, errorMessage string) error

	// Release deletes a record outright, abandoning any lock without
	// recording an outcome.
	Release(eventID string) error

	// Cleanup removes every record past its ExpiresAt and returns the count.
	Cleanup() (int, error)
}
