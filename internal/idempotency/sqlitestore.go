package idempotency

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable idempotency Store backend, demonstrating that
// the same tryAcquire contract can be satisfied by a SQL transaction
// instead of an in-process mutex. Useful for multi-instance
// deployments sharing a single database file or attached volume.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (and migrates) path as the idempotency backing store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite idempotency store: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite writers must be serialized

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite idempotency store: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS idempotency_records (
	event_id        TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	result_json     TEXT,
	created_at      INTEGER NOT NULL,
	completed_at    INTEGER,
	expires_at      INTEGER NOT NULL,
	lock_holder     TEXT,
	lock_expires_at INTEGER
);
`

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Get(eventID string) (*Record, error) {
	row := s.db.QueryRow(`SELECT event_id, status, result_json, created_at, completed_at, expires_at, lock_holder, lock_expires_at
		FROM idempotency_records WHERE event_id = ?`, eventID)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.IsExpired(s.now()) {
		return nil, nil
	}
	return r, nil
}

// TryAcquire implements the compare-and-set contract inside one (deferred)
// transaction: a SELECT of the existing row, then an upsert if it is absent,
// an expired lock, or an expired record. The pool's single connection
// serializes callers within this process.
func (s *SQLiteStore) TryAcquire(eventID, holder string, lockTTL, recordTTL time.Duration) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	now := s.now()
	row := tx.QueryRow(`SELECT status, expires_at, lock_expires_at FROM idempotency_records WHERE event_id = ?`, eventID)

	var status string
	var expiresAt, lockExpiresAt sql.NullInt64
	err = row.Scan(&status, &expiresAt, &lockExpiresAt)

	canAcquire := errors.Is(err, sql.ErrNoRows)
	if err == nil {
		recordExpired := expiresAt.Valid && now.After(time.Unix(0, expiresAt.Int64))
		lockExpired := status == string(StatusProcessing) && (!lockExpiresAt.Valid || now.After(time.Unix(0, lockExpiresAt.Int64)))
		canAcquire = recordExpired || lockExpired
	} else if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	if !canAcquire {
		return false, nil
	}

	_, err = tx.Exec(`INSERT INTO idempotency_records (event_id, status, result_json, created_at, completed_at, expires_at, lock_holder, lock_expires_at)
		VALUES (?, ?, NULL, ?, NULL, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			status = excluded.status, result_json = NULL, created_at = excluded.created_at,
			completed_at = NULL, expires_at = excluded.expires_at,
			lock_holder = excluded.lock_holder, lock_expires_at = excluded.lock_expires_at`,
		eventID, string(StatusProcessing), now.UnixNano(), now.Add(recordTTL).UnixNano(), holder, now.Add(lockTTL).UnixNano())
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) Complete(eventID string, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE idempotency_records SET status = ?, result_json = ?, completed_at = ?, lock_holder = NULL, lock_expires_at = NULL
		WHERE event_id = ?`, string(StatusCompleted), string(data), s.now().UnixNano(), eventID)
	return err
}

func (s *SQLiteStore) Fail(eventID string, errorMessage string) error {
	data, err := json.Marshal(Result{Success: false, Error: errorMessage})
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE idempotency_records SET status = ?, result_json = ?, completed_at = ?, lock_holder = NULL, lock_expires_at = NULL
		WHERE event_id = ?`, string(StatusFailed), string(data), s.now().UnixNano(), eventID)
	return err
}

func (s *SQLiteStore) Release(eventID string) error {
	_, err := s.db.Exec(`DELETE FROM idempotency_records WHERE event_id = ?`, eventID)
	return err
}

func (s *SQLiteStore) Cleanup() (int, error) {
	res, err := s.db.Exec(`DELETE FROM idempotency_records WHERE expires_at < ?`, s.now().UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanRecord(row *sql.Row) (*Record, error) {
	var r Record
	var status string
	var resultJSON sql.NullString
	var createdAt, expiresAt int64
	var completedAt, lockExpiresAt sql.NullInt64
	var lockHolder sql.NullString

	if err := row.Scan(&r.EventID, &status, &resultJSON, &createdAt, &completedAt, &expiresAt, &lockHolder, &lockExpiresAt); err != nil {
		return nil, err
	}

	r.Status = Status(status)
	r.CreatedAt = time.Unix(0, createdAt)
	r.ExpiresAt = time.Unix(0, expiresAt)
	if completedAt.Valid {
		r.CompletedAt = time.Unix(0, completedAt.Int64)
	}
	if lockExpiresAt.Valid {
		r.LockExpiresAt = time.Unix(0, lockExpiresAt.Int64)
	}
	if lockHolder.Valid {
		r.LockHolder = lockHolder.String
	}
	if resultJSON.Valid {
		var res Result
		if err := json.Unmarshal([]byte(resultJSON.String), &res); err == nil {
			r.Result = &res
		}
	}
	return &r, nil
}
