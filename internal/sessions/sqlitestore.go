package sessions

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kessler-labs/switchboard/internal/channel"
)

// SQLiteStore is the durable Store backend: the same three-index contract
// as MemStore, with conversation and user keys as indexed columns and the
// rest of the session (principal, context, history) as a JSON blob.
type SQLiteStore struct {
	db             *sql.DB
	mu             sync.Mutex // serializes AppendMessage's read-modify-write
	maxHistorySize int
}

// NewSQLiteStore opens (and migrates) path as the session backing store.
// History is untrimmed until SetMaxHistorySize is called.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite session store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sessionSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite session store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SetMaxHistorySize bounds the history length Put and AppendMessage will
// retain. A value <= 0 disables trimming.
func (s *SQLiteStore) SetMaxHistorySize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxHistorySize = n
}

const sessionSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	conv_platform    TEXT NOT NULL,
	conv_tenant      TEXT NOT NULL,
	conv_room        TEXT NOT NULL,
	conv_thread      TEXT NOT NULL,
	user_id          TEXT NOT NULL,
	state            TEXT NOT NULL,
	last_activity_at INTEGER NOT NULL,
	expires_at       INTEGER,
	data_json        TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS sessions_conv_idx ON sessions(conv_platform, conv_tenant, conv_room, conv_thread);
CREATE INDEX IF NOT EXISTS sessions_user_idx ON sessions(conv_platform, user_id);
`

func (s *SQLiteStore) Close() error { return s.db.Close() }

// sessionRow is the JSON blob stored alongside the indexed columns.
type sessionRow struct {
	Conversation channel.ConversationKey
	Principal    principalJSON
	CreatedAt    time.Time
	Context      map[string]any
	History      []SessionMessage
}

type principalJSON struct {
	Identity        channel.ChannelIdentity
	TenantID        string
	Roles           []string
	Permissions     []string
	AuthenticatedAt time.Time
	ExpiresAt       *time.Time
}

func toRow(s *Session) sessionRow {
	return sessionRow{
		Conversation: s.Conversation,
		Principal: principalJSON{
			Identity:        s.Principal.Identity,
			TenantID:        s.Principal.TenantID,
			Roles:           setToSlice(s.Principal.Roles),
			Permissions:     setToSlice(s.Principal.Permissions),
			AuthenticatedAt: s.Principal.AuthenticatedAt,
			ExpiresAt:       s.Principal.ExpiresAt,
		},
		CreatedAt: s.CreatedAt,
		Context:   s.Context,
		History:   s.History,
	}
}

func fromRow(id string, state State, lastActivityAt time.Time, expiresAt *time.Time, row sessionRow) *Session {
	return &Session{
		ID:           id,
		Conversation: row.Conversation,
		Principal: Principal{
			Identity:        row.Principal.Identity,
			TenantID:        row.Principal.TenantID,
			Roles:           sliceToSet(row.Principal.Roles),
			Permissions:     sliceToSet(row.Principal.Permissions),
			AuthenticatedAt: row.Principal.AuthenticatedAt,
			ExpiresAt:       row.Principal.ExpiresAt,
		},
		State:          state,
		CreatedAt:      row.CreatedAt,
		LastActivityAt: lastActivityAt,
		ExpiresAt:      expiresAt,
		Context:        row.Context,
		History:        row.History,
	}
}

func setToSlice(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

func sliceToSet(s []string) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for _, v := range s {
		out[v] = struct{}{}
	}
	return out
}

func (s *SQLiteStore) Get(id string) (*Session, error) {
	row := s.db.QueryRow(`SELECT state, last_activity_at, expires_at, data_json FROM sessions WHERE id = ?`, id)
	return scanSession(id, row)
}

func (s *SQLiteStore) GetByConversation(key channel.ConversationKey) (*Session, error) {
	row := s.db.QueryRow(`SELECT id, state, last_activity_at, expires_at, data_json FROM sessions
		WHERE conv_platform = ? AND conv_tenant = ? AND conv_room = ? AND conv_thread = ?`,
		key.Platform, key.Tenant, key.Room, key.Thread)

	var id string
	var state string
	var lastActivityAt int64
	var expiresAt sql.NullInt64
	var dataJSON string
	if err := row.Scan(&id, &state, &lastActivityAt, &expiresAt, &dataJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decodeSession(id, state, lastActivityAt, expiresAt, dataJSON)
}

func (s *SQLiteStore) GetByUser(platform, userID string) ([]*Session, error) {
	rows, err := s.db.Query(`SELECT id, state, last_activity_at, expires_at, data_json FROM sessions
		WHERE conv_platform = ? AND user_id = ?`, platform, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var id, state, dataJSON string
		var lastActivityAt int64
		var expiresAt sql.NullInt64
		if err := rows.Scan(&id, &state, &lastActivityAt, &expiresAt, &dataJSON); err != nil {
			return nil, err
		}
		sess, err := decodeSession(id, state, lastActivityAt, expiresAt, dataJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Put(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsert(sess, s.maxHistorySize)
}

// upsert writes sess with its History trimmed to maxHistorySize. Callers
// must hold s.mu.
func (s *SQLiteStore) upsert(sess *Session, maxHistorySize int) error {
	row := toRow(sess)
	row.History = trimHistory(row.History, maxHistorySize)
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}

	var expiresAt any
	if sess.ExpiresAt != nil {
		expiresAt = sess.ExpiresAt.UnixNano()
	}

	_, err = s.db.Exec(`INSERT INTO sessions
		(id, conv_platform, conv_tenant, conv_room, conv_thread, user_id, state, last_activity_at, expires_at, data_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			conv_platform = excluded.conv_platform, conv_tenant = excluded.conv_tenant,
			conv_room = excluded.conv_room, conv_thread = excluded.conv_thread,
			user_id = excluded.user_id, state = excluded.state,
			last_activity_at = excluded.last_activity_at, expires_at = excluded.expires_at,
			data_json = excluded.data_json`,
		sess.ID, sess.Conversation.Platform, sess.Conversation.Tenant, sess.Conversation.Room, sess.Conversation.Thread,
		sess.Principal.Identity.ID, string(sess.State), sess.LastActivityAt.UnixNano(), expiresAt, string(data))
	return err
}

// AppendMessage reads the session, appends msg, trims History, bumps
// LastActivityAt, and writes it back under a single lock so concurrent
// AppendMessage calls can't interleave their read-modify-write.
func (s *SQLiteStore) AppendMessage(id string, msg SessionMessage, now time.Time) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.Get(id)
	if err != nil || sess == nil {
		return sess, err
	}

	sess.History = append(sess.History, msg)
	sess.LastActivityAt = now
	if err := s.upsert(sess, s.maxHistorySize); err != nil {
		return nil, err
	}
	sess.History = trimHistory(sess.History, s.maxHistorySize)
	return sess, nil
}

func (s *SQLiteStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) List(offset, limit int, state *State) ([]*Session, error) {
	query := `SELECT id, state, last_activity_at, expires_at, data_json FROM sessions`
	args := []any{}
	if state != nil {
		query += ` WHERE state = ?`
		args = append(args, string(*state))
	}
	query += ` ORDER BY last_activity_at DESC LIMIT ? OFFSET ?`
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var id, st, dataJSON string
		var lastActivityAt int64
		var expiresAt sql.NullInt64
		if err := rows.Scan(&id, &st, &lastActivityAt, &expiresAt, &dataJSON); err != nil {
			return nil, err
		}
		sess, err := decodeSession(id, st, lastActivityAt, expiresAt, dataJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CleanupExpired() (int, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at < ?`, time.Now().UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanSession(id string, row *sql.Row) (*Session, error) {
	var state, dataJSON string
	var lastActivityAt int64
	var expiresAt sql.NullInt64
	if err := row.Scan(&state, &lastActivityAt, &expiresAt, &dataJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decodeSession(id, state, lastActivityAt, expiresAt, dataJSON)
}

func decodeSession(id, state string, lastActivityAt int64, expiresAt sql.NullInt64, dataJSON string) (*Session, error) {
	var row sessionRow
	if err := json.Unmarshal([]byte(dataJSON), &row); err != nil {
		return nil, err
	}
	var expPtr *time.Time
	if expiresAt.Valid {
		t := time.Unix(0, expiresAt.Int64)
		expPtr = &t
	}
	return fromRow(id, State(state), time.Unix(0, lastActivityAt), expPtr, row), nil
}
