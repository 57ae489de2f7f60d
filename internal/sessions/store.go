package sessions

import (
	"time"

	"github.com/kessler-labs/switchboard/internal/channel"
)

// Store is the persistence contract sessions are built on. Indexed lookup
// by session id, by ConversationKey, and by (platform, userId) must all
// be supported, per the in-memory reference layout of three mappings.
//
// History trimming to the store's configured MaxHistorySize is a store-level
// invariant: both Put and AppendMessage enforce it, so no caller can leave a
// session over budget by writing through Put directly.
type Store interface {
	Get(id string) (*Session, error)
	GetByConversation(key channel.ConversationKey) (*Session, error)
	GetByUser(platform, userID string) ([]*Session, error)
	Put(s *Session) error
	// AppendMessage appends msg to the session's history, trims it to the
	// store's MaxHistorySize, and bumps LastActivityAt to now, all in one
	// write. Returns nil, nil if id is unknown.
	AppendMessage(id string, msg SessionMessage, now time.Time) (*Session, error)
	Delete(id string) error
	// List returns sessions sorted by LastActivityAt descending, then
	// paginated by offset/limit. If state is non-nil, only sessions in
	// that state are returned.
	List(offset, limit int, state *State) ([]*Session, error)
	// CleanupExpired removes every session where IsExpired is true and
	// returns the count removed.
	CleanupExpired() (int, error)
}
