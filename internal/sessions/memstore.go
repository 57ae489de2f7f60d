package sessions

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kessler-labs/switchboard/internal/channel"
)

// MemStore is the in-memory reference Store: three indices over the same
// underlying sessions, by id, by conversation key, and by (platform, user).
type MemStore struct {
	mu             sync.RWMutex
	byID           map[string]*Session
	byConv         map[channel.ConversationKey]string
	byUser         map[string][]string // "platform/userID" -> session ids, newest last
	now            func() time.Time
	maxHistorySize int
}

// NewMemStore builds an empty MemStore. History is untrimmed until
// SetMaxHistorySize is called.
func NewMemStore() *MemStore {
	return newMemStore(time.Now)
}

func newMemStore(now func() time.Time) *MemStore {
	return &MemStore{
		byID:   make(map[string]*Session),
		byConv: make(map[channel.ConversationKey]string),
		byUser: make(map[string][]string),
		now:    now,
	}
}

// SetMaxHistorySize bounds the history length Put and AppendMessage will
// retain. A value <= 0 disables trimming.
func (ms *MemStore) SetMaxHistorySize(n int) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.maxHistorySize = n
}

func userKey(platform, userID string) string {
	return platform + "/" + userID
}

// GenerateSessionID returns a fresh session identifier.
func GenerateSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.New().String()[:8], "-", "")
}

func (ms *MemStore) Get(id string) (*Session, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	s, ok := ms.byID[id]
	if !ok {
		return nil, nil
	}
	return s.clone(), nil
}

func (ms *MemStore) GetByConversation(key channel.ConversationKey) (*Session, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	id, ok := ms.byConv[key]
	if !ok {
		return nil, nil
	}
	return ms.byID[id].clone(), nil
}

func (ms *MemStore) GetByUser(platform, userID string) ([]*Session, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	ids := ms.byUser[userKey(platform, userID)]
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := ms.byID[id]; ok {
			out = append(out, s.clone())
		}
	}
	return out, nil
}

func (ms *MemStore) Put(s *Session) error {
	if s.ID == "" {
		return fmt.Errorf("session id must be set")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored := s.clone()
	stored.History = trimHistory(stored.History, ms.maxHistorySize)
	ms.byID[stored.ID] = stored
	ms.byConv[stored.Conversation] = stored.ID

	uk := userKey(stored.Conversation.Platform, stored.Principal.Identity.ID)
	ids := ms.byUser[uk]
	found := false
	for _, id := range ids {
		if id == stored.ID {
			found = true
			break
		}
	}
	if !found {
		ms.byUser[uk] = append(ids, stored.ID)
	}
	return nil
}

func (ms *MemStore) AppendMessage(id string, msg SessionMessage, now time.Time) (*Session, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	s, ok := ms.byID[id]
	if !ok {
		return nil, nil
	}
	s.History = trimHistory(append(s.History, msg), ms.maxHistorySize)
	s.LastActivityAt = now
	return s.clone(), nil
}

func (ms *MemStore) Delete(id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	s, ok := ms.byID[id]
	if !ok {
		return nil
	}
	delete(ms.byID, id)
	delete(ms.byConv, s.Conversation)

	uk := userKey(s.Conversation.Platform, s.Principal.Identity.ID)
	ids := ms.byUser[uk]
	for i, existing := range ids {
		if existing == id {
			ms.byUser[uk] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (ms *MemStore) List(offset, limit int, state *State) ([]*Session, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	all := make([]*Session, 0, len(ms.byID))
	for _, s := range ms.byID {
		if state != nil && s.State != *state {
			continue
		}
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastActivityAt.After(all[j].LastActivityAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*Session, 0, end-offset)
	for _, s := range all[offset:end] {
		out = append(out, s.clone())
	}
	return out, nil
}

func (ms *MemStore) CleanupExpired() (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	removed := 0
	for id, s := range ms.byID {
		if !s.IsExpired(now) {
			continue
		}
		delete(ms.byID, id)
		delete(ms.byConv, s.Conversation)
		uk := userKey(s.Conversation.Platform, s.Principal.Identity.ID)
		ids := ms.byUser[uk]
		for i, existing := range ids {
			if existing == id {
				ms.byUser[uk] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		removed++
	}
	return removed, nil
}
