package sessions

import (
	"time"

	"github.com/kessler-labs/switchboard/internal/channel"
	"github.com/kessler-labs/switchboard/internal/errs"
)

// Config bounds a Manager's behavior.
type Config struct {
	DefaultTimeout  time.Duration
	MaxHistorySize  int
	CleanupInterval time.Duration
}

// Manager is the session API the runtime calls against. Every mutator is
// copy-on-write: it reads the current value from the store, derives an
// updated value, and writes it back. Last-write-wins across concurrent
// mutations of the same session; callers needing compare-and-swap must
// sequence at a higher layer.
type Manager struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// historySizer is implemented by stores that enforce a trimming invariant
// on writes; NewManager configures it from cfg so a caller wiring a fresh
// store doesn't have to remember to do it separately.
type historySizer interface {
	SetMaxHistorySize(n int)
}

// NewManager builds a Manager over store.
func NewManager(store Store, cfg Config) *Manager {
	return newManager(store, cfg, time.Now)
}

func newManager(store Store, cfg Config, now func() time.Time) *Manager {
	if hs, ok := store.(historySizer); ok {
		hs.SetMaxHistorySize(cfg.MaxHistorySize)
	}
	return &Manager{store: store, cfg: cfg, now: now}
}

func notFound(id string) error {
	return errs.Newf(errs.SessionNotFound, "session not found: %s", id)
}

// GetOrCreateSession returns the active session for evt.Conversation,
// creating one if none exists or the existing one is not active.
func (m *Manager) GetOrCreateSession(evt channel.ChannelEvent, principal Principal) (*Session, error) {
	existing, err := m.store.GetByConversation(evt.Conversation)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if existing != nil && existing.IsActive(now) {
		return existing, nil
	}
	return m.CreateSession(evt.Conversation, principal)
}

// GetSession returns the session by id, or nil if absent.
func (m *Manager) GetSession(id string) (*Session, error) {
	return m.store.Get(id)
}

// GetSessionByConversation returns the session for key, or nil if absent.
func (m *Manager) GetSessionByConversation(key channel.ConversationKey) (*Session, error) {
	return m.store.GetByConversation(key)
}

// CreateSession starts a new active session for conv/principal.
func (m *Manager) CreateSession(conv channel.ConversationKey, principal Principal) (*Session, error) {
	now := m.now()
	var expiresAt *time.Time
	if m.cfg.DefaultTimeout > 0 {
		t := now.Add(m.cfg.DefaultTimeout)
		expiresAt = &t
	}
	s := &Session{
		ID:             GenerateSessionID(),
		Conversation:   conv,
		Principal:      principal,
		State:          StateActive,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      expiresAt,
		Context:        make(map[string]any),
	}
	if err := m.store.Put(s); err != nil {
		return nil, err
	}
	return s, nil
}

// AddMessage appends msg to the session's history. Trimming to
// MaxHistorySize is enforced by the store itself, not by this method.
func (mgr *Manager) AddMessage(id string, msg SessionMessage) (*Session, error) {
	s, err := mgr.store.AppendMessage(id, msg, mgr.now())
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, notFound(id)
	}
	return s, nil
}

// UpdateContext merges updates into the session's context map.
func (mgr *Manager) UpdateContext(id string, updates map[string]any) (*Session, error) {
	return mgr.mutate(id, func(s *Session) {
		for k, v := range updates {
			s.Context[k] = v
		}
	})
}

// SetContextValue sets a single context key.
func (mgr *Manager) SetContextValue(id, key string, value any) (*Session, error) {
	return mgr.mutate(id, func(s *Session) {
		s.Context[key] = value
	})
}

// RemoveContextValue deletes a single context key.
func (mgr *Manager) RemoveContextValue(id, key string) (*Session, error) {
	return mgr.mutate(id, func(s *Session) {
		delete(s.Context, key)
	})
}

// ClearContext empties the session's context map.
func (mgr *Manager) ClearContext(id string) (*Session, error) {
	return mgr.mutate(id, func(s *Session) {
		s.Context = make(map[string]any)
	})
}

// Touch updates LastActivityAt and extends ExpiresAt by DefaultTimeout.
func (mgr *Manager) Touch(id string) (*Session, error) {
	return mgr.mutate(id, func(s *Session) {
		if mgr.cfg.DefaultTimeout > 0 {
			t := mgr.now().Add(mgr.cfg.DefaultTimeout)
			s.ExpiresAt = &t
		}
	})
}

// Pause transitions an active session to paused.
func (mgr *Manager) Pause(id string) (*Session, error) {
	return mgr.transition(id, StateActive, StatePaused)
}

// Resume transitions a paused session back to active.
func (mgr *Manager) Resume(id string) (*Session, error) {
	return mgr.transition(id, StatePaused, StateActive)
}

// Close transitions a session to closed from any non-terminal state.
func (mgr *Manager) Close(id string) (*Session, error) {
	return mgr.mutate(id, func(s *Session) {
		s.State = StateClosed
	})
}

// Delete permanently removes a session.
func (mgr *Manager) Delete(id string) error {
	existing, err := mgr.store.Get(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return notFound(id)
	}
	return mgr.store.Delete(id)
}

// List returns sessions sorted by LastActivityAt descending, paginated.
func (mgr *Manager) List(offset, limit int, state *State) ([]*Session, error) {
	return mgr.store.List(offset, limit, state)
}

// CleanupExpired removes every session past ExpiresAt and returns the count.
func (mgr *Manager) CleanupExpired() (int, error) {
	return mgr.store.CleanupExpired()
}

func (mgr *Manager) transition(id string, from, to State) (*Session, error) {
	return mgr.mutate(id, func(s *Session) {
		if s.State == from {
			s.State = to
		}
	})
}

// mutate reads the current session, applies fn, updates LastActivityAt,
// and writes the result back. Unknown ids fail with SessionNotFound.
func (mgr *Manager) mutate(id string, fn func(*Session)) (*Session, error) {
	s, err := mgr.store.Get(id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, notFound(id)
	}

	fn(s)
	s.LastActivityAt = mgr.now()
	if err := mgr.store.Put(s); err != nil {
		return nil, err
	}
	return s, nil
}
