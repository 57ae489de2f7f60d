package sessions

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kessler-labs/switchboard/internal/channel"
)

func TestSQLiteStore_PutGetByAllIndices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	conv := channel.ConversationKey{Platform: "discord", Tenant: "t1", Room: "general"}
	sess := &Session{
		ID:             "sess_1",
		Conversation:   conv,
		Principal:      Principal{Identity: channel.ChannelIdentity{Platform: "discord", ID: "user-1"}},
		State:          StateActive,
		CreatedAt:      time.Unix(1000, 0),
		LastActivityAt: time.Unix(1000, 0),
		Context:        map[string]any{"k": "v"},
		History:        []SessionMessage{{Role: "user", Content: "hi"}},
	}
	if err := s.Put(sess); err != nil {
		t.Fatalf("put: %v", err)
	}

	byID, err := s.Get("sess_1")
	if err != nil || byID == nil {
		t.Fatalf("get by id: %v %v", byID, err)
	}
	if byID.Context["k"] != "v" || len(byID.History) != 1 {
		t.Errorf("unexpected round trip: %+v", byID)
	}

	byConv, err := s.GetByConversation(conv)
	if err != nil || byConv == nil || byConv.ID != "sess_1" {
		t.Fatalf("get by conversation: %v %v", byConv, err)
	}

	byUser, err := s.GetByUser("discord", "user-1")
	if err != nil || len(byUser) != 1 {
		t.Fatalf("get by user: %v %v", byUser, err)
	}
}

func TestSQLiteStore_PutTrimsOversizedHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()
	s.SetMaxHistorySize(2)

	sess := &Session{
		ID:           "sess_1",
		Conversation: channel.ConversationKey{Platform: "ws", Room: "r1"},
		Principal:    Principal{Identity: channel.ChannelIdentity{Platform: "ws", ID: "u1"}},
		History: []SessionMessage{
			{Role: "user", Content: "a"},
			{Role: "user", Content: "b"},
			{Role: "user", Content: "c"},
		},
	}
	if err := s.Put(sess); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get("sess_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.History) != 2 {
		t.Fatalf("expected Put to trim history to 2, got %d", len(got.History))
	}
	if got.History[0].Content != "b" || got.History[1].Content != "c" {
		t.Fatalf("expected the newest 2 entries to survive, got %+v", got.History)
	}
}

func TestSQLiteStore_AppendMessageTrimsAndTouches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()
	s.SetMaxHistorySize(2)

	sess := &Session{
		ID:           "sess_1",
		Conversation: channel.ConversationKey{Platform: "ws", Room: "r1"},
		Principal:    Principal{Identity: channel.ChannelIdentity{Platform: "ws", ID: "u1"}},
	}
	if err := s.Put(sess); err != nil {
		t.Fatalf("put: %v", err)
	}

	now := time.Unix(500, 0)
	for _, c := range []string{"a", "b", "c"} {
		if _, err := s.AppendMessage("sess_1", SessionMessage{Role: "user", Content: c}, now); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Get("sess_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.History) != 2 {
		t.Fatalf("expected AppendMessage to trim history to 2, got %d", len(got.History))
	}
	if !got.LastActivityAt.Equal(now) {
		t.Fatalf("expected LastActivityAt = %v, got %v", now, got.LastActivityAt)
	}
}

func TestSQLiteStore_CleanupExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	past := time.Now().Add(-time.Minute)
	sess := &Session{
		ID:             "sess_1",
		Conversation:   channel.ConversationKey{Platform: "ws", Room: "r1"},
		Principal:      Principal{Identity: channel.ChannelIdentity{Platform: "ws", ID: "u1"}},
		LastActivityAt: time.Now(),
		ExpiresAt:      &past,
	}
	s.Put(sess)

	n, err := s.CleanupExpired()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
}

func TestSQLiteStore_ListOrdersByLastActivityDescending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	for i, ts := range []int64{100, 300, 200} {
		s.Put(&Session{
			ID:             string(rune('a' + i)),
			Conversation:   channel.ConversationKey{Platform: "ws", Room: string(rune('a' + i))},
			Principal:      Principal{Identity: channel.ChannelIdentity{Platform: "ws", ID: "u"}},
			LastActivityAt: time.Unix(ts, 0),
		})
	}

	all, err := s.List(0, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "b" || all[1].ID != "c" || all[2].ID != "a" {
		t.Fatalf("unexpected order: %v", idList(all))
	}
}

func idList(sessions []*Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}
