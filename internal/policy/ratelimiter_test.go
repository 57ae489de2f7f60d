package policy

import (
	"testing"
	"time"

	"github.com/kessler-labs/switchboard/internal/errs"
)

func TestLimiter_RejectAction(t *testing.T) {
	l := NewLimiter(RateLimitConfig{
		Enabled:      true,
		Capacity:     1,
		RefillWindow: time.Second,
		Action:       ActionReject,
	})

	if err := l.Acquire("discord/t/room", "", ""); err != nil {
		t.Fatalf("first acquire should succeed: %v", err)
	}

	err := l.Acquire("discord/t/room", "", "")
	if err == nil {
		t.Fatal("expected second acquire to be rejected")
	}
	if errs.CodeOf(err) != errs.RateLimited {
		t.Errorf("expected rate_limited code, got %s", errs.CodeOf(err))
	}
}

func TestLimiter_PerConversationScope(t *testing.T) {
	l := NewLimiter(RateLimitConfig{
		Enabled:         true,
		Capacity:        100,
		RefillWindow:    time.Second,
		PerConversation: true,
		Action:          ActionReject,
	})
	// Simulate per-conversation cap by directly seeding a 1-capacity bucket.
	l.byConv["conv-a"] = NewTokenBucket(1, 0, time.Second)

	if err := l.Acquire("discord/t/a", "conv-a", ""); err != nil {
		t.Fatalf("first should pass: %v", err)
	}
	if err := l.Acquire("discord/t/a", "conv-a", ""); err == nil {
		t.Fatal("expected second request on same conversation to be denied")
	}
	// A different conversation should be unaffected.
	if err := l.Acquire("discord/t/b", "conv-b", ""); err != nil {
		t.Fatalf("different conversation should pass: %v", err)
	}
}

func TestLimiter_DisabledAlwaysAdmits(t *testing.T) {
	l := NewLimiter(RateLimitConfig{Enabled: false, Capacity: 0, RefillWindow: time.Second})
	for i := 0; i < 10; i++ {
		if err := l.Acquire("x", "", ""); err != nil {
			t.Fatalf("disabled limiter should always admit, got %v", err)
		}
	}
}

func TestLimiter_RoomOverride(t *testing.T) {
	l := NewLimiter(
		RateLimitConfig{Enabled: true, Capacity: 1, RefillWindow: time.Second, Action: ActionReject},
		RoomPattern{
			Pattern: "discord/*/ops-*",
			Config:  RateLimitConfig{Enabled: true, Capacity: 5, RefillWindow: time.Second, Action: ActionReject},
		},
	)

	// ops-* room gets the generous override bucket.
	for i := 0; i < 5; i++ {
		if err := l.Acquire("discord/acme/ops-alerts", "", ""); err != nil {
			t.Fatalf("override room request %d should pass: %v", i, err)
		}
	}
	if err := l.Acquire("discord/acme/ops-alerts", "", ""); err == nil {
		t.Fatal("expected override bucket to eventually deny")
	}
}

func TestLimiter_QueueAction(t *testing.T) {
	l := NewLimiter(RateLimitConfig{
		Enabled: true, Capacity: 1, RefillWindow: time.Second, Action: ActionQueue,
	})
	l.Acquire("x", "", "")
	err := l.Acquire("x", "", "")
	if err == nil || errs.CodeOf(err) != errs.RateLimited {
		t.Fatalf("expected rate_limited queue signal, got %v", err)
	}
}
