package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kessler-labs/switchboard/internal/errs"
)

// Action controls what the limiter does when a scope denies admission.
type Action string

const (
	ActionDelay  Action = "delay"
	ActionReject Action = "reject"
	ActionQueue  Action = "queue"
)

// RateLimitConfig configures a Limiter.
type RateLimitConfig struct {
	Enabled         bool
	Capacity        int
	Burst           int
	RefillWindow    time.Duration
	PerConversation bool
	PerUser         bool
	Action          Action
}

// RoomPattern retunes a limiter's config for conversation keys matching a
// doublestar glob over "platform/tenant/room" — e.g. "discord/*/ops-*"
// gives an internal ops channel a higher ceiling than the platform default.
type RoomPattern struct {
	Pattern string
	Config  RateLimitConfig
}

// Limiter composes three admission scopes in order: global, per-conversation
// (if configured), per-user (if configured). Denial short-circuits at the
// first failing scope.
type Limiter struct {
	mu       sync.Mutex
	cfg      RateLimitConfig
	overrides []RoomPattern
	global    *TokenBucket
	byConv    map[string]*TokenBucket
	byUser    map[string]*TokenBucket
}

// NewLimiter builds a Limiter. overrides are evaluated in order; the first
// matching pattern's config is used in place of cfg for that room key.
func NewLimiter(cfg RateLimitConfig, overrides ...RoomPattern) *Limiter {
	return &Limiter{
		cfg:       cfg,
		overrides: overrides,
		global:    NewTokenBucket(cfg.Capacity, cfg.Burst, cfg.RefillWindow),
		byConv:    make(map[string]*TokenBucket),
		byUser:    make(map[string]*TokenBucket),
	}
}

// resolve returns the effective config for a room key, checking overrides
// in declaration order.
func (l *Limiter) resolve(roomKey string) RateLimitConfig {
	for _, o := range l.overrides {
		if ok, _ := doublestar.Match(o.Pattern, roomKey); ok {
			return o.Config
		}
	}
	return l.cfg
}

// Acquire admits a request scoped by conversation key and user id. roomKey
// is "platform/tenant/room" for override matching; convKey and userKey are
// cache keys for the per-scope buckets (callers pass stable strings derived
// from the ConversationKey / ChannelIdentity).
func (l *Limiter) Acquire(roomKey, convKey, userKey string) error {
	if !l.cfg.Enabled {
		return nil
	}

	cfg := l.resolve(roomKey)

	for {
		ok, retryAfter := l.tryAllScopes(cfg, convKey, userKey)
		if ok {
			return nil
		}

		switch cfg.Action {
		case ActionDelay:
			time.Sleep(retryAfter)
			continue
		case ActionQueue:
			return errs.New(errs.RateLimited, "queued: caller must durably enqueue").WithRetryAfter(retryAfter)
		default: // ActionReject and zero-value
			return errs.New(errs.RateLimited, "rate limit exceeded").WithRetryAfter(retryAfter)
		}
	}
}

func (l *Limiter) tryAllScopes(cfg RateLimitConfig, convKey, userKey string) (bool, time.Duration) {
	if ok, retryAfter := l.global.TryConsume(); !ok {
		return false, retryAfter
	}

	if cfg.PerConversation && convKey != "" {
		b := l.bucketFor(l.byConv, convKey, cfg)
		if ok, retryAfter := b.TryConsume(); !ok {
			return false, retryAfter
		}
	}

	if cfg.PerUser && userKey != "" {
		b := l.bucketFor(l.byUser, userKey, cfg)
		if ok, retryAfter := b.TryConsume(); !ok {
			return false, retryAfter
		}
	}

	return true, 0
}

func (l *Limiter) bucketFor(scope map[string]*TokenBucket, key string, cfg RateLimitConfig) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := scope[key]
	if !ok {
		b = NewTokenBucket(cfg.Capacity, cfg.Burst, cfg.RefillWindow)
		scope[key] = b
	}
	return b
}

// RoomKey formats the platform/tenant/room triple used for override matching.
func RoomKey(platform, tenant, room string) string {
	return fmt.Sprintf("%s/%s/%s", platform, tenant, room)
}
