package config

import "time"

// Config is the root configuration for switchboard.
type Config struct {
	Gateway      GatewayConfig      `json:"gateway"`
	Events       EventsConfig       `json:"events"`
	Idempotency  IdempotencyConfig  `json:"idempotency"`
	SessionStore SessionStoreConfig `json:"session_store"`
	Policy       PolicyConfig       `json:"policy"`
	Channels     ChannelsConfig     `json:"channels"`
}

// GatewayConfig holds the HTTP/WS admin-surface settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"`
	LogLevel   string `json:"log_level"` // "debug" | "info" | "warn" | "error" (default: "info")
}

// IdempotencyConfig configures the idempotency store and guard.
type IdempotencyConfig struct {
	RecordTTL       Duration `json:"record_ttl"`       // default: 24h
	LockTimeout     Duration `json:"lock_timeout"`     // default: 5m
	RetryFailed     bool     `json:"retry_failed"`     // default: false
	CleanupInterval Duration `json:"cleanup_interval"` // default: 1h
	CleanupCron     string   `json:"cleanup_cron,omitempty"`
	Backend         string   `json:"backend"` // "memory" (default) | "sqlite"
	SQLitePath      string   `json:"sqlite_path,omitempty"`
}

// SessionStoreConfig configures the session store and manager.
type SessionStoreConfig struct {
	DefaultTimeout  Duration `json:"default_timeout"`  // default: 24h
	MaxHistorySize  int      `json:"max_history_size"` // default: 100
	CleanupInterval Duration `json:"cleanup_interval"` // default: 15m
	CleanupCron     string   `json:"cleanup_cron,omitempty"`
	Persistent      bool     `json:"persistent"` // default: false
	Backend         string   `json:"backend"`    // "memory" (default) | "sqlite"
	SQLitePath      string   `json:"sqlite_path,omitempty"`
}

// PolicyConfig is the default ChannelPolicy plus per-platform overrides
// Presets ship default tuples per platform; overrides narrow by room glob.
type PolicyConfig struct {
	Default   PolicyPreset             `json:"default"`
	Presets   map[string]PolicyPreset  `json:"presets,omitempty"` // keyed by platform name
	Overrides []RoomOverride           `json:"overrides,omitempty"`
}

// RoomOverride retunes a policy preset for conversation keys matching a glob
// pattern over "platform/tenant/room" (see internal/policy.RoomPattern).
type RoomOverride struct {
	Pattern string       `json:"pattern"`
	Preset  PolicyPreset `json:"preset"`
}

// PolicyPreset is the JSON-facing shape of a policy.Config.
type PolicyPreset struct {
	RateLimit      RateLimitPreset      `json:"rate_limit"`
	Retry          RetryPreset          `json:"retry"`
	CircuitBreaker CircuitBreakerPreset `json:"circuit_breaker"`
	Timeout        TimeoutPreset        `json:"timeout"`
}

type RateLimitPreset struct {
	Enabled         bool     `json:"enabled"`
	Capacity        int      `json:"capacity"`
	Burst           int      `json:"burst"`
	RefillWindow    Duration `json:"refill_window"`
	PerConversation bool     `json:"per_conversation"`
	PerUser         bool     `json:"per_user"`
	Action          string   `json:"action"` // "delay" | "reject" | "queue"
}

type RetryPreset struct {
	MaxAttempts      int      `json:"max_attempts"`
	Strategy         string   `json:"strategy"` // "exponential" | "linear" | "fixed"
	InitialBackoff   Duration `json:"initial_backoff"`
	MaxBackoff       Duration `json:"max_backoff"`
	Multiplier       float64  `json:"multiplier,omitempty"`
	Step             Duration `json:"step,omitempty"`
	MaxTotalDuration Duration `json:"max_total_duration,omitempty"`
	Jitter           float64  `json:"jitter"`
	RetryableCodes   []string `json:"retryable_codes,omitempty"`
}

type CircuitBreakerPreset struct {
	Enabled          bool     `json:"enabled"`
	FailureThreshold int      `json:"failure_threshold"`
	FailureWindow    Duration `json:"failure_window"`
	RecoveryTimeout  Duration `json:"recovery_timeout"`
	SuccessThreshold int      `json:"success_threshold"`
	TriggerErrors    []string `json:"trigger_errors,omitempty"`
}

type TimeoutPreset struct {
	Connection Duration `json:"connection"`
	Request    Duration `json:"request"`
	Operation  Duration `json:"operation"`
	Idle       Duration `json:"idle"`
}

// ChannelsConfig lists the adapters to register at startup.
type ChannelsConfig struct {
	Discord *DiscordConfig `json:"discord,omitempty"`
	WS      *WSConfig      `json:"ws,omitempty"`
}

// DiscordConfig configures the reference Discord ChannelPort adapter.
type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"` // direct value or ${{ .Env.VAR }} template
}

// WSConfig configures the reference generic websocket ChannelPort adapter.
type WSConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"` // default: "/ws"
}

// Duration wraps time.Duration for JSON unmarshaling as a Go duration string.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
