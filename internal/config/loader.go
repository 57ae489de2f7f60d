package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, strips comments/trailing commas via hujson,
// expands ${{ .Env.VAR }} templates, unmarshals it into Config, and applies
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates before standardizing, since
	// templates live inside string values.
	expanded := expandEnvTemplates(string(data))

	standard, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse jsonc config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standard, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18420
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogLevel == "" {
		cfg.Events.LogLevel = "info"
	}

	// Idempotency defaults.
	if cfg.Idempotency.RecordTTL == 0 {
		cfg.Idempotency.RecordTTL = Duration(24 * time.Hour)
	}
	if cfg.Idempotency.LockTimeout == 0 {
		cfg.Idempotency.LockTimeout = Duration(5 * time.Minute)
	}
	if cfg.Idempotency.CleanupInterval == 0 {
		cfg.Idempotency.CleanupInterval = Duration(1 * time.Hour)
	}
	if cfg.Idempotency.Backend == "" {
		cfg.Idempotency.Backend = "memory"
	}
	if cfg.Idempotency.Backend == "sqlite" && cfg.Idempotency.SQLitePath == "" {
		cfg.Idempotency.SQLitePath = filepath.Join(HomePath(), "idempotency.db")
	}

	// Session store defaults.
	if cfg.SessionStore.DefaultTimeout == 0 {
		cfg.SessionStore.DefaultTimeout = Duration(24 * time.Hour)
	}
	if cfg.SessionStore.MaxHistorySize == 0 {
		cfg.SessionStore.MaxHistorySize = 100
	}
	if cfg.SessionStore.CleanupInterval == 0 {
		cfg.SessionStore.CleanupInterval = Duration(15 * time.Minute)
	}
	if cfg.SessionStore.Backend == "" {
		cfg.SessionStore.Backend = "memory"
	}
	if cfg.SessionStore.Backend == "sqlite" && cfg.SessionStore.SQLitePath == "" {
		cfg.SessionStore.SQLitePath = filepath.Join(HomePath(), "sessions.db")
	}

	applyPolicyDefaults(&cfg.Policy.Default)
	if cfg.Policy.Presets == nil {
		cfg.Policy.Presets = make(map[string]PolicyPreset)
	}
	for platform, builtin := range builtinPlatformPresets {
		if _, ok := cfg.Policy.Presets[platform]; !ok {
			cfg.Policy.Presets[platform] = builtin
		}
	}
	for name, preset := range cfg.Policy.Presets {
		applyPolicyDefaults(&preset)
		cfg.Policy.Presets[name] = preset
	}
	for i := range cfg.Policy.Overrides {
		applyPolicyDefaults(&cfg.Policy.Overrides[i].Preset)
	}
}

// builtinPlatformPresets ships a default ChannelPolicy tuple per reference
// platform, tuned to that platform's own rate limit behavior. A config that
// names one of these platforms under policy.presets overrides it entirely;
// these only fill the gap when the operator hasn't opted in.
var builtinPlatformPresets = map[string]PolicyPreset{
	// Discord's gateway enforces roughly 5 messages per 5s per channel.
	"discord": {
		RateLimit: RateLimitPreset{
			Enabled: true, Capacity: 5, Burst: 5,
			RefillWindow: Duration(5 * time.Second), PerConversation: true, Action: "delay",
		},
		CircuitBreaker: CircuitBreakerPreset{
			Enabled: true, FailureThreshold: 5, FailureWindow: Duration(30 * time.Second),
			RecoveryTimeout: Duration(30 * time.Second), SuccessThreshold: 2,
		},
	},
	// Slack's Tier 3 Web API methods allow roughly 1 request/sec per workspace.
	"slack": {
		RateLimit: RateLimitPreset{
			Enabled: true, Capacity: 1, Burst: 3,
			RefillWindow: Duration(1 * time.Second), PerConversation: false, Action: "queue",
		},
		CircuitBreaker: CircuitBreakerPreset{
			Enabled: true, FailureThreshold: 3, FailureWindow: Duration(20 * time.Second),
			RecoveryTimeout: Duration(20 * time.Second), SuccessThreshold: 2,
		},
	},
	// Telegram's Bot API allows ~30 messages/sec globally, 1/sec per chat.
	"telegram": {
		RateLimit: RateLimitPreset{
			Enabled: true, Capacity: 1, Burst: 5,
			RefillWindow: Duration(1 * time.Second), PerConversation: true, Action: "delay",
		},
	},
	// Teams throttles far more aggressively behind its Graph API quota.
	"teams": {
		RateLimit: RateLimitPreset{
			Enabled: true, Capacity: 1, Burst: 2,
			RefillWindow: Duration(2 * time.Second), PerConversation: false, Action: "queue",
		},
		CircuitBreaker: CircuitBreakerPreset{
			Enabled: true, FailureThreshold: 4, FailureWindow: Duration(30 * time.Second),
			RecoveryTimeout: Duration(45 * time.Second), SuccessThreshold: 2,
		},
	},
}

// applyPolicyDefaults fills in a PolicyPreset's zero-value fields. Presets
// are opt-in: a feature with Enabled left false stays disabled even after
// defaulting its numeric fields, so operators can declare "retry: {}" without
// accidentally turning on rate limiting.
func applyPolicyDefaults(p *PolicyPreset) {
	if p.RateLimit.Capacity == 0 {
		p.RateLimit.Capacity = 10
	}
	if p.RateLimit.Burst == 0 {
		p.RateLimit.Burst = p.RateLimit.Capacity
	}
	if p.RateLimit.RefillWindow == 0 {
		p.RateLimit.RefillWindow = Duration(1 * time.Minute)
	}
	if p.RateLimit.Action == "" {
		p.RateLimit.Action = "delay"
	}

	if p.Retry.MaxAttempts == 0 {
		p.Retry.MaxAttempts = 3
	}
	if p.Retry.Strategy == "" {
		p.Retry.Strategy = "exponential"
	}
	if p.Retry.InitialBackoff == 0 {
		p.Retry.InitialBackoff = Duration(200 * time.Millisecond)
	}
	if p.Retry.MaxBackoff == 0 {
		p.Retry.MaxBackoff = Duration(30 * time.Second)
	}
	if p.Retry.Multiplier == 0 {
		p.Retry.Multiplier = 2.0
	}
	if p.Retry.Step == 0 {
		p.Retry.Step = p.Retry.InitialBackoff
	}

	if p.CircuitBreaker.FailureThreshold == 0 {
		p.CircuitBreaker.FailureThreshold = 5
	}
	if p.CircuitBreaker.FailureWindow == 0 {
		p.CircuitBreaker.FailureWindow = Duration(30 * time.Second)
	}
	if p.CircuitBreaker.RecoveryTimeout == 0 {
		p.CircuitBreaker.RecoveryTimeout = Duration(30 * time.Second)
	}
	if p.CircuitBreaker.SuccessThreshold == 0 {
		p.CircuitBreaker.SuccessThreshold = 1
	}

	if p.Timeout.Connection == 0 {
		p.Timeout.Connection = Duration(10 * time.Second)
	}
	if p.Timeout.Request == 0 {
		p.Timeout.Request = Duration(30 * time.Second)
	}
	if p.Timeout.Operation == 0 {
		p.Timeout.Operation = Duration(60 * time.Second)
	}
	if p.Timeout.Idle == 0 {
		p.Timeout.Idle = Duration(5 * time.Minute)
	}
}
