package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999
	},
	"channels": {
		"discord": {
			"enabled": true,
			"token": "${{ .Env.DISCORD_TOKEN }}",
		},
	},
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DISCORD_TOKEN", "test-token-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Gateway.Port)
	}
	if cfg.Channels.Discord == nil || !cfg.Channels.Discord.Enabled {
		t.Fatal("expected discord channel enabled")
	}
	if cfg.Channels.Discord.Token != "test-token-123" {
		t.Errorf("expected token test-token-123, got %s", cfg.Channels.Discord.Token)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 18420 {
		t.Errorf("expected default port 18420, got %d", cfg.Gateway.Port)
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected default buffer 1024, got %d", cfg.Events.BufferSize)
	}
}

func TestLoadDefaults_Idempotency(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Idempotency.RecordTTL.Duration() != 24*time.Hour {
		t.Errorf("expected record_ttl 24h, got %s", cfg.Idempotency.RecordTTL.Duration())
	}
	if cfg.Idempotency.LockTimeout.Duration() != 5*time.Minute {
		t.Errorf("expected lock_timeout 5m, got %s", cfg.Idempotency.LockTimeout.Duration())
	}
	if cfg.Idempotency.Backend != "memory" {
		t.Errorf("expected default backend memory, got %s", cfg.Idempotency.Backend)
	}
}

func TestLoadDefaults_SessionStore(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.SessionStore.MaxHistorySize != 100 {
		t.Errorf("expected default max_history_size 100, got %d", cfg.SessionStore.MaxHistorySize)
	}
	if cfg.SessionStore.DefaultTimeout.Duration() != 24*time.Hour {
		t.Errorf("expected default_timeout 24h, got %s", cfg.SessionStore.DefaultTimeout.Duration())
	}
}

func TestLoadDefaults_Policy(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	d := cfg.Policy.Default
	if d.RateLimit.Capacity != 10 {
		t.Errorf("expected default rate_limit capacity 10, got %d", d.RateLimit.Capacity)
	}
	if d.Retry.MaxAttempts != 3 {
		t.Errorf("expected default retry max_attempts 3, got %d", d.Retry.MaxAttempts)
	}
	if d.CircuitBreaker.FailureThreshold != 5 {
		t.Errorf("expected default failure_threshold 5, got %d", d.CircuitBreaker.FailureThreshold)
	}
	if d.Timeout.Request.Duration() != 30*time.Second {
		t.Errorf("expected default request timeout 30s, got %s", d.Timeout.Request.Duration())
	}
}

func TestLoadDefaults_PolicyPresetNotImplicitlyEnabled(t *testing.T) {
	content := `{"policy": {"presets": {"discord": {"retry": {"max_attempts": 5}}}}}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	preset, ok := cfg.Policy.Presets["discord"]
	if !ok {
		t.Fatal("expected discord preset to exist")
	}
	if preset.Retry.MaxAttempts != 5 {
		t.Errorf("expected explicit max_attempts 5, got %d", preset.Retry.MaxAttempts)
	}
	if preset.RateLimit.Enabled {
		t.Error("expected rate_limit to remain disabled when not declared")
	}
}

func TestLoadDefaults_BuiltinPlatformPresets(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	for _, platform := range []string{"discord", "slack", "telegram", "teams"} {
		preset, ok := cfg.Policy.Presets[platform]
		if !ok {
			t.Fatalf("expected a builtin preset for %q", platform)
		}
		if !preset.RateLimit.Enabled {
			t.Errorf("expected %q's builtin rate limit to be enabled", platform)
		}
	}

	discord := cfg.Policy.Presets["discord"]
	slack := cfg.Policy.Presets["slack"]
	if discord.RateLimit.RefillWindow == slack.RateLimit.RefillWindow && discord.RateLimit.Capacity == slack.RateLimit.Capacity {
		t.Error("expected discord and slack to ship distinct rate limit tuples")
	}
}

func TestLoadDefaults_ExplicitPresetOverridesBuiltin(t *testing.T) {
	content := `{"policy": {"presets": {"discord": {"rate_limit": {"enabled": true, "capacity": 99}}}}}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Policy.Presets["discord"].RateLimit.Capacity != 99 {
		t.Errorf("expected an explicit preset to override the builtin, got %+v", cfg.Policy.Presets["discord"])
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
