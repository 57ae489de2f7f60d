package policy

import (
	"testing"
	"time"

	"github.com/kessler-labs/switchboard/internal/config"
)

func TestFromPreset(t *testing.T) {
	preset := config.PolicyPreset{
		RateLimit: config.RateLimitPreset{
			Enabled: true, Capacity: 5, Burst: 2,
			RefillWindow: config.Duration(time.Second), Action: "delay",
		},
		Retry: config.RetryPreset{
			MaxAttempts: 4, Strategy: "linear",
			InitialBackoff: config.Duration(100 * time.Millisecond),
			Step:           config.Duration(50 * time.Millisecond),
			MaxBackoff:     config.Duration(time.Second),
		},
		CircuitBreaker: config.CircuitBreakerPreset{
			Enabled: true, FailureThreshold: 5,
			FailureWindow:   config.Duration(30 * time.Second),
			RecoveryTimeout: config.Duration(30 * time.Second),
			SuccessThreshold: 2,
		},
		Timeout: config.TimeoutPreset{
			Request: config.Duration(10 * time.Second),
		},
	}

	cfg := FromPreset(preset)

	if cfg.RateLimit.Capacity != 5 || cfg.RateLimit.Action != ActionDelay {
		t.Errorf("unexpected rate limit config: %+v", cfg.RateLimit)
	}
	lb, ok := cfg.Retry.Backoff.(LinearBackoff)
	if !ok {
		t.Fatalf("expected LinearBackoff, got %T", cfg.Retry.Backoff)
	}
	if lb.Step != 50*time.Millisecond {
		t.Errorf("unexpected linear step: %s", lb.Step)
	}
	if cfg.CircuitBreaker.FailureThreshold != 5 {
		t.Errorf("unexpected failure threshold: %d", cfg.CircuitBreaker.FailureThreshold)
	}
	if cfg.Timeout.Request != 10*time.Second {
		t.Errorf("unexpected request timeout: %s", cfg.Timeout.Request)
	}
}

func TestOverridesFromConfig(t *testing.T) {
	overrides := []config.RoomOverride{
		{Pattern: "discord/*/ops-*", Preset: config.PolicyPreset{
			RateLimit: config.RateLimitPreset{Enabled: true, Capacity: 50, RefillWindow: config.Duration(time.Second)},
		}},
	}
	rp := OverridesFromConfig(overrides)
	if len(rp) != 1 || rp[0].Pattern != "discord/*/ops-*" || rp[0].Config.Capacity != 50 {
		t.Errorf("unexpected overrides: %+v", rp)
	}
}
