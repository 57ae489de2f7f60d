package policy

import (
	"github.com/kessler-labs/switchboard/internal/config"
	"github.com/kessler-labs/switchboard/internal/errs"
)

// FromPreset converts a config.PolicyPreset (the JSON-facing shape loaded
// from config.jsonc) into a policy.Config ready for NewExecutor.
func FromPreset(p config.PolicyPreset) Config {
	return Config{
		RateLimit: RateLimitConfig{
			Enabled:         p.RateLimit.Enabled,
			Capacity:        p.RateLimit.Capacity,
			Burst:           p.RateLimit.Burst,
			RefillWindow:    p.RateLimit.RefillWindow.Duration(),
			PerConversation: p.RateLimit.PerConversation,
			PerUser:         p.RateLimit.PerUser,
			Action:          Action(p.RateLimit.Action),
		},
		Retry: RetryConfig{
			MaxAttempts:      p.Retry.MaxAttempts,
			Backoff:          backoffFromPreset(p.Retry),
			RetryableCodes:   codesFromStrings(p.Retry.RetryableCodes),
			MaxTotalDuration: p.Retry.MaxTotalDuration.Duration(),
			Jitter:           p.Retry.Jitter,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          p.CircuitBreaker.Enabled,
			FailureThreshold: p.CircuitBreaker.FailureThreshold,
			FailureWindow:    p.CircuitBreaker.FailureWindow.Duration(),
			RecoveryTimeout:  p.CircuitBreaker.RecoveryTimeout.Duration(),
			SuccessThreshold: p.CircuitBreaker.SuccessThreshold,
			TriggerErrors:    codesFromStrings(p.CircuitBreaker.TriggerErrors),
		},
		Timeout: TimeoutConfig{
			Connection: p.Timeout.Connection.Duration(),
			Request:    p.Timeout.Request.Duration(),
			Operation:  p.Timeout.Operation.Duration(),
			Idle:       p.Timeout.Idle.Duration(),
		},
	}
}

func backoffFromPreset(r config.RetryPreset) BackoffStrategy {
	switch r.Strategy {
	case "linear":
		return LinearBackoff{Initial: r.InitialBackoff.Duration(), Step: r.Step.Duration(), Max: r.MaxBackoff.Duration()}
	case "fixed":
		return FixedBackoff{Delay: r.InitialBackoff.Duration()}
	default: // "exponential" and unset
		return ExponentialBackoff{Initial: r.InitialBackoff.Duration(), Max: r.MaxBackoff.Duration(), Multiplier: r.Multiplier}
	}
}

func codesFromStrings(codes []string) map[errs.Code]bool {
	if len(codes) == 0 {
		return nil
	}
	m := make(map[errs.Code]bool, len(codes))
	for _, c := range codes {
		m[errs.Code(c)] = true
	}
	return m
}

// OverridesFromConfig converts config.RoomOverride entries into RoomPattern
// entries for NewExecutor.
func OverridesFromConfig(overrides []config.RoomOverride) []RoomPattern {
	out := make([]RoomPattern, 0, len(overrides))
	for _, o := range overrides {
		out = append(out, RoomPattern{Pattern: o.Pattern, Config: FromPreset(o.Preset).RateLimit})
	}
	return out
}
