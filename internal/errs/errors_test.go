package errs

import (
	"errors"
	"testing"
	"time"
)

func TestNewDefaultsRetryable(t *testing.T) {
	e := New(RateLimited, "too many requests")
	if !e.Retryable {
		t.Error("expected rate_limited to default retryable=true")
	}

	e2 := New(NotFound, "no such user")
	if e2.Retryable {
		t.Error("expected not_found to default retryable=false")
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	e := Wrap(NetworkError, "send failed", cause)

	if !errors.Is(e, e) {
		t.Fatal("expected errors.Is to match itself")
	}
	if errors.Unwrap(e) != cause {
		t.Error("expected Unwrap to return the cause")
	}
}

func TestCodeOf(t *testing.T) {
	e := New(CircuitOpen, "breaker open")
	if CodeOf(e) != CircuitOpen {
		t.Errorf("CodeOf = %s, want circuit_open", CodeOf(e))
	}
	if CodeOf(errors.New("plain")) != Unknown {
		t.Error("expected plain errors to classify as unknown")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(Timeout, "deadline exceeded")) {
		t.Error("expected timeout to be retryable")
	}
	if IsRetryable(New(InvalidRequest, "bad payload")) {
		t.Error("expected invalid_request to not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("expected plain error to not be retryable")
	}
}

func TestWithRetryAfter(t *testing.T) {
	e := New(RateLimited, "slow down").WithRetryAfter(2 * time.Second)
	if e.RetryAfter != 2*time.Second {
		t.Errorf("RetryAfter = %s, want 2s", e.RetryAfter)
	}
}
