package policy

import (
	"context"
	"testing"
	"time"

	"github.com/kessler-labs/switchboard/internal/errs"
)

func TestRun_NoDeadlineWhenZero(t *testing.T) {
	result, err := Run(context.Background(), TimeoutConfig{}, TimeoutRequest, func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil || result != "ok" {
		t.Fatalf("expected pass-through, got %v %v", result, err)
	}
}

func TestRun_DeadlineExceeded(t *testing.T) {
	_, err := Run(context.Background(), TimeoutConfig{Operation: 20 * time.Millisecond}, TimeoutOperation, func(ctx context.Context) (any, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return "too slow", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	if errs.CodeOf(err) != errs.Timeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestRun_FastOperationSucceedsUnderDeadline(t *testing.T) {
	result, err := Run(context.Background(), TimeoutConfig{Operation: 200 * time.Millisecond}, TimeoutOperation, func(ctx context.Context) (any, error) {
		return "fast", nil
	})
	if err != nil || result != "fast" {
		t.Fatalf("expected success, got %v %v", result, err)
	}
}
