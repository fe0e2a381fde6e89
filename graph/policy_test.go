package graph

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"single attempt", RetryPolicy{MaxAttempts: 1}, false},
		{"with delays", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second}, false},
		{"zero attempts", RetryPolicy{MaxAttempts: 0}, true},
		{"cap below base", RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Millisecond}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidRetryPolicy) {
				t.Errorf("expected ErrInvalidRetryPolicy, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestComputeBackoff(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := 10 * time.Millisecond

	for attempt := 0; attempt < 5; attempt++ {
		d := computeBackoff(attempt, base, 50*time.Millisecond, rng)
		floor := base * (1 << attempt)
		if floor > 50*time.Millisecond {
			floor = 50 * time.Millisecond
		}
		if d < floor || d >= floor+base {
			t.Errorf("attempt %d: delay %v outside [%v, %v)", attempt, d, floor, floor+base)
		}
	}

	if d := computeBackoff(3, 0, 0, nil); d != 0 {
		t.Errorf("zero base = %v, want 0", d)
	}
}

func TestEngine_WithRetry(t *testing.T) {
	ctx := context.Background()
	transient := errors.New("database is locked")
	permanent := errors.New("no such table")

	newEngine := func(t *testing.T) *Engine {
		env := newTestEnv(t, WithStoreRetry(RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Retryable:   func(err error) bool { return errors.Is(err, transient) },
		}))
		return env.engine
	}

	t.Run("recovers", func(t *testing.T) {
		calls := 0
		err := newEngine(t).withRetry(ctx, func() error {
			calls++
			if calls == 1 {
				return transient
			}
			return nil
		})
		if err != nil || calls != 2 {
			t.Errorf("err=%v calls=%d, want nil after 2", err, calls)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := newEngine(t).withRetry(ctx, func() error {
			calls++
			return transient
		})
		if !errors.Is(err, transient) || calls != 3 {
			t.Errorf("err=%v calls=%d, want transient after 3", err, calls)
		}
	})

	t.Run("permanent error", func(t *testing.T) {
		calls := 0
		err := newEngine(t).withRetry(ctx, func() error {
			calls++
			return permanent
		})
		if !errors.Is(err, permanent) || calls != 1 {
			t.Errorf("err=%v calls=%d, want permanent after 1", err, calls)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := newEngine(t).withRetry(cctx, func() error { return transient })
		if !errors.Is(err, context.Canceled) || !errors.Is(err, transient) {
			t.Errorf("err = %v, want transient joined with context.Canceled", err)
		}
	})

	t.Run("no policy", func(t *testing.T) {
		env := newTestEnv(t)
		calls := 0
		_ = env.engine.withRetry(ctx, func() error {
			calls++
			return transient
		})
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}
