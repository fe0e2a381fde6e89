package graph

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// RetryPolicy retries store writes that fail transiently, such as a locked
// SQLite database or a dropped MySQL connection.
//
// Only the bulk discontinue and node compare-and-set writes are retried.
// Conflicts are decisions, not failures, and are never retried.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts including the first.
	// Must be >= 1. A value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff between retries.
	BaseDelay time.Duration

	// MaxDelay caps the exponential component. Zero means no cap.
	MaxDelay time.Duration

	// Retryable decides whether an error is transient. If nil, nothing is
	// retried.
	Retryable func(error) bool
}

// Validate checks if the RetryPolicy configuration is valid.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// WithStoreRetry retries transient store failures according to rp.
func WithStoreRetry(rp RetryPolicy) Option {
	return func(cfg *engineConfig) error {
		if err := rp.Validate(); err != nil {
			return err
		}
		cfg.retry = &rp
		return nil
	}
}

// computeBackoff returns min(base*2^attempt, maxDelay) plus jitter in
// [0, base).
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	exponentialDelay := base * (1 << attempt)
	if maxDelay > 0 && exponentialDelay > maxDelay {
		exponentialDelay = maxDelay
	}

	if base <= 0 {
		return exponentialDelay
	}
	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}
	return exponentialDelay + jitter
}

// withRetry runs op until it succeeds, fails permanently, runs out of
// attempts or ctx is done.
func (e *Engine) withRetry(ctx context.Context, op func() error) error {
	err := op()
	rp := e.retry
	if err == nil || rp == nil || rp.Retryable == nil {
		return err
	}
	for attempt := 1; attempt < rp.MaxAttempts && rp.Retryable(err); attempt++ {
		timer := time.NewTimer(computeBackoff(attempt-1, rp.BaseDelay, rp.MaxDelay, nil))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
		if err = op(); err == nil {
			return nil
		}
	}
	return err
}
