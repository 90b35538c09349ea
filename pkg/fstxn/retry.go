package fstxn

import (
	"context"
	"errors"
	"syscall"
	"time"
)

// RetryPolicy bounds retries of transient filesystem errors. Safety
// violations and ordinary failures (missing files, permission bits)
// are never retried; only errors the kernel reports as momentary are.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// Backoff is the pause between attempts.
	Backoff time.Duration
}

// DefaultRetryPolicy retries transient errors twice more after the
// initial attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 50 * time.Millisecond}
}

// do runs fn, retrying transient errors up to the policy's bound. The
// context is checked between attempts; cancellation surfaces as the
// context's error.
func (p RetryPolicy) do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(p.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
	}
	return newIO("exhausted retries", err)
}

// isTransient reports whether err is a momentary kernel condition worth
// retrying.
func isTransient(err error) bool {
	return errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EBUSY)
}
