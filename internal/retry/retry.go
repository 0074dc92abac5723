// Package retry provides a bounded retry helper with exponential backoff,
// shared by the content-generation client and the webhook dispatcher.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds a retry loop. Delays double from BaseDelay on every
// failed attempt, capped at MaxDelay when MaxDelay is non-zero.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the original delivery schedule: 3 total attempts
// with 1s, 2s, 4s between them.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

// permanentError marks an error as not retryable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do stops immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// delayError carries a server-suggested delay (e.g. a 429 RetryInfo).
type delayError struct {
	err   error
	delay time.Duration
}

func (e *delayError) Error() string { return e.err.Error() }
func (e *delayError) Unwrap() error { return e.err }

// After wraps err with a delay to use instead of the backoff schedule for
// the next attempt.
func After(err error, delay time.Duration) error {
	if err == nil {
		return nil
	}
	return &delayError{err: err, delay: delay}
}

// Do runs fn up to p.MaxAttempts times, sleeping between attempts. It
// returns nil on the first success, the underlying error once attempts
// are exhausted or a Permanent error is seen, and ctx.Err() if the
// context ends during a backoff sleep. The attempt counter passed to fn
// starts at 1.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		wait := delay
		var de *delayError
		if errors.As(err, &de) && de.delay > 0 {
			wait = de.delay
		}
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			wait = p.MaxDelay
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
		delay *= 2
	}
	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
