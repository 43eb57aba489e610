// Package resilience holds the retry helper shared by every retrying call
// site (signing, confirmation polling, price and indexer lookups, HTTP
// collaborators).
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// DefaultMaxDelay caps a single backoff sleep.
const DefaultMaxDelay = 30 * time.Second

type settings struct {
	maxDelay  time.Duration
	jitter    float64
	retryable func(error) bool
	onRetry   func(attempt int, err error, delay time.Duration)
}

// Option tunes RetryWithBackoff.
type Option func(*settings)

// WithMaxDelay caps each backoff sleep at d.
func WithMaxDelay(d time.Duration) Option {
	return func(s *settings) { s.maxDelay = d }
}

// WithJitter randomises each delay by ±frac (0..1).
func WithJitter(frac float64) Option {
	return func(s *settings) { s.jitter = frac }
}

// RetryIf limits retries to errors for which fn returns true. Other errors
// are returned immediately.
func RetryIf(fn func(error) bool) Option {
	return func(s *settings) { s.retryable = fn }
}

// OnRetry is called before each backoff sleep.
func OnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(s *settings) { s.onRetry = fn }
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// ExhaustedError is returned when every attempt failed or the context ended
// between attempts.
type ExhaustedError struct {
	Attempts  int
	Last      error
	Cancelled error
}

func (e *ExhaustedError) Error() string {
	if e.Cancelled != nil {
		return fmt.Sprintf("retry cancelled after %d attempt(s): %v (last error: %v)", e.Attempts, e.Cancelled, e.Last)
	}
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	if e.Cancelled != nil {
		return []error{e.Last, e.Cancelled}
	}
	return []error{e.Last}
}

// RetryWithBackoff calls op up to maxAttempts times. The delay before retry n
// (1-based) is baseDelay·2^(n-1), capped. op receives the 1-based attempt
// number. A nil error returns immediately; a Permanent error is unwrapped and
// returned without retrying.
func RetryWithBackoff[T any](
	ctx context.Context,
	op func(ctx context.Context, attempt int) (T, error),
	maxAttempts int,
	baseDelay time.Duration,
	opts ...Option,
) (T, error) {
	s := settings{maxDelay: DefaultMaxDelay}
	for _, o := range opts {
		o(&s)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := op(ctx, attempt)
		if err == nil {
			return res, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if s.retryable != nil && !s.retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		if ctx.Err() != nil {
			return zero, &ExhaustedError{Attempts: attempt, Last: lastErr, Cancelled: ctx.Err()}
		}

		delay := Backoff(attempt, baseDelay, s.maxDelay, s.jitter)
		if s.onRetry != nil {
			s.onRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, &ExhaustedError{Attempts: attempt, Last: lastErr, Cancelled: ctx.Err()}
		case <-timer.C:
		}
	}

	return zero, &ExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

// Backoff returns the sleep before retry number attempt (1-based).
func Backoff(attempt int, base, maxDelay time.Duration, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if maxDelay > 0 && d >= maxDelay {
			d = maxDelay
			break
		}
	}
	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	if jitter > 0 && d > 0 {
		span := float64(d) * jitter
		d = time.Duration(float64(d) - span + rand.Float64()*2*span)
	}
	return d
}
