package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryConfig holds tuning knobs for [Retry].
type RetryConfig struct {
	// MaxAttempts is the total number of calls, including the first.
	// Default: 3.
	MaxAttempts int

	// InitialBackoff is the wait after the first failure. It doubles after
	// every further failure. Default: 200ms.
	InitialBackoff time.Duration

	// MaxBackoff caps a single wait. Default: 10s.
	MaxBackoff time.Duration

	// Jitter adds up to this fraction of the wait at random, in [0, 1].
	Jitter float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	c.Jitter = min(max(c.Jitter, 0), 1)
	return c
}

// Backoff returns the wait before attempt n+1, after n failed attempts
// (n >= 1), without jitter.
func (c RetryConfig) Backoff(n int) time.Duration {
	c = c.withDefaults()
	d := c.InitialBackoff
	for i := 1; i < n && d < c.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, c.MaxBackoff)
}

// Retry calls fn until it succeeds, returns a [Permanent] error, the context
// ends, or MaxAttempts calls have failed. It returns the number of calls made
// and the last error; a permanent error is returned unwrapped.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) (attempts int, err error) {
	cfg = cfg.withDefaults()
	for attempts = 1; ; attempts++ {
		err = fn(ctx)
		if err == nil {
			return attempts, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return attempts, perm.err
		}
		if attempts >= cfg.MaxAttempts {
			return attempts, err
		}

		wait := cfg.Backoff(attempts)
		if cfg.Jitter > 0 {
			wait += time.Duration(rand.Float64() * cfg.Jitter * float64(wait))
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. [Retry] stops at once and the
// [CircuitBreaker] does not count it as a failure. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with [Permanent].
func IsPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}
