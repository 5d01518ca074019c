package remote

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Policy controls how many times a call is attempted and how long to wait
// between attempts. The wait before retry n (1-based) is 2^n * Unit.
type Policy struct {
	Attempts int
	Unit     time.Duration
	// RetryAll retries every error, not only RetryableError.
	RetryAll bool
	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy is three attempts with 2s then 4s between them.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Unit: time.Second}
}

// Backoff returns the wait before retry n (1-based).
func (p Policy) Backoff(n int) time.Duration {
	unit := p.Unit
	if unit <= 0 {
		unit = time.Second
	}
	if n > 10 {
		n = 10
	}
	return time.Duration(1<<uint(n)) * unit
}

// Do runs fn until it succeeds, the error is not retryable, attempts run out
// or ctx is done. The last error is returned unwrapped.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	return retry.Do(
		func() error { return fn(ctx) },
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return p.Backoff(int(n) + 1)
		}),
		retry.RetryIf(func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			return p.RetryAll || IsRetryable(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			if p.OnRetry != nil {
				p.OnRetry(int(n)+1, err)
			}
		}),
	)
}
