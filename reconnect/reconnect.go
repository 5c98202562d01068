// Package reconnect implements reusable reconnect backoff policies. It
// generalizes the ad hoc atomic retryDelay/maxRetryDelay backoff katzenpost
// inlines into client2/connection.go's doConnect loop into a set of
// reusable, independently testable Policy values.
package reconnect

import (
	"context"
	"time"

	"github.com/kestrelsys/rexec/internal/logging"
	"github.com/kestrelsys/rexec/rerrors"
)

var log = logging.New("reconnect")

// Attempt is the reconnectable operation a Policy drives to success or
// exhaustion.
type Attempt func(ctx context.Context) error

// Policy drives repeated Attempt calls according to its backoff rule.
type Policy interface {
	// Run calls attempt until it succeeds or the policy's retry budget is
	// exhausted, returning the last error on exhaustion.
	Run(ctx context.Context, attempt Attempt) error
}

// Fail never retries: a single call, immediately reported as
// ConnectionAborted on failure.
type Fail struct{}

func (Fail) Run(ctx context.Context, attempt Attempt) error {
	if err := callWithTimeout(ctx, attempt, 0); err != nil {
		return rerrors.New(rerrors.ConnectionAborted, "reconnect: %v", err)
	}
	return nil
}

// FixedInterval retries at a constant interval.
type FixedInterval struct {
	Interval          time.Duration
	MaxRetries        *int // nil = unlimited
	PerAttemptTimeout time.Duration
}

func (p FixedInterval) Run(ctx context.Context, attempt Attempt) error {
	return runLoop(ctx, attempt, p.PerAttemptTimeout, p.MaxRetries, func(_ int, _ error) time.Duration {
		return p.Interval
	})
}

// ExponentialBackoff multiplies the sleep interval by Factor each attempt,
// clamped to MaxDuration if set.
type ExponentialBackoff struct {
	Base              time.Duration
	Factor            float64
	MaxDuration       *time.Duration
	MaxRetries        *int
	PerAttemptTimeout time.Duration
}

func (p ExponentialBackoff) Run(ctx context.Context, attempt Attempt) error {
	current := p.Base
	return runLoop(ctx, attempt, p.PerAttemptTimeout, p.MaxRetries, func(_ int, _ error) time.Duration {
		sleep := current
		next := time.Duration(float64(current) * p.Factor)
		if p.MaxDuration != nil && next > *p.MaxDuration {
			next = *p.MaxDuration
		}
		current = next
		return sleep
	})
}

// FibonacciBackoff follows a Fibonacci sequence of sleep durations
// (base, base, 2*base, 3*base, 5*base, ...), clamped to MaxDuration if set
//.
type FibonacciBackoff struct {
	Base              time.Duration
	MaxDuration       *time.Duration
	MaxRetries        *int
	PerAttemptTimeout time.Duration
}

func (p FibonacciBackoff) Run(ctx context.Context, attempt Attempt) error {
	prev, cur := p.Base, p.Base
	first := true
	return runLoop(ctx, attempt, p.PerAttemptTimeout, p.MaxRetries, func(_ int, _ error) time.Duration {
		if first {
			first = false
			return cur
		}
		sleep := cur
		next := prev + cur
		if p.MaxDuration != nil && next > *p.MaxDuration {
			next = *p.MaxDuration
		}
		prev, cur = cur, next
		return sleep
	})
}

// runLoop is the shared call/sleep/retry driver. nextSleep is invoked only
// between attempts (never before the first), and computes the delay before
// the upcoming retry. maxRetries caps the total number of attempts at
// exactly *maxRetries, checked before each attempt rather than after, the
// way a remaining-attempts counter is decremented once per failure and
// tested before the next one is made.
func runLoop(ctx context.Context, attempt Attempt, perAttemptTimeout time.Duration, maxRetries *int, nextSleep func(attemptIndex int, lastErr error) time.Duration) error {
	var lastErr error
	for i := 0; ; i++ {
		if maxRetries != nil && i >= *maxRetries {
			return lastErr
		}
		err := callWithTimeout(ctx, attempt, perAttemptTimeout)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Debugf("reconnect attempt %d failed: %v", i, err)
		if maxRetries != nil && i+1 >= *maxRetries {
			return lastErr
		}

		sleep := nextSleep(i, lastErr)
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(sleep):
		}
	}
}

func callWithTimeout(ctx context.Context, attempt Attempt, timeout time.Duration) error {
	if timeout <= 0 {
		return attempt(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return attempt(cctx)
}
