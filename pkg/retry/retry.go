// Package retry runs operations with exponential backoff, retrying only errors
// that the errors package classifies as transient.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/c360/fleetbus/errors"
)

// Policy controls how often and how fast an operation is retried.
type Policy struct {
	MaxAttempts  int           // total attempts, at least 1
	InitialDelay time.Duration // wait before the second attempt
	MaxDelay     time.Duration // cap on the wait between attempts
	Multiplier   float64       // growth of the wait per attempt
	Jitter       bool          // add up to 25% to each wait
}

// Quick suits request-path operations such as sending a reply.
func Quick() Policy {
	return Policy{
		MaxAttempts:  4,
		InitialDelay: 25 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2,
		Jitter:       true,
	}
}

// Persistent suits background work that should ride out a broker restart.
func Persistent() Policy {
	return Policy{
		MaxAttempts:  30,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

func (p Policy) validate() error {
	switch {
	case p.InitialDelay < 0 || p.MaxDelay < 0:
		return errors.Detail(errors.ErrInvalidConfig, "retry delays must not be negative")
	case p.Multiplier < 1:
		return errors.Detail(errors.ErrInvalidConfig, "retry multiplier must be at least 1, got %v", p.Multiplier)
	case p.MaxDelay < p.InitialDelay:
		return errors.Detail(errors.ErrInvalidConfig, "retry max delay %v is below initial delay %v", p.MaxDelay, p.InitialDelay)
	}
	return nil
}

// Delay returns the wait after the given failed attempt (1-based), without jitter.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, returns a non-transient error, ctx is done, or
// the attempts run out. The last error is returned wrapped with the attempt count.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	if err := p.validate(); err != nil {
		return errors.WrapFatal(err, "retry", "Do", "validate policy")
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.IsTransient(lastErr) || errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := p.Delay(attempt)
		if p.Jitter && wait >= 4 {
			wait += rand.N(wait / 4)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after %d attempt(s): %w: %w", attempt, ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return fmt.Errorf("retry gave up after %d attempt(s): %w", p.MaxAttempts, lastErr)
}
