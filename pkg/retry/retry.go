// Package retry provides bounded retry policies for adapter calls. Retries
// live in adapters with idempotent semantics only; orchestration layers never
// retry blindly.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy retries a function until it succeeds, aborts, or runs out of budget.
type Policy interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
	NextDelay(attempt int) time.Duration
}

// Config contains retry configuration.
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	Multiplier      float64
	MaxAttempts     int
}

// abortError marks an error as non-retryable.
type abortError struct {
	err error
}

func (a *abortError) Error() string { return a.err.Error() }
func (a *abortError) Unwrap() error { return a.err }

// Abort wraps err so the policy stops immediately and returns it.
func Abort(err error) error {
	if err == nil {
		return nil
	}
	return &abortError{err: err}
}

func unwrapAbort(err error) (error, bool) {
	var a *abortError
	if errors.As(err, &a) {
		return a.err, true
	}
	return err, false
}

// run drives the attempt loop shared by the policies. wait reports the pause
// before the next attempt, or false when the policy's time budget is spent.
func run(ctx context.Context, fn func(ctx context.Context) error, maxAttempts int, wait func(attempt int) (time.Duration, bool)) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if inner, aborted := unwrapAbort(err); aborted {
			return inner
		}
		if attempt >= maxAttempts {
			return err
		}
		delay, ok := wait(attempt)
		if !ok {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// ExponentialBackoff retries with exponentially growing delays and ±20%
// jitter, bounded by both an attempt count and an elapsed-time budget.
type ExponentialBackoff struct {
	initial    time.Duration
	ceiling    time.Duration
	timeBudget time.Duration
	multiplier float64
	attempts   int
}

// NewExponentialBackoff creates an exponential backoff policy, filling in
// defaults for zero values.
func NewExponentialBackoff(cfg Config) Policy {
	eb := &ExponentialBackoff{
		initial:    cfg.InitialInterval,
		ceiling:    cfg.MaxInterval,
		timeBudget: cfg.MaxElapsedTime,
		multiplier: cfg.Multiplier,
		attempts:   cfg.MaxAttempts,
	}
	if eb.initial <= 0 {
		eb.initial = 100 * time.Millisecond
	}
	if eb.ceiling <= 0 {
		eb.ceiling = 30 * time.Second
	}
	if eb.timeBudget <= 0 {
		eb.timeBudget = 5 * time.Minute
	}
	if eb.multiplier <= 1.0 {
		eb.multiplier = 2.0
	}
	if eb.attempts <= 0 {
		eb.attempts = 3
	}
	return eb
}

// Execute runs fn until success, abort, attempt exhaustion, elapsed-time
// exhaustion, or context cancellation.
func (e *ExponentialBackoff) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	deadline := time.Now().Add(e.timeBudget)
	return run(ctx, fn, e.attempts, func(attempt int) (time.Duration, bool) {
		if !time.Now().Before(deadline) {
			return 0, false
		}
		return e.NextDelay(attempt), true
	})
}

// NextDelay reports the jittered pause before the given attempt. Attempt 1
// waits the initial interval; each further attempt doubles it (or multiplies
// by the configured factor) up to the ceiling.
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := e.initial
	for i := 1; i < attempt && delay < e.ceiling; i++ {
		delay = time.Duration(float64(delay) * e.multiplier)
	}
	if delay > e.ceiling {
		delay = e.ceiling
	}
	return jitter(delay)
}

// jitter scales a delay by a uniform factor in [0.8, 1.2) so synchronized
// clients do not retry in lockstep.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
}

// FixedDelay retries with a constant delay between attempts.
type FixedDelay struct {
	delay    time.Duration
	attempts int
}

// NewFixedDelay creates a fixed delay policy.
func NewFixedDelay(delay time.Duration, maxAttempts int) Policy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &FixedDelay{delay: delay, attempts: maxAttempts}
}

// Execute runs fn until success, abort, attempt exhaustion, or cancellation.
func (f *FixedDelay) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return run(ctx, fn, f.attempts, func(int) (time.Duration, bool) {
		return f.delay, true
	})
}

// NextDelay returns the fixed delay.
func (f *FixedDelay) NextDelay(attempt int) time.Duration {
	return f.delay
}
