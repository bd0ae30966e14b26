package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff_SucceedsAfterRetries(t *testing.T) {
	policy := NewExponentialBackoff(Config{
		InitialInterval: time.Millisecond,
		MaxAttempts:     5,
	})

	calls := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExponentialBackoff_ExhaustsAttempts(t *testing.T) {
	policy := NewExponentialBackoff(Config{
		InitialInterval: time.Millisecond,
		MaxAttempts:     3,
	})

	calls := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("always failing")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestExponentialBackoff_AbortStopsImmediately(t *testing.T) {
	policy := NewExponentialBackoff(Config{
		InitialInterval: time.Millisecond,
		MaxAttempts:     5,
	})

	permanent := errors.New("bad input")
	calls := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return Abort(permanent)
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, permanent, err)
}

func TestExponentialBackoff_RespectsContextCancellation(t *testing.T) {
	policy := NewExponentialBackoff(Config{
		InitialInterval: 50 * time.Millisecond,
		MaxAttempts:     10,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Execute(ctx, func(ctx context.Context) error {
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExponentialBackoff_DelayGrowsWithJitter(t *testing.T) {
	policy := NewExponentialBackoff(Config{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
		MaxAttempts:     5,
	})

	for attempt := 1; attempt <= 4; attempt++ {
		base := float64(100*time.Millisecond) * pow2(attempt-1)
		d := policy.NextDelay(attempt)
		assert.InDelta(t, base, float64(d), base*0.21, "attempt %d", attempt)
	}
}

func pow2(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 2
	}
	return v
}

func TestFixedDelay(t *testing.T) {
	policy := NewFixedDelay(time.Millisecond, 4)

	calls := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("nope")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, time.Millisecond, policy.NextDelay(2))
}
