package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmesh/talentmesh/pkg/observability"
)

func newTestBreaker(failures uint32, cooldown time.Duration) *Breaker {
	return New(Config{
		Name:                "test",
		ConsecutiveFailures: failures,
		Cooldown:            cooldown,
	}, observability.NewNoopLogger(), observability.NewNoopMetricsClient())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := newTestBreaker(3, time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, err := b.Execute(context.Background(), func() (interface{}, error) {
			return nil, boom
		})
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, b.State())
	assert.True(t, b.IsOpen())

	_, err := b.Execute(context.Background(), func() (interface{}, error) {
		return "never runs", nil
	})
	assert.True(t, ErrOpen(err))
}

func TestBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	b := newTestBreaker(3, time.Minute)
	boom := errors.New("boom")

	fail := func() (interface{}, error) { return nil, boom }
	ok := func() (interface{}, error) { return "ok", nil }

	_, _ = b.Execute(context.Background(), fail)
	_, _ = b.Execute(context.Background(), fail)
	_, err := b.Execute(context.Background(), ok)
	require.NoError(t, err)
	_, _ = b.Execute(context.Background(), fail)
	_, _ = b.Execute(context.Background(), fail)

	// Two failures after a success: still closed.
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_HalfOpensAfterCooldown(t *testing.T) {
	b := newTestBreaker(1, 20*time.Millisecond)

	_, _ = b.Execute(context.Background(), func() (interface{}, error) {
		return nil, errors.New("boom")
	})
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)

	result, err := b.Execute(context.Background(), func() (interface{}, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_ContextCancelledBeforeCall(t *testing.T) {
	b := newTestBreaker(3, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := b.Execute(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRegistry_ReturnsSameBreakerPerName(t *testing.T) {
	r := NewRegistry(map[string]Config{
		"rerank-primary": {ConsecutiveFailures: 2},
	}, observability.NewNoopLogger(), observability.NewNoopMetricsClient())

	a := r.Get("rerank-primary")
	b := r.Get("rerank-primary")
	assert.Same(t, a, b)

	other := r.Get("ml-trajectory")
	assert.NotSame(t, a, other)
	assert.Equal(t, "ml-trajectory", other.Name())
}
