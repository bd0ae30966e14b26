package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmesh/talentmesh/pkg/embedding/providers"
	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
)

// scriptedProvider fails with errs[i] on call i and succeeds once the script
// runs out.
type scriptedProvider struct {
	name   string
	model  string
	dims   int
	vector []float32
	errs   []error
	calls  int
}

func (p *scriptedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	out := make([]float32, len(p.vector))
	copy(out, p.vector)
	return out, nil
}

func (p *scriptedProvider) Name() string                          { return p.name }
func (p *scriptedProvider) ModelVersion() string                  { return p.model }
func (p *scriptedProvider) Dimensions() int                       { return p.dims }
func (p *scriptedProvider) HealthCheck(ctx context.Context) error { return nil }
func (p *scriptedProvider) Close() error                          { return nil }

func fastRouterConfig() RouterConfig {
	return RouterConfig{
		AttemptsPerProvider: 2,
		RetryInitialDelay:   time.Millisecond,
		RetryMaxDelay:       2 * time.Millisecond,
	}
}

func newTestRouter(t *testing.T, cfg RouterConfig, chain ...providers.Provider) *Router {
	t.Helper()
	router, err := NewRouter(chain, cfg, nil, nil)
	require.NoError(t, err)
	return router
}

func TestRouterEmptyChain(t *testing.T) {
	_, err := NewRouter(nil, RouterConfig{}, nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsBadInput(err))
}

func TestRouterFirstProviderWins(t *testing.T) {
	primary := &scriptedProvider{name: providers.NamePrimary, model: "m1", dims: 3, vector: []float32{1, 0, 0}}
	secondary := &scriptedProvider{name: providers.NameSecondary, model: "m2", dims: 3, vector: []float32{0, 1, 0}}
	router := newTestRouter(t, fastRouterConfig(), primary, secondary)

	result, err := router.Embed(context.Background(), "go engineer")
	require.NoError(t, err)

	assert.Equal(t, providers.NamePrimary, result.Provider)
	assert.Equal(t, "m1", result.ModelVersion)
	assert.Equal(t, []float32{1, 0, 0}, result.Vector)
	assert.Zero(t, secondary.calls)
}

func TestRouterRetriesBeforeFailingOver(t *testing.T) {
	primary := &scriptedProvider{
		name: providers.NamePrimary, model: "m1", dims: 3, vector: []float32{1, 0, 0},
		errs: []error{errors.New("transient")},
	}
	router := newTestRouter(t, fastRouterConfig(), primary)

	result, err := router.Embed(context.Background(), "go engineer")
	require.NoError(t, err)

	assert.Equal(t, 2, primary.calls, "second attempt should succeed on the same provider")
	assert.Equal(t, providers.NamePrimary, result.Provider)
}

func TestRouterFailsOverWhenPrimaryExhausted(t *testing.T) {
	primary := &scriptedProvider{
		name: providers.NamePrimary, model: "m1", dims: 3,
		errs: []error{errors.New("down"), errors.New("down")},
	}
	secondary := &scriptedProvider{name: providers.NameSecondary, model: "m2", dims: 3, vector: []float32{0, 1, 0}}
	router := newTestRouter(t, fastRouterConfig(), primary, secondary)

	result, err := router.Embed(context.Background(), "go engineer")
	require.NoError(t, err)

	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, providers.NameSecondary, result.Provider)
	assert.Equal(t, "m2", result.ModelVersion)
}

func TestRouterNonRetryableSkipsStraightToNext(t *testing.T) {
	primary := &scriptedProvider{
		name: providers.NamePrimary, model: "m1", dims: 3,
		errs: []error{
			apperrors.NewProviderError(providers.NamePrimary, apperrors.ProviderInvalidInput, errors.New("bad key")),
			apperrors.NewProviderError(providers.NamePrimary, apperrors.ProviderInvalidInput, errors.New("bad key")),
		},
	}
	secondary := &scriptedProvider{name: providers.NameSecondary, model: "m2", dims: 3, vector: []float32{0, 1, 0}}
	router := newTestRouter(t, fastRouterConfig(), primary, secondary)

	result, err := router.Embed(context.Background(), "go engineer")
	require.NoError(t, err)

	assert.Equal(t, 1, primary.calls, "non-retryable failures must not burn retry attempts")
	assert.Equal(t, providers.NameSecondary, result.Provider)
}

func TestRouterAllProvidersFail(t *testing.T) {
	primary := &scriptedProvider{
		name: providers.NamePrimary, model: "m1", dims: 3,
		errs: []error{errors.New("down"), errors.New("down")},
	}
	secondary := &scriptedProvider{
		name: providers.NameSecondary, model: "m2", dims: 3,
		errs: []error{errors.New("down"), errors.New("down")},
	}
	router := newTestRouter(t, fastRouterConfig(), primary, secondary)

	_, err := router.Embed(context.Background(), "go engineer")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindProvider, apperrors.KindOf(err))
}

func TestRouterContextCancellation(t *testing.T) {
	primary := &scriptedProvider{name: providers.NamePrimary, model: "m1", dims: 3, vector: []float32{1, 0, 0}}
	router := newTestRouter(t, fastRouterConfig(), primary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := router.Embed(ctx, "go engineer")
	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))
	assert.Zero(t, primary.calls)
}

func TestRouterChainHeadAccessors(t *testing.T) {
	primary := &scriptedProvider{name: providers.NamePrimary, model: "m1", dims: 768}
	secondary := &scriptedProvider{name: providers.NameSecondary, model: "m2", dims: 1024}
	router := newTestRouter(t, fastRouterConfig(), primary, secondary)

	assert.Equal(t, "m1", router.PreferredModelVersion())
	assert.Equal(t, 768, router.Dimensions())
}
