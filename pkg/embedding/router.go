// Package embedding implements the embed service: provider routing with
// failover, the upsert and query-embedding flows, and the two-tier query
// cache.
package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/talentmesh/talentmesh/pkg/embedding/providers"
	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/resilience"
	"github.com/talentmesh/talentmesh/pkg/retry"
)

// RouterConfig tunes failover behavior shared by all providers in the chain.
type RouterConfig struct {
	// AttemptsPerProvider bounds retries of one provider before failing
	// over to the next.
	AttemptsPerProvider int
	RetryInitialDelay   time.Duration
	RetryMaxDelay       time.Duration
	CircuitFailures     int
	CircuitCooldown     time.Duration
}

func (c *RouterConfig) applyDefaults() {
	if c.AttemptsPerProvider <= 0 {
		c.AttemptsPerProvider = 2
	}
	if c.RetryInitialDelay <= 0 {
		c.RetryInitialDelay = 50 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 400 * time.Millisecond
	}
	if c.CircuitFailures <= 0 {
		c.CircuitFailures = 5
	}
	if c.CircuitCooldown <= 0 {
		c.CircuitCooldown = 30 * time.Second
	}
}

// EmbedResult is a routed embedding with its provenance.
type EmbedResult struct {
	Vector       []float32
	Provider     string
	ModelVersion string
}

// Router walks an ordered provider chain. Each provider sits behind its own
// circuit breaker and bounded retry; when one is exhausted or its breaker is
// open, the next takes over.
type Router struct {
	chain    []providers.Provider
	breakers *resilience.Registry
	policy   retry.Policy
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewRouter builds a router over the chain in preference order. The chain
// must not be empty.
func NewRouter(chain []providers.Provider, cfg RouterConfig, logger observability.Logger, metrics observability.MetricsClient) (*Router, error) {
	if len(chain) == 0 {
		return nil, apperrors.New(apperrors.KindBadInput, "provider chain is empty")
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	breakerConfigs := make(map[string]resilience.Config, len(chain))
	for _, p := range chain {
		breakerConfigs["embed_provider_"+p.Name()] = resilience.Config{
			MaxRequests:         1,
			ConsecutiveFailures: uint32(cfg.CircuitFailures),
			Cooldown:            cfg.CircuitCooldown,
		}
	}
	registry := resilience.NewRegistry(breakerConfigs, logger, metrics)

	return &Router{
		chain:    chain,
		breakers: registry,
		policy: retry.NewExponentialBackoff(retry.Config{
			InitialInterval: cfg.RetryInitialDelay,
			MaxInterval:     cfg.RetryMaxDelay,
			Multiplier:      2.0,
			MaxAttempts:     cfg.AttemptsPerProvider,
		}),
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Embed returns the first successful embedding from the chain. Non-retryable
// provider failures skip straight to the next provider; if every provider
// fails, the last classified error is returned.
func (r *Router) Embed(ctx context.Context, text string) (*EmbedResult, error) {
	var lastErr error

	for _, provider := range r.chain {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindTimeout, "embedding budget exhausted")
		}

		breaker := r.breakers.Get("embed_provider_" + provider.Name())
		started := time.Now()

		var vector []float32
		_, err := breaker.Execute(ctx, func() (interface{}, error) {
			return nil, r.policy.Execute(ctx, func(ctx context.Context) error {
				v, embedErr := provider.Embed(ctx, text)
				if embedErr != nil {
					var provErr *apperrors.ProviderError
					if errors.As(embedErr, &provErr) && !provErr.Retryable() {
						return retry.Abort(embedErr)
					}
					return embedErr
				}
				vector = v
				return nil
			})
		})

		r.metrics.RecordOperation("embed_router", provider.Name(), err == nil, time.Since(started).Seconds(), nil)

		if err == nil {
			return &EmbedResult{
				Vector:       vector,
				Provider:     provider.Name(),
				ModelVersion: provider.ModelVersion(),
			}, nil
		}

		lastErr = err
		r.logger.Warn("embedding provider failed, trying next", map[string]interface{}{
			"provider":     provider.Name(),
			"circuit_open": resilience.ErrOpen(err),
			"error":        err.Error(),
		})
	}

	if apperrors.KindOf(lastErr) == apperrors.KindUnknown {
		return nil, apperrors.Wrap(lastErr, apperrors.KindProvider, "all embedding providers failed")
	}
	return nil, lastErr
}

// PreferredModelVersion is the model the chain head would use. The upsert
// short-circuit compares stored rows against it so a failover-written row
// gets refreshed once the primary recovers.
func (r *Router) PreferredModelVersion() string {
	return r.chain[0].ModelVersion()
}

// Dimensions reports the width the chain head emits.
func (r *Router) Dimensions() int {
	return r.chain[0].Dimensions()
}

// HealthCheck probes every provider and reports per-provider errors.
func (r *Router) HealthCheck(ctx context.Context) map[string]error {
	health := make(map[string]error, len(r.chain))
	for _, p := range r.chain {
		health[p.Name()] = p.HealthCheck(ctx)
	}
	return health
}

// Close closes every provider in the chain.
func (r *Router) Close() error {
	var firstErr error
	for _, p := range r.chain {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
