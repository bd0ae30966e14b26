// Package resilience wraps sony/gobreaker with logging and metrics. Breakers
// are per-provider and per-process; state is never shared across instances.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/talentmesh/talentmesh/pkg/observability"
)

// Config holds circuit breaker settings. A breaker opens after
// ConsecutiveFailures consecutive failures and probes again after Cooldown.
type Config struct {
	Name                string        `mapstructure:"name"`
	MaxRequests         uint32        `mapstructure:"max_requests"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	Cooldown            time.Duration `mapstructure:"cooldown"`
}

func (c Config) withDefaults(name string) Config {
	if c.Name == "" {
		c.Name = name
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	if c.Cooldown == 0 {
		c.Cooldown = 30 * time.Second
	}
	return c
}

// Breaker is a circuit breaker with observability hooks.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	name    string
	logger  observability.Logger
	metrics observability.MetricsClient
}

// New creates a breaker from config.
func New(config Config, logger observability.Logger, metrics observability.MetricsClient) *Breaker {
	config = config.withDefaults(config.Name)
	b := &Breaker{name: config.Name, logger: logger, metrics: metrics}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Timeout:     config.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			b.metrics.RecordCounter("circuit_breaker_state_changes_total", 1, map[string]string{
				"name": name, "from": from.String(), "to": to.String(),
			})
			b.metrics.RecordGauge("circuit_breaker_state", stateValue(to), map[string]string{"name": name})
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Execute runs fn under the breaker. Context cancellation is checked before
// the call; fn itself must honor ctx for in-flight cancellation.
func (b *Breaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.cb.Execute(fn)
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// IsOpen reports whether calls are currently rejected.
func (b *Breaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// ErrOpen reports whether err is the breaker's open/too-many-requests
// rejection rather than a wrapped call failure.
func ErrOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

// Registry holds named breakers created on demand with per-name configs.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	configs  map[string]Config
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewRegistry creates a registry. configs may be nil; unknown names get
// defaults.
func NewRegistry(configs map[string]Config, logger observability.Logger, metrics observability.MetricsClient) *Registry {
	if configs == nil {
		configs = make(map[string]Config)
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		configs:  configs,
		logger:   logger,
		metrics:  metrics,
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(r.configs[name].withDefaults(name), r.logger, r.metrics)
	r.breakers[name] = b
	return b
}
