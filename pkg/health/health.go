// Package health tracks named dependency probes and the service readiness
// lifecycle. Services open their listening socket immediately, run dependency
// initialization in the background with bounded retries, and report
// initializing from /ready until every critical dependency has come up.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/observability"
)

// Readiness states.
const (
	StateInitializing = "initializing"
	StateOK           = "ok"
	StateDegraded     = "degraded"
)

// Aggregate /health states. Readiness uses the states above; /health adds
// per-dependency detail and distinguishes unhealthy (critical down) from
// degraded (optional down).
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// Per-check statuses.
const (
	CheckHealthy   = "healthy"
	CheckUnhealthy = "unhealthy"
)

const (
	defaultCheckInterval = 30 * time.Second
	defaultCheckTimeout  = 5 * time.Second
)

// Check is one named dependency probe. Critical checks gate readiness;
// non-critical failures only degrade it.
type Check struct {
	Name     string
	Critical bool
	// Interval overrides the checker's re-check interval when positive.
	Interval time.Duration
	Probe    func(ctx context.Context) error
}

// Result is the recorded outcome of a check's last run.
type Result struct {
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	Critical    bool      `json:"critical"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"lastChecked"`
	DurationMS  int64     `json:"durationMs"`
}

// Readiness is the /ready body.
type Readiness struct {
	Status  string            `json:"status"`
	Reasons map[string]string `json:"reasons,omitempty"`
}

// Report is the /health body: aggregate state plus the per-dependency map.
type Report struct {
	Status        string            `json:"status"`
	Ready         bool              `json:"ready"`
	Version       string            `json:"version,omitempty"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	Checks        map[string]Result `json:"checks"`
}

// Config tunes the checker.
type Config struct {
	Version       string
	CheckInterval time.Duration
	CheckTimeout  time.Duration
}

// Checker holds registered checks, their last results and the readiness
// phase. Safe for concurrent use.
type Checker struct {
	cfg     Config
	logger  observability.Logger
	metrics observability.MetricsClient
	started time.Time

	mu      sync.RWMutex
	checks  map[string]Check
	results map[string]Result
	lastRun map[string]time.Time
	phase   string
	bootErr error
}

// NewChecker builds a checker in the initializing phase.
func NewChecker(cfg Config, logger observability.Logger, metrics observability.MetricsClient) *Checker {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = defaultCheckTimeout
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	c := &Checker{
		cfg:     cfg,
		logger:  logger.WithPrefix("health"),
		metrics: metrics,
		started: time.Now(),
		checks:  make(map[string]Check),
		results: make(map[string]Result),
		lastRun: make(map[string]time.Time),
		phase:   StateInitializing,
	}
	metrics.RecordGauge("service_ready", 0, nil)
	return c
}

// Register adds or replaces a named check. Dependencies register their checks
// once background initialization has built them.
func (c *Checker) Register(check Check) {
	if check.Name == "" || check.Probe == nil {
		return
	}
	c.mu.Lock()
	c.checks[check.Name] = check
	c.mu.Unlock()
	c.logger.Info("registered health check", map[string]interface{}{
		"check":    check.Name,
		"critical": check.Critical,
	})
}

// MarkReady transitions readiness out of initializing. Called by Bootstrap
// once dependency initialization succeeds.
func (c *Checker) MarkReady() {
	c.mu.Lock()
	c.phase = StateOK
	c.bootErr = nil
	c.mu.Unlock()
	c.metrics.RecordGauge("service_ready", 1, nil)
}

// MarkFailed records a terminal bootstrap failure. Readiness stays degraded
// with the error as the structured reason.
func (c *Checker) MarkFailed(err error) {
	c.mu.Lock()
	c.phase = StateDegraded
	c.bootErr = err
	c.mu.Unlock()
	c.metrics.RecordGauge("service_ready", 0, nil)
}

// Readiness reports the current readiness body and whether the service should
// receive traffic. Initializing and critical-dependency failures are not
// routable; optional-dependency failures degrade but keep serving.
func (c *Checker) Readiness() (Readiness, bool) {
	c.mu.RLock()
	phase := c.phase
	bootErr := c.bootErr
	results := c.copyResults()
	c.mu.RUnlock()

	switch phase {
	case StateInitializing:
		return Readiness{Status: StateInitializing}, false
	case StateDegraded:
		reasons := map[string]string{"startup": "dependency initialization failed"}
		if bootErr != nil {
			reasons["startup"] = bootErr.Error()
		}
		return Readiness{Status: StateDegraded, Reasons: reasons}, false
	}

	reasons := make(map[string]string)
	criticalDown := false
	for name, r := range results {
		if r.Status == CheckHealthy {
			continue
		}
		reasons[name] = r.Error
		if r.Critical {
			criticalDown = true
		}
	}
	if len(reasons) == 0 {
		return Readiness{Status: StateOK}, true
	}
	return Readiness{Status: StateDegraded, Reasons: reasons}, !criticalDown
}

// Snapshot returns the /health body from the latest recorded results. It does
// not run probes; the background loop keeps results fresh so the handler
// stays cheap under probe storms.
func (c *Checker) Snapshot() Report {
	c.mu.RLock()
	phase := c.phase
	results := c.copyResults()
	c.mu.RUnlock()

	status := HealthHealthy
	if phase == StateInitializing {
		status = StateInitializing
	}
	for _, r := range results {
		if r.Status == CheckHealthy {
			continue
		}
		if r.Critical {
			status = HealthUnhealthy
			break
		}
		status = HealthDegraded
	}
	if phase == StateDegraded {
		status = HealthUnhealthy
	}

	_, ready := c.Readiness()
	return Report{
		Status:        status,
		Ready:         ready,
		Version:       c.cfg.Version,
		UptimeSeconds: int64(time.Since(c.started).Seconds()),
		Checks:        results,
	}
}

func (c *Checker) copyResults() map[string]Result {
	out := make(map[string]Result, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// RunChecks executes every registered check concurrently and records the
// outcomes.
func (c *Checker) RunChecks(ctx context.Context) map[string]Result {
	c.mu.RLock()
	checks := make([]Check, 0, len(c.checks))
	for _, check := range c.checks {
		checks = append(checks, check)
	}
	c.mu.RUnlock()
	return c.run(ctx, checks)
}

func (c *Checker) run(ctx context.Context, checks []Check) map[string]Result {
	if len(checks) == 0 {
		return map[string]Result{}
	}

	results := make([]Result, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		i, check := i, check
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.probe(ctx, check)
		}()
	}
	wg.Wait()

	now := time.Now()
	out := make(map[string]Result, len(results))
	c.mu.Lock()
	for _, r := range results {
		c.results[r.Name] = r
		c.lastRun[r.Name] = now
		out[r.Name] = r
	}
	c.mu.Unlock()
	return out
}

func (c *Checker) probe(ctx context.Context, check Check) Result {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CheckTimeout)
	defer cancel()

	start := time.Now()
	err := check.Probe(ctx)
	elapsed := time.Since(start)

	result := Result{
		Name:        check.Name,
		Status:      CheckHealthy,
		Critical:    check.Critical,
		LastChecked: time.Now(),
		DurationMS:  elapsed.Milliseconds(),
	}
	statusValue := 1.0
	if err != nil {
		result.Status = CheckUnhealthy
		result.Error = err.Error()
		statusValue = 0
		c.logger.Warn("health check failed", map[string]interface{}{
			"check":    check.Name,
			"critical": check.Critical,
			"error":    err.Error(),
		})
	}
	c.metrics.RecordGauge("health_check_status", statusValue, map[string]string{"component": check.Name})
	c.metrics.RecordHistogram("health_check_duration_seconds", elapsed.Seconds(), map[string]string{"component": check.Name})
	return result
}

// Start runs the background re-check loop until ctx is cancelled. Checks
// re-run on their own intervals; checks registered later are picked up on the
// next tick.
func (c *Checker) Start(ctx context.Context) {
	c.RunChecks(ctx)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.runDue(ctx, now)
		}
	}
}

func (c *Checker) runDue(ctx context.Context, now time.Time) {
	c.mu.RLock()
	due := make([]Check, 0, len(c.checks))
	for name, check := range c.checks {
		interval := check.Interval
		if interval <= 0 {
			interval = c.cfg.CheckInterval
		}
		if now.Sub(c.lastRun[name]) >= interval {
			due = append(due, check)
		}
	}
	c.mu.RUnlock()
	if len(due) > 0 {
		c.run(ctx, due)
	}
}

// BootstrapConfig bounds the background initialization loop.
type BootstrapConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

func (b BootstrapConfig) withDefaults() BootstrapConfig {
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Second
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = 30 * time.Second
	}
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = 2 * time.Minute
	}
	if b.MaxRetries == 0 {
		b.MaxRetries = 10
	}
	return b
}

// Bootstrap runs init with bounded exponential retries and marks the checker
// ready on success. A schema mismatch aborts immediately and is returned so
// the caller can refuse to start; exhausting the retries leaves readiness
// degraded with the terminal error as the reason. Bootstrap blocks; run it in
// a goroutine next to the listening socket.
func (c *Checker) Bootstrap(ctx context.Context, cfg BootstrapConfig, init func(context.Context) error) error {
	cfg = cfg.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = cfg.MaxElapsedTime
	policy := backoff.WithContext(backoff.WithMaxRetries(b, cfg.MaxRetries), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := init(ctx)
		if err == nil {
			return nil
		}
		if apperrors.IsSchemaMismatch(err) {
			return backoff.Permanent(err)
		}
		c.logger.Warn("dependency initialization failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
		return err
	}, policy)

	if err == nil {
		c.MarkReady()
		c.logger.Info("dependencies initialized", map[string]interface{}{"attempts": attempt})
		return nil
	}

	c.MarkFailed(err)
	if apperrors.IsSchemaMismatch(err) {
		c.logger.Error("schema mismatch, refusing to serve", map[string]interface{}{"error": err.Error()})
	} else {
		c.logger.Error("dependency initialization exhausted retries", map[string]interface{}{
			"attempts": attempt,
			"error":    err.Error(),
		})
	}
	return err
}
