// Package trajectory holds both sides of career-trajectory inference: the
// typed HTTP client Search uses to reach the ML service, the rule-based
// predictor that service falls back on, and the shadow recorder that
// compares the two without letting ML influence ranking.
package trajectory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/resilience"
)

const (
	defaultTimeout = 100 * time.Millisecond
	predictPath    = "/trajectory/predict"
	providerName   = "ml_trajectory"
)

// ClientConfig tunes the ML trajectory client.
type ClientConfig struct {
	BaseURL         string
	Timeout         time.Duration
	CircuitFailures int
	CircuitCooldown time.Duration
}

// Client is a typed client for the trajectory inference service. Predictions
// are advisory: every failure surfaces as an error plus nil predictions, and
// callers degrade rather than fail the request.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	breaker *resilience.Breaker
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewClient builds a trajectory client with its own circuit breaker.
func NewClient(cfg ClientConfig, logger observability.Logger, metrics observability.MetricsClient) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	breaker := resilience.New(resilience.Config{
		Name:                providerName,
		ConsecutiveFailures: uint32(cfg.CircuitFailures),
		Cooldown:            cfg.CircuitCooldown,
	}, logger, metrics)

	return &Client{
		baseURL: cfg.BaseURL,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger,
		metrics: metrics,
	}
}

// Predict fetches predictions for a batch of candidates. The returned map is
// keyed by candidate id; ids the model had no answer for are absent. On any
// failure the map is nil.
func (c *Client) Predict(ctx context.Context, tenantID string, candidateIDs []string) (map[string]*models.TrajectoryPrediction, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	started := time.Now()
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.doPredict(ctx, tenantID, candidateIDs)
	})
	c.metrics.RecordOperation("trajectory_client", "predict", err == nil, time.Since(started).Seconds(), nil)
	if err != nil {
		c.logger.Warn("trajectory prediction unavailable", map[string]interface{}{
			"tenant_id":  tenantID,
			"candidates": len(candidateIDs),
			"error":      err.Error(),
		})
		return nil, c.classify(err)
	}
	return result.(map[string]*models.TrajectoryPrediction), nil
}

func (c *Client) doPredict(ctx context.Context, tenantID string, candidateIDs []string) (map[string]*models.TrajectoryPrediction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(models.PredictRequest{TenantID: tenantID, CandidateIDs: candidateIDs})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindBadInput, "encoding predict request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "building predict request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(models.HeaderTenantID, tenantID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		perr := apperrors.NewProviderError(providerName, apperrors.ClassifyProviderStatus(resp.StatusCode),
			fmt.Errorf("predict status %d", resp.StatusCode))
		perr.StatusCode = resp.StatusCode
		return nil, perr
	}

	var decoded models.PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.NewProviderError(providerName, apperrors.ProviderParseFailure, err)
	}
	return decoded.Predictions, nil
}

// HealthCheck probes the service's health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return apperrors.Newf(apperrors.KindUnavailable, "trajectory service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// BreakerState exposes the circuit state for readiness reporting.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func (c *Client) classify(err error) error {
	switch {
	case resilience.ErrOpen(err):
		return apperrors.Wrap(err, apperrors.KindUnavailable, "trajectory circuit open")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.KindTimeout, "trajectory prediction timed out")
	default:
		var perr *apperrors.ProviderError
		if errors.As(err, &perr) {
			return err
		}
		return apperrors.Wrap(err, apperrors.KindUnavailable, "trajectory prediction failed")
	}
}
