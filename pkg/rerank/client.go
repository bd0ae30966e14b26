package rerank

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
	defaultClientTimeout = 350 * time.Millisecond
	rerankPath           = "/rerank"
	clientBreakerName    = "rerank_service"
)

// ClientConfig tunes the rerank service client.
type ClientConfig struct {
	BaseURL         string
	Timeout         time.Duration
	CircuitFailures int
	CircuitCooldown time.Duration
}

// Client is the typed client Search uses for stage 3. Failures are classified
// so the orchestrator can fall back to its stage-2 ordering.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	breaker *resilience.Breaker
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewClient builds a rerank client with its own circuit breaker.
func NewClient(cfg ClientConfig, logger observability.Logger, metrics observability.MetricsClient) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	breaker := resilience.New(resilience.Config{
		Name:                clientBreakerName,
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

// Rerank posts a docset for reordering within the stage-3 budget.
func (c *Client) Rerank(ctx context.Context, tenant models.TenantContext, req models.RerankRequest) (*models.RerankResponse, error) {
	started := time.Now()
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.doRerank(ctx, tenant, req)
	})
	c.metrics.RecordOperation("rerank_client", "rerank", err == nil, time.Since(started).Seconds(), nil)
	if err != nil {
		c.logger.Warn("rerank call failed", map[string]interface{}{
			"tenant_id": tenant.TenantID,
			"docs":      len(req.Docset),
			"error":     err.Error(),
		})
		return nil, c.classify(err)
	}
	return result.(*models.RerankResponse), nil
}

func (c *Client) doRerank(ctx context.Context, tenant models.TenantContext, req models.RerankRequest) (*models.RerankResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req.TenantID = tenant.TenantID
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindBadInput, "encoding rerank request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+rerankPath, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "building rerank request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(models.HeaderTenantID, tenant.TenantID)
	if tenant.RequestID != "" {
		httpReq.Header.Set(models.HeaderRequestID, tenant.RequestID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		perr := apperrors.NewProviderError(clientBreakerName, apperrors.ClassifyProviderStatus(resp.StatusCode),
			fmt.Errorf("rerank status %d", resp.StatusCode))
		perr.StatusCode = resp.StatusCode
		return nil, perr
	}

	var decoded models.RerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.NewProviderError(clientBreakerName, apperrors.ProviderParseFailure, err)
	}
	return &decoded, nil
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
		return apperrors.Newf(apperrors.KindUnavailable, "rerank service unhealthy: status %d", resp.StatusCode)
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
		return apperrors.Wrap(err, apperrors.KindUnavailable, "rerank circuit open")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.KindTimeout, "rerank timed out")
	default:
		var perr *apperrors.ProviderError
		if errors.As(err, &perr) {
			return err
		}
		return apperrors.Wrap(err, apperrors.KindUnavailable, "rerank call failed")
	}
}
