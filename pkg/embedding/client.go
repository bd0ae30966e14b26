package embedding

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
	defaultClientTimeout = 150 * time.Millisecond
	queryPath            = "/embed/query"
	clientBreakerName    = "embed_service"
)

// ClientConfig tunes the embed service client.
type ClientConfig struct {
	BaseURL         string
	Timeout         time.Duration
	CircuitFailures int
	CircuitCooldown time.Duration
}

// Client is a typed client for the embed service's query endpoint. Search
// calls it on the hot path under the embed stage budget.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	breaker *resilience.Breaker
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewClient builds an embed client with its own circuit breaker.
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

// QueryEmbed fetches the query vector for jdText.
func (c *Client) QueryEmbed(ctx context.Context, tenant models.TenantContext, text string) (*models.QueryEmbedResponse, error) {
	started := time.Now()
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.doQueryEmbed(ctx, tenant, text)
	})
	c.metrics.RecordOperation("embed_client", "query", err == nil, time.Since(started).Seconds(), nil)
	if err != nil {
		c.logger.Warn("query embedding unavailable", map[string]interface{}{
			"tenant_id": tenant.TenantID,
			"error":     err.Error(),
		})
		return nil, c.classify(err)
	}
	return result.(*models.QueryEmbedResponse), nil
}

func (c *Client) doQueryEmbed(ctx context.Context, tenant models.TenantContext, text string) (*models.QueryEmbedResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(models.QueryEmbedRequest{TenantID: tenant.TenantID, Text: text})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindBadInput, "encoding query embed request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "building query embed request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(models.HeaderTenantID, tenant.TenantID)
	if tenant.RequestID != "" {
		req.Header.Set(models.HeaderRequestID, tenant.RequestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		perr := apperrors.NewProviderError(clientBreakerName, apperrors.ClassifyProviderStatus(resp.StatusCode),
			fmt.Errorf("query embed status %d", resp.StatusCode))
		perr.StatusCode = resp.StatusCode
		return nil, perr
	}

	var decoded models.QueryEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.NewProviderError(clientBreakerName, apperrors.ProviderParseFailure, err)
	}
	if len(decoded.Vector) == 0 {
		return nil, apperrors.NewProviderError(clientBreakerName, apperrors.ProviderParseFailure,
			errors.New("empty vector in response"))
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
		return apperrors.Newf(apperrors.KindUnavailable, "embed service unhealthy: status %d", resp.StatusCode)
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
		return apperrors.Wrap(err, apperrors.KindUnavailable, "embed circuit open")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.KindTimeout, "query embedding timed out")
	default:
		var perr *apperrors.ProviderError
		if errors.As(err, &perr) {
			return err
		}
		return apperrors.Wrap(err, apperrors.KindUnavailable, "query embedding failed")
	}
}
