package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1"

// maxErrorBodyBytes bounds how much of an error response is read. Bodies are
// classified, never logged.
const maxErrorBodyBytes = 4 << 10

// OpenAIProvider is the primary embedding backend. It speaks the OpenAI
// embeddings API, which self-hosted inference servers also expose, so
// Endpoint may point anywhere compatible.
type OpenAIProvider struct {
	cfg        Config
	name       string
	httpClient *http.Client
}

type openAIRequest struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions *int   `json:"dimensions,omitempty"`
	User       string `json:"user,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIProvider creates the primary provider. The API key may be empty
// for self-hosted endpoints that skip auth.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	cfg.applyDefaults()
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultOpenAIEndpoint
	}
	if cfg.Endpoint == defaultOpenAIEndpoint && cfg.APIKey == "" {
		return nil, apperrors.New(apperrors.KindBadInput, "api key is required for the hosted endpoint")
	}
	if cfg.Model == "" {
		return nil, apperrors.New(apperrors.KindBadInput, "embedding model is required")
	}
	return &OpenAIProvider{
		cfg:  cfg,
		name: NamePrimary,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}, nil
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) ModelVersion() string { return p.cfg.Model }
func (p *OpenAIProvider) Dimensions() int      { return p.cfg.Dimensions }

// Embed performs one embeddings call. Transport failures, throttles and
// upstream errors come back as classified ProviderErrors so the router can
// decide between retry and failover.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := openAIRequest{
		Input: text,
		Model: p.cfg.Model,
	}
	// Models with Matryoshka truncation accept a target width; requesting it
	// here avoids storing wide vectors only to truncate later.
	if p.cfg.Dimensions > 0 {
		dims := p.cfg.Dimensions
		reqBody.Dimensions = &dims
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperrors.NewProviderError(p.name, apperrors.ProviderInvalidInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.NewProviderError(p.name, apperrors.ProviderInvalidInput, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	for k, v := range p.cfg.CustomHeaders {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.NewProviderError(p.name, apperrors.ProviderTimeout, ctx.Err())
		}
		return nil, apperrors.NewProviderError(p.name, apperrors.ProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.CopyN(io.Discard, resp.Body, maxErrorBodyBytes)
		provErr := &apperrors.ProviderError{
			Provider:   p.name,
			Reason:     apperrors.ClassifyProviderStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
		if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > 0 {
			provErr.RetryAfter = &retryAfter
		}
		return nil, provErr
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewProviderError(p.name, apperrors.ProviderParseFailure, err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, apperrors.NewProviderError(p.name, apperrors.ProviderParseFailure, nil)
	}
	return parsed.Data[0].Embedding, nil
}

// HealthCheck embeds a constant probe string.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	_, err := p.Embed(ctx, "health probe")
	return err
}

// Close is a no-op; the HTTP client holds no resources needing cleanup.
func (p *OpenAIProvider) Close() error { return nil }

// parseRetryAfter reads the header's delay-seconds form. The HTTP-date form
// is rare on embedding APIs and is ignored.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
