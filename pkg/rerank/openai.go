package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
)

const defaultChatEndpoint = "https://api.openai.com/v1"

// maxErrorBodyBytes bounds how much of an error response is read. Bodies are
// classified, never logged.
const maxErrorBodyBytes = 4 << 10

// OpenAIProvider is the secondary rerank backend. It speaks the OpenAI chat
// completions API, which self-hosted inference servers also expose, so
// Endpoint may point anywhere compatible.
type OpenAIProvider struct {
	cfg        ProviderConfig
	name       string
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
}

// NewOpenAIProvider creates the secondary provider. The API key may be empty
// for self-hosted endpoints that skip auth.
func NewOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	cfg.applyDefaults()
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultChatEndpoint
	}
	if cfg.Endpoint == defaultChatEndpoint && cfg.APIKey == "" {
		return nil, apperrors.New(apperrors.KindBadInput, "api key is required for the hosted endpoint")
	}
	if cfg.Model == "" {
		return nil, apperrors.New(apperrors.KindBadInput, "rerank model is required")
	}
	return &OpenAIProvider{
		cfg:  cfg,
		name: NameSecondary,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}, nil
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) ModelVersion() string { return p.cfg.Model }

// Rerank performs one chat completion with temperature 0.
func (p *OpenAIProvider) Rerank(ctx context.Context, jdText string, docs []models.RerankDoc) ([]models.RerankResult, error) {
	payload, err := json.Marshal(chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: buildPrompt(jdText, docs)},
		},
		MaxTokens: p.cfg.MaxTokens,
	})
	if err != nil {
		return nil, apperrors.NewProviderError(p.name, apperrors.ProviderInvalidInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.NewProviderError(p.name, apperrors.ProviderInvalidInput, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
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

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.NewProviderError(p.name, apperrors.ProviderParseFailure, err)
	}
	if len(decoded.Choices) == 0 || decoded.Choices[0].Message.Content == "" {
		return nil, apperrors.NewProviderError(p.name, apperrors.ProviderParseFailure, nil)
	}

	return parseResults(p.name, decoded.Choices[0].Message.Content, docs)
}

// HealthCheck asks for a minimal single-doc judgment.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	_, err := p.Rerank(ctx, "health probe", []models.RerankDoc{{CandidateID: "probe", RationaleInput: "health probe"}})
	return err
}

// parseRetryAfter reads the header's delay-seconds form. The HTTP-date form
// is rare on chat APIs and is ignored.
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
