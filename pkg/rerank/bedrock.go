package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
)

// anthropicVersion is the Bedrock messages API revision Claude models accept.
const anthropicVersion = "bedrock-2023-05-31"

// bedrockInvoker is the slice of the Bedrock runtime client we use, split
// out so tests can stub invocations.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider is the primary rerank backend: a Claude model on the
// Bedrock runtime, called with temperature 0 so repeated misses on the same
// key produce the same ordering.
type BedrockProvider struct {
	cfg    ProviderConfig
	name   string
	client bedrockInvoker
}

type claudeContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeMessage struct {
	Role    string              `json:"role"`
	Content []claudeContentPart `json:"content"`
}

type claudeMessagesRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	Messages         []claudeMessage `json:"messages"`
}

type claudeMessagesResponse struct {
	Content    []claudeContentPart `json:"content"`
	StopReason string              `json:"stop_reason"`
}

// NewBedrockProvider creates the primary provider using the default AWS
// credential chain.
func NewBedrockProvider(ctx context.Context, cfg ProviderConfig) (*BedrockProvider, error) {
	cfg.applyDefaults()
	if cfg.Region == "" {
		return nil, apperrors.New(apperrors.KindBadInput, "aws region is required")
	}
	if cfg.Model == "" {
		return nil, apperrors.New(apperrors.KindBadInput, "rerank model is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "load aws config")
	}

	return &BedrockProvider{
		cfg:    cfg,
		name:   NamePrimary,
		client: bedrockruntime.NewFromConfig(awsCfg),
	}, nil
}

// newBedrockProviderWithClient wires a stub invoker for tests.
func newBedrockProviderWithClient(cfg ProviderConfig, client bedrockInvoker) *BedrockProvider {
	cfg.applyDefaults()
	return &BedrockProvider{cfg: cfg, name: NamePrimary, client: client}
}

func (p *BedrockProvider) Name() string         { return p.name }
func (p *BedrockProvider) ModelVersion() string { return p.cfg.Model }

// Rerank invokes the model once and parses its judgment.
func (p *BedrockProvider) Rerank(ctx context.Context, jdText string, docs []models.RerankDoc) ([]models.RerankResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	body, err := json.Marshal(claudeMessagesRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        p.cfg.MaxTokens,
		Messages: []claudeMessage{{
			Role:    "user",
			Content: []claudeContentPart{{Type: "text", Text: buildPrompt(jdText, docs)}},
		}},
	})
	if err != nil {
		return nil, apperrors.NewProviderError(p.name, apperrors.ProviderInvalidInput, err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.cfg.Model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, classifyBedrockError(p.name, err)
	}

	var decoded claudeMessagesResponse
	if err := json.Unmarshal(out.Body, &decoded); err != nil {
		return nil, apperrors.NewProviderError(p.name, apperrors.ProviderParseFailure, err)
	}

	var text strings.Builder
	for _, part := range decoded.Content {
		if part.Type == "text" {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return nil, apperrors.NewProviderError(p.name, apperrors.ProviderParseFailure, nil)
	}

	return parseResults(p.name, text.String(), docs)
}

// HealthCheck asks for a minimal single-doc judgment.
func (p *BedrockProvider) HealthCheck(ctx context.Context) error {
	_, err := p.Rerank(ctx, "health probe", []models.RerankDoc{{CandidateID: "probe", RationaleInput: "health probe"}})
	return err
}

// classifyBedrockError maps SDK failures onto the provider error taxonomy.
// The SDK wraps responses in typed errors whose names carry the class.
func classifyBedrockError(provider string, err error) *apperrors.ProviderError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.NewProviderError(provider, apperrors.ProviderTimeout, err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "ThrottlingException"), strings.Contains(msg, "TooManyRequests"):
		return apperrors.NewProviderError(provider, apperrors.ProviderRateLimited, err)
	case strings.Contains(msg, "ValidationException"), strings.Contains(msg, "AccessDenied"):
		return apperrors.NewProviderError(provider, apperrors.ProviderInvalidInput, err)
	case strings.Contains(msg, "ModelTimeoutException"):
		return apperrors.NewProviderError(provider, apperrors.ProviderTimeout, err)
	case strings.Contains(msg, "ServiceUnavailable"), strings.Contains(msg, "InternalServer"):
		return apperrors.NewProviderError(provider, apperrors.ProviderUpstream5xx, err)
	default:
		return apperrors.NewProviderError(provider, apperrors.ProviderUnavailable, err)
	}
}
