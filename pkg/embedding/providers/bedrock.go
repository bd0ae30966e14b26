package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
)

// bedrockInvoker is the slice of the Bedrock runtime client we use, split
// out so tests can stub invocations.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider is the secondary embedding backend, calling Amazon Titan
// text embeddings through the Bedrock runtime.
type BedrockProvider struct {
	cfg    Config
	name   string
	client bedrockInvoker
}

type titanEmbeddingRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize,omitempty"`
}

type titanEmbeddingResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// NewBedrockProvider creates the secondary provider using the default AWS
// credential chain.
func NewBedrockProvider(ctx context.Context, cfg Config) (*BedrockProvider, error) {
	cfg.applyDefaults()
	if cfg.Region == "" {
		return nil, apperrors.New(apperrors.KindBadInput, "aws region is required")
	}
	if cfg.Model == "" {
		return nil, apperrors.New(apperrors.KindBadInput, "embedding model is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(&http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		}),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "load aws config")
	}

	return &BedrockProvider{
		cfg:    cfg,
		name:   NameSecondary,
		client: bedrockruntime.NewFromConfig(awsCfg),
	}, nil
}

// newBedrockProviderWithClient wires a stub invoker for tests.
func newBedrockProviderWithClient(cfg Config, client bedrockInvoker) *BedrockProvider {
	cfg.applyDefaults()
	return &BedrockProvider{cfg: cfg, name: NameSecondary, client: client}
}

func (p *BedrockProvider) Name() string         { return p.name }
func (p *BedrockProvider) ModelVersion() string { return p.cfg.Model }
func (p *BedrockProvider) Dimensions() int      { return p.cfg.Dimensions }

// Embed invokes the Titan embedding model once.
func (p *BedrockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	titanReq := titanEmbeddingRequest{InputText: text}
	// Titan v2 accepts a target width; v1 rejects unknown fields, so only
	// send it for v2 models.
	if strings.Contains(p.cfg.Model, "v2") && p.cfg.Dimensions > 0 {
		titanReq.Dimensions = p.cfg.Dimensions
	}

	body, err := json.Marshal(titanReq)
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

	var titanResp titanEmbeddingResponse
	if err := json.Unmarshal(out.Body, &titanResp); err != nil {
		return nil, apperrors.NewProviderError(p.name, apperrors.ProviderParseFailure, err)
	}
	if len(titanResp.Embedding) == 0 {
		return nil, apperrors.NewProviderError(p.name, apperrors.ProviderParseFailure, nil)
	}
	return titanResp.Embedding, nil
}

// HealthCheck embeds a constant probe string.
func (p *BedrockProvider) HealthCheck(ctx context.Context) error {
	_, err := p.Embed(ctx, "health probe")
	return err
}

// Close is a no-op; the SDK client holds no resources needing cleanup.
func (p *BedrockProvider) Close() error { return nil }

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
