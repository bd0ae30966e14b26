// The rerank service reorders stage-3 docsets with an LLM provider chain
// behind a deterministic cache. It has no Postgres dependency, so it is
// ready as soon as the providers are constructed; total provider failure
// degrades responses to input order rather than downtime.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/talentmesh/talentmesh/internal/api"
	"github.com/talentmesh/talentmesh/internal/app"
	"github.com/talentmesh/talentmesh/pkg/cache"
	"github.com/talentmesh/talentmesh/pkg/config"
	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/health"
	"github.com/talentmesh/talentmesh/pkg/middleware"
	"github.com/talentmesh/talentmesh/pkg/rerank"
)

// version is stamped by the build.
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, metrics, stopTracing := app.Telemetry("rerank", cfg)
	logger.Info("starting rerank service", map[string]interface{}{
		"version":     version,
		"environment": cfg.Environment,
		"maxDocs":     cfg.Rerank.MaxDocs,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker(health.Config{Version: version}, logger, metrics)
	engine, business := app.NewEngine(cfg, checker, logger, metrics)

	chain, err := providerChain(ctx, cfg)
	if err != nil {
		logger.Fatal("build rerank provider chain", map[string]interface{}{"error": err.Error()})
	}

	remote := cache.NewRedisCache(app.CacheSettings(cfg.Cache), logger, metrics)

	service := rerank.NewService(rerank.ServiceConfig{
		WeightsVersion:  cfg.Search.WeightsVersion,
		CacheTTL:        cfg.Cache.RerankTTL,
		MaxDocs:         cfg.Rerank.MaxDocs,
		CircuitFailures: cfg.Rerank.CircuitFailures,
		CircuitCooldown: cfg.Rerank.CircuitCooldown,
	}, chain, remote, logger, metrics)

	limiter := middleware.NewTenantRateLimiter("rerank", cfg.RateLimit.RerankRPS, cfg.RateLimit.TenantBurst, logger, metrics)
	api.NewRerankAPI(service, logger).RegisterRoutes(business.Group("", limiter.Middleware()))

	checker.Register(health.Check{
		Name: "redis",
		Probe: func(ctx context.Context) error {
			_, err := remote.HealthCheck(ctx)
			return err
		},
	})
	checker.MarkReady()
	go checker.Start(ctx)

	srv := app.NewHTTPServer(cfg.Port, engine)
	if err := app.Serve(ctx, srv, logger); err != nil {
		logger.Error("server stopped with error", map[string]interface{}{"error": err.Error()})
	}

	limiter.Close()
	_ = remote.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = stopTracing(shutdownCtx)
}

// providerChain builds Bedrock-first failover. An explicit rerank model
// overrides the Bedrock default; the OpenAI-compatible leg joins only when a
// key is configured.
func providerChain(ctx context.Context, cfg *config.Config) ([]rerank.Provider, error) {
	var chain []rerank.Provider

	model := cfg.Rerank.Model
	if model == "" {
		model = cfg.Embedding.Bedrock.RerankModel
	}

	if cfg.Embedding.Bedrock.Region != "" && model != "" {
		primary, err := rerank.NewBedrockProvider(ctx, rerank.ProviderConfig{
			Region:         cfg.Embedding.Bedrock.Region,
			Model:          model,
			RequestTimeout: cfg.Rerank.Timeout,
		})
		if err != nil {
			return nil, err
		}
		chain = append(chain, primary)
	}

	if cfg.Embedding.OpenAI.APIKey != "" {
		secondary, err := rerank.NewOpenAIProvider(rerank.ProviderConfig{
			APIKey:         cfg.Embedding.OpenAI.APIKey,
			Endpoint:       cfg.Embedding.OpenAI.BaseURL,
			Model:          cfg.Embedding.OpenAI.RerankModel,
			RequestTimeout: cfg.Rerank.Timeout,
		})
		if err != nil {
			return nil, err
		}
		chain = append(chain, secondary)
	}

	if len(chain) == 0 {
		return nil, apperrors.New(apperrors.KindBadInput, "no rerank providers configured")
	}
	return chain, nil
}
