// The embed service turns candidate profiles and queries into dense vectors
// and persists them in the tenant-scoped vector store. The socket opens
// before Postgres is up; writes that arrive early get a 503 envelope until
// background initialization publishes the store.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/talentmesh/talentmesh/internal/api"
	"github.com/talentmesh/talentmesh/internal/app"
	"github.com/talentmesh/talentmesh/pkg/cache"
	"github.com/talentmesh/talentmesh/pkg/config"
	"github.com/talentmesh/talentmesh/pkg/embedding"
	"github.com/talentmesh/talentmesh/pkg/embedding/providers"
	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/health"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/vectorstore"
)

// version is stamped by the build.
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, metrics, stopTracing := app.Telemetry("embed", cfg)
	logger.Info("starting embed service", map[string]interface{}{
		"version":     version,
		"environment": cfg.Environment,
		"provider":    cfg.Embedding.Provider,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker(health.Config{Version: version}, logger, metrics)
	engine, business := app.NewEngine(cfg, checker, logger, metrics)

	chain, err := providerChain(ctx, cfg)
	if err != nil {
		logger.Fatal("build embedding provider chain", map[string]interface{}{"error": err.Error()})
	}
	router, err := embedding.NewRouter(chain, embedding.RouterConfig{
		CircuitFailures: cfg.Embedding.CircuitFailures,
		CircuitCooldown: cfg.Embedding.CircuitCooldown,
	}, logger, metrics)
	if err != nil {
		logger.Fatal("build embedding router", map[string]interface{}{"error": err.Error()})
	}

	remote := cache.NewRedisCache(app.CacheSettings(cfg.Cache), logger, metrics)
	store := app.NewDeferredStore()

	service, err := embedding.NewService(embedding.ServiceConfig{
		LocalCacheEntries: cfg.Cache.LocalEmbedEntries,
		CacheTTL:          cfg.Cache.EmbedTTL,
	}, router, store, remote, logger, metrics)
	if err != nil {
		logger.Fatal("build embedding service", map[string]interface{}{"error": err.Error()})
	}
	api.NewEmbedAPI(service, logger).RegisterRoutes(business)

	go func() {
		err := checker.Bootstrap(ctx, health.BootstrapConfig{}, func(ctx context.Context) error {
			return connectStore(ctx, cfg, store, logger, metrics)
		})
		if err != nil {
			if apperrors.IsSchemaMismatch(err) {
				os.Exit(1)
			}
			return
		}
		registerChecks(checker, store, remote, router)
		checker.Start(ctx)
	}()

	srv := app.NewHTTPServer(cfg.Port, engine)
	if err := app.Serve(ctx, srv, logger); err != nil {
		logger.Error("server stopped with error", map[string]interface{}{"error": err.Error()})
	}

	_ = store.Close()
	_ = remote.Close()
	_ = router.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = stopTracing(shutdownCtx)
}

// providerChain builds the failover order for the configured provider.
// Primary-first deployments append Bedrock as the failover leg when a region
// is configured; the local provider never joins a remote chain.
func providerChain(ctx context.Context, cfg *config.Config) ([]providers.Provider, error) {
	e := cfg.Embedding

	switch e.Provider {
	case providers.NameLocal:
		return []providers.Provider{providers.NewLocalProvider(e.Dimensions)}, nil

	case providers.NameSecondary:
		secondary, err := providers.NewBedrockProvider(ctx, providers.Config{
			Region:         e.Bedrock.Region,
			Model:          e.Bedrock.EmbeddingModel,
			Dimensions:     e.Dimensions,
			RequestTimeout: e.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
		return []providers.Provider{secondary}, nil

	default:
		primary, err := providers.NewOpenAIProvider(providers.Config{
			APIKey:         e.OpenAI.APIKey,
			Endpoint:       e.OpenAI.BaseURL,
			Model:          e.OpenAI.Model,
			Dimensions:     e.Dimensions,
			RequestTimeout: e.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
		chain := []providers.Provider{primary}
		if e.Bedrock.Region != "" && e.Bedrock.EmbeddingModel != "" {
			secondary, err := providers.NewBedrockProvider(ctx, providers.Config{
				Region:         e.Bedrock.Region,
				Model:          e.Bedrock.EmbeddingModel,
				Dimensions:     e.Dimensions,
				RequestTimeout: e.RequestTimeout,
			})
			if err != nil {
				return nil, err
			}
			chain = append(chain, secondary)
		}
		return chain, nil
	}
}

// connectStore dials Postgres, runs schema initialization and publishes the
// store. Called from the bootstrap retry loop.
func connectStore(ctx context.Context, cfg *config.Config, store *app.DeferredStore, logger observability.Logger, metrics observability.MetricsClient) error {
	vs, err := vectorstore.New(ctx, vectorstore.Config{
		DSN:          cfg.Database.DSN(),
		Dimensions:   cfg.Embedding.Dimensions,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		AutoMigrate:  cfg.Database.AutoMigrate,
	}, logger, metrics)
	if err != nil {
		return err
	}
	if err := vs.Initialize(ctx); err != nil {
		_ = vs.Close()
		return err
	}
	store.Set(vs)
	return nil
}

func registerChecks(checker *health.Checker, store *app.DeferredStore, remote cache.Cache, router *embedding.Router) {
	checker.Register(health.Check{
		Name:     "postgres",
		Critical: true,
		Probe: func(ctx context.Context) error {
			_, err := store.HealthCheck(ctx)
			return err
		},
	})
	checker.Register(health.Check{
		Name: "redis",
		Probe: func(ctx context.Context) error {
			_, err := remote.HealthCheck(ctx)
			return err
		},
	})
	checker.Register(health.Check{
		Name: "embedding_providers",
		Probe: func(ctx context.Context) error {
			var firstErr error
			healthy := 0
			for _, err := range router.HealthCheck(ctx) {
				if err == nil {
					healthy++
				} else if firstErr == nil {
					firstErr = err
				}
			}
			if healthy == 0 {
				return firstErr
			}
			return nil
		},
	})
}
