// The search service runs the three-stage hybrid pipeline: query embedding
// via the embed service, pgvector+tsquery recall, signal scoring, then the
// optional rerank and shadow-mode trajectory stages. Its socket opens before
// Postgres is reachable; recall reports unavailable until the store is up.
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
	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/health"
	"github.com/talentmesh/talentmesh/pkg/middleware"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/rerank"
	"github.com/talentmesh/talentmesh/pkg/scoring"
	"github.com/talentmesh/talentmesh/pkg/search"
	"github.com/talentmesh/talentmesh/pkg/trajectory"
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

	logger, metrics, stopTracing := app.Telemetry("search", cfg)
	logger.Info("starting search service", map[string]interface{}{
		"version":        version,
		"environment":    cfg.Environment,
		"weightsVersion": cfg.Search.WeightsVersion,
		"rerankEnabled":  cfg.Rerank.Enabled,
		"mlEnabled":      cfg.ML.Enabled,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker(health.Config{Version: version}, logger, metrics)
	engine, business := app.NewEngine(cfg, checker, logger, metrics)

	embedClient := embedding.NewClient(embedding.ClientConfig{
		BaseURL:         cfg.Embedding.EmbedServiceURL,
		Timeout:         cfg.Search.EmbedTimeout,
		CircuitFailures: cfg.Embedding.CircuitFailures,
		CircuitCooldown: cfg.Embedding.CircuitCooldown,
	}, logger, metrics)

	remote := cache.NewRedisCache(app.CacheSettings(cfg.Cache), logger, metrics)
	store := app.NewDeferredStore()

	deps := search.Deps{
		Embed:    embedClient,
		Store:    store,
		Cache:    remote,
		Analyzer: scoring.NewAnalyzer(cfg.Search.ManagerKeywords, cfg.Search.ICKeywords, logger),
	}

	var rerankClient *rerank.Client
	if cfg.Rerank.Enabled {
		rerankClient = rerank.NewClient(rerank.ClientConfig{
			BaseURL:         cfg.Rerank.URL,
			Timeout:         cfg.Rerank.Timeout,
			CircuitFailures: cfg.Rerank.CircuitFailures,
			CircuitCooldown: cfg.Rerank.CircuitCooldown,
		}, logger, metrics)
		deps.Rerank = rerankClient
	}

	var mlClient *trajectory.Client
	var shadow *trajectory.ShadowRecorder
	if cfg.ML.Enabled {
		mlClient = trajectory.NewClient(trajectory.ClientConfig{
			BaseURL:         cfg.ML.URL,
			Timeout:         cfg.ML.Timeout,
			CircuitFailures: cfg.ML.CircuitFailures,
			CircuitCooldown: cfg.ML.CircuitCooldown,
		}, logger, metrics)
		deps.ML = mlClient
		if cfg.ML.ShadowMode {
			shadow = trajectory.NewShadowRecorder(trajectory.ShadowConfig{}, logger, metrics)
			deps.Shadow = shadow
		}
	}

	orchestrator, err := search.New(search.Config{
		WeightsVersion: cfg.Search.WeightsVersion,
		PerMethodLimit: cfg.Search.PerMethodLimit,
		Stage2Keep:     cfg.Search.Stage2Keep,
		Stage3Keep:     cfg.Search.Stage3Keep,
		ScoringWorkers: cfg.Search.ScoringWorkers,
		EmbedTimeout:   cfg.Search.EmbedTimeout,
		RecallTimeout:  cfg.Search.RecallTimeout,
		ScoringTimeout: cfg.Search.ScoringTimeout,
		RerankTimeout:  cfg.Rerank.SLA,
		MLTimeout:      cfg.ML.Timeout,
		RerankEnabled:  cfg.Rerank.Enabled,
		MLEnabled:      cfg.ML.Enabled,
		CachePurge:     cfg.Search.CachePurge,
		CacheTTL:       cfg.Cache.HybridTTL,
	}, deps, logger, metrics)
	if err != nil {
		logger.Fatal("build search orchestrator", map[string]interface{}{"error": err.Error()})
	}

	limiter := middleware.NewTenantRateLimiter("hybrid", cfg.RateLimit.HybridRPS, cfg.RateLimit.TenantBurst, logger, metrics)
	api.NewSearchAPI(orchestrator, logger).RegisterRoutes(business.Group("", limiter.Middleware()))

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
		registerChecks(checker, store, remote, embedClient, rerankClient, mlClient)
		checker.Start(ctx)
	}()

	srv := app.NewHTTPServer(cfg.Port, engine)
	if err := app.Serve(ctx, srv, logger); err != nil {
		logger.Error("server stopped with error", map[string]interface{}{"error": err.Error()})
	}

	if shadow != nil {
		shadow.Close()
	}
	limiter.Close()
	_ = store.Close()
	_ = remote.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = stopTracing(shutdownCtx)
}

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

// registerChecks wires the dependency probes. Postgres and the embed service
// gate readiness because stage 1 cannot run without them; rerank, ML and the
// cache only degrade it.
func registerChecks(checker *health.Checker, store *app.DeferredStore, remote cache.Cache, embedClient *embedding.Client, rerankClient *rerank.Client, mlClient *trajectory.Client) {
	checker.Register(health.Check{
		Name:     "postgres",
		Critical: true,
		Probe: func(ctx context.Context) error {
			_, err := store.HealthCheck(ctx)
			return err
		},
	})
	checker.Register(health.Check{
		Name:     "embed_service",
		Critical: true,
		Probe:    embedClient.HealthCheck,
	})
	checker.Register(health.Check{
		Name: "redis",
		Probe: func(ctx context.Context) error {
			_, err := remote.HealthCheck(ctx)
			return err
		},
	})
	if rerankClient != nil {
		checker.Register(health.Check{Name: "rerank_service", Probe: rerankClient.HealthCheck})
	}
	if mlClient != nil {
		checker.Register(health.Check{Name: "ml_service", Probe: mlClient.HealthCheck})
	}
}
