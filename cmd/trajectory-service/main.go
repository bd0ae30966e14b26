// The trajectory service serves rule-based career predictions for candidate
// batches. Candidates are read from the shared document store; the rules
// model runs in-process, so Postgres is the only external dependency.
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
	"github.com/talentmesh/talentmesh/pkg/config"
	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/health"
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

	logger, metrics, stopTracing := app.Telemetry("trajectory", cfg)
	logger.Info("starting trajectory service", map[string]interface{}{
		"version":      version,
		"environment":  cfg.Environment,
		"modelVersion": trajectory.RulesModelVersion,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker(health.Config{Version: version}, logger, metrics)
	engine, business := app.NewEngine(cfg, checker, logger, metrics)

	store := app.NewDeferredStore()
	predictor := trajectory.NewPredictor(logger)
	api.NewTrajectoryAPI(store, predictor, logger).RegisterRoutes(business)

	go func() {
		err := checker.Bootstrap(ctx, health.BootstrapConfig{}, func(ctx context.Context) error {
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
		})
		if err != nil {
			if apperrors.IsSchemaMismatch(err) {
				os.Exit(1)
			}
			return
		}
		checker.Register(health.Check{
			Name:     "postgres",
			Critical: true,
			Probe: func(ctx context.Context) error {
				_, err := store.HealthCheck(ctx)
				return err
			},
		})
		checker.Start(ctx)
	}()

	srv := app.NewHTTPServer(cfg.Port, engine)
	if err := app.Serve(ctx, srv, logger); err != nil {
		logger.Error("server stopped with error", map[string]interface{}{"error": err.Error()})
	}

	_ = store.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = stopTracing(shutdownCtx)
}
