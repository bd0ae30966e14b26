// Command migrate applies pending schema migrations and reports the
// resulting version. Deploy pipelines run it before rolling service pods
// when ENABLE_AUTO_MIGRATE is off.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/talentmesh/talentmesh/pkg/config"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/vectorstore"
)

func main() {
	check := flag.Bool("check", false, "print the current schema version without applying anything")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := observability.NewStandardLoggerWithLevel("migrate", observability.ParseLogLevel(cfg.LogLevel))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := vectorstore.New(ctx, vectorstore.Config{
		DSN:          cfg.Database.DSN(),
		Dimensions:   cfg.Embedding.Dimensions,
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	}, logger, nil)
	if err != nil {
		logger.Fatal("connect to postgres", map[string]interface{}{"error": err.Error()})
	}
	defer func() { _ = store.Close() }()

	if *check {
		version, dirty, err := store.MigrationVersion(ctx)
		if err != nil {
			logger.Fatal("read schema version", map[string]interface{}{"error": err.Error()})
		}
		logger.Info("schema version", map[string]interface{}{"version": version, "dirty": dirty})
		if dirty {
			os.Exit(1)
		}
		return
	}

	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("apply migrations", map[string]interface{}{"error": err.Error()})
	}
	version, dirty, err := store.MigrationVersion(ctx)
	if err != nil {
		logger.Fatal("read schema version", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("schema up to date", map[string]interface{}{"version": version, "dirty": dirty})
}
