// Package app assembles the pieces every service binary shares: telemetry,
// the gin engine with its middleware stack, and the HTTP server lifecycle.
// Each cmd main composes these with its own domain dependencies.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/talentmesh/talentmesh/internal/api"
	"github.com/talentmesh/talentmesh/pkg/cache"
	"github.com/talentmesh/talentmesh/pkg/config"
	"github.com/talentmesh/talentmesh/pkg/health"
	"github.com/talentmesh/talentmesh/pkg/middleware"
	"github.com/talentmesh/talentmesh/pkg/observability"
)

// shutdownGrace bounds connection draining after a termination signal.
const shutdownGrace = 30 * time.Second

// Telemetry builds the logger, metrics client and tracer for one service.
// The service name doubles as the Prometheus subsystem, so it must stay
// underscore-safe (embed, search, rerank, trajectory).
func Telemetry(service string, cfg *config.Config) (observability.Logger, observability.MetricsClient, func(context.Context) error) {
	logger := observability.NewStandardLoggerWithLevel(service, observability.ParseLogLevel(cfg.LogLevel))
	metrics := observability.NewPrometheusMetricsClient("talentmesh", service)
	stopTracing := observability.InitTracing("talentmesh-"+service, cfg.Environment)
	return logger, metrics, stopTracing
}

// NewEngine builds the shared HTTP surface. Probes register on the bare
// engine so load balancers reach them without identity headers; business
// routes go on the returned group, behind tenant resolution.
func NewEngine(cfg *config.Config, checker *health.Checker, logger observability.Logger, metrics observability.MetricsClient) (*gin.Engine, gin.IRouter) {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		middleware.Recovery(logger),
		middleware.Tracing(),
		middleware.AccessLog(logger),
		middleware.Metrics(metrics),
	)
	api.RegisterProbes(engine, checker)
	business := engine.Group("", middleware.Tenant(HeaderNames(cfg), logger))
	return engine, business
}

// HeaderNames maps the configured gateway header names onto the middleware
// contract.
func HeaderNames(cfg *config.Config) middleware.HeaderNames {
	return middleware.HeaderNames{
		Tenant:    cfg.Headers.Tenant,
		RequestID: cfg.Headers.RequestID,
		TraceID:   cfg.Headers.TraceID,
		UserID:    cfg.Headers.UserID,
	}
}

// CacheSettings maps the flat cache section onto the Redis client's
// per-namespace TTL table.
func CacheSettings(c config.CacheConfig) cache.Config {
	return cache.Config{
		Address:              c.Address,
		Password:             c.Password,
		DB:                   c.DB,
		UseTLS:               c.UseTLS,
		DialTimeout:          c.DialTimeout,
		ReadTimeout:          c.ReadTimeout,
		WriteTimeout:         c.WriteTimeout,
		CompressionThreshold: c.CompressionThreshold,
		TTLs: map[cache.Namespace]time.Duration{
			cache.NamespaceEmbed:    c.EmbedTTL,
			cache.NamespaceHybrid:   c.HybridTTL,
			cache.NamespaceRerank:   c.RerankTTL,
			cache.NamespaceEvidence: c.EvidenceTTL,
			cache.NamespaceMsgs:     c.MsgsTTL,
		},
	}
}

// NewHTTPServer wraps the engine with the timeouts every service shares.
func NewHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}

// Serve opens the listener immediately and runs until ctx is cancelled,
// then drains in-flight connections for up to shutdownGrace. Dependency
// bootstrap happens elsewhere; the socket must not wait for it.
func Serve(ctx context.Context, srv *http.Server, logger observability.Logger) error {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, draining connections", nil)
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
