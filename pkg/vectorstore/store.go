// Package vectorstore owns the Postgres/pgvector persistence layer: the
// candidate embedding table, the denormalized candidate document read model,
// and the two recall paths (vector ANN and BM25 full text) that feed hybrid
// search.
package vectorstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/retry"
)

// Health classifies store availability for readiness reporting.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// Config holds connection and pool settings for the store.
type Config struct {
	DSN             string
	Dimensions      int
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
	QueryTimeout    time.Duration
}

func (c *Config) applyDefaults() {
	if c.Dimensions <= 0 {
		c.Dimensions = 768
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 5 * time.Second
	}
}

// Store is the pgvector-backed persistence layer shared by the embed and
// search services.
type Store struct {
	db      *sqlx.DB
	cfg     Config
	logger  observability.Logger
	metrics observability.MetricsClient
	retrier retry.Policy
}

// New connects to Postgres and configures the pool. It does not touch the
// schema; call Initialize before serving traffic.
func New(ctx context.Context, cfg Config, logger observability.Logger, metrics observability.MetricsClient) (*Store, error) {
	cfg.applyDefaults()

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindUnavailable, "connect to postgres")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return NewWithDB(db, cfg, logger, metrics), nil
}

// NewWithDB wraps an existing connection pool. Used by tests and by callers
// that manage the pool themselves.
func NewWithDB(db *sqlx.DB, cfg Config, logger observability.Logger, metrics observability.MetricsClient) *Store {
	cfg.applyDefaults()
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &Store{
		db:      db,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		retrier: retry.NewExponentialBackoff(retry.Config{
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     500 * time.Millisecond,
			MaxElapsedTime:  2 * time.Second,
			Multiplier:      2.0,
			MaxAttempts:     3,
		}),
	}
}

// Initialize runs migrations when enabled and then verifies the live schema
// against the configured dimensionality. A mismatch is fatal: serving with
// the wrong vector width would silently corrupt recall.
func (s *Store) Initialize(ctx context.Context) error {
	if s.cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			return apperrors.Wrap(err, apperrors.KindUnavailable, "run migrations")
		}
	}
	if err := s.verifySchema(ctx); err != nil {
		return err
	}
	s.logger.Info("vector store initialized", map[string]interface{}{
		"dimensions":   s.cfg.Dimensions,
		"auto_migrate": s.cfg.AutoMigrate,
	})
	return nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the pool for the migration runner.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// HealthCheck pings the database and probes one cheap schema invariant.
// Connectivity failures are degraded (the pool may recover); a schema
// failure on a live connection is unhealthy.
func (s *Store) HealthCheck(ctx context.Context) (Health, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return HealthDegraded, apperrors.Wrap(err, apperrors.KindUnavailable, "ping postgres")
	}

	var dim int
	if err := s.db.QueryRowContext(ctx, embeddingDimensionQuery, embeddingsTable).Scan(&dim); err != nil {
		return HealthUnhealthy, apperrors.Wrap(err, apperrors.KindSchemaMismatch, "read embedding dimension")
	}
	if dim != s.cfg.Dimensions {
		return HealthUnhealthy, apperrors.Newf(apperrors.KindSchemaMismatch,
			"embedding column is vector(%d), configured for %d", dim, s.cfg.Dimensions)
	}
	return HealthHealthy, nil
}

// withRetry runs fn, retrying transient connection-level failures. Query
// shape errors and constraint violations pass through immediately.
func (s *Store) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return s.retrier.Execute(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			s.logger.Warn("transient database error, retrying", map[string]interface{}{
				"op":    op,
				"error": err.Error(),
			})
			return err
		}
		return retry.Abort(err)
	})
}

// isTransient reports whether err looks like a connection-level failure that
// a fresh attempt on another pooled connection could survive. Postgres error
// classes 08 (connection exception), 53 (insufficient resources) and 57
// (operator intervention, e.g. failover) qualify.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return strings.HasPrefix(code, "08") ||
			strings.HasPrefix(code, "53") ||
			strings.HasPrefix(code, "57")
	}
	// lib/pq surfaces some connection drops as bare io errors.
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe")
}

// nullableTime converts a sql.NullTime into the pointer shape the models use.
func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
