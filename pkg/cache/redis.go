package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/resilience"
	"github.com/talentmesh/talentmesh/pkg/retry"
)

// Config contains Redis connection settings and per-namespace TTLs.
type Config struct {
	Address              string
	Password             string
	DB                   int
	UseTLS               bool
	DialTimeout          time.Duration
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	CompressionThreshold int
	TTLs                 map[Namespace]time.Duration
}

// defaultTTL applies when a namespace has no configured TTL.
const defaultTTL = 10 * time.Minute

// ResilientClient wraps the Redis client with a circuit breaker and bounded
// retries so a flapping cache cannot stall request paths.
type ResilientClient struct {
	client  *redis.Client
	breaker *resilience.Breaker
	policy  retry.Policy
}

// NewResilientClient creates the wrapped client. The breaker opens after
// consecutive transport failures and the retry policy stays small: cache
// calls sit on the request path and must fail fast.
func NewResilientClient(cfg Config, logger observability.Logger, metrics observability.MetricsClient) *ResilientClient {
	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &ResilientClient{
		client: redis.NewClient(opts),
		breaker: resilience.New(resilience.Config{
			Name:                "redis_cache",
			ConsecutiveFailures: 5,
			Cooldown:            30 * time.Second,
		}, logger, metrics),
		policy: retry.NewExponentialBackoff(retry.Config{
			InitialInterval: 20 * time.Millisecond,
			MaxInterval:     200 * time.Millisecond,
			MaxElapsedTime:  time.Second,
			MaxAttempts:     2,
		}),
	}
}

// Get fetches raw bytes. redis.Nil is returned unwrapped so callers can
// distinguish a miss from a transport failure.
func (r *ResilientClient) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := r.breaker.Execute(ctx, func() (interface{}, error) {
		var val []byte
		err := r.policy.Execute(ctx, func(ctx context.Context) error {
			v, err := r.client.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return retry.Abort(err)
			}
			if err != nil {
				return err
			}
			val = v
			return nil
		})
		return val, err
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Set stores raw bytes with a TTL (SETEX semantics).
func (r *ResilientClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := r.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, r.policy.Execute(ctx, func(ctx context.Context) error {
			return r.client.Set(ctx, key, value, ttl).Err()
		})
	})
	return err
}

// Del removes keys.
func (r *ResilientClient) Del(ctx context.Context, keys ...string) error {
	_, err := r.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, r.client.Del(ctx, keys...).Err()
	})
	return err
}

// Ping checks connectivity without retry.
func (r *ResilientClient) Ping(ctx context.Context) error {
	_, err := r.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, r.client.Ping(ctx).Err()
	})
	return err
}

// Close closes the connection pool.
func (r *ResilientClient) Close() error {
	return r.client.Close()
}

// RedisCache implements Cache on the resilient client with JSON payloads and
// threshold compression.
type RedisCache struct {
	redis      *ResilientClient
	compressor *Compressor
	ttls       map[Namespace]time.Duration
	logger     observability.Logger
	metrics    observability.MetricsClient

	// decodeWarned dedupes deserialization warnings per key.
	decodeWarned sync.Map
}

// NewRedisCache creates the tenant-scoped cache adapter.
func NewRedisCache(cfg Config, logger observability.Logger, metrics observability.MetricsClient) *RedisCache {
	ttls := make(map[Namespace]time.Duration, len(cfg.TTLs))
	for ns, ttl := range cfg.TTLs {
		ttls[ns] = ttl
	}
	return &RedisCache{
		redis:      NewResilientClient(cfg, logger, metrics),
		compressor: NewCompressor(cfg.CompressionThreshold),
		ttls:       ttls,
		logger:     logger,
		metrics:    metrics,
	}
}

// TTL returns the configured TTL for a namespace.
func (c *RedisCache) TTL(ns Namespace) time.Duration {
	if ttl, ok := c.ttls[ns]; ok && ttl > 0 {
		return ttl
	}
	return defaultTTL
}

// Get implements Cache. Transport, decompression and JSON failures all
// degrade to a miss; deserialization failures are logged once per key.
func (c *RedisCache) Get(ctx context.Context, ns Namespace, key string, dest interface{}) bool {
	start := time.Now()
	raw, err := c.redis.Get(ctx, key)
	if err != nil {
		hit := false
		if err != redis.Nil {
			c.metrics.RecordCacheOperation("get", false, time.Since(start).Seconds())
			c.logger.Debug("cache get failed", map[string]interface{}{
				"namespace": string(ns), "error": err.Error(),
			})
			return hit
		}
		c.metrics.RecordCacheOperation("get", true, time.Since(start).Seconds())
		c.metrics.RecordCounter("cache_misses_total", 1, map[string]string{"namespace": string(ns)})
		return hit
	}

	data, err := c.compressor.Decompress(raw)
	if err == nil {
		err = json.Unmarshal(data, dest)
	}
	if err != nil {
		if _, warned := c.decodeWarned.LoadOrStore(key, struct{}{}); !warned {
			c.logger.Warn("cache entry undecodable, treating as miss", map[string]interface{}{
				"namespace": string(ns), "key": key, "error": err.Error(),
			})
		}
		c.metrics.RecordCacheOperation("get", false, time.Since(start).Seconds())
		return false
	}

	c.metrics.RecordCacheOperation("get", true, time.Since(start).Seconds())
	c.metrics.RecordCounter("cache_hits_total", 1, map[string]string{"namespace": string(ns)})
	return true
}

// Set implements Cache. Failures are logged and counted, never raised: a
// broken cache must not break the write path.
func (c *RedisCache) Set(ctx context.Context, ns Namespace, key string, value interface{}, ttl time.Duration) {
	start := time.Now()
	if ttl <= 0 {
		ttl = c.TTL(ns)
	}

	data, err := json.Marshal(value)
	if err == nil {
		data, err = c.compressor.Compress(data)
	}
	if err == nil {
		err = c.redis.Set(ctx, key, data, ttl)
	}
	if err != nil {
		c.metrics.RecordCacheOperation("set", false, time.Since(start).Seconds())
		c.logger.Warn("cache set failed", map[string]interface{}{
			"namespace": string(ns), "error": err.Error(),
		})
		return
	}
	c.metrics.RecordCacheOperation("set", true, time.Since(start).Seconds())
}

// Delete implements Cache.
func (c *RedisCache) Delete(ctx context.Context, ns Namespace, key string) error {
	return c.redis.Del(ctx, key)
}

// HealthCheck pings and runs a short-lived round-trip probe.
func (c *RedisCache) HealthCheck(ctx context.Context) (Status, error) {
	if err := c.redis.Ping(ctx); err != nil {
		return StatusDegraded, err
	}

	probe := Key(NamespaceMsgs, "health", "probe")
	if err := c.redis.Set(ctx, probe, []byte("ok"), 5*time.Second); err != nil {
		return StatusDegraded, err
	}
	if _, err := c.redis.Get(ctx, probe); err != nil {
		return StatusDegraded, err
	}
	return StatusHealthy, nil
}

// Close implements Cache.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}
