package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/talentmesh/talentmesh/pkg/observability"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterMaxAge          = time.Hour
)

// TenantRateLimiter applies a per-tenant token bucket to one route family.
// A non-positive rate disables it. Idle tenant buckets are evicted in the
// background so the map stays bounded under tenant churn.
type TenantRateLimiter struct {
	name  string
	rps   float64
	burst int

	mu       sync.Mutex
	limiters map[string]*limiterEntry

	logger  observability.Logger
	metrics observability.MetricsClient
	done    chan struct{}
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewTenantRateLimiter builds a limiter for one route family. name labels the
// metrics, e.g. "hybrid" or "rerank".
func NewTenantRateLimiter(name string, rps float64, burst int, logger observability.Logger, metrics observability.MetricsClient) *TenantRateLimiter {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	if burst <= 0 {
		burst = 1
	}
	rl := &TenantRateLimiter{
		name:     name,
		rps:      rps,
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
		logger:   logger.WithPrefix("ratelimit"),
		metrics:  metrics,
		done:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Middleware returns the gin handler. It must run after the Tenant
// middleware; requests without an identity pass through untouched since the
// identity middleware already rejected them.
func (rl *TenantRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rps <= 0 {
			c.Next()
			return
		}
		tc := FromContext(c)
		if tc.TenantID == "" {
			c.Next()
			return
		}

		limiter := rl.get(tc.TenantID)
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%g", rl.rps))
		if !limiter.Allow() {
			rl.metrics.RecordCounter("rate_limit_hits_total", 1, map[string]string{"limit": rl.name})
			c.Header("Retry-After", "1")
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))
			abortError(c, http.StatusTooManyRequests, "rate_limited", "tenant rate limit exceeded", tc.RequestID)
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		c.Next()
	}
}

// Close stops the background eviction loop.
func (rl *TenantRateLimiter) Close() {
	close(rl.done)
}

func (rl *TenantRateLimiter) get(tenantID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.limiters[tenantID]; ok {
		entry.lastAccess = time.Now()
		return entry.limiter
	}
	limiter := rate.NewLimiter(rate.Limit(rl.rps), rl.burst)
	rl.limiters[tenantID] = &limiterEntry{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (rl *TenantRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *TenantRateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for tenantID, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > limiterMaxAge {
			delete(rl.limiters, tenantID)
		}
	}
	rl.logger.Debug("rate limiter eviction completed", map[string]interface{}{
		"limit":           rl.name,
		"tracked_tenants": len(rl.limiters),
	})
}
