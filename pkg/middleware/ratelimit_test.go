package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
)

func newLimitedRouter(rl *TenantRateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Tenant(HeaderNames{}, observability.NewNoopLogger()), rl.Middleware())
	router.POST("/v1/search/hybrid", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestTenantRateLimiterAllowsThenLimits(t *testing.T) {
	metrics := newCaptureMetrics()
	rl := NewTenantRateLimiter("hybrid", 1, 1, observability.NewNoopLogger(), metrics)
	t.Cleanup(rl.Close)
	router := newLimitedRouter(rl)

	do := func(tenant string) *httptest.ResponseRecorder {
		return performRequest(router, http.MethodPost, "/v1/search/hybrid", map[string]string{
			models.HeaderTenantID: tenant,
		})
	}

	first := do("tenant-a")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	second := do("tenant-a")
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, second.Header().Get("X-RateLimit-Reset"))
	envelope := decodeEnvelope(t, second)
	assert.Equal(t, "rate_limited", envelope.Error.Code)

	// Buckets are per tenant, other tenants are unaffected.
	other := do("tenant-b")
	assert.Equal(t, http.StatusOK, other.Code)

	require.Len(t, metrics.counters, 1)
	assert.Equal(t, "rate_limit_hits_total", metrics.counters[0].name)
	assert.Equal(t, "hybrid", metrics.counters[0].labels["limit"])
}

func TestTenantRateLimiterDisabledWhenZero(t *testing.T) {
	rl := NewTenantRateLimiter("hybrid", 0, 1, observability.NewNoopLogger(), observability.NewNoopMetricsClient())
	t.Cleanup(rl.Close)
	router := newLimitedRouter(rl)

	for i := 0; i < 5; i++ {
		w := performRequest(router, http.MethodPost, "/v1/search/hybrid", map[string]string{
			models.HeaderTenantID: "tenant-a",
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestTenantRateLimiterBurstAboveRate(t *testing.T) {
	rl := NewTenantRateLimiter("hybrid", 1, 3, observability.NewNoopLogger(), observability.NewNoopMetricsClient())
	t.Cleanup(rl.Close)
	router := newLimitedRouter(rl)

	headers := map[string]string{models.HeaderTenantID: "tenant-a"}
	for i := 0; i < 3; i++ {
		w := performRequest(router, http.MethodPost, "/v1/search/hybrid", headers)
		require.Equal(t, http.StatusOK, w.Code, "request %d within burst", i+1)
	}
	w := performRequest(router, http.MethodPost, "/v1/search/hybrid", headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestTenantRateLimiterSkipsAnonymousRequests(t *testing.T) {
	// Without the identity middleware there is no tenant to key the bucket
	// on; admission is left to the identity layer.
	rl := NewTenantRateLimiter("hybrid", 1, 1, observability.NewNoopLogger(), observability.NewNoopMetricsClient())
	t.Cleanup(rl.Close)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(rl.Middleware())
	router.POST("/v1/search/hybrid", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := performRequest(router, http.MethodPost, "/v1/search/hybrid", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestTenantRateLimiterEvictsIdleBuckets(t *testing.T) {
	rl := NewTenantRateLimiter("hybrid", 10, 5, observability.NewNoopLogger(), observability.NewNoopMetricsClient())
	t.Cleanup(rl.Close)

	rl.get("tenant-a")
	rl.get("tenant-b")

	rl.mu.Lock()
	rl.limiters["tenant-a"].lastAccess = time.Now().Add(-2 * limiterMaxAge)
	rl.mu.Unlock()

	rl.evictIdle()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.limiters, "tenant-a")
	assert.Contains(t, rl.limiters, "tenant-b")
}
