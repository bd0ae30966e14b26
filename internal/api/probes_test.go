package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/health"
)

func newProbeRouter(checker *health.Checker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterProbes(router, checker)
	return router
}

func TestReadyReflectsLifecycle(t *testing.T) {
	checker := health.NewChecker(health.Config{Version: "2.3.0"}, nil, nil)
	router := newProbeRouter(checker)

	w := doJSON(t, router, http.MethodGet, "/ready", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body health.Readiness
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, health.StateInitializing, body.Status)

	checker.MarkReady()
	w = doJSON(t, router, http.MethodGet, "/ready", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, health.StateOK, body.Status)
}

func TestReadyReportsBootFailure(t *testing.T) {
	checker := health.NewChecker(health.Config{}, nil, nil)
	checker.MarkFailed(apperrors.New(apperrors.KindUnavailable, "redis unreachable"))
	router := newProbeRouter(checker)

	w := doJSON(t, router, http.MethodGet, "/ready", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body health.Readiness
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, health.StateDegraded, body.Status)
	assert.Contains(t, body.Reasons["startup"], "redis unreachable")
}

func TestReadyCriticalCheckGatesTraffic(t *testing.T) {
	checker := health.NewChecker(health.Config{}, nil, nil)
	checker.MarkReady()
	checker.Register(health.Check{
		Name:     "postgres",
		Critical: true,
		Probe: func(context.Context) error {
			return apperrors.New(apperrors.KindUnavailable, "connection refused")
		},
	})
	checker.RunChecks(context.Background())
	router := newProbeRouter(checker)

	w := doJSON(t, router, http.MethodGet, "/ready", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body health.Readiness
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, health.StateDegraded, body.Status)
	assert.Contains(t, body.Reasons["postgres"], "connection refused")
}

func TestReadyNonCriticalCheckStaysRoutable(t *testing.T) {
	checker := health.NewChecker(health.Config{}, nil, nil)
	checker.MarkReady()
	checker.Register(health.Check{
		Name:     "ml_trajectory",
		Critical: false,
		Probe: func(context.Context) error {
			return apperrors.New(apperrors.KindUnavailable, "circuit open")
		},
	})
	checker.RunChecks(context.Background())
	router := newProbeRouter(checker)

	w := doJSON(t, router, http.MethodGet, "/ready", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body health.Readiness
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, health.StateDegraded, body.Status)
	assert.Contains(t, body.Reasons["ml_trajectory"], "circuit open")
}

func TestHealthReportsDependencyMap(t *testing.T) {
	checker := health.NewChecker(health.Config{Version: "2.3.0"}, nil, nil)
	checker.MarkReady()
	checker.Register(health.Check{
		Name:     "redis",
		Critical: false,
		Probe:    func(context.Context) error { return nil },
	})
	checker.Register(health.Check{
		Name:     "postgres",
		Critical: true,
		Probe: func(context.Context) error {
			return apperrors.New(apperrors.KindUnavailable, "connection refused")
		},
	})
	checker.RunChecks(context.Background())
	router := newProbeRouter(checker)

	w := doJSON(t, router, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, health.HealthUnhealthy, report.Status)
	assert.False(t, report.Ready)
	assert.Equal(t, "2.3.0", report.Version)
	require.Contains(t, report.Checks, "redis")
	require.Contains(t, report.Checks, "postgres")
	assert.Equal(t, health.CheckHealthy, report.Checks["redis"].Status)
	assert.Equal(t, health.CheckUnhealthy, report.Checks["postgres"].Status)
}

func TestHealthDegradedStaysOK(t *testing.T) {
	checker := health.NewChecker(health.Config{}, nil, nil)
	checker.MarkReady()
	checker.Register(health.Check{
		Name:     "ml_trajectory",
		Critical: false,
		Probe: func(context.Context) error {
			return apperrors.New(apperrors.KindUnavailable, "circuit open")
		},
	})
	checker.RunChecks(context.Background())
	router := newProbeRouter(checker)

	w := doJSON(t, router, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, health.HealthDegraded, report.Status)
	assert.True(t, report.Ready)
}

func TestMetricsEndpointServesPrometheus(t *testing.T) {
	checker := health.NewChecker(health.Config{}, nil, nil)
	router := newProbeRouter(checker)

	w := doJSON(t, router, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
