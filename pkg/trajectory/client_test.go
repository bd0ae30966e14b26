package trajectory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
)

func newTestClient(t *testing.T, cfg ClientConfig, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg.BaseURL = server.URL
	if cfg.Timeout == 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	return NewClient(cfg, observability.NewNoopLogger(), observability.NewNoopMetricsClient())
}

func TestPredictDecodesPredictions(t *testing.T) {
	var gotPath, gotTenant string
	var gotBody models.PredictRequest
	client := newTestClient(t, ClientConfig{}, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTenant = r.Header.Get(models.HeaderTenantID)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(models.PredictResponse{
			Predictions: map[string]*models.TrajectoryPrediction{
				"cand-1": {
					NextRole:           "Staff Engineer",
					NextRoleConfidence: 0.82,
					TenureMonths:       models.TenureRange{Min: 18, Max: 30},
					Hireability:        0.7,
				},
			},
			ModelVersion: "ml-2024-08",
		})
	})

	predictions, err := client.Predict(context.Background(), "tenant-a", []string{"cand-1", "cand-2"})
	require.NoError(t, err)

	assert.Equal(t, "/trajectory/predict", gotPath)
	assert.Equal(t, "tenant-a", gotTenant)
	assert.Equal(t, []string{"cand-1", "cand-2"}, gotBody.CandidateIDs)

	require.Contains(t, predictions, "cand-1")
	assert.Equal(t, "Staff Engineer", predictions["cand-1"].NextRole)
	assert.NotContains(t, predictions, "cand-2")
}

func TestPredictEmptyBatchSkipsRequest(t *testing.T) {
	called := false
	client := newTestClient(t, ClientConfig{}, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	predictions, err := client.Predict(context.Background(), "tenant-a", nil)
	require.NoError(t, err)
	assert.Nil(t, predictions)
	assert.False(t, called)
}

func TestPredictServerErrorReturnsNilMap(t *testing.T) {
	client := newTestClient(t, ClientConfig{}, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model offline", http.StatusInternalServerError)
	})

	predictions, err := client.Predict(context.Background(), "tenant-a", []string{"cand-1"})
	require.Error(t, err)
	assert.Nil(t, predictions)
	assert.Equal(t, apperrors.KindProvider, apperrors.KindOf(err))

	var perr *apperrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, apperrors.ProviderUpstream5xx, perr.Reason)
	assert.True(t, perr.Retryable())
}

func TestPredictMalformedBodyIsParseFailure(t *testing.T) {
	client := newTestClient(t, ClientConfig{}, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	predictions, err := client.Predict(context.Background(), "tenant-a", []string{"cand-1"})
	require.Error(t, err)
	assert.Nil(t, predictions)

	var perr *apperrors.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, apperrors.ProviderParseFailure, perr.Reason)
	assert.False(t, perr.Retryable())
}

func TestPredictTimeoutClassified(t *testing.T) {
	client := newTestClient(t, ClientConfig{Timeout: 20 * time.Millisecond}, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	predictions, err := client.Predict(context.Background(), "tenant-a", []string{"cand-1"})
	require.Error(t, err)
	assert.Nil(t, predictions)
	assert.True(t, apperrors.IsTimeout(err), "got kind %v", apperrors.KindOf(err))
}

func TestPredictBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	client := newTestClient(t, ClientConfig{CircuitFailures: 2, CircuitCooldown: time.Minute}, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "model offline", http.StatusInternalServerError)
	})

	for i := 0; i < 2; i++ {
		_, err := client.Predict(context.Background(), "tenant-a", []string{"cand-1"})
		require.Error(t, err)
	}
	assert.Equal(t, "open", client.BreakerState())

	_, err := client.Predict(context.Background(), "tenant-a", []string{"cand-1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Equal(t, 2, calls, "open breaker must not reach the server")
}

func TestHealthCheck(t *testing.T) {
	healthy := true
	client := newTestClient(t, ClientConfig{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	require.NoError(t, client.HealthCheck(context.Background()))

	healthy = false
	assert.Error(t, client.HealthCheck(context.Background()))
}
