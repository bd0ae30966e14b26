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
	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/trajectory"
)

type stubCandidateReader struct {
	docs []models.CandidateDocument
	err  error
}

func (s *stubCandidateReader) GetCandidates(ctx context.Context, tenant models.TenantContext, candidateIDs []string) ([]models.CandidateDocument, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.docs, nil
}

func newTrajectoryRouter(store *stubCandidateReader) *gin.Engine {
	predictor := trajectory.NewPredictor(nil)
	return newTenantRouter(func(r gin.IRouter) {
		NewTrajectoryAPI(store, predictor, nil).RegisterRoutes(r)
	})
}

func TestPredictReturnsPredictions(t *testing.T) {
	store := &stubCandidateReader{docs: []models.CandidateDocument{
		{
			CandidateID:  "cand-1",
			TenantID:     "tenant-a",
			CurrentTitle: "Senior Software Engineer",
			WorkHistory: []models.WorkHistoryEntry{
				{Title: "Software Engineer", Company: "Acme", Months: 24},
				{Title: "Senior Software Engineer", Company: "Acme", Months: 18},
			},
		},
		{
			// A single position is too thin to classify; the id stays out of
			// the prediction map.
			CandidateID:  "cand-2",
			TenantID:     "tenant-a",
			CurrentTitle: "Engineer",
			WorkHistory: []models.WorkHistoryEntry{
				{Title: "Engineer", Months: 12},
			},
		},
	}}
	router := newTrajectoryRouter(store)

	w := doJSON(t, router, http.MethodPost, "/trajectory/predict", models.PredictRequest{
		CandidateIDs: []string{"cand-1", "cand-2"},
	}, tenantHeaders())

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.PredictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, trajectory.RulesModelVersion, resp.ModelVersion)
	require.Contains(t, resp.Predictions, "cand-1")
	assert.NotContains(t, resp.Predictions, "cand-2")

	prediction := resp.Predictions["cand-1"]
	assert.NotEmpty(t, prediction.NextRole)
	assert.Greater(t, prediction.NextRoleConfidence, 0.0)
	assert.Greater(t, prediction.TenureMonths.Max, prediction.TenureMonths.Min)
}

func TestPredictValidatesBatch(t *testing.T) {
	router := newTrajectoryRouter(&stubCandidateReader{})

	w := doJSON(t, router, http.MethodPost, "/trajectory/predict", models.PredictRequest{}, tenantHeaders())
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "candidateIds is empty", decodeError(t, w).Error.Message)

	oversized := make([]string, maxPredictBatch+1)
	for i := range oversized {
		oversized[i] = "cand"
	}
	w = doJSON(t, router, http.MethodPost, "/trajectory/predict", models.PredictRequest{
		CandidateIDs: oversized,
	}, tenantHeaders())
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_input", decodeError(t, w).Error.Code)
}

func TestPredictRejectsTenantMismatch(t *testing.T) {
	router := newTrajectoryRouter(&stubCandidateReader{})

	w := doJSON(t, router, http.MethodPost, "/trajectory/predict", models.PredictRequest{
		TenantID:     "tenant-b",
		CandidateIDs: []string{"cand-1"},
	}, tenantHeaders())

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decodeError(t, w).Error.Code)
}

func TestPredictStoreFailure(t *testing.T) {
	store := &stubCandidateReader{err: apperrors.New(apperrors.KindUnavailable, "loading candidates")}
	router := newTrajectoryRouter(store)

	w := doJSON(t, router, http.MethodPost, "/trajectory/predict", models.PredictRequest{
		CandidateIDs: []string{"cand-1"},
	}, tenantHeaders())

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "service_unavailable", decodeError(t, w).Error.Code)
}
