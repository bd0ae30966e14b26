package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/trajectory"
)

// maxPredictBatch bounds one predict call. Search asks for at most its ML
// head (50); anything far beyond that is a caller bug, not a workload.
const maxPredictBatch = 200

// CandidateReader is the slice of the vector store the predict endpoint
// loads candidates through.
type CandidateReader interface {
	GetCandidates(ctx context.Context, tenant models.TenantContext, candidateIDs []string) ([]models.CandidateDocument, error)
}

// TrajectoryAPI serves POST /trajectory/predict with the rule-based model.
type TrajectoryAPI struct {
	store     CandidateReader
	predictor *trajectory.Predictor
	logger    observability.Logger
}

// NewTrajectoryAPI builds the trajectory handler surface.
func NewTrajectoryAPI(store CandidateReader, predictor *trajectory.Predictor, logger observability.Logger) *TrajectoryAPI {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &TrajectoryAPI{store: store, predictor: predictor, logger: logger.WithPrefix("trajectory_api")}
}

// RegisterRoutes mounts the trajectory surface.
func (a *TrajectoryAPI) RegisterRoutes(r gin.IRouter) {
	r.POST("/trajectory/predict", a.predict)
}

// predict loads the requested candidates and runs the rule-based predictor.
// Ids the tenant does not own simply load nothing, so they are absent from
// the response rather than erroring.
func (a *TrajectoryAPI) predict(c *gin.Context) {
	var req models.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, a.logger, bindError(err))
		return
	}
	tenant, err := resolveTenant(c, req.TenantID)
	if err != nil {
		respondError(c, a.logger, err)
		return
	}

	if len(req.CandidateIDs) == 0 {
		respondError(c, a.logger, apperrors.New(apperrors.KindBadInput, "candidateIds is empty"))
		return
	}
	if len(req.CandidateIDs) > maxPredictBatch {
		respondError(c, a.logger, apperrors.Newf(apperrors.KindBadInput, "candidateIds exceeds %d", maxPredictBatch))
		return
	}

	docs, err := a.store.GetCandidates(c.Request.Context(), tenant, req.CandidateIDs)
	if err != nil {
		respondError(c, a.logger, err)
		return
	}

	c.JSON(http.StatusOK, models.PredictResponse{
		Predictions:  a.predictor.PredictBatch(docs),
		ModelVersion: a.predictor.ModelVersion(),
	})
}
