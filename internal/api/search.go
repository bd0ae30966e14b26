package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talentmesh/talentmesh/pkg/middleware"
	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/search"
)

// SearchAPI serves POST /search/hybrid.
type SearchAPI struct {
	orchestrator *search.Orchestrator
	logger       observability.Logger
}

// NewSearchAPI builds the search handler surface.
func NewSearchAPI(orchestrator *search.Orchestrator, logger observability.Logger) *SearchAPI {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &SearchAPI{orchestrator: orchestrator, logger: logger.WithPrefix("search_api")}
}

// RegisterRoutes mounts the search surface.
func (a *SearchAPI) RegisterRoutes(r gin.IRouter) {
	r.POST("/search/hybrid", a.hybrid)
}

// hybrid passes the body tenant through untouched; the orchestrator owns the
// body/header reconciliation so its audit logging sees the raw request.
func (a *SearchAPI) hybrid(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, a.logger, bindError(err))
		return
	}

	tenant := middleware.FromContext(c)
	resp, err := a.orchestrator.Search(c.Request.Context(), tenant, req)
	if err != nil {
		respondError(c, a.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
