package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
	"github.com/talentmesh/talentmesh/pkg/rerank"
)

// RerankAPI serves POST /rerank.
type RerankAPI struct {
	service *rerank.Service
	logger  observability.Logger
}

// NewRerankAPI builds the rerank handler surface.
func NewRerankAPI(service *rerank.Service, logger observability.Logger) *RerankAPI {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &RerankAPI{service: service, logger: logger.WithPrefix("rerank_api")}
}

// RegisterRoutes mounts the rerank surface.
func (a *RerankAPI) RegisterRoutes(r gin.IRouter) {
	r.POST("/rerank", a.rerank)
}

func (a *RerankAPI) rerank(c *gin.Context) {
	var req models.RerankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, a.logger, bindError(err))
		return
	}
	tenant, err := resolveTenant(c, req.TenantID)
	if err != nil {
		respondError(c, a.logger, err)
		return
	}
	req.TenantID = tenant.TenantID

	resp, err := a.service.Rerank(c.Request.Context(), tenant, req)
	if err != nil {
		respondError(c, a.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
