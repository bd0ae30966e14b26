package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talentmesh/talentmesh/pkg/embedding"
	"github.com/talentmesh/talentmesh/pkg/middleware"
	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
)

// EmbedAPI serves the embed endpoints.
type EmbedAPI struct {
	service *embedding.Service
	logger  observability.Logger
}

// NewEmbedAPI builds the embed handler surface.
func NewEmbedAPI(service *embedding.Service, logger observability.Logger) *EmbedAPI {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &EmbedAPI{service: service, logger: logger.WithPrefix("embed_api")}
}

// RegisterRoutes mounts the embed surface.
func (a *EmbedAPI) RegisterRoutes(r gin.IRouter) {
	embed := r.Group("/embed")
	{
		embed.POST("/upsert", a.upsert)
		embed.POST("/query", a.query)
		embed.DELETE("/candidates/:id", a.deleteCandidate)
	}
}

func (a *EmbedAPI) upsert(c *gin.Context) {
	var req models.UpsertRequest
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

	resp, err := a.service.Upsert(c.Request.Context(), req)
	if err != nil {
		respondError(c, a.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *EmbedAPI) query(c *gin.Context) {
	var req models.QueryEmbedRequest
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

	resp, err := a.service.QueryEmbed(c.Request.Context(), req)
	if err != nil {
		respondError(c, a.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *EmbedAPI) deleteCandidate(c *gin.Context) {
	tenant := middleware.FromContext(c)
	if err := a.service.Delete(c.Request.Context(), tenant.TenantID, c.Param("id")); err != nil {
		respondError(c, a.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
