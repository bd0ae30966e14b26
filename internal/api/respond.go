// Package api carries the gin handler surfaces for the four services. Each
// surface is a small struct owning its service dependency and a RegisterRoutes
// method; mains decide which surfaces an engine mounts and in what middleware
// chain. Probe routes are registered on the bare engine so they bypass tenant
// identity and admission limits.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/middleware"
	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
)

// ErrorBody is the error half of the envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the error envelope every service returns. Message is a
// stable string; detail stays in logs keyed by the request id.
type ErrorResponse struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"requestId,omitempty"`
}

// respondError maps a classified error to its HTTP status and writes the
// envelope. Unclassified causes never leak their text to the client.
func respondError(c *gin.Context, logger observability.Logger, err error) {
	tc := middleware.FromContext(c)
	status := apperrors.HTTPStatus(err)
	kind := apperrors.KindOf(err)

	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", map[string]interface{}{
			"tenant_id":  tc.TenantID,
			"request_id": tc.RequestID,
			"status":     status,
			"error":      err.Error(),
		})
	}
	_ = c.Error(err)

	c.JSON(status, ErrorResponse{
		Error:     ErrorBody{Code: kind.String(), Message: clientMessage(err, kind)},
		RequestID: tc.RequestID,
	})
}

func clientMessage(err error, kind apperrors.Kind) string {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Kind != apperrors.KindUnknown {
		return appErr.Message
	}
	switch kind {
	case apperrors.KindProvider:
		return "upstream provider unavailable"
	case apperrors.KindTimeout:
		return "request timed out"
	default:
		return "internal server error"
	}
}

// bindError wraps a body decoding failure so respondError maps it to 400.
func bindError(err error) error {
	return apperrors.Wrap(err, apperrors.KindBadInput, "invalid request body")
}

// resolveTenant reconciles an optional body tenantId with the authenticated
// identity. Absent inherits the header; a mismatch is rejected, including for
// the cross-tenant audit identity, which must be asserted in the header.
func resolveTenant(c *gin.Context, bodyTenant string) (models.TenantContext, error) {
	tc := middleware.FromContext(c)
	if bodyTenant != "" && bodyTenant != tc.TenantID {
		return tc, apperrors.New(apperrors.KindForbidden, "body tenantId does not match authenticated tenant")
	}
	return tc, nil
}
