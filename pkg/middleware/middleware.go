// Package middleware carries the gin middleware shared by all services:
// gateway identity extraction, per-tenant admission limits, access logging,
// request metrics and panic recovery.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/talentmesh/talentmesh/pkg/errors"
	"github.com/talentmesh/talentmesh/pkg/models"
	"github.com/talentmesh/talentmesh/pkg/observability"
)

// ContextKey is the gin context key holding the request's TenantContext.
const ContextKey = "tenantContext"

// HeaderNames configures which gateway headers carry the identity. Internal
// service-to-service calls always send the defaults.
type HeaderNames struct {
	Tenant    string
	RequestID string
	TraceID   string
	UserID    string
}

// DefaultHeaderNames returns the documented gateway header names.
func DefaultHeaderNames() HeaderNames {
	return HeaderNames{
		Tenant:    models.HeaderTenantID,
		RequestID: models.HeaderRequestID,
		TraceID:   models.HeaderTraceID,
		UserID:    models.HeaderUserID,
	}
}

func (h HeaderNames) withDefaults() HeaderNames {
	d := DefaultHeaderNames()
	if h.Tenant == "" {
		h.Tenant = d.Tenant
	}
	if h.RequestID == "" {
		h.RequestID = d.RequestID
	}
	if h.TraceID == "" {
		h.TraceID = d.TraceID
	}
	if h.UserID == "" {
		h.UserID = d.UserID
	}
	return h
}

// FromContext returns the TenantContext stored by the Tenant middleware, or
// the zero value on routes that run without it.
func FromContext(c *gin.Context) models.TenantContext {
	if v, ok := c.Get(ContextKey); ok {
		if tc, ok := v.(models.TenantContext); ok {
			return tc
		}
	}
	return models.TenantContext{}
}

// Tenant extracts the gateway identity headers into a TenantContext and
// rejects requests without a tenant id. A missing request id is generated so
// every downstream log line stays correlatable, and the request id is echoed
// on the response either way.
func Tenant(names HeaderNames, logger observability.Logger) gin.HandlerFunc {
	names = names.withDefaults()
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	log := logger.WithPrefix("tenant")

	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(names.RequestID))
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(names.RequestID, requestID)

		tenantID := strings.TrimSpace(c.GetHeader(names.Tenant))
		if tenantID == "" {
			abortError(c, http.StatusUnauthorized,
				apperrors.KindUnauthenticated.String(), "tenant identity required", requestID)
			return
		}

		tc := models.TenantContext{
			TenantID:  tenantID,
			RequestID: requestID,
			TraceID:   strings.TrimSpace(c.GetHeader(names.TraceID)),
			UserID:    strings.TrimSpace(c.GetHeader(names.UserID)),
		}
		if tc.CrossTenant() {
			log.Info("cross-tenant identity accepted", tc.LogFields())
		}
		c.Set(ContextKey, tc)
		c.Next()
	}
}

// abortError writes the standard error envelope and stops the chain. Messages
// are stable strings; detail belongs in logs keyed by the request id.
func abortError(c *gin.Context, status int, code, message, requestID string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
		"requestId": requestID,
	})
}
