package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/talentmesh/talentmesh/pkg/observability"
)

// Tracing opens one span per request, honoring incoming W3C trace context so
// gateway spans and service spans join the same trace. Runs after routing, so
// the span is named by the matched route template.
func Tracing() gin.HandlerFunc {
	propagator := propagation.TraceContext{}

	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx, span := observability.StartSpan(ctx, fmt.Sprintf("%s %s", c.Request.Method, route),
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		if tc := FromContext(c); tc.TenantID != "" {
			span.SetAttributes(attribute.String("tenant.id", tc.TenantID))
		}
		var err error
		if len(c.Errors) > 0 {
			err = c.Errors.Last().Err
		}
		observability.EndSpan(span, err)
	}
}
