package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/talentmesh/talentmesh/pkg/observability"
)

// AccessLog writes one structured line per request, carrying the tenant
// identity fields when present so cross-tenant access stays auditable.
func AccessLog(logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	log := logger.WithPrefix("http")

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if tc := FromContext(c); tc.TenantID != "" {
			for k, v := range tc.LogFields() {
				fields[k] = v
			}
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		if c.Writer.Status() >= 500 {
			log.Error("request completed", fields)
			return
		}
		log.Info("request completed", fields)
	}
}

// Metrics records a request counter and duration per route. Routes are
// labelled by the matched template, not the raw path, so path parameters
// cannot blow up label cardinality.
func Metrics(metrics observability.MetricsClient) gin.HandlerFunc {
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordCounter("http_requests_total", 1, map[string]string{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(c.Writer.Status()),
		})
		metrics.RecordTimer("http_request_duration_seconds", time.Since(start), map[string]string{
			"method": c.Request.Method,
			"route":  route,
		})
	}
}
