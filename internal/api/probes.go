package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talentmesh/talentmesh/pkg/health"
)

// RegisterProbes mounts /health, /ready and /metrics. Mains call this on the
// bare engine before any business middleware so the socket answers probes
// while dependencies are still initializing.
func RegisterProbes(r gin.IRouter, checker *health.Checker) {
	r.GET("/health", func(c *gin.Context) {
		report := checker.Snapshot()
		status := http.StatusOK
		if report.Status == health.HealthUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	})

	r.GET("/ready", func(c *gin.Context) {
		body, routable := checker.Readiness()
		status := http.StatusOK
		if !routable {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, body)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
