package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/talentmesh/talentmesh/pkg/observability"
)

// Recovery converts handler panics into a 500 envelope. The stack goes to the
// structured log, never to the client.
func Recovery(logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	log := logger.WithPrefix("recovery")

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				tc := FromContext(c)
				log.Error("panic recovered", map[string]interface{}{
					"panic":      fmt.Sprintf("%v", r),
					"stack":      string(debug.Stack()),
					"method":     c.Request.Method,
					"path":       c.Request.URL.Path,
					"request_id": tc.RequestID,
				})
				abortError(c, http.StatusInternalServerError, "internal", "internal server error", tc.RequestID)
			}
		}()
		c.Next()
	}
}
