package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/telemetry"
)

// Profiling attaches route, method and organization labels to the profiler
// for the duration of a request. Health checks and metric scrapes are left
// unlabeled.
func Profiling(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/health", "/metrics":
			c.Next()
			return
		}
		labels := telemetry.HTTPRequestLabels(c.FullPath(), c.Request.Method, organizationFrom(c))
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
