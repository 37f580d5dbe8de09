package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/studio-cms-api/internal/service"
)

// Metrics records request latency and counts on the metrics service.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTP(c.Request.Method, path, status, duration)
	}
}
