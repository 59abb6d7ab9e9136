package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noa10/mataresit-sub018/internal/core/metrics"
)

// MetricsMiddleware records request counts and latencies per route.
func MetricsMiddleware(collector metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		if collector != nil {
			collector.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
		}
	}
}
