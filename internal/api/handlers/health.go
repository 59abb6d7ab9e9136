package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noa10/mataresit-sub018/internal/core/alerting"
)

// Health reports overall service condition. Failed health returns 503 so
// load balancers can pull the instance.
func (h *Handlers) Health(c *gin.Context) {
	snapshot := h.health.Dashboard()

	code := http.StatusOK
	if snapshot.Status == alerting.StatusFailed {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    snapshot.Status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
