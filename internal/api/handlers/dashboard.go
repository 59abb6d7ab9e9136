package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/noa10/mataresit-sub018/internal/core/alerting"
	"github.com/noa10/mataresit-sub018/pkg/utils"
)

// GetDashboard returns the health snapshot plus the current live alerts and
// per-rule suppression counters.
func (h *Handlers) GetDashboard(c *gin.Context) {
	snapshot := h.health.Dashboard()

	live, err := h.instances.List(c.Request.Context(), alerting.InstanceFilter{})
	if err != nil {
		h.log.WithError(err).Error("Failed to load alerts for dashboard")
		h.fail(c, err)
		return
	}

	activeCount := 0
	for _, inst := range live {
		if inst.Live() {
			activeCount++
		}
	}

	utils.SendSuccess(c, gin.H{
		"health":             snapshot,
		"active_alerts":      activeCount,
		"suppressed_by_rule": h.instances.SuppressedCounts(),
		"websocket_clients":  h.wsHub.GetClientCount(),
	})
}
