package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noa10/mataresit-sub018/internal/core/alerting"
	"github.com/noa10/mataresit-sub018/pkg/errors"
	"github.com/noa10/mataresit-sub018/pkg/utils"
)

type actionRequest struct {
	Actor string `json:"actor" binding:"required"`
	Note  string `json:"note"`
}

// ListAlerts returns alert instances, optionally filtered by state, severity
// and rule_id query parameters.
func (h *Handlers) ListAlerts(c *gin.Context) {
	filter := alerting.InstanceFilter{
		State:    alerting.InstanceState(c.Query("state")),
		Severity: alerting.Severity(c.Query("severity")),
		RuleID:   c.Query("rule_id"),
	}

	alerts, err := h.instances.List(c.Request.Context(), filter)
	if err != nil {
		h.log.WithError(err).Error("Failed to list alerts")
		h.fail(c, err)
		return
	}

	utils.SendSuccessWithMeta(c, alerts, gin.H{"count": len(alerts)})
}

// GetAlert returns a single alert instance by id.
func (h *Handlers) GetAlert(c *gin.Context) {
	alert, err := h.instances.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	utils.SendSuccess(c, alert)
}

// AcknowledgeAlert marks an active alert as acknowledged by the given actor.
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.Wrapf(errors.ErrValidation, "invalid request body: %v", err))
		return
	}

	alert, err := h.instances.Acknowledge(c.Request.Context(), c.Param("id"), req.Actor, req.Note)
	if err != nil {
		h.fail(c, err)
		return
	}

	utils.SendSuccess(c, alert)
}

// ResolveAlert marks an active or acknowledged alert as resolved.
func (h *Handlers) ResolveAlert(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.Wrapf(errors.ErrValidation, "invalid request body: %v", err))
		return
	}

	alert, err := h.instances.Resolve(c.Request.Context(), c.Param("id"), req.Actor, req.Note)
	if err != nil {
		h.fail(c, err)
		return
	}

	utils.SendSuccess(c, alert)
}

// AlertHistory returns the audit events recorded for an alert instance.
func (h *Handlers) AlertHistory(c *gin.Context) {
	id := c.Param("id")

	if _, err := h.instances.Get(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}

	events, err := h.instances.History(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	utils.SendSuccess(c, events)
}

// AlertStatistics returns aggregate counts and response times, optionally
// narrowed to one rule and a day range.
func (h *Handlers) AlertStatistics(c *gin.Context) {
	rangeDays := 0
	if raw := c.Query("range_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.fail(c, errors.Wrapf(errors.ErrValidation, "invalid range_days %q", raw))
			return
		}
		rangeDays = parsed
	}

	stats, err := h.instances.Statistics(c.Request.Context(), c.Query("rule_id"), rangeDays)
	if err != nil {
		h.log.WithError(err).Error("Failed to compute alert statistics")
		h.fail(c, err)
		return
	}

	utils.SendSuccess(c, stats)
}
