package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noa10/mataresit-sub018/internal/core/alerting"
	"github.com/noa10/mataresit-sub018/pkg/errors"
	"github.com/noa10/mataresit-sub018/pkg/utils"
)

// ListRules returns all rule definitions, active or not.
func (h *Handlers) ListRules(c *gin.Context) {
	rules, err := h.repos.Rules.List(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to list alert rules")
		h.fail(c, err)
		return
	}

	utils.SendSuccessWithMeta(c, rules, gin.H{"count": len(rules)})
}

// GetRule returns a single rule definition.
func (h *Handlers) GetRule(c *gin.Context) {
	rule, err := h.repos.Rules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	utils.SendSuccess(c, rule)
}

// CreateRule validates and stores a new rule definition.
func (h *Handlers) CreateRule(c *gin.Context) {
	var rule alerting.AlertRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		h.fail(c, errors.Wrapf(errors.ErrValidation, "invalid request body: %v", err))
		return
	}

	if rule.EscalationPolicyID != "" {
		if _, err := h.repos.Policies.Get(c.Request.Context(), rule.EscalationPolicyID); err != nil {
			h.fail(c, errors.Wrapf(errors.ErrValidation, "unknown escalation policy %q", rule.EscalationPolicyID))
			return
		}
	}

	if err := rule.Validate(); err != nil {
		h.fail(c, err)
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	if err := h.repos.Rules.Create(c.Request.Context(), &rule); err != nil {
		h.log.WithError(err).Error("Failed to create alert rule")
		h.fail(c, err)
		return
	}

	h.log.WithField("rule_id", rule.ID).Info("Alert rule created")
	utils.SendSuccess(c, rule)
}

// UpdateRule validates and stores changes to an existing rule.
func (h *Handlers) UpdateRule(c *gin.Context) {
	var rule alerting.AlertRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		h.fail(c, errors.Wrapf(errors.ErrValidation, "invalid request body: %v", err))
		return
	}
	rule.ID = c.Param("id")
	rule.UpdatedAt = time.Now().UTC()

	if rule.EscalationPolicyID != "" {
		if _, err := h.repos.Policies.Get(c.Request.Context(), rule.EscalationPolicyID); err != nil {
			h.fail(c, errors.Wrapf(errors.ErrValidation, "unknown escalation policy %q", rule.EscalationPolicyID))
			return
		}
	}

	if err := rule.Validate(); err != nil {
		h.fail(c, err)
		return
	}

	if err := h.repos.Rules.Update(c.Request.Context(), &rule); err != nil {
		h.fail(c, err)
		return
	}

	utils.SendSuccess(c, rule)
}

// DeleteRule removes a rule definition.
func (h *Handlers) DeleteRule(c *gin.Context) {
	id := c.Param("id")

	if err := h.repos.Rules.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}

	// Drop the breach streak and rate-limit quota so a recreated rule with
	// the same id starts clean.
	h.engine.ForgetRule(id)

	h.log.WithField("rule_id", id).Info("Alert rule deleted")
	utils.SendSuccess(c, gin.H{"deleted": id})
}
