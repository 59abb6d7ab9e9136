package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noa10/mataresit-sub018/internal/core/alerting"
	"github.com/noa10/mataresit-sub018/pkg/errors"
	"github.com/noa10/mataresit-sub018/pkg/utils"
)

// ListPolicies returns all escalation policies.
func (h *Handlers) ListPolicies(c *gin.Context) {
	policies, err := h.repos.Policies.List(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to list escalation policies")
		h.fail(c, err)
		return
	}

	utils.SendSuccessWithMeta(c, policies, gin.H{"count": len(policies)})
}

// GetPolicy returns a single escalation policy.
func (h *Handlers) GetPolicy(c *gin.Context) {
	policy, err := h.repos.Policies.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	utils.SendSuccess(c, policy)
}

// CreatePolicy validates and stores a new escalation policy.
func (h *Handlers) CreatePolicy(c *gin.Context) {
	var policy alerting.EscalationPolicy
	if err := c.ShouldBindJSON(&policy); err != nil {
		h.fail(c, errors.Wrapf(errors.ErrValidation, "invalid request body: %v", err))
		return
	}

	if err := policy.Validate(); err != nil {
		h.fail(c, err)
		return
	}
	if policy.ID == "" {
		policy.ID = uuid.New().String()
	}

	if err := h.repos.Policies.Create(c.Request.Context(), &policy); err != nil {
		h.log.WithError(err).Error("Failed to create escalation policy")
		h.fail(c, err)
		return
	}

	h.log.WithField("policy_id", policy.ID).Info("Escalation policy created")
	utils.SendSuccess(c, policy)
}

// UpdatePolicy validates and stores changes to an existing policy.
func (h *Handlers) UpdatePolicy(c *gin.Context) {
	var policy alerting.EscalationPolicy
	if err := c.ShouldBindJSON(&policy); err != nil {
		h.fail(c, errors.Wrapf(errors.ErrValidation, "invalid request body: %v", err))
		return
	}
	policy.ID = c.Param("id")
	policy.UpdatedAt = time.Now().UTC()

	if err := policy.Validate(); err != nil {
		h.fail(c, err)
		return
	}

	if err := h.repos.Policies.Update(c.Request.Context(), &policy); err != nil {
		h.fail(c, err)
		return
	}

	utils.SendSuccess(c, policy)
}

// DeletePolicy removes an escalation policy. Rules referencing it fall back
// to their base channels only.
func (h *Handlers) DeletePolicy(c *gin.Context) {
	id := c.Param("id")

	if err := h.repos.Policies.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}

	h.log.WithField("policy_id", id).Info("Escalation policy deleted")
	utils.SendSuccess(c, gin.H{"deleted": id})
}
