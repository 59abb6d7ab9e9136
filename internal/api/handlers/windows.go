package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noa10/mataresit-sub018/internal/core/alerting"
	"github.com/noa10/mataresit-sub018/pkg/errors"
	"github.com/noa10/mataresit-sub018/pkg/utils"
)

// ListWindows returns all maintenance windows.
func (h *Handlers) ListWindows(c *gin.Context) {
	windows, err := h.repos.Maintenance.List(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to list maintenance windows")
		h.fail(c, err)
		return
	}

	utils.SendSuccessWithMeta(c, windows, gin.H{"count": len(windows)})
}

// GetWindow returns a single maintenance window.
func (h *Handlers) GetWindow(c *gin.Context) {
	window, err := h.repos.Maintenance.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	utils.SendSuccess(c, window)
}

// CreateWindow validates and stores a new maintenance window.
func (h *Handlers) CreateWindow(c *gin.Context) {
	var window alerting.MaintenanceWindow
	if err := c.ShouldBindJSON(&window); err != nil {
		h.fail(c, errors.Wrapf(errors.ErrValidation, "invalid request body: %v", err))
		return
	}

	if err := window.Validate(); err != nil {
		h.fail(c, err)
		return
	}
	if window.ID == "" {
		window.ID = uuid.New().String()
	}

	if err := h.repos.Maintenance.Create(c.Request.Context(), &window); err != nil {
		h.log.WithError(err).Error("Failed to create maintenance window")
		h.fail(c, err)
		return
	}

	h.log.WithField("window_id", window.ID).Info("Maintenance window created")
	utils.SendSuccess(c, window)
}

// UpdateWindow validates and stores changes to an existing maintenance window.
func (h *Handlers) UpdateWindow(c *gin.Context) {
	var window alerting.MaintenanceWindow
	if err := c.ShouldBindJSON(&window); err != nil {
		h.fail(c, errors.Wrapf(errors.ErrValidation, "invalid request body: %v", err))
		return
	}
	window.ID = c.Param("id")

	if err := window.Validate(); err != nil {
		h.fail(c, err)
		return
	}

	if err := h.repos.Maintenance.Update(c.Request.Context(), &window); err != nil {
		h.fail(c, err)
		return
	}

	utils.SendSuccess(c, window)
}

// DeleteWindow removes a maintenance window.
func (h *Handlers) DeleteWindow(c *gin.Context) {
	id := c.Param("id")

	if err := h.repos.Maintenance.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}

	h.log.WithField("window_id", id).Info("Maintenance window deleted")
	utils.SendSuccess(c, gin.H{"deleted": id})
}
