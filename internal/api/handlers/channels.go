package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/internal/core/alerting"
	"github.com/noa10/mataresit-sub018/pkg/errors"
	"github.com/noa10/mataresit-sub018/pkg/utils"
)

// ListChannels returns all notification channels.
func (h *Handlers) ListChannels(c *gin.Context) {
	channels, err := h.repos.Channels.List(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to list notification channels")
		h.fail(c, err)
		return
	}

	utils.SendSuccessWithMeta(c, channels, gin.H{"count": len(channels)})
}

// GetChannel returns a single notification channel.
func (h *Handlers) GetChannel(c *gin.Context) {
	channel, err := h.repos.Channels.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	utils.SendSuccess(c, channel)
}

// CreateChannel validates and stores a new notification channel.
func (h *Handlers) CreateChannel(c *gin.Context) {
	var channel alerting.NotificationChannel
	if err := c.ShouldBindJSON(&channel); err != nil {
		h.fail(c, errors.Wrapf(errors.ErrValidation, "invalid request body: %v", err))
		return
	}

	if err := channel.Validate(); err != nil {
		h.fail(c, err)
		return
	}
	if channel.ID == "" {
		channel.ID = uuid.New().String()
	}

	if err := h.repos.Channels.Create(c.Request.Context(), &channel); err != nil {
		h.log.WithError(err).Error("Failed to create notification channel")
		h.fail(c, err)
		return
	}

	h.log.WithField("channel_id", channel.ID).Info("Notification channel created")
	utils.SendSuccess(c, channel)
}

// UpdateChannel validates and stores changes to an existing channel.
func (h *Handlers) UpdateChannel(c *gin.Context) {
	var channel alerting.NotificationChannel
	if err := c.ShouldBindJSON(&channel); err != nil {
		h.fail(c, errors.Wrapf(errors.ErrValidation, "invalid request body: %v", err))
		return
	}
	channel.ID = c.Param("id")
	channel.UpdatedAt = time.Now().UTC()

	if err := channel.Validate(); err != nil {
		h.fail(c, err)
		return
	}

	if err := h.repos.Channels.Update(c.Request.Context(), &channel); err != nil {
		h.fail(c, err)
		return
	}

	utils.SendSuccess(c, channel)
}

// DeleteChannel removes a notification channel.
func (h *Handlers) DeleteChannel(c *gin.Context) {
	id := c.Param("id")

	if err := h.repos.Channels.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}

	h.log.WithField("channel_id", id).Info("Notification channel deleted")
	utils.SendSuccess(c, gin.H{"deleted": id})
}

// TestChannel sends a synthetic notification through the channel using the
// normal delivery path, including its circuit breaker and retries.
func (h *Handlers) TestChannel(c *gin.Context) {
	result := h.dispatcher.TestSend(c.Request.Context(), c.Param("id"))
	if result.Status != alerting.DeliveryDelivered {
		h.log.WithFields(logrus.Fields{
			"channel_id": result.ChannelID,
			"status":     result.Status,
			"error":      result.Error,
		}).Warn("Channel test delivery failed")
	}

	utils.SendSuccess(c, result)
}
