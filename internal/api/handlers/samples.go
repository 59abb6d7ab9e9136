package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/noa10/mataresit-sub018/internal/core/metricstore"
	"github.com/noa10/mataresit-sub018/pkg/errors"
	"github.com/noa10/mataresit-sub018/pkg/utils"
)

// IngestSample records a metric observation pushed by an external collector.
func (h *Handlers) IngestSample(c *gin.Context) {
	var sample metricstore.Sample
	if err := c.ShouldBindJSON(&sample); err != nil {
		h.fail(c, errors.Wrapf(errors.ErrValidation, "invalid request body: %v", err))
		return
	}

	if err := h.samples.Record(sample); err != nil {
		h.fail(c, err)
		return
	}

	utils.SendSuccess(c, gin.H{"recorded": sample.Metric})
}

// ListSamples returns the newest sample held for every metric.
func (h *Handlers) ListSamples(c *gin.Context) {
	samples := h.samples.Snapshot()
	utils.SendSuccessWithMeta(c, samples, gin.H{"count": len(samples)})
}
