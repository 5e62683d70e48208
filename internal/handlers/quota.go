package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type QuotaHandler struct {
	quota QuotaReporter
}

// GetUsage reports how much of the generation quota is used.
func (h *QuotaHandler) GetUsage(c *gin.Context) {
	if h.quota == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Quota tracking is not configured"})
		return
	}
	usage, err := h.quota.Usage(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Quota state unavailable"})
		return
	}
	c.JSON(http.StatusOK, usage)
}
