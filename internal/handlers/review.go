package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pollwave/backend/internal/feed"
	"github.com/pollwave/backend/internal/store"
)

type ReviewHandler struct {
	reviewer store.Reviewer
	now      func() time.Time
}

func (h *ReviewHandler) ListPending(c *gin.Context) {
	limit := feed.NormalizeLimit(queryInt(c, "limit", feed.DefaultLimit))
	pending, err := h.reviewer.ListPending(c.Request.Context(), limit, queryInt(c, "offset", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

func (h *ReviewHandler) Approve(c *gin.Context) { h.review(c, true) }

func (h *ReviewHandler) Reject(c *gin.Context) { h.review(c, false) }

func (h *ReviewHandler) review(c *gin.Context, approve bool) {
	poll, err := h.reviewer.Review(c.Request.Context(), c.Param("id"), approve, h.now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}
