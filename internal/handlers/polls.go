package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pollwave/backend/internal/feed"
	"github.com/pollwave/backend/internal/middleware"
	"github.com/pollwave/backend/internal/models"
	"github.com/pollwave/backend/internal/polls"
	"github.com/pollwave/backend/internal/voting"
)

type PollHandler struct {
	feed  *feed.Ranker
	votes *voting.Engine
	polls *polls.Service
}

// GetFeed returns ranked published questions with the caller's own votes.
func (h *PollHandler) GetFeed(c *gin.Context) {
	viewerID, _ := middleware.UserID(c)
	limit := queryInt(c, "limit", feed.DefaultLimit)
	offset := queryInt(c, "offset", 0)

	page, err := h.feed.Page(c.Request.Context(), viewerID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// CreatePoll stores a user-written question.
func (h *PollHandler) CreatePoll(c *gin.Context) {
	var input models.CreatePollRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text and options are required"})
		return
	}
	userID, _ := middleware.UserID(c)

	poll, err := h.polls.Create(c.Request.Context(), userID, polls.Input{
		Text:     input.Text,
		Options:  input.Options,
		Category: input.Category,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.CreatePollResponse{ID: poll.ID, Status: poll.Status})
}

// VotePoll casts the caller's single vote on a question.
func (h *PollHandler) VotePoll(c *gin.Context) {
	var input models.VoteRequest
	if err := c.ShouldBindJSON(&input); err != nil || input.OptionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "optionId is required"})
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	res, err := h.votes.CastVote(c.Request.Context(), userID, c.Param("id"), input.OptionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
