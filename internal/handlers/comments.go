package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pollwave/backend/internal/middleware"
	"github.com/pollwave/backend/internal/models"
	"github.com/pollwave/backend/internal/polls"
)

type CommentHandler struct {
	polls *polls.Service
}

// GetComments returns one page of a question's comments, oldest first.
func (h *CommentHandler) GetComments(c *gin.Context) {
	limit := queryInt(c, "limit", polls.CommentPageSize)
	comments, err := h.polls.ListComments(c.Request.Context(), c.Param("questionId"), limit, queryInt(c, "offset", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (h *CommentHandler) CreateComment(c *gin.Context) {
	var input models.CreateCommentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Comment text is required"})
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	comment, err := h.polls.AddComment(c.Request.Context(), userID, c.Param("questionId"), input.Text, input.ParentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}
