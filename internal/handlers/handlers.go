package handlers

import (
	"context"
	"net/http"
	"time"

	"emperror.dev/errors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"github.com/pollwave/backend/internal/feed"
	"github.com/pollwave/backend/internal/logging"
	"github.com/pollwave/backend/internal/polls"
	"github.com/pollwave/backend/internal/quota"
	"github.com/pollwave/backend/internal/store"
	"github.com/pollwave/backend/internal/voting"
)

// QuotaReporter reports generation quota usage; *quota.Gate satisfies it.
type QuotaReporter interface {
	Usage(ctx context.Context) (quota.Usage, error)
}

// Deps is everything the handlers need. Quota may be nil.
type Deps struct {
	Store     store.Store
	Feed      *feed.Ranker
	Votes     *voting.Engine
	Polls     *polls.Service
	Quota     QuotaReporter
	JWTSecret []byte
	Now       func() time.Time
}

// Handler combines all handler types
type Handler struct {
	Auth    *AuthHandler
	Poll    *PollHandler
	Comment *CommentHandler
	Review  *ReviewHandler
	Quota   *QuotaHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(d Deps) *Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handler{
		Auth:    &AuthHandler{users: d.Store, secret: d.JWTSecret, now: d.Now},
		Poll:    &PollHandler{feed: d.Feed, votes: d.Votes, polls: d.Polls},
		Comment: &CommentHandler{polls: d.Polls},
		Review:  &ReviewHandler{reviewer: d.Store, now: d.Now},
		Quota:   &QuotaHandler{quota: d.Quota},
	}
}

// writeError maps domain errors to status codes; anything unknown is a 500.
func writeError(c *gin.Context, err error) {
	status, message := http.StatusInternalServerError, "Internal server error"
	switch {
	case errors.Is(err, store.ErrDuplicateVote):
		status, message = http.StatusConflict, "You have already voted on this question"
	case errors.Is(err, store.ErrInvalidOption):
		status, message = http.StatusBadRequest, "Invalid option for this question"
	case errors.Is(err, voting.ErrInvalidVote):
		status, message = http.StatusBadRequest, "Question and voter are required"
	case errors.Is(err, polls.ErrInvalidInput):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrPollNotFound):
		status, message = http.StatusNotFound, "Question not found"
	case errors.Is(err, store.ErrCommentNotFound):
		status, message = http.StatusNotFound, "Parent comment not found"
	case errors.Is(err, polls.ErrRejected):
		status, message = http.StatusUnprocessableEntity, "Question rejected by moderation"
	case errors.Is(err, store.ErrTransient):
		status, message = http.StatusServiceUnavailable, "Service temporarily unavailable, try again"
	}

	if status >= http.StatusInternalServerError {
		logging.Module("handlers").WithError(err).
			WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, gin.H{"error": message})
}

// queryInt reads a non-negative integer query parameter, falling back to def.
func queryInt(c *gin.Context, key string, def int) int {
	raw, ok := c.GetQuery(key)
	if !ok {
		return def
	}
	v, err := cast.ToIntE(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
