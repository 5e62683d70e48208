// Package store declares the persistence ports shared by the poll services
// and implemented by the postgres and memory adapters.
package store

import (
	"context"
	"time"

	"emperror.dev/errors"

	"github.com/pollwave/backend/internal/models"
)

var (
	ErrInvalidPoll     = errors.NewPlain("poll needs a valid status and at least two options")
	ErrPollNotFound    = errors.NewPlain("poll not found")
	ErrInvalidOption   = errors.NewPlain("option does not belong to poll")
	ErrDuplicateVote   = errors.NewPlain("user already voted on this poll")
	ErrCommentNotFound = errors.NewPlain("comment not found")
	// ErrTransient marks a persistence failure the caller may retry.
	ErrTransient = errors.NewPlain("transient storage failure")
)

// PollWriter persists a new poll together with its options in one
// transaction. IDs and option positions are assigned by the store.
type PollWriter interface {
	CreatePoll(ctx context.Context, poll *models.Poll) error
}

// VoteRecorder records one vote and bumps the option and poll counters
// atomically. The returned poll reflects the committed counts.
type VoteRecorder interface {
	RecordVote(ctx context.Context, userID, pollID, optionID string) (models.Poll, error)
}

type FeedReader interface {
	RankedPolls(ctx context.Context, q RankQuery) ([]models.Poll, error)
	// ViewerChoices maps poll id to the option the user picked, for the
	// given polls only.
	ViewerChoices(ctx context.Context, userID string, pollIDs []string) (map[string]string, error)
}

type Reviewer interface {
	ListPending(ctx context.Context, limit, offset int) ([]models.Poll, error)
	// Review moves a pending poll to published (approve) or cancelled.
	Review(ctx context.Context, pollID string, approve bool, now time.Time) (models.Poll, error)
}

type CommentStore interface {
	AddComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, pollID string, limit, offset int) ([]models.Comment, error)
}

type UserStore interface {
	// TouchDeviceUser returns the user for deviceID, creating it on first
	// login, and records the login time.
	TouchDeviceUser(ctx context.Context, deviceID string, now time.Time) (models.User, error)
}

// Store is everything the HTTP surface and the worker need.
type Store interface {
	PollWriter
	VoteRecorder
	FeedReader
	Reviewer
	CommentStore
	UserStore
	Health() map[string]string
	Close() error
}

// Ranking weights.
const (
	FreshnessWindow = 20 * time.Minute
	FreshnessBoost  = 50
	CommentWeight   = 2
)

// RankQuery selects one page of published polls ordered by Score
// descending, then by creation time descending, then by id.
type RankQuery struct {
	Now    time.Time
	Limit  int
	Offset int
}

// FreshSince is the creation time after which a poll gets the boost.
func (q RankQuery) FreshSince() time.Time {
	return q.Now.Add(-FreshnessWindow)
}

func (q RankQuery) Score(p *models.Poll) int {
	score := p.VoteCount + CommentWeight*p.CommentCount
	if p.CreatedAt.After(q.FreshSince()) {
		score += FreshnessBoost
	}
	return score
}
