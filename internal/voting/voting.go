// Package voting records votes and reports live per-option percentages.
package voting

import (
	"context"
	"math"
	"strings"

	"emperror.dev/errors"
	"github.com/sirupsen/logrus"

	"github.com/pollwave/backend/internal/logging"
	"github.com/pollwave/backend/internal/metrics"
	"github.com/pollwave/backend/internal/models"
	"github.com/pollwave/backend/internal/store"
)

var (
	ErrInvalidVote   = errors.NewPlain("voter and poll are required")
	ErrInvalidOption = store.ErrInvalidOption
	ErrDuplicateVote = store.ErrDuplicateVote
	ErrPollNotFound  = store.ErrPollNotFound
	ErrTransient     = store.ErrTransient
)

type OptionStat struct {
	OptionID   string `json:"optionId"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

type Result struct {
	PollVoteCount int          `json:"pollVoteCount"`
	PerOption     []OptionStat `json:"perOption"`
}

type Engine struct {
	votes store.VoteRecorder
	log   *logrus.Entry
}

func NewEngine(votes store.VoteRecorder) *Engine {
	return &Engine{votes: votes, log: logging.Module("voting")}
}

// CastVote records voterID's choice of optionID on pollID. The store does
// the insert, both counter increments and the read-back in one transaction.
func (e *Engine) CastVote(ctx context.Context, voterID, pollID, optionID string) (Result, error) {
	voterID, pollID, optionID = strings.TrimSpace(voterID), strings.TrimSpace(pollID), strings.TrimSpace(optionID)
	switch {
	case voterID == "" || pollID == "":
		metrics.VotesTotal.WithLabelValues("invalid").Inc()
		return Result{}, ErrInvalidVote
	case optionID == "":
		metrics.VotesTotal.WithLabelValues("invalid").Inc()
		return Result{}, ErrInvalidOption
	}

	poll, err := e.votes.RecordVote(ctx, voterID, pollID, optionID)
	if err != nil {
		metrics.VotesTotal.WithLabelValues(resultLabel(err)).Inc()
		if errors.Is(err, ErrTransient) {
			e.log.WithError(err).WithField("poll_id", pollID).Warn("vote not recorded")
		}
		return Result{}, err
	}

	metrics.VotesTotal.WithLabelValues("ok").Inc()
	return Tally(poll), nil
}

// Tally computes the stats of poll from its stored counters.
func Tally(poll models.Poll) Result {
	res := Result{
		PollVoteCount: poll.VoteCount,
		PerOption:     make([]OptionStat, 0, len(poll.Options)),
	}
	for _, o := range poll.Options {
		res.PerOption = append(res.PerOption, OptionStat{
			OptionID:   o.ID,
			Count:      o.VoteCount,
			Percentage: Percentage(o.VoteCount, poll.VoteCount),
		})
	}
	return res
}

// Percentage is round(count/total*100), or 0 when total is 0.
func Percentage(count, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(count) / float64(total) * 100))
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateVote):
		return "duplicate"
	case errors.Is(err, ErrInvalidOption):
		return "invalid"
	case errors.Is(err, ErrPollNotFound):
		return "not_found"
	default:
		return "error"
	}
}
