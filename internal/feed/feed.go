// Package feed serves the ranked list of published polls.
package feed

import (
	"context"
	"time"

	"emperror.dev/errors"

	"github.com/pollwave/backend/internal/models"
	"github.com/pollwave/backend/internal/store"
	"github.com/pollwave/backend/internal/voting"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

type FeedOption struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	VoteCount  int    `json:"voteCount"`
	Percentage int    `json:"percentage"`
}

// FeedPoll is a published poll as the viewer sees it. ViewerChoice is the
// option the viewer already picked, or empty.
type FeedPoll struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	Category     string       `json:"category"`
	SourceURL    string       `json:"sourceUrl,omitempty"`
	VoteCount    int          `json:"voteCount"`
	CommentCount int          `json:"commentCount"`
	CreatedAt    time.Time    `json:"createdAt"`
	PublishedAt  *time.Time   `json:"publishedAt,omitempty"`
	Score        int          `json:"score"`
	Options      []FeedOption `json:"options"`
	ViewerChoice string       `json:"viewerChoice,omitempty"`
}

type Ranker struct {
	polls store.FeedReader
	now   func() time.Time
}

func NewRanker(polls store.FeedReader) *Ranker {
	return &Ranker{polls: polls, now: time.Now}
}

// WithClock returns a copy of r that reads the time from now.
func (r *Ranker) WithClock(now func() time.Time) *Ranker {
	cp := *r
	cp.now = now
	return &cp
}

// Page returns published polls ordered by score, newest first on ties.
// limit falls back to DefaultLimit and is capped at MaxLimit.
func (r *Ranker) Page(ctx context.Context, viewerID string, limit, offset int) ([]FeedPoll, error) {
	q := store.RankQuery{
		Now:    r.now().UTC(),
		Limit:  NormalizeLimit(limit),
		Offset: max(offset, 0),
	}

	polls, err := r.polls.RankedPolls(ctx, q)
	if err != nil {
		return nil, errors.WrapIf(err, "load ranked polls")
	}

	choices := map[string]string{}
	if viewerID != "" && len(polls) > 0 {
		ids := make([]string, 0, len(polls))
		for _, p := range polls {
			ids = append(ids, p.ID)
		}
		if choices, err = r.polls.ViewerChoices(ctx, viewerID, ids); err != nil {
			return nil, errors.WrapIf(err, "load viewer choices")
		}
	}

	out := make([]FeedPoll, 0, len(polls))
	for i := range polls {
		out = append(out, toFeedPoll(&polls[i], q, choices[polls[i].ID]))
	}
	return out, nil
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func toFeedPoll(p *models.Poll, q store.RankQuery, choice string) FeedPoll {
	fp := FeedPoll{
		ID:           p.ID,
		Text:         p.Text,
		Category:     p.Category,
		SourceURL:    p.SourceURL,
		VoteCount:    p.VoteCount,
		CommentCount: p.CommentCount,
		CreatedAt:    p.CreatedAt,
		PublishedAt:  p.PublishedAt,
		Score:        q.Score(p),
		Options:      make([]FeedOption, 0, len(p.Options)),
		ViewerChoice: choice,
	}
	for _, o := range p.Options {
		fp.Options = append(fp.Options, FeedOption{
			ID:         o.ID,
			Text:       o.Text,
			VoteCount:  o.VoteCount,
			Percentage: voting.Percentage(o.VoteCount, p.VoteCount),
		})
	}
	return fp
}
