// Package polls handles polls and comments written by users.
package polls

import (
	"context"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"emperror.dev/errors"
	"github.com/AlekSi/pointer"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"

	"github.com/pollwave/backend/internal/generator"
	"github.com/pollwave/backend/internal/logging"
	"github.com/pollwave/backend/internal/models"
	"github.com/pollwave/backend/internal/risk"
	"github.com/pollwave/backend/internal/store"
)

const (
	MaxTextLength    = 300
	MaxOptionLength  = 100
	MaxCommentLength = 1000
	DefaultCategory  = "Gündem"

	CommentPageSize    = 20
	MaxCommentPageSize = 100
)

var (
	ErrInvalidInput = errors.NewPlain("invalid poll")
	ErrRejected     = errors.NewPlain("poll rejected by moderation")
)

type Input struct {
	Text     string
	Options  []string
	Category string
}

type Evaluator interface {
	Evaluate(ctx context.Context, draft generator.Draft) risk.Evaluation
}

type Store interface {
	store.PollWriter
	store.CommentStore
}

type Service struct {
	store             Store
	evaluator         Evaluator
	requireModeration bool
	policy            *bluemonday.Policy
	now               func() time.Time
	log               *logrus.Entry
}

// NewService builds the service. evaluator is only consulted when
// requireModeration is set and may be nil otherwise.
func NewService(s Store, evaluator Evaluator, requireModeration bool) *Service {
	return &Service{
		store:             s,
		evaluator:         evaluator,
		requireModeration: requireModeration && evaluator != nil,
		policy:            bluemonday.StrictPolicy(),
		now:               time.Now,
		log:               logging.Module("polls"),
	}
}

// Create stores a user poll. Without moderation it is published at once;
// with moderation the risk decision picks published, pending or rejected.
func (s *Service) Create(ctx context.Context, creatorID string, in Input) (models.Poll, error) {
	draft, err := s.clean(in)
	if err != nil {
		return models.Poll{}, err
	}

	now := s.now().UTC()
	poll := models.Poll{
		Text:      draft.Question,
		Category:  draft.Category,
		Status:    models.PollPublished,
		CreatorID: pointer.ToStringOrNil(creatorID),
		CreatedAt: now,
	}

	if s.requireModeration {
		eval := s.evaluator.Evaluate(ctx, draft)
		poll.RiskScore = pointer.ToInt(eval.RiskScore)
		switch eval.Decision {
		case risk.Cancel:
			s.log.WithFields(logrus.Fields{"creator_id": creatorID, "risk_score": eval.RiskScore}).
				Info("user poll rejected")
			return models.Poll{}, ErrRejected
		case risk.ManualReview:
			poll.Status = models.PollPending
		}
	}
	if poll.Status == models.PollPublished {
		poll.PublishedAt = pointer.ToTime(now)
	}
	for _, text := range draft.Options {
		poll.Options = append(poll.Options, models.Option{Text: text})
	}

	if err := s.store.CreatePoll(ctx, &poll); err != nil {
		return models.Poll{}, err
	}
	return poll, nil
}

func (s *Service) clean(in Input) (generator.Draft, error) {
	draft := generator.Draft{
		Question: s.Sanitize(in.Text),
		Category: s.Sanitize(in.Category),
	}
	if draft.Category == "" {
		draft.Category = DefaultCategory
	}
	if draft.Question == "" || utf8.RuneCountInString(draft.Question) > MaxTextLength {
		return generator.Draft{}, errors.WithMessage(ErrInvalidInput, "text must be 1-300 characters")
	}
	if len(in.Options) < generator.MinOptions || len(in.Options) > generator.MaxOptions {
		return generator.Draft{}, errors.WithMessage(ErrInvalidInput, "a poll needs 2 to 4 options")
	}
	for _, option := range in.Options {
		option = s.Sanitize(option)
		if option == "" || utf8.RuneCountInString(option) > MaxOptionLength {
			return generator.Draft{}, errors.WithMessage(ErrInvalidInput, "options must be 1-100 characters")
		}
		draft.Options = append(draft.Options, option)
	}
	return draft, nil
}

// Sanitize strips all markup and surrounding space. Entities are decoded
// again so plain punctuation survives.
func (s *Service) Sanitize(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}

func (s *Service) AddComment(ctx context.Context, userID, pollID, text string, parentID *string) (models.Comment, error) {
	text = s.Sanitize(text)
	if text == "" || utf8.RuneCountInString(text) > MaxCommentLength {
		return models.Comment{}, errors.WithMessage(ErrInvalidInput, "comment must be 1-1000 characters")
	}
	if parentID != nil && strings.TrimSpace(*parentID) == "" {
		parentID = nil
	}

	comment := models.Comment{
		PollID:    pollID,
		UserID:    userID,
		Text:      text,
		ParentID:  parentID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AddComment(ctx, &comment); err != nil {
		return models.Comment{}, err
	}
	return comment, nil
}

// ListComments returns up to limit comments, oldest first. A non-positive
// limit means CommentPageSize; larger values are capped at MaxCommentPageSize.
func (s *Service) ListComments(ctx context.Context, pollID string, limit, offset int) ([]models.Comment, error) {
	if limit <= 0 {
		limit = CommentPageSize
	}
	return s.store.ListComments(ctx, pollID, min(limit, MaxCommentPageSize), max(offset, 0))
}
