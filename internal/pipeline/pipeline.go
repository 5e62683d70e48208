// Package pipeline turns one topic into at most one stored poll.
package pipeline

import (
	"context"
	"net/url"
	"time"

	"emperror.dev/errors"
	"github.com/AlekSi/pointer"
	"github.com/sirupsen/logrus"

	"github.com/pollwave/backend/internal/generator"
	"github.com/pollwave/backend/internal/logging"
	"github.com/pollwave/backend/internal/metrics"
	"github.com/pollwave/backend/internal/models"
	"github.com/pollwave/backend/internal/risk"
	"github.com/pollwave/backend/internal/store"
)

const searchURL = "https://www.google.com/search?"

type Drafter interface {
	DraftFromTopic(ctx context.Context, topic string) (generator.Draft, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, draft generator.Draft) risk.Evaluation
}

// Result describes what a run did. PollID is set only when Persisted.
type Result struct {
	Topic     string        `json:"topic"`
	Decision  risk.Decision `json:"decision,omitempty"`
	RiskScore int           `json:"riskScore"`
	PollID    string        `json:"pollId,omitempty"`
	Persisted bool          `json:"persisted"`
}

type Pipeline struct {
	topics    TopicSource
	drafter   Drafter
	evaluator Evaluator
	polls     store.PollWriter
	now       func() time.Time
	log       *logrus.Entry
}

type Option func(*Pipeline)

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(topics TopicSource, drafter Drafter, evaluator Evaluator, polls store.PollWriter, opts ...Option) *Pipeline {
	p := &Pipeline{
		topics:    topics,
		drafter:   drafter,
		evaluator: evaluator,
		polls:     polls,
		now:       time.Now,
		log:       logging.Module("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes one candidate. A cancelled candidate is a successful run
// with Persisted false. Any error means nothing was stored and the topic
// source was not advanced.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	topic, err := p.topics.NextTopic(ctx)
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("aborted").Inc()
		return Result{}, errors.WrapIf(err, "pick topic")
	}
	res := Result{Topic: topic}
	log := p.log.WithField("topic", topic)
	log.Info("pipeline run started")

	draft, err := p.drafter.DraftFromTopic(ctx, topic)
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("aborted").Inc()
		log.WithError(err).Warn("draft generation failed, run aborted")
		return res, errors.WrapIf(err, "draft poll")
	}

	eval := p.evaluator.Evaluate(ctx, draft)
	res.Decision = eval.Decision
	res.RiskScore = eval.RiskScore
	log = log.WithFields(logrus.Fields{"decision": eval.Decision, "risk_score": eval.RiskScore})

	if eval.Decision == risk.Cancel {
		metrics.PipelineRunsTotal.WithLabelValues("cancelled").Inc()
		log.Info("draft cancelled by risk evaluation")
		p.topicDone(ctx, log, topic)
		return res, nil
	}

	poll := p.buildPoll(topic, draft, eval)
	if err := p.polls.CreatePoll(ctx, poll); err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
		log.WithError(err).Error("persist poll failed")
		return res, errors.WrapIf(err, "persist poll")
	}

	res.PollID = poll.ID
	res.Persisted = true
	metrics.PipelineRunsTotal.WithLabelValues(string(poll.Status)).Inc()
	log.WithField("poll_id", poll.ID).Info("poll stored")
	p.topicDone(ctx, log, topic)
	return res, nil
}

// topicDone advances the topic source after a completed run. The run's
// outcome already stands, so a failure here is only logged.
func (p *Pipeline) topicDone(ctx context.Context, log *logrus.Entry, topic string) {
	if err := p.topics.Done(ctx, topic); err != nil {
		log.WithError(err).Warn("advance topic failed")
	}
}

func (p *Pipeline) buildPoll(topic string, draft generator.Draft, eval risk.Evaluation) *models.Poll {
	now := p.now().UTC()
	poll := &models.Poll{
		Text:      draft.Question,
		Category:  draft.Category,
		Status:    models.PollPending,
		RiskScore: pointer.ToInt(eval.RiskScore),
		SourceURL: SourceURL(topic),
		CreatedAt: now,
	}
	if eval.Decision == risk.Publish {
		poll.Status = models.PollPublished
		poll.PublishedAt = pointer.ToTime(now)
	}
	for _, text := range draft.Options {
		poll.Options = append(poll.Options, models.Option{Text: text})
	}
	return poll
}

// SourceURL links a poll back to a web search for its topic.
func SourceURL(topic string) string {
	return searchURL + url.Values{"q": {topic}}.Encode()
}
