// Package generator turns topics into poll drafts and scores text for risk
// using a remote language model. Every model call goes through the quota
// gate first.
package generator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/sirupsen/logrus"

	"github.com/pollwave/backend/internal/logging"
	"github.com/pollwave/backend/internal/metrics"
	"github.com/pollwave/backend/internal/quota"
)

const (
	MinOptions = 2
	MaxOptions = 4

	// MaxRiskScore is also the fail-safe answer of ScoreRisk.
	MaxRiskScore = 100
)

var (
	// ErrRateLimited is the quota denial; the wrapped *quota.DeniedError
	// carries the reason.
	ErrRateLimited       = quota.ErrRateLimited
	ErrMalformedResponse = errors.NewPlain("malformed generation response")
	ErrGeneration        = errors.NewPlain("generation call failed")
)

// Model is the remote text generator.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Reserver is the quota check-and-increment, satisfied by *quota.Gate.
type Reserver interface {
	Reserve(ctx context.Context) error
}

// Draft is a validated poll candidate.
type Draft struct {
	Question string
	Options  []string
	Category string
}

// Text is the question followed by every option, space separated.
func (d Draft) Text() string {
	return strings.Join(append([]string{d.Question}, d.Options...), " ")
}

type Generator struct {
	model   Model
	gate    Reserver
	timeout time.Duration
	log     *logrus.Entry
}

func New(model Model, gate Reserver, timeout time.Duration) *Generator {
	return &Generator{
		model:   model,
		gate:    gate,
		timeout: timeout,
		log:     logging.Module("generator"),
	}
}

const draftPrompt = `Sen anonim bir oylama uygulaması için soru hazırlayan bir editörsün.
Konu: %q
Bu konu hakkında insanları ikiye bölecek, tartışma yaratacak ama hakaret, suç isnadı veya
nefret söylemi içermeyen tek bir soru yaz.
Yalnızca şu JSON nesnesini döndür, başka hiçbir alan ekleme:
{"question": "soru metni", "option_a": "birinci seçenek", "option_b": "ikinci seçenek", "category": "Politika | Magazin | Spor | Teknoloji | Gündem"}
Markdown kod bloğu kullanma.`

const riskPrompt = `Aşağıdaki metni hukuki risk, nefret söylemi, suç isnadı ve toplumsal infial
açısından değerlendir. 0 (tamamen güvenli) ile 100 (yayınlanamaz) arasında bir tam sayı puan ver.
Metin: %q
Yalnızca şu JSON nesnesini döndür: {"score": 0, "reason": "kısa açıklama"}
Markdown kod bloğu kullanma.`

// DraftFromTopic makes exactly one model call for topic. A quota denial
// returns ErrRateLimited before any call; transport failures and timeouts
// return ErrGeneration; a response of the wrong shape returns
// ErrMalformedResponse. Nothing is retried.
func (g *Generator) DraftFromTopic(ctx context.Context, topic string) (Draft, error) {
	log := g.log.WithField("topic", topic)

	text, err := g.call(ctx, "draft", fmt.Sprintf(draftPrompt, topic))
	if err != nil {
		return Draft{}, err
	}

	draft, err := parseDraft(text)
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues("draft", "malformed").Inc()
		log.WithError(err).Warn("draft response rejected")
		return Draft{}, err
	}
	metrics.GenerationRequestsTotal.WithLabelValues("draft", "ok").Inc()
	return draft, nil
}

// ScoreRisk returns an integer in [0, 100]. Every failure, including a quota
// denial, yields MaxRiskScore so that a broken evaluation is never read as
// safe content.
func (g *Generator) ScoreRisk(ctx context.Context, text string) int {
	raw, err := g.call(ctx, "risk", fmt.Sprintf(riskPrompt, text))
	if err != nil {
		g.log.WithError(err).Warn("risk scoring failed, assuming maximum risk")
		return MaxRiskScore
	}

	score, err := parseRisk(raw)
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues("risk", "malformed").Inc()
		g.log.WithError(err).Warn("risk response rejected, assuming maximum risk")
		return MaxRiskScore
	}
	metrics.GenerationRequestsTotal.WithLabelValues("risk", "ok").Inc()
	return score
}

func (g *Generator) call(ctx context.Context, kind, prompt string) (string, error) {
	if err := g.gate.Reserve(ctx); err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(kind, "denied").Inc()
		return "", errors.WithStack(err)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	text, err := g.model.Generate(ctx, prompt)
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(kind, "error").Inc()
		return "", errors.Errorf("%w: %w", ErrGeneration, err)
	}
	return text, nil
}

func roundScore(v float64) (int, bool) {
	if math.IsNaN(v) || v < 0 || v > MaxRiskScore {
		return 0, false
	}
	return int(math.Round(v)), true
}
