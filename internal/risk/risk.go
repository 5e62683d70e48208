// Package risk decides whether a poll draft may be published.
package risk

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pollwave/backend/internal/generator"
	"github.com/pollwave/backend/internal/logging"
)

type Decision string

const (
	Publish      Decision = "PUBLISH"
	ManualReview Decision = "MANUAL_REVIEW"
	Cancel       Decision = "CANCEL"
)

// Score thresholds, inclusive.
const (
	PublishMax      = 30
	ManualReviewMax = 60
)

// DenyList is matched as a substring of the lower-cased draft text.
var DenyList = []string{"pedofili", "terör", "uyuşturucu", "intihar", "tecavüz"}

// Scorer returns a risk score in [0, 100]; *generator.Generator satisfies it.
type Scorer interface {
	ScoreRisk(ctx context.Context, text string) int
}

type Evaluation struct {
	Decision  Decision `json:"decision"`
	RiskScore int      `json:"riskScore"`
}

type Evaluator struct {
	scorer Scorer
	log    *logrus.Entry
}

func NewEvaluator(scorer Scorer) *Evaluator {
	return &Evaluator{
		scorer: scorer,
		log:    logging.Module("risk"),
	}
}

// Evaluate short-circuits to Cancel with the maximum score when the draft
// contains a denied word; the model is not consulted in that case.
func (e *Evaluator) Evaluate(ctx context.Context, draft generator.Draft) Evaluation {
	return e.EvaluateText(ctx, draft.Text())
}

func (e *Evaluator) EvaluateText(ctx context.Context, text string) Evaluation {
	if word, ok := e.denied(text); ok {
		e.log.WithField("word", word).Info("draft matched deny-list")
		return Evaluation{Decision: Cancel, RiskScore: generator.MaxRiskScore}
	}

	score := e.scorer.ScoreRisk(ctx, text)
	return Evaluation{Decision: Decide(score), RiskScore: score}
}

func (e *Evaluator) denied(text string) (string, bool) {
	// Casers are stateful, so they are built per call. Turkish casing maps
	// I to ı and the default maps it to i; a word may match under only one.
	forms := []string{
		cases.Lower(language.Und).String(text),
		cases.Lower(language.Turkish).String(text),
	}
	for _, word := range DenyList {
		for _, form := range forms {
			if strings.Contains(form, word) {
				return word, true
			}
		}
	}
	return "", false
}

// Decide maps a score to a decision.
func Decide(score int) Decision {
	switch {
	case score <= PublishMax:
		return Publish
	case score <= ManualReviewMax:
		return ManualReview
	default:
		return Cancel
	}
}
