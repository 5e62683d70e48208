package generator

import (
	"strings"
	"unicode"

	"emperror.dev/errors"
	jsoniter "github.com/json-iterator/go"
)

// strict rejects unknown fields and trailing data.
var strict = jsoniter.Config{
	EscapeHTML:             true,
	ValidateJsonRawMessage: true,
	DisallowUnknownFields:  true,
}.Froze()

type draftPayload struct {
	Question string   `json:"question"`
	OptionA  string   `json:"option_a"`
	OptionB  string   `json:"option_b"`
	Options  []string `json:"options"`
	Category string   `json:"category"`
}

type riskPayload struct {
	Score  *float64 `json:"score"`
	Reason string   `json:"reason"`
}

// stripFences removes a surrounding markdown code fence such as ```json ... ```.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimLeftFunc(s, unicode.IsLetter)
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseDraft(raw string) (Draft, error) {
	var p draftPayload
	if err := strict.Unmarshal([]byte(stripFences(raw)), &p); err != nil {
		return Draft{}, errors.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	var options []string
	switch {
	case len(p.Options) > 0 && (p.OptionA != "" || p.OptionB != ""):
		return Draft{}, errors.WithMessage(ErrMalformedResponse, "both options and option_a/option_b present")
	case len(p.Options) > 0:
		options = p.Options
	default:
		options = []string{p.OptionA, p.OptionB}
	}

	draft := Draft{
		Question: strings.TrimSpace(p.Question),
		Category: strings.TrimSpace(p.Category),
		Options:  make([]string, 0, len(options)),
	}
	for _, option := range options {
		option = strings.TrimSpace(option)
		if option == "" {
			return Draft{}, errors.WithMessage(ErrMalformedResponse, "empty option")
		}
		draft.Options = append(draft.Options, option)
	}

	switch {
	case draft.Question == "":
		return Draft{}, errors.WithMessage(ErrMalformedResponse, "missing question")
	case draft.Category == "":
		return Draft{}, errors.WithMessage(ErrMalformedResponse, "missing category")
	case len(draft.Options) < MinOptions || len(draft.Options) > MaxOptions:
		return Draft{}, errors.WithMessagef(ErrMalformedResponse, "%d options", len(draft.Options))
	}
	return draft, nil
}

func parseRisk(raw string) (int, error) {
	var p riskPayload
	if err := strict.Unmarshal([]byte(stripFences(raw)), &p); err != nil {
		return 0, errors.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if p.Score == nil {
		return 0, errors.WithMessage(ErrMalformedResponse, "missing score")
	}
	score, ok := roundScore(*p.Score)
	if !ok {
		return 0, errors.WithMessagef(ErrMalformedResponse, "score %v out of range", *p.Score)
	}
	return score, nil
}
