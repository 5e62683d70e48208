package generator

import (
	"context"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollwave/backend/internal/quota"
)

type scriptedModel struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (m *scriptedModel) Generate(ctx context.Context, prompt string) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	out := m.responses[0]
	m.responses = m.responses[1:]
	return out, nil
}

type blockingModel struct{}

func (blockingModel) Generate(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type allowAll struct{ calls int }

func (a *allowAll) Reserve(context.Context) error {
	a.calls++
	return nil
}

type denyAll struct{}

func (denyAll) Reserve(context.Context) error {
	return &quota.DeniedError{Reason: quota.ReasonMinute, Window: "minute"}
}

func TestDraftFromTopic(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"```json\n{\"question\":\"X?\",\"option_a\":\"A\",\"option_b\":\"B\",\"category\":\"Spor\"}\n```",
	}}
	gate := &allowAll{}
	gen := New(model, gate, time.Second)

	draft, err := gen.DraftFromTopic(context.Background(), "Futbol Hakem Hataları")
	require.NoError(t, err)
	assert.Equal(t, Draft{Question: "X?", Options: []string{"A", "B"}, Category: "Spor"}, draft)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, 1, gate.calls)
	assert.Contains(t, model.prompts[0], "Futbol Hakem Hataları")
}

func TestDraftFromTopicRateLimited(t *testing.T) {
	model := &scriptedModel{}
	gen := New(model, denyAll{}, time.Second)

	_, err := gen.DraftFromTopic(context.Background(), "topic")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Zero(t, model.calls)
}

func TestDraftFromTopicMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":         "here is your question: X?",
		"one option":       `{"question":"X?","options":["A"],"category":"Spor"}`,
		"five options":     `{"question":"X?","options":["A","B","C","D","E"],"category":"Spor"}`,
		"unknown field":    `{"question":"X?","option_a":"A","option_b":"B","category":"Spor","mood":"happy"}`,
		"missing category": `{"question":"X?","option_a":"A","option_b":"B"}`,
		"blank option":     `{"question":"X?","option_a":"A","option_b":"  ","category":"Spor"}`,
		"mixed shapes":     `{"question":"X?","option_a":"A","options":["A","B"],"category":"Spor"}`,
		"array":            `[{"question":"X?"}]`,
		"trailing text":    `{"question":"X?","option_a":"A","option_b":"B","category":"Spor"} thanks!`,
	}
	for name, response := range cases {
		t.Run(name, func(t *testing.T) {
			model := &scriptedModel{responses: []string{response}}
			gen := New(model, &allowAll{}, time.Second)

			_, err := gen.DraftFromTopic(context.Background(), "topic")
			assert.ErrorIs(t, err, ErrMalformedResponse)
			assert.Equal(t, 1, model.calls, "no retry expected")
		})
	}
}

func TestDraftFromTopicMultiOption(t *testing.T) {
	model := &scriptedModel{responses: []string{
		`{"question":"Hangisi?","options":["A","B","C"],"category":"Gündem"}`,
	}}
	draft, err := New(model, &allowAll{}, time.Second).DraftFromTopic(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, draft.Options)
	assert.Equal(t, "Hangisi? A B C", draft.Text())
}

func TestDraftFromTopicTimeout(t *testing.T) {
	gen := New(blockingModel{}, &allowAll{}, 10*time.Millisecond)

	_, err := gen.DraftFromTopic(context.Background(), "topic")
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScoreRisk(t *testing.T) {
	model := &scriptedModel{responses: []string{"```json\n{\"score\": 45, \"reason\": \"tartışmalı\"}\n```"}}
	assert.Equal(t, 45, New(model, &allowAll{}, time.Second).ScoreRisk(context.Background(), "text"))
}

func TestScoreRiskFailsSafe(t *testing.T) {
	cases := map[string]*scriptedModel{
		"transport error": {err: errors.New("connection reset")},
		"garbage":         {responses: []string{"güvenli görünüyor"}},
		"missing score":   {responses: []string{`{"reason":"ok"}`}},
		"out of range":    {responses: []string{`{"score":140,"reason":"x"}`}},
		"negative":        {responses: []string{`{"score":-3,"reason":"x"}`}},
	}
	for name, model := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, MaxRiskScore, New(model, &allowAll{}, time.Second).ScoreRisk(context.Background(), "text"))
		})
	}

	t.Run("quota denied", func(t *testing.T) {
		model := &scriptedModel{responses: []string{`{"score":0,"reason":"x"}`}}
		assert.Equal(t, MaxRiskScore, New(model, denyAll{}, time.Second).ScoreRisk(context.Background(), "text"))
		assert.Zero(t, model.calls)
	})

	t.Run("timeout", func(t *testing.T) {
		assert.Equal(t, MaxRiskScore, New(blockingModel{}, &allowAll{}, 10*time.Millisecond).ScoreRisk(context.Background(), "text"))
	})
}

func TestScoreRiskRoundsFractions(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"score":30.4,"reason":"x"}`}}
	assert.Equal(t, 30, New(model, &allowAll{}, time.Second).ScoreRisk(context.Background(), "text"))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripFences("  {\"a\":1}  "))
}
