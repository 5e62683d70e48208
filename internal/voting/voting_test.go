package voting

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"emperror.dev/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollwave/backend/internal/metrics"
	"github.com/pollwave/backend/internal/models"
	"github.com/pollwave/backend/internal/store"
	"github.com/pollwave/backend/internal/store/memory"
)

func seedPoll(t *testing.T, s *memory.Store, options ...string) *models.Poll {
	t.Helper()
	p := &models.Poll{Text: "Hangisi?", Status: models.PollPublished}
	for _, o := range options {
		p.Options = append(p.Options, models.Option{Text: o})
	}
	require.NoError(t, s.CreatePoll(context.Background(), p))
	return p
}

func TestCastVote(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	engine := NewEngine(s)
	p := seedPoll(t, s, "A", "B")

	res, err := engine.CastVote(ctx, "u1", p.ID, p.Options[0].ID)
	require.NoError(t, err)
	assert.Equal(t, Result{
		PollVoteCount: 1,
		PerOption: []OptionStat{
			{OptionID: p.Options[0].ID, Count: 1, Percentage: 100},
			{OptionID: p.Options[1].ID, Count: 0, Percentage: 0},
		},
	}, res)

	res, err = engine.CastVote(ctx, "u2", p.ID, p.Options[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PollVoteCount)
	assert.Equal(t, 50, res.PerOption[0].Percentage)
	assert.Equal(t, 50, res.PerOption[1].Percentage)
}

func TestCastVoteErrors(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	engine := NewEngine(s)
	p := seedPoll(t, s, "A", "B")
	other := seedPoll(t, s, "C", "D")

	_, err := engine.CastVote(ctx, "u1", p.ID, p.Options[0].ID)
	require.NoError(t, err)

	cases := []struct {
		name                string
		voter, poll, option string
		want                error
	}{
		{"duplicate", "u1", p.ID, p.Options[1].ID, ErrDuplicateVote},
		{"option of another poll", "u2", p.ID, other.Options[0].ID, ErrInvalidOption},
		{"missing option", "u2", p.ID, "  ", ErrInvalidOption},
		{"missing voter", "", p.ID, p.Options[0].ID, ErrInvalidVote},
		{"missing poll", "u2", "", p.Options[0].ID, ErrInvalidVote},
		{"unknown poll", "u2", "nope", p.Options[0].ID, ErrPollNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.CastVote(ctx, tc.voter, tc.poll, tc.option)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// Failed attempts never touch the counters.
	res, err := engine.CastVote(ctx, "u3", p.ID, p.Options[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PollVoteCount)
}

func TestCastVoteConcurrentSameUser(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	engine := NewEngine(s)
	p := seedPoll(t, s, "A", "B")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := engine.CastVote(ctx, "same-user", p.ID, p.Options[i%2].ID); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)

	res, err := engine.CastVote(ctx, "someone-else", p.ID, p.Options[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PollVoteCount)
}

func TestPercentagesSumNearHundred(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	engine := NewEngine(s)
	p := seedPoll(t, s, "A", "B", "C")

	var res Result
	var err error
	for i := 0; i < 7; i++ {
		res, err = engine.CastVote(ctx, fmt.Sprintf("u%d", i), p.ID, p.Options[i%3].ID)
		require.NoError(t, err)
	}

	sum, counts := 0, 0
	for _, o := range res.PerOption {
		sum += o.Percentage
		counts += o.Count
	}
	assert.Equal(t, res.PollVoteCount, counts)
	assert.InDelta(t, 100, sum, float64(len(res.PerOption)))
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, Percentage(0, 0))
	assert.Equal(t, 0, Percentage(3, 0))
	assert.Equal(t, 33, Percentage(1, 3))
	assert.Equal(t, 67, Percentage(2, 3))
	assert.Equal(t, 100, Percentage(5, 5))
}

func TestTallyZeroVotes(t *testing.T) {
	res := Tally(models.Poll{Options: []models.Option{{ID: "a"}, {ID: "b"}}})
	assert.Equal(t, 0, res.PollVoteCount)
	for _, o := range res.PerOption {
		assert.Zero(t, o.Percentage)
	}
}

type unavailableRecorder struct{}

func (unavailableRecorder) RecordVote(context.Context, string, string, string) (models.Poll, error) {
	return models.Poll{}, errors.Errorf("%w: connection reset", store.ErrTransient)
}

func TestCastVoteTransientFailure(t *testing.T) {
	failed := metrics.VotesTotal.WithLabelValues("error")
	before := testutil.ToFloat64(failed)

	res, err := NewEngine(unavailableRecorder{}).CastVote(context.Background(), "u1", "p1", "o1")
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, before+1, testutil.ToFloat64(failed))
}
