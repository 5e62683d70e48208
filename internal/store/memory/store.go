// Package memory is a process-local store.Store used by tests and by
// STORE_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/google/uuid"

	"github.com/pollwave/backend/internal/models"
	"github.com/pollwave/backend/internal/store"
)

type voteKey struct {
	userID string
	pollID string
}

type Store struct {
	mu sync.Mutex

	polls    map[string]*models.Poll
	votes    map[voteKey]models.Vote
	comments map[string][]models.Comment
	users    map[string]models.User

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		polls:    make(map[string]*models.Poll),
		votes:    make(map[voteKey]models.Vote),
		comments: make(map[string][]models.Comment),
		users:    make(map[string]models.User),
		now:      time.Now,
	}
}

// SetClock replaces the time source used for creation timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) CreatePoll(ctx context.Context, poll *models.Poll) error {
	if !poll.Status.Valid() || len(poll.Options) < 2 {
		return store.ErrInvalidPoll
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if poll.ID == "" {
		poll.ID = uuid.NewString()
	}
	if poll.CreatedAt.IsZero() {
		poll.CreatedAt = s.now()
	}
	for i := range poll.Options {
		if poll.Options[i].ID == "" {
			poll.Options[i].ID = uuid.NewString()
		}
		poll.Options[i].PollID = poll.ID
		poll.Options[i].Position = i
	}
	s.polls[poll.ID] = clonePoll(poll)
	return nil
}

func (s *Store) RecordVote(ctx context.Context, userID, pollID, optionID string) (models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	poll, ok := s.polls[pollID]
	if !ok || poll.Status != models.PollPublished {
		return models.Poll{}, store.ErrPollNotFound
	}
	idx := -1
	for i := range poll.Options {
		if poll.Options[i].ID == optionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Poll{}, store.ErrInvalidOption
	}

	key := voteKey{userID: userID, pollID: pollID}
	if _, exists := s.votes[key]; exists {
		return models.Poll{}, store.ErrDuplicateVote
	}
	s.votes[key] = models.Vote{
		ID:        uuid.NewString(),
		UserID:    userID,
		PollID:    pollID,
		OptionID:  optionID,
		CreatedAt: s.now(),
	}
	poll.Options[idx].VoteCount++
	poll.VoteCount++
	return *clonePoll(poll), nil
}

func (s *Store) RankedPolls(ctx context.Context, q store.RankQuery) ([]models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	published := make([]*models.Poll, 0, len(s.polls))
	for _, p := range s.polls {
		if p.Status == models.PollPublished {
			published = append(published, p)
		}
	}
	sort.Slice(published, func(i, j int) bool {
		a, b := published[i], published[j]
		if sa, sb := q.Score(a), q.Score(b); sa != sb {
			return sa > sb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return page(published, q.Limit, q.Offset), nil
}

func (s *Store) ViewerChoices(ctx context.Context, userID string, pollIDs []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	choices := make(map[string]string)
	for _, pollID := range pollIDs {
		if v, ok := s.votes[voteKey{userID: userID, pollID: pollID}]; ok {
			choices[pollID] = v.OptionID
		}
	}
	return choices, nil
}

func (s *Store) ListPending(ctx context.Context, limit, offset int) ([]models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]*models.Poll, 0)
	for _, p := range s.polls {
		if p.Status == models.PollPending {
			pending = append(pending, p)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	return page(pending, limit, offset), nil
}

func (s *Store) Review(ctx context.Context, pollID string, approve bool, now time.Time) (models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	poll, ok := s.polls[pollID]
	if !ok || poll.Status != models.PollPending {
		return models.Poll{}, store.ErrPollNotFound
	}
	if approve {
		poll.Status = models.PollPublished
		poll.PublishedAt = pointer.ToTime(now)
	} else {
		poll.Status = models.PollCancelled
	}
	return *clonePoll(poll), nil
}

func (s *Store) AddComment(ctx context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	poll, ok := s.polls[comment.PollID]
	if !ok || poll.Status != models.PollPublished {
		return store.ErrPollNotFound
	}
	if comment.ParentID != nil {
		if !s.hasComment(comment.PollID, *comment.ParentID) {
			return store.ErrCommentNotFound
		}
	}

	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = s.now()
	}
	s.comments[comment.PollID] = append(s.comments[comment.PollID], *comment)
	poll.CommentCount++
	return nil
}

func (s *Store) hasComment(pollID, commentID string) bool {
	for _, c := range s.comments[pollID] {
		if c.ID == commentID {
			return true
		}
	}
	return false
}

func (s *Store) ListComments(ctx context.Context, pollID string, limit, offset int) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := append([]models.Comment(nil), s.comments[pollID]...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	offset = max(offset, 0)
	if offset >= len(all) {
		return []models.Comment{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) TouchDeviceUser(ctx context.Context, deviceID string, now time.Time) (models.User, error) {
	deviceID = strings.TrimSpace(deviceID)

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[deviceID]
	if !ok {
		user = models.User{ID: uuid.NewString(), DeviceID: deviceID, CreatedAt: now}
	}
	user.LastLoginAt = now
	s.users[deviceID] = user
	return user, nil
}

func (s *Store) Health() map[string]string {
	return map[string]string{
		"status":  "up",
		"message": "in-memory store",
	}
}

func (s *Store) Close() error { return nil }

func page(polls []*models.Poll, limit, offset int) []models.Poll {
	offset = max(offset, 0)
	if offset >= len(polls) {
		return []models.Poll{}
	}
	polls = polls[offset:]
	if limit > 0 && limit < len(polls) {
		polls = polls[:limit]
	}
	out := make([]models.Poll, 0, len(polls))
	for _, p := range polls {
		out = append(out, *clonePoll(p))
	}
	return out
}

func clonePoll(p *models.Poll) *models.Poll {
	cp := *p
	cp.Options = append([]models.Option(nil), p.Options...)
	return &cp
}

var _ store.Store = (*Store)(nil)
