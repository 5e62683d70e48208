// Package postgres implements store.Store on gorm.
package postgres

import (
	"context"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/AlekSi/pointer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pollwave/backend/internal/database"
	"github.com/pollwave/backend/internal/logging"
	"github.com/pollwave/backend/internal/models"
	"github.com/pollwave/backend/internal/store"
)

type Store struct {
	database.Service
	db  *gorm.DB
	log *logrus.Entry
}

func NewStore(svc database.Service) *Store {
	return &Store{
		Service: svc,
		db:      svc.GetDB(),
		log:     logging.Module("store"),
	}
}

func (s *Store) CreatePoll(ctx context.Context, poll *models.Poll) error {
	if !poll.Status.Valid() || len(poll.Options) < 2 {
		return store.ErrInvalidPoll
	}
	for i := range poll.Options {
		poll.Options[i].Position = i
	}

	// Create saves the poll and its options in one transaction.
	if err := s.db.WithContext(ctx).Create(poll).Error; err != nil {
		return s.transient("create_poll_failed", err, logrus.Fields{"poll_id": poll.ID})
	}
	return nil
}

func (s *Store) RecordVote(ctx context.Context, userID, pollID, optionID string) (models.Poll, error) {
	if !validID(pollID) {
		return models.Poll{}, store.ErrPollNotFound
	}
	if !validID(optionID) {
		return models.Poll{}, store.ErrInvalidOption
	}

	var poll models.Poll
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND status = ?", pollID, models.PollPublished).
			Take(&poll).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return store.ErrPollNotFound
			}
			return err
		}

		var option models.Option
		if err := tx.Where("id = ? AND poll_id = ?", optionID, pollID).
			Take(&option).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return store.ErrInvalidOption
			}
			return err
		}

		// The unique index on (user_id, poll_id) is the only duplicate check.
		vote := models.Vote{UserID: userID, PollID: pollID, OptionID: optionID}
		if err := tx.Create(&vote).Error; err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicateVote
			}
			return err
		}

		if err := tx.Model(&models.Option{}).Where("id = ?", optionID).
			UpdateColumn("vote_count", gorm.Expr("vote_count + ?", 1)).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Poll{}).Where("id = ?", pollID).
			UpdateColumn("vote_count", gorm.Expr("vote_count + ?", 1)).Error; err != nil {
			return err
		}

		return tx.Preload("Options", orderedOptions).Take(&poll, "id = ?", pollID).Error
	})
	if err != nil {
		if isDomainError(err) {
			return models.Poll{}, err
		}
		return models.Poll{}, s.transient("record_vote_failed", err, logrus.Fields{
			"poll_id":   pollID,
			"option_id": optionID,
			"user_id":   userID,
		})
	}
	return poll, nil
}

func (s *Store) RankedPolls(ctx context.Context, q store.RankQuery) ([]models.Poll, error) {
	var polls []models.Poll
	err := s.db.WithContext(ctx).
		Preload("Options", orderedOptions).
		Where("status = ?", models.PollPublished).
		Clauses(clause.OrderBy{Expression: clause.Expr{
			SQL: "(CASE WHEN created_at > ? THEN ? ELSE 0 END + vote_count + ? * comment_count) DESC, created_at DESC, id",
			Vars: []interface{}{
				q.FreshSince(), store.FreshnessBoost, store.CommentWeight,
			},
			WithoutParentheses: true,
		}}).
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&polls).Error
	if err != nil {
		return nil, s.transient("ranked_polls_failed", err, nil)
	}
	return polls, nil
}

func (s *Store) ViewerChoices(ctx context.Context, userID string, pollIDs []string) (map[string]string, error) {
	choices := make(map[string]string, len(pollIDs))
	if len(pollIDs) == 0 || userID == "" {
		return choices, nil
	}

	var votes []models.Vote
	err := s.db.WithContext(ctx).
		Select("poll_id", "option_id").
		Where("user_id = ? AND poll_id IN ?", userID, pollIDs).
		Find(&votes).Error
	if err != nil {
		return nil, s.transient("viewer_choices_failed", err, logrus.Fields{"user_id": userID})
	}
	for _, v := range votes {
		choices[v.PollID] = v.OptionID
	}
	return choices, nil
}

func (s *Store) ListPending(ctx context.Context, limit, offset int) ([]models.Poll, error) {
	var polls []models.Poll
	err := s.db.WithContext(ctx).
		Preload("Options", orderedOptions).
		Where("status = ?", models.PollPending).
		Order("created_at, id").
		Limit(limit).
		Offset(offset).
		Find(&polls).Error
	if err != nil {
		return nil, s.transient("list_pending_failed", err, nil)
	}
	return polls, nil
}

func (s *Store) Review(ctx context.Context, pollID string, approve bool, now time.Time) (models.Poll, error) {
	updates := map[string]interface{}{"status": models.PollCancelled}
	if approve {
		updates = map[string]interface{}{
			"status":       models.PollPublished,
			"published_at": pointer.ToTime(now),
		}
	}
	if !validID(pollID) {
		return models.Poll{}, store.ErrPollNotFound
	}

	var poll models.Poll
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Poll{}).
			Where("id = ? AND status = ?", pollID, models.PollPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrPollNotFound
		}
		return tx.Preload("Options", orderedOptions).Take(&poll, "id = ?", pollID).Error
	})
	if err != nil {
		if isDomainError(err) {
			return models.Poll{}, err
		}
		return models.Poll{}, s.transient("review_failed", err, logrus.Fields{"poll_id": pollID})
	}
	return poll, nil
}

func (s *Store) AddComment(ctx context.Context, comment *models.Comment) error {
	if !validID(comment.PollID) {
		return store.ErrPollNotFound
	}
	if comment.ParentID != nil && !validID(*comment.ParentID) {
		return store.ErrCommentNotFound
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Poll{}).
			Where("id = ? AND status = ?", comment.PollID, models.PollPublished).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return store.ErrPollNotFound
		}

		if comment.ParentID != nil {
			if err := tx.Model(&models.Comment{}).
				Where("id = ? AND poll_id = ?", *comment.ParentID, comment.PollID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return store.ErrCommentNotFound
			}
		}

		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Poll{}).Where("id = ?", comment.PollID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + ?", 1)).Error
	})
	if err != nil {
		if isDomainError(err) {
			return err
		}
		return s.transient("add_comment_failed", err, logrus.Fields{"poll_id": comment.PollID})
	}
	return nil
}

func (s *Store) ListComments(ctx context.Context, pollID string, limit, offset int) ([]models.Comment, error) {
	comments := []models.Comment{}
	if !validID(pollID) {
		return comments, nil
	}
	err := s.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Order("created_at, id").
		Limit(limit).
		Offset(offset).
		Find(&comments).Error
	if err != nil {
		return nil, s.transient("list_comments_failed", err, logrus.Fields{"poll_id": pollID})
	}
	return comments, nil
}

func (s *Store) TouchDeviceUser(ctx context.Context, deviceID string, now time.Time) (models.User, error) {
	user := models.User{DeviceID: strings.TrimSpace(deviceID), CreatedAt: now, LastLoginAt: now}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"last_login_at": now}),
	}).Create(&user).Error
	if err != nil {
		return models.User{}, s.transient("touch_user_failed", err, nil)
	}

	// On conflict the generated id was not stored, so read the row back.
	var stored models.User
	if err := s.db.WithContext(ctx).Take(&stored, "device_id = ?", user.DeviceID).Error; err != nil {
		return models.User{}, s.transient("touch_user_failed", err, nil)
	}
	return stored, nil
}

// validID keeps malformed ids away from uuid columns, where Postgres would
// reject the whole statement.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func orderedOptions(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

func (s *Store) transient(event string, err error, fields logrus.Fields) error {
	s.log.WithFields(fields).WithField("event", event).WithError(err).Error("store operation failed")
	return errors.Errorf("%w: %w", store.ErrTransient, err)
}

func isDomainError(err error) bool {
	return errors.Is(err, store.ErrPollNotFound) ||
		errors.Is(err, store.ErrInvalidOption) ||
		errors.Is(err, store.ErrDuplicateVote) ||
		errors.Is(err, store.ErrCommentNotFound)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return (errors.As(err, &pgErr) && pgErr.Code == "23505") || errors.Is(err, gorm.ErrDuplicatedKey)
}

var _ store.Store = (*Store)(nil)
