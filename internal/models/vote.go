package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vote is immutable; one per user and poll.
type Vote struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_votes_user_poll" json:"userId"`
	PollID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_votes_user_poll;index" json:"pollId"`
	OptionID  string    `gorm:"type:uuid;not null" json:"optionId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (v *Vote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

type VoteRequest struct {
	OptionID string `json:"optionId"`
}
