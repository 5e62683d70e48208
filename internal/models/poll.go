package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PollStatus string

const (
	PollPending   PollStatus = "pending"
	PollPublished PollStatus = "published"
	PollCancelled PollStatus = "cancelled"
)

func (s PollStatus) Valid() bool {
	switch s {
	case PollPending, PollPublished, PollCancelled:
		return true
	}
	return false
}

// Poll is a question with two or more options. VoteCount always equals the
// sum of its options' counts.
type Poll struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	Text         string     `gorm:"not null" json:"text"`
	Category     string     `gorm:"not null;default:''" json:"category"`
	Status       PollStatus `gorm:"type:varchar(16);not null;index;check:status IN ('pending','published','cancelled')" json:"status"`
	RiskScore    *int       `json:"riskScore,omitempty"`
	CreatorID    *string    `gorm:"type:uuid;index" json:"creatorId,omitempty"`
	SourceURL    string     `json:"sourceUrl,omitempty"`
	VoteCount    int        `gorm:"not null;default:0;check:vote_count >= 0" json:"voteCount"`
	CommentCount int        `gorm:"not null;default:0;check:comment_count >= 0" json:"commentCount"`
	CreatedAt    time.Time  `gorm:"index" json:"createdAt"`
	PublishedAt  *time.Time `json:"publishedAt,omitempty"`
	Options      []Option   `gorm:"foreignKey:PollID;constraint:OnDelete:CASCADE" json:"options"`
}

func (p *Poll) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type Option struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	PollID    string `gorm:"type:uuid;not null;index" json:"pollId"`
	Text      string `gorm:"not null" json:"text"`
	Position  int    `gorm:"not null" json:"position"`
	VoteCount int    `gorm:"not null;default:0;check:vote_count >= 0" json:"voteCount"`
}

func (o *Option) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

type CreatePollRequest struct {
	Text     string   `json:"text" binding:"required"`
	Options  []string `json:"options" binding:"required"`
	Category string   `json:"category"`
}

type CreatePollResponse struct {
	ID     string     `json:"id"`
	Status PollStatus `json:"status"`
}
