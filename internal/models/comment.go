package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Comment struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	PollID    string    `gorm:"type:uuid;not null;index" json:"questionId"`
	UserID    string    `gorm:"type:uuid;not null" json:"userId"`
	Text      string    `gorm:"not null" json:"text"`
	ParentID  *string   `gorm:"type:uuid" json:"parentId,omitempty"`
	LikeCount int       `gorm:"not null;default:0" json:"likeCount"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type CreateCommentRequest struct {
	Text     string  `json:"text" binding:"required"`
	ParentID *string `json:"parentId,omitempty"`
}
