package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an anonymous identity keyed by the client's device id.
type User struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID    string    `gorm:"uniqueIndex;not null" json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLoginAt time.Time `json:"lastLoginAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

type AnonLoginRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
