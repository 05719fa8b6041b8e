package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"parley/parley/utils/types"
)

type User struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Email     string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	FullName  *string   `json:"full_name,omitempty" gorm:"type:varchar(255)"`
	ImageURL  *string   `json:"image_url,omitempty" gorm:"type:varchar(512)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (u User) Identity() types.Identity {
	id := types.Identity{ID: u.ID, Email: u.Email}
	if u.FullName != nil {
		id.Name = *u.FullName
	}
	return id
}

// RevokedToken records a signed-out session token until it would have expired anyway.
type RevokedToken struct {
	JTI       string    `json:"jti" gorm:"type:varchar(64);primaryKey"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (RevokedToken) TableName() string {
	return "revoked_tokens"
}
