package model

import (
	"time"

	"gorm.io/gorm"
)

// User types.
const (
	UserTypeListener = "LISTENER"
	UserTypeArtist   = "ARTIST"
	UserTypeAdmin    = "ADMIN"
)

// SubscriptionFree is the default tier. Tiers are informational only.
const SubscriptionFree = "FREE"

// User represents an account.
type User struct {
	ID               string    `json:"id" gorm:"primaryKey;size:36"`
	Email            string    `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Username         string    `json:"username" gorm:"size:50;uniqueIndex;not null"`
	PasswordHash     string    `json:"-" gorm:"size:255;not null"`
	FirstName        *string   `json:"firstName" gorm:"size:100"`
	LastName         *string   `json:"lastName" gorm:"size:100"`
	UserType         string    `json:"userType" gorm:"size:20;not null"`
	SubscriptionTier string    `json:"subscriptionTier" gorm:"size:20;not null"`
	IsActive         bool      `json:"isActive" gorm:"not null"`
	IsVerified       bool      `json:"isVerified" gorm:"not null"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`

	Artist *Artist `json:"artist,omitempty" gorm:"foreignKey:UserID"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// BeforeCreate fills the ID and defaults.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = newID()
	}
	if u.UserType == "" {
		u.UserType = UserTypeListener
	}
	if u.SubscriptionTier == "" {
		u.SubscriptionTier = SubscriptionFree
	}
	return nil
}
