package model

import (
	"time"

	"gorm.io/gorm"
)

// Artist is the publishing profile of a user, one per user.
type Artist struct {
	ID              string     `json:"id" gorm:"primaryKey;size:36"`
	UserID          string     `json:"userId" gorm:"size:36;uniqueIndex;not null"`
	StageName       string     `json:"stageName" gorm:"size:100;not null"`
	Bio             *string    `json:"bio" gorm:"type:text"`
	ProfileImageURL *string    `json:"profileImageUrl" gorm:"column:profile_image_url;size:500"`
	CoverImageURL   *string    `json:"coverImageUrl" gorm:"column:cover_image_url;size:500"`
	IsVerified      bool       `json:"isVerified" gorm:"not null"`
	TotalStreams    int64      `json:"totalStreams" gorm:"not null"`
	Genres          StringList `json:"genres"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// TableName 指定表名
func (Artist) TableName() string {
	return "artists"
}

func (a *Artist) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = newID()
	}
	return nil
}
