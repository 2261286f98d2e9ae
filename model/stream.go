package model

import (
	"time"

	"gorm.io/gorm"
)

// PlatformWeb is recorded for every play served over HTTP.
const PlatformWeb = "web"

// Stream is one logged play by an authenticated listener.
type Stream struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	UserID         *string   `json:"userId" gorm:"size:36;index"`
	TrackID        string    `json:"trackId" gorm:"size:36;index;not null"`
	DurationPlayed int       `json:"durationPlayed" gorm:"not null"`
	DeviceType     *string   `json:"deviceType" gorm:"size:500"`
	Platform       string    `json:"platform" gorm:"size:20;not null"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TableName 指定表名
func (Stream) TableName() string {
	return "streams"
}

func (s *Stream) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = newID()
	}
	return nil
}

// All lists every persisted model for migrations.
func All() []interface{} {
	return []interface{}{&User{}, &Artist{}, &Track{}, &TrackUpload{}, &Stream{}}
}
