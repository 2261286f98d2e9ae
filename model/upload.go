package model

import (
	"time"

	"gorm.io/gorm"
)

// UploadCompleted is the only status written by the upload path.
const UploadCompleted = "COMPLETED"

// TrackUpload records the stored audio file behind a track.
type TrackUpload struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	UserID       string    `json:"userId" gorm:"size:36;index;not null"`
	TrackID      string    `json:"trackId" gorm:"size:36;index;not null"`
	Filename     string    `json:"filename" gorm:"size:255;not null"`
	OriginalName string    `json:"originalName" gorm:"size:255;not null"`
	FileSize     int64     `json:"fileSize" gorm:"not null"`
	MimeType     string    `json:"mimeType" gorm:"size:100;not null"`
	UploadURL    string    `json:"uploadUrl" gorm:"column:upload_url;size:500;not null"`
	Status       string    `json:"status" gorm:"size:20;not null"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TableName 指定表名
func (TrackUpload) TableName() string {
	return "track_uploads"
}

func (u *TrackUpload) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = newID()
	}
	if u.Status == "" {
		u.Status = UploadCompleted
	}
	return nil
}
