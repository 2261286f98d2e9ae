package model

import (
	"time"

	"gorm.io/gorm"
)

// Track statuses.
const (
	TrackPending  = "PENDING"
	TrackApproved = "APPROVED"
	TrackRejected = "REJECTED"
)

// ServableStatuses may be listed and streamed.
var ServableStatuses = []string{TrackPending, TrackApproved}

// PlaceholderDuration is stored until real duration extraction exists.
const PlaceholderDuration = 180

// Track is one uploaded piece of audio.
type Track struct {
	ID            string     `json:"id" gorm:"primaryKey;size:36"`
	ArtistID      string     `json:"artistId" gorm:"size:36;index;not null"`
	Title         string     `json:"title" gorm:"size:255;not null"`
	Description   *string    `json:"description" gorm:"type:text"`
	Duration      int        `json:"duration" gorm:"not null"`
	FileURL       string     `json:"fileUrl" gorm:"column:file_url;size:500;not null"`
	ArtworkURL    *string    `json:"artworkUrl" gorm:"column:artwork_url;size:500"`
	Genre         string     `json:"genre" gorm:"size:50;index;not null"`
	SubGenre      *string    `json:"subGenre" gorm:"size:50"`
	BPM           *int       `json:"bpm" gorm:"column:bpm"`
	KeySignature  *string    `json:"keySignature" gorm:"size:10"`
	IsExplicit    bool       `json:"isExplicit" gorm:"not null"`
	Tags          StringList `json:"tags"`
	Status        string     `json:"status" gorm:"size:20;index;not null"`
	IsPublic      bool       `json:"isPublic" gorm:"index;not null"`
	StreamCount   int64      `json:"streamCount" gorm:"not null"`
	DownloadCount int64      `json:"downloadCount" gorm:"not null"`
	CreatedAt     time.Time  `json:"createdAt" gorm:"index"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	Artist *Artist `json:"artist,omitempty" gorm:"foreignKey:ArtistID"`
}

// TableName 指定表名
func (Track) TableName() string {
	return "tracks"
}

func (t *Track) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.Status == "" {
		t.Status = TrackPending
	}
	return nil
}

// Servable reports whether the track may be listed and streamed.
func (t *Track) Servable() bool {
	return t.IsPublic && (t.Status == TrackPending || t.Status == TrackApproved)
}
