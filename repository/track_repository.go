package repository

import (
	"context"
	"errors"

	"mixflow/model"

	"gorm.io/gorm"
)

// FileRef is the minimal projection used to check backing files.
type FileRef struct {
	ID         string
	Title      string
	FileURL    string
	ArtworkURL *string
}

// TrackRepository 曲目数据访问接口
type TrackRepository interface {
	// CreateWithUpload persists the track and its upload record atomically.
	CreateWithUpload(ctx context.Context, track *model.Track, upload *model.TrackUpload) error
	// GetByID returns the track with its artist; nil if absent.
	GetByID(ctx context.Context, id string) (*model.Track, error)
	// GetByIDs returns tracks with artists in the order of ids. Unknown ids
	// are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]*model.Track, error)
	// ListServableRefs returns public PENDING/APPROVED tracks, newest first,
	// optionally restricted to one genre.
	ListServableRefs(ctx context.Context, genre string) ([]FileRef, error)
	// ListRefs returns every track regardless of status.
	ListRefs(ctx context.Context) ([]FileRef, error)
	ListByArtist(ctx context.Context, artistID string) ([]*model.Track, error)
	// TopByArtist returns approved public tracks by stream count.
	TopByArtist(ctx context.Context, artistID string, limit int) ([]*model.Track, error)
	GetUploads(ctx context.Context, trackID string) ([]*model.TrackUpload, error)
	// IncrementStreamCount adds one in a single UPDATE statement.
	IncrementStreamCount(ctx context.Context, id string) error
	// DeleteCascade removes streams, upload records and the track in one
	// transaction.
	DeleteCascade(ctx context.Context, id string) error
}

type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository 创建 GORM 曲目仓库
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

func (r *gormTrackRepository) CreateWithUpload(ctx context.Context, track *model.Track, upload *model.TrackUpload) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Artist").Create(track).Error; err != nil {
			return err
		}
		upload.TrackID = track.ID
		return tx.Create(upload).Error
	})
}

func (r *gormTrackRepository) GetByID(ctx context.Context, id string) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).Preload("Artist").Where("id = ?", id).First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

func (r *gormTrackRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.Track, error) {
	if len(ids) == 0 {
		return []*model.Track{}, nil
	}
	var tracks []*model.Track
	if err := r.db.WithContext(ctx).Preload("Artist").Where("id IN ?", ids).Find(&tracks).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Track, len(tracks))
	for _, t := range tracks {
		byID[t.ID] = t
	}
	ordered := make([]*model.Track, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			ordered = append(ordered, t)
		}
	}
	return ordered, nil
}

func (r *gormTrackRepository) ListServableRefs(ctx context.Context, genre string) ([]FileRef, error) {
	q := r.db.WithContext(ctx).Model(&model.Track{}).
		Select("id", "title", "file_url", "artwork_url").
		Where("status IN ? AND is_public = ?", model.ServableStatuses, true)
	if genre != "" {
		q = q.Where("genre = ?", genre)
	}
	var refs []FileRef
	err := q.Order("created_at DESC").Order("id DESC").Scan(&refs).Error
	return refs, err
}

func (r *gormTrackRepository) ListRefs(ctx context.Context) ([]FileRef, error) {
	var refs []FileRef
	err := r.db.WithContext(ctx).Model(&model.Track{}).
		Select("id", "title", "file_url", "artwork_url").
		Order("created_at").
		Scan(&refs).Error
	return refs, err
}

func (r *gormTrackRepository) ListByArtist(ctx context.Context, artistID string) ([]*model.Track, error) {
	var tracks []*model.Track
	err := r.db.WithContext(ctx).
		Where("artist_id = ?", artistID).
		Order("created_at DESC").
		Find(&tracks).Error
	return tracks, err
}

func (r *gormTrackRepository) TopByArtist(ctx context.Context, artistID string, limit int) ([]*model.Track, error) {
	var tracks []*model.Track
	err := r.db.WithContext(ctx).
		Where("artist_id = ? AND status = ? AND is_public = ?", artistID, model.TrackApproved, true).
		Order("stream_count DESC").
		Limit(limit).
		Find(&tracks).Error
	return tracks, err
}

func (r *gormTrackRepository) GetUploads(ctx context.Context, trackID string) ([]*model.TrackUpload, error) {
	var uploads []*model.TrackUpload
	err := r.db.WithContext(ctx).Where("track_id = ?", trackID).Find(&uploads).Error
	return uploads, err
}

func (r *gormTrackRepository) IncrementStreamCount(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.Track{}).
		Where("id = ?", id).
		UpdateColumn("stream_count", gorm.Expr("stream_count + ?", 1)).Error
}

func (r *gormTrackRepository) DeleteCascade(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("track_id = ?", id).Delete(&model.Stream{}).Error; err != nil {
			return err
		}
		if err := tx.Where("track_id = ?", id).Delete(&model.TrackUpload{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Track{}).Error
	})
}
