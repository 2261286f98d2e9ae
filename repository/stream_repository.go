package repository

import (
	"context"

	"mixflow/model"

	"gorm.io/gorm"
)

// StreamRepository 播放记录数据访问接口
type StreamRepository interface {
	Create(ctx context.Context, stream *model.Stream) error
	CountByTrack(ctx context.Context, trackID string) (int64, error)
}

type gormStreamRepository struct {
	db *gorm.DB
}

// NewGormStreamRepository 创建 GORM 播放记录仓库
func NewGormStreamRepository(db *gorm.DB) StreamRepository {
	return &gormStreamRepository{db: db}
}

func (r *gormStreamRepository) Create(ctx context.Context, stream *model.Stream) error {
	return r.db.WithContext(ctx).Create(stream).Error
}

func (r *gormStreamRepository) CountByTrack(ctx context.Context, trackID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Stream{}).Where("track_id = ?", trackID).Count(&count).Error
	return count, err
}
