package repository

import (
	"context"
	"errors"

	"mixflow/model"

	"gorm.io/gorm"
)

// ArtistRepository 艺术家数据访问接口
type ArtistRepository interface {
	GetByID(ctx context.Context, id string) (*model.Artist, error)
	GetByUserID(ctx context.Context, userID string) (*model.Artist, error)
	// CreateForUser inserts the artist and upgrades its user to ARTIST in
	// one transaction. A second profile for the same user fails with
	// gorm.ErrDuplicatedKey.
	CreateForUser(ctx context.Context, artist *model.Artist) error
}

type gormArtistRepository struct {
	db *gorm.DB
}

// NewGormArtistRepository 创建 GORM 艺术家仓库
func NewGormArtistRepository(db *gorm.DB) ArtistRepository {
	return &gormArtistRepository{db: db}
}

func (r *gormArtistRepository) first(ctx context.Context, query string, arg interface{}) (*model.Artist, error) {
	var artist model.Artist
	err := r.db.WithContext(ctx).Where(query, arg).First(&artist).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &artist, nil
}

func (r *gormArtistRepository) GetByID(ctx context.Context, id string) (*model.Artist, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormArtistRepository) GetByUserID(ctx context.Context, userID string) (*model.Artist, error) {
	return r.first(ctx, "user_id = ?", userID)
}

func (r *gormArtistRepository) CreateForUser(ctx context.Context, artist *model.Artist) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(artist).Error; err != nil {
			return err
		}
		return tx.Model(&model.User{}).
			Where("id = ?", artist.UserID).
			Update("user_type", model.UserTypeArtist).Error
	})
}
