// Package artist manages artist profiles.
package artist

import (
	"context"
	"errors"
	"strings"

	"mixflow/core/apperr"
	"mixflow/logger"
	"mixflow/model"
	"mixflow/repository"

	"gorm.io/gorm"
)

const (
	autoBio           = "Artist profile created automatically on first upload"
	autoGenre         = "User Upload"
	unknownStageName  = "Unknown Artist"
	maxGenres         = 10
	maxStageNameRunes = 100
	profileTrackLimit = 10
)

// Service 艺术家业务逻辑
type Service struct {
	users   repository.UserRepository
	artists repository.ArtistRepository
	tracks  repository.TrackRepository
}

// NewService creates a Service.
func NewService(users repository.UserRepository, artists repository.ArtistRepository, tracks repository.TrackRepository) *Service {
	return &Service{users: users, artists: artists, tracks: tracks}
}

// DefaultStageName derives a stage name for an automatically created profile.
func DefaultStageName(u *model.User) string {
	if name := strings.TrimSpace(u.Username); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		return local
	}
	return unknownStageName
}

// Ensure returns the caller's artist profile, creating it when missing.
// The returned user already reflects the ARTIST upgrade. Concurrent calls
// for the same user resolve to the same profile.
func (s *Service) Ensure(ctx context.Context, userID string) (*model.User, *model.Artist, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, apperr.Database(err)
	}
	if user == nil {
		return nil, nil, apperr.ErrUserNotFound
	}
	if user.Artist != nil {
		return user, user.Artist, nil
	}

	bio := autoBio
	a := &model.Artist{
		UserID:    user.ID,
		StageName: DefaultStageName(user),
		Bio:       &bio,
		Genres:    model.StringList{autoGenre},
	}
	if err := s.artists.CreateForUser(ctx, a); err != nil {
		// 并发创建时另一个请求已成功
		existing, getErr := s.artists.GetByUserID(ctx, user.ID)
		if getErr != nil || existing == nil {
			return nil, nil, apperr.Database(err)
		}
		a = existing
	} else {
		logger.Info("artist profile created automatically",
			logger.String("userId", user.ID), logger.String("artistId", a.ID))
	}

	user.UserType = model.UserTypeArtist
	user.Artist = a
	return user, a, nil
}

// CreateInput is the body of an explicit profile creation.
type CreateInput struct {
	StageName string   `json:"stageName"`
	Bio       *string  `json:"bio"`
	Genres    []string `json:"genres"`
}

// Create makes the caller an artist.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Artist, error) {
	stage := strings.TrimSpace(in.StageName)
	if stage == "" || len([]rune(stage)) > maxStageNameRunes {
		return nil, apperr.Validation("Stage name is required and must be at most 100 characters")
	}
	if len(in.Genres) > maxGenres {
		return nil, apperr.Validation("At most 10 genres are allowed")
	}

	existing, err := s.artists.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Database(err)
	}
	if existing != nil {
		return nil, apperr.Conflict(apperr.CodeArtistExists, "Artist profile already exists")
	}

	genres := make(model.StringList, 0, len(in.Genres))
	for _, g := range in.Genres {
		if g = strings.TrimSpace(g); g != "" {
			genres = append(genres, g)
		}
	}
	a := &model.Artist{UserID: userID, StageName: stage, Bio: in.Bio, Genres: genres}
	if err := s.artists.CreateForUser(ctx, a); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict(apperr.CodeArtistExists, "Artist profile already exists")
		}
		return nil, apperr.Database(err)
	}
	return a, nil
}

// MyTracks lists every track of the caller, including private and pending ones.
func (s *Service) MyTracks(ctx context.Context, userID string) ([]*model.Track, error) {
	a, err := s.artists.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Database(err)
	}
	if a == nil {
		return nil, apperr.ErrArtistRequired
	}
	tracks, err := s.tracks.ListByArtist(ctx, a.ID)
	if err != nil {
		return nil, apperr.Database(err)
	}
	return tracks, nil
}

// Profile is the public view of an artist.
type Profile struct {
	*model.Artist
	Tracks []*model.Track `json:"tracks"`
}

// GetProfile returns the artist with their most streamed approved tracks.
func (s *Service) GetProfile(ctx context.Context, artistID string) (*Profile, error) {
	a, err := s.artists.GetByID(ctx, artistID)
	if err != nil {
		return nil, apperr.Database(err)
	}
	if a == nil {
		return nil, apperr.ErrArtistNotFound
	}
	tracks, err := s.tracks.TopByArtist(ctx, a.ID, profileTrackLimit)
	if err != nil {
		return nil, apperr.Database(err)
	}
	return &Profile{Artist: a, Tracks: tracks}, nil
}
