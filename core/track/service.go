// Package track implements upload, listing, streaming and deletion of tracks.
package track

import (
	"context"
	"errors"
	"time"

	"mixflow/core/apperr"
	"mixflow/core/artist"
	"mixflow/core/upload"
	"mixflow/logger"
	"mixflow/model"
	"mixflow/repository"
	"mixflow/storage"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	defaultStatConcurrency = 16
)

// Service 曲目业务逻辑
type Service struct {
	tracks  repository.TrackRepository
	artists *artist.Service
	store   storage.Store

	statConcurrency int
}

// NewService creates a Service.
func NewService(tracks repository.TrackRepository, artists *artist.Service, store storage.Store) *Service {
	return &Service{tracks: tracks, artists: artists, store: store, statConcurrency: defaultStatConcurrency}
}

// Descriptor is returned after a successful upload.
type Descriptor struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	FileURL    string    `json:"fileUrl"`
	ArtworkURL *string   `json:"artworkUrl"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DescriptorOf builds the upload descriptor for t.
func DescriptorOf(t *model.Track) *Descriptor {
	return &Descriptor{
		ID:         t.ID,
		Title:      t.Title,
		FileURL:    t.FileURL,
		ArtworkURL: t.ArtworkURL,
		Status:     t.Status,
		CreatedAt:  t.CreatedAt,
	}
}

// ArtistSummary is the artist as embedded in track responses.
type ArtistSummary struct {
	ID              string  `json:"id"`
	StageName       string  `json:"stageName"`
	ProfileImageURL *string `json:"profileImageUrl"`
	IsVerified      bool    `json:"isVerified"`
}

// View is a track with its artist summary.
type View struct {
	*model.Track
	Artist *ArtistSummary `json:"artist"`
}

// ViewOf builds the public view of t.
func ViewOf(t *model.Track) *View {
	v := &View{Track: t}
	if a := t.Artist; a != nil {
		v.Artist = &ArtistSummary{ID: a.ID, StageName: a.StageName, ProfileImageURL: a.ProfileImageURL, IsVerified: a.IsVerified}
	}
	return v
}

// Upload turns a validated multipart result into a PENDING track owned
// by the caller's artist profile. Stored files are removed on failure.
func (s *Service) Upload(ctx context.Context, userID string, res *upload.Result) (*Descriptor, error) {
	t, err := s.upload(ctx, userID, res)
	if err != nil {
		s.discard(ctx, res)
		return nil, err
	}
	logger.Info("track uploaded",
		logger.String("trackId", t.ID),
		logger.String("artistId", t.ArtistID),
		logger.String("fileUrl", t.FileURL))
	return DescriptorOf(t), nil
}

func (s *Service) upload(ctx context.Context, userID string, res *upload.Result) (*model.Track, error) {
	audio := res.File(storage.KindAudio)
	if audio == nil {
		return nil, apperr.BadRequest(apperr.CodeAudioFileRequired, "Audio file is required")
	}
	meta, err := ParseMetadata(res)
	if err != nil {
		return nil, err
	}
	_, a, err := s.artists.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.CreateTrack(ctx, userID, a, meta, audio, res.File(storage.KindArtwork))
}

// CreateTrack persists the track and its upload record in one transaction.
func (s *Service) CreateTrack(ctx context.Context, userID string, a *model.Artist, meta Metadata, audio, artwork *upload.StoredFile) (*model.Track, error) {
	t := &model.Track{
		ArtistID:     a.ID,
		Title:        meta.Title,
		Description:  meta.Description,
		Duration:     model.PlaceholderDuration,
		FileURL:      audio.URL,
		Genre:        meta.Genre,
		SubGenre:     meta.SubGenre,
		BPM:          meta.BPM,
		KeySignature: meta.KeySignature,
		IsExplicit:   meta.IsExplicit,
		Tags:         model.StringList(meta.Tags),
		Status:       model.TrackPending,
		IsPublic:     meta.IsPublic,
	}
	if artwork != nil {
		u := artwork.URL
		t.ArtworkURL = &u
	}
	rec := &model.TrackUpload{
		UserID:       userID,
		Filename:     audio.Filename,
		OriginalName: audio.OriginalName,
		FileSize:     audio.Size,
		MimeType:     audio.MimeType,
		UploadURL:    audio.URL,
		Status:       model.UploadCompleted,
	}
	if err := s.tracks.CreateWithUpload(ctx, t, rec); err != nil {
		return nil, apperr.Database(err)
	}
	t.Artist = a
	return t, nil
}

func (s *Service) discard(ctx context.Context, res *upload.Result) {
	if res == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, f := range res.Files {
		if err := s.store.Remove(ctx, f.Field, f.Filename); err != nil {
			logger.Warn("failed to remove upload after error",
				logger.String("filename", f.Filename), logger.ErrorField(err))
		}
	}
}

// GetServable returns a public PENDING or APPROVED track.
func (s *Service) GetServable(ctx context.Context, id string) (*model.Track, error) {
	t, err := s.tracks.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Database(err)
	}
	if t == nil || !t.Servable() {
		return nil, apperr.ErrTrackNotFound
	}
	return t, nil
}

// OpenAudio resolves a servable track to its open audio file. The caller
// closes the file.
func (s *Service) OpenAudio(ctx context.Context, id string) (*model.Track, *storage.File, error) {
	t, err := s.GetServable(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	kind, name, ok := storage.ParseURL(t.FileURL)
	if !ok || kind != storage.KindAudio {
		logger.Warn("track has an unusable file url", logger.String("trackId", t.ID), logger.String("fileUrl", t.FileURL))
		return nil, nil, apperr.ErrFileNotFound
	}
	f, err := s.store.Open(ctx, kind, name)
	if err != nil {
		if storage.IsNotExist(err) {
			logger.Warn("audio file missing", logger.String("trackId", t.ID), logger.String("file", name))
			return nil, nil, apperr.ErrFileNotFound
		}
		return nil, nil, apperr.Storage(err)
	}
	return t, f, nil
}

// ListQuery selects a page of servable tracks.
type ListQuery struct {
	Limit  int
	Offset int
	Genre  string
}

// Validate applies defaults and bounds.
func (q *ListQuery) Validate() error {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		return apperr.Validation("limit must be between 1 and 100")
	}
	if q.Offset < 0 {
		return apperr.Validation("offset must not be negative")
	}
	return nil
}

// Pagination describes a page within all valid tracks.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// Page is one page of listed tracks.
type Page struct {
	Tracks     []*View    `json:"tracks"`
	Pagination Pagination `json:"pagination"`
}

// List returns servable tracks newest first. Tracks whose audio file is
// missing are excluded from both the page and the total.
func (s *Service) List(ctx context.Context, q ListQuery) (*Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	refs, err := s.tracks.ListServableRefs(ctx, q.Genre)
	if err != nil {
		return nil, apperr.Database(err)
	}
	present, err := s.audioPresent(ctx, refs)
	if err != nil {
		return nil, apperr.Storage(err)
	}

	valid := make([]string, 0, len(refs))
	for i, ref := range refs {
		if present[i] {
			valid = append(valid, ref.ID)
		}
	}

	total := len(valid)
	start := min(q.Offset, total)
	end := min(start+q.Limit, total)
	tracks, err := s.tracks.GetByIDs(ctx, valid[start:end])
	if err != nil {
		return nil, apperr.Database(err)
	}

	views := make([]*View, 0, len(tracks))
	for _, t := range tracks {
		views = append(views, ViewOf(t))
	}
	return &Page{
		Tracks: views,
		Pagination: Pagination{
			Total:   total,
			Limit:   q.Limit,
			Offset:  q.Offset,
			HasMore: q.Offset+len(views) < total,
		},
	}, nil
}

// audioPresent checks the backing audio of every ref with bounded
// parallelism.
func (s *Service) audioPresent(ctx context.Context, refs []repository.FileRef) ([]bool, error) {
	present := make([]bool, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.statConcurrency)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			ok, err := s.exists(gctx, ref.FileURL, storage.KindAudio)
			present[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return present, nil
}

func (s *Service) exists(ctx context.Context, url string, want storage.Kind) (bool, error) {
	kind, name, ok := storage.ParseURL(url)
	if !ok || kind != want {
		return false, nil
	}
	_, err := s.store.Stat(ctx, kind, name)
	if err != nil {
		if storage.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Deleted identifies a removed track.
type Deleted struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Delete removes a track owned by the caller. Rows go first in one
// transaction; files are removed afterwards on a best-effort basis.
func (s *Service) Delete(ctx context.Context, userID, id string) (*Deleted, error) {
	t, err := s.tracks.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Database(err)
	}
	if t == nil {
		return nil, apperr.ErrTrackNotFound
	}
	if t.Artist == nil || t.Artist.UserID != userID {
		return nil, apperr.ErrNotOwner
	}
	if err := s.tracks.DeleteCascade(ctx, t.ID); err != nil {
		return nil, apperr.Database(err)
	}
	s.removeFiles(ctx, t.FileURL, t.ArtworkURL)

	logger.Info("track deleted", logger.String("trackId", t.ID), logger.String("userId", userID))
	return &Deleted{ID: t.ID, Title: t.Title}, nil
}

func (s *Service) removeFiles(ctx context.Context, fileURL string, artworkURL *string) {
	ctx = context.WithoutCancel(ctx)
	urls := []string{fileURL}
	if artworkURL != nil {
		urls = append(urls, *artworkURL)
	}
	for _, u := range urls {
		kind, name, ok := storage.ParseURL(u)
		if !ok {
			continue
		}
		if err := s.store.Remove(ctx, kind, name); err != nil && !errors.Is(err, storage.ErrNotExist) {
			logger.Warn("failed to remove track file", logger.String("url", u), logger.ErrorField(err))
		}
	}
}
