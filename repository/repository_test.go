package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"mixflow/db/dbtest"
	"mixflow/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	users   UserRepository
	artists ArtistRepository
	tracks  TrackRepository
	streams StreamRepository
}

func newFixture(t *testing.T) *fixture {
	gdb := dbtest.Open(t)
	return &fixture{
		db:      gdb,
		users:   NewGormUserRepository(gdb),
		artists: NewGormArtistRepository(gdb),
		tracks:  NewGormTrackRepository(gdb),
		streams: NewGormStreamRepository(gdb),
	}
}

func (f *fixture) user(t *testing.T, name string) *model.User {
	t.Helper()
	u := &model.User{Email: name + "@example.com", Username: name, PasswordHash: "x", IsActive: true}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixture) artist(t *testing.T, u *model.User) *model.Artist {
	t.Helper()
	a := &model.Artist{UserID: u.ID, StageName: u.Username, Genres: model.StringList{"House"}}
	require.NoError(t, f.artists.CreateForUser(context.Background(), a))
	return a
}

func (f *fixture) track(t *testing.T, a *model.Artist, title, status string, public bool, created time.Time) *model.Track {
	t.Helper()
	tr := &model.Track{
		ArtistID:  a.ID,
		Title:     title,
		Duration:  model.PlaceholderDuration,
		FileURL:   "/uploads/audio/" + title + ".mp3",
		Genre:     "House",
		Status:    status,
		IsPublic:  public,
		CreatedAt: created,
	}
	up := &model.TrackUpload{UserID: a.UserID, Filename: title + ".mp3", OriginalName: title + ".mp3", FileSize: 10, MimeType: "audio/mpeg", UploadURL: tr.FileURL}
	require.NoError(t, f.tracks.CreateWithUpload(context.Background(), tr, up))
	return tr
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "alice")

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, model.UserTypeListener, u.UserType)
	assert.Equal(t, model.SubscriptionFree, u.SubscriptionTier)

	got, err := f.users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Nil(t, got.Artist)

	missing, err := f.users.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	exists, err := f.users.ExistsByEmailOrUsername(ctx, "other@example.com", "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	first := "Alice"
	require.NoError(t, f.users.UpdateProfile(ctx, u.ID, ProfileUpdate{FirstName: &first}))
	got, err = f.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got.FirstName)
	assert.Equal(t, "Alice", *got.FirstName)

	err = f.users.Create(ctx, &model.User{Email: "alice@example.com", Username: "alice2", PasswordHash: "x"})
	assert.Error(t, err)
}

func TestArtistCreateUpgradesUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "bob")
	a := f.artist(t, u)

	got, err := f.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserTypeArtist, got.UserType)
	require.NotNil(t, got.Artist)
	assert.Equal(t, a.ID, got.Artist.ID)
	assert.Equal(t, model.StringList{"House"}, got.Artist.Genres)

	err = f.artists.CreateForUser(ctx, &model.Artist{UserID: u.ID, StageName: "again"})
	require.Error(t, err)

	byUser, err := f.artists.GetByUserID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, byUser.ID)
}

func TestCreateWithUploadIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.artist(t, f.user(t, "carol"))
	tr := f.track(t, a, "one", model.TrackPending, true, time.Now())

	uploads, err := f.tracks.GetUploads(ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, tr.ID, uploads[0].TrackID)
	assert.Equal(t, model.UploadCompleted, uploads[0].Status)

	// duplicate primary key on the upload rolls back the new track as well
	dup := &model.TrackUpload{ID: uploads[0].ID, UserID: a.UserID, Filename: "f", OriginalName: "f", MimeType: "audio/mpeg", UploadURL: "/u"}
	bad := &model.Track{ArtistID: a.ID, Title: "two", FileURL: "/uploads/audio/two.mp3", Genre: "House", IsPublic: true}
	require.Error(t, f.tracks.CreateWithUpload(ctx, bad, dup))

	got, err := f.tracks.GetByID(ctx, bad.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListServableRefs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.artist(t, f.user(t, "dave"))
	base := time.Now().Add(-time.Hour)

	f.track(t, a, "old", model.TrackApproved, true, base)
	f.track(t, a, "new", model.TrackPending, true, base.Add(2*time.Minute))
	f.track(t, a, "mid", model.TrackApproved, true, base.Add(time.Minute))
	f.track(t, a, "private", model.TrackApproved, false, base.Add(3*time.Minute))
	f.track(t, a, "rejected", model.TrackRejected, true, base.Add(4*time.Minute))

	refs, err := f.tracks.ListServableRefs(ctx, "")
	require.NoError(t, err)
	var titles []string
	for _, r := range refs {
		titles = append(titles, r.Title)
		assert.Equal(t, "/uploads/audio/"+r.Title+".mp3", r.FileURL)
	}
	assert.Equal(t, []string{"new", "mid", "old"}, titles)
	firstID := refs[0].ID

	refs, err = f.tracks.ListServableRefs(ctx, "Techno")
	require.NoError(t, err)
	assert.Empty(t, refs)

	all, err := f.tracks.ListRefs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	tracks, err := f.tracks.GetByIDs(ctx, []string{firstID, "missing"})
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	require.NotNil(t, tracks[0].Artist)
	assert.Equal(t, a.ID, tracks[0].Artist.ID)
}

func TestTopByArtist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.artist(t, f.user(t, "erin"))
	low := f.track(t, a, "low", model.TrackApproved, true, time.Now())
	high := f.track(t, a, "high", model.TrackApproved, true, time.Now())
	f.track(t, a, "pending", model.TrackPending, true, time.Now())

	for i := 0; i < 3; i++ {
		require.NoError(t, f.tracks.IncrementStreamCount(ctx, high.ID))
	}
	require.NoError(t, f.tracks.IncrementStreamCount(ctx, low.ID))

	top, err := f.tracks.TopByArtist(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, high.ID, top[0].ID)
	assert.Equal(t, int64(3), top[0].StreamCount)

	mine, err := f.tracks.ListByArtist(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 3)
}

func TestConcurrentIncrementsAreExact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.artist(t, f.user(t, "frank"))
	tr := f.track(t, a, "hot", model.TrackApproved, true, time.Now())

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.tracks.IncrementStreamCount(ctx, tr.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.tracks.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.StreamCount)
}

func TestDeleteCascade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "gina")
	a := f.artist(t, u)
	keep := f.track(t, a, "keep", model.TrackApproved, true, time.Now())
	drop := f.track(t, a, "drop", model.TrackApproved, true, time.Now())

	for i, id := range []string{drop.ID, drop.ID, keep.ID} {
		device := fmt.Sprintf("agent-%d", i)
		require.NoError(t, f.streams.Create(ctx, &model.Stream{UserID: &u.ID, TrackID: id, DeviceType: &device, Platform: model.PlatformWeb}))
	}

	require.NoError(t, f.tracks.DeleteCascade(ctx, drop.ID))

	got, err := f.tracks.GetByID(ctx, drop.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := f.streams.CountByTrack(ctx, drop.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	uploads, err := f.tracks.GetUploads(ctx, drop.ID)
	require.NoError(t, err)
	assert.Empty(t, uploads)

	n, err = f.streams.CountByTrack(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, f.tracks.DeleteCascade(ctx, drop.ID), "deleting twice is harmless")
}
