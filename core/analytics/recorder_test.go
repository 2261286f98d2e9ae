package analytics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mixflow/db/dbtest"
	"mixflow/model"
	"mixflow/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCountsAndLogs(t *testing.T) {
	ctx := context.Background()
	gdb := dbtest.Open(t)
	users := repository.NewGormUserRepository(gdb)
	artists := repository.NewGormArtistRepository(gdb)
	tracks := repository.NewGormTrackRepository(gdb)
	streams := repository.NewGormStreamRepository(gdb)

	u := &model.User{Email: "l@example.com", Username: "listener", PasswordHash: "x", IsActive: true}
	require.NoError(t, users.Create(ctx, u))
	a := &model.Artist{UserID: u.ID, StageName: "dj"}
	require.NoError(t, artists.CreateForUser(ctx, a))
	tr := &model.Track{ArtistID: a.ID, Title: "t", FileURL: "/uploads/audio/t.mp3", Genre: "House", IsPublic: true}
	require.NoError(t, tracks.CreateWithUpload(ctx, tr, &model.TrackUpload{UserID: u.ID, Filename: "t.mp3", OriginalName: "t.mp3", MimeType: "audio/mpeg", UploadURL: tr.FileURL}))

	rec := NewRecorder(tracks, streams, Options{Workers: 2, Queue: 1, Timeout: time.Second})

	const anonymous, logged = 20, 5
	var wg sync.WaitGroup
	for i := 0; i < anonymous+logged; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := Play{TrackID: tr.ID}
			if i < logged {
				p.UserID = u.ID
				p.UserAgent = "Mozilla/5.0"
			}
			rec.Record(p)
		}(i)
	}
	wg.Wait()
	require.NoError(t, rec.Close(ctx))

	got, err := tracks.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(anonymous+logged), got.StreamCount)

	n, err := streams.CountByTrack(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(logged), n)
	assert.Zero(t, rec.Failures())

	rec.Record(Play{TrackID: tr.ID})
	assert.Equal(t, int64(1), rec.Dropped())
	require.NoError(t, rec.Close(ctx), "second close is a no-op")
}

type stubTracks struct {
	repository.TrackRepository
	calls atomic.Int64
	fail  bool
	panic bool
	block chan struct{}
}

func (s *stubTracks) IncrementStreamCount(ctx context.Context, id string) error {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	if s.panic {
		panic("boom")
	}
	if s.fail {
		return errors.New("db down")
	}
	return nil
}

type stubStreams struct {
	repository.StreamRepository
	created atomic.Int64
}

func (s *stubStreams) Create(ctx context.Context, stream *model.Stream) error {
	s.created.Add(1)
	return nil
}

func TestRecorderSwallowsFailures(t *testing.T) {
	tracks := &stubTracks{fail: true}
	streams := &stubStreams{}
	rec := NewRecorder(tracks, streams, Options{Workers: 1, Queue: 4})

	rec.Record(Play{TrackID: "x", UserID: "u"})
	require.NoError(t, rec.Close(context.Background()))

	assert.Equal(t, int64(1), tracks.calls.Load())
	assert.Equal(t, int64(1), streams.created.Load(), "play is still logged when the counter fails")
	assert.Equal(t, int64(1), rec.Failures())
}

func TestRecorderRecoversPanics(t *testing.T) {
	tracks := &stubTracks{panic: true}
	rec := NewRecorder(tracks, &stubStreams{}, Options{Workers: 1})

	rec.Record(Play{TrackID: "x"})
	require.NoError(t, rec.Close(context.Background()))
	assert.Equal(t, int64(1), rec.Failures())
}

func TestRecordNeverBlocks(t *testing.T) {
	tracks := &stubTracks{block: make(chan struct{})}
	rec := NewRecorder(tracks, &stubStreams{}, Options{Workers: 1, Queue: 0})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			rec.Record(Play{TrackID: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a stalled store")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, rec.Close(ctx), "drain times out while writes are stalled")

	close(tracks.block)
	assert.Eventually(t, func() bool { return tracks.calls.Load() == 10 }, 2*time.Second, 10*time.Millisecond)
}
