package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mixflow/config"
	"mixflow/core/analytics"
	"mixflow/core/apperr"
	"mixflow/core/artist"
	"mixflow/core/auth"
	"mixflow/core/track"
	"mixflow/core/upload"
	"mixflow/core/user"
	"mixflow/db"
	"mixflow/db/dbtest"
	"mixflow/repository"
	"mixflow/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testServer struct {
	db       *gorm.DB
	store    *storage.LocalStore
	tracks   repository.TrackRepository
	streams  repository.StreamRepository
	users    *user.Service
	recorder *analytics.Recorder
	handler  http.Handler
	cache    error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gdb := dbtest.Open(t)
	store, err := storage.NewLocalStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	cfg := &config.Config{
		Env:           config.EnvTest,
		Version:       "test",
		CORSOrigins:   []string{"http://localhost:3000"},
		UploadTimeout: time.Minute,
	}
	issuer := auth.NewIssuer("test-secret", time.Hour)
	userRepo := repository.NewGormUserRepository(gdb)
	trackRepo := repository.NewGormTrackRepository(gdb)
	streamRepo := repository.NewGormStreamRepository(gdb)
	artists := artist.NewService(userRepo, repository.NewGormArtistRepository(gdb), trackRepo)
	users := user.NewService(userRepo, issuer, 4)
	recorder := analytics.NewRecorder(trackRepo, streamRepo, analytics.Options{Workers: 2, Queue: 64, Timeout: time.Second})
	t.Cleanup(func() { _ = recorder.Close(context.Background()) })

	ts := &testServer{db: gdb, store: store, tracks: trackRepo, streams: streamRepo, users: users, recorder: recorder}
	h := NewAPIHandler(Deps{
		Config:    cfg,
		Issuer:    issuer,
		Users:     users,
		Artists:   artists,
		Tracks:    track.NewService(trackRepo, artists, store),
		Validator: upload.NewValidator(store, upload.DefaultUploadConfig()),
		Recorder:  recorder,
		Store:     store,
		Database:  func(ctx context.Context) error { return db.Ping(ctx, gdb) },
		Cache:     func(context.Context) error { return ts.cache },
	})
	ts.handler = NewRouter(h)
	return ts
}

func (s *testServer) register(t *testing.T, name string) string {
	t.Helper()
	_, token, err := s.users.Register(context.Background(), user.RegisterInput{
		Email:    name + "@example.com",
		Username: name,
		Password: "password123",
	})
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type filePart struct {
	field, filename, contentType string
	body                         []byte
}

func uploadRequest(t *testing.T, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, f.field, f.filename))
		h.Set("Content-Type", f.contentType)
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(f.body)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/tracks/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func audioBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

type uploadResponse struct {
	Message string           `json:"message"`
	Track   track.Descriptor `json:"track"`
}

func (s *testServer) upload(t *testing.T, token, title string, audio []byte) track.Descriptor {
	t.Helper()
	req := uploadRequest(t, map[string]string{"title": title, "genre": "Electronic"},
		filePart{"audio", "song.mp3", "audio/mpeg", audio},
		filePart{"artwork", "cover.png", "image/png", []byte("png")})
	rec := s.do(t, req, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Track
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func TestUploadCreatesPendingTrack(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "alice")

	d := s.upload(t, token, "Test Track", audioBytes(5000))
	assert.Equal(t, "Test Track", d.Title)
	assert.Equal(t, "PENDING", d.Status)
	assert.True(t, strings.HasPrefix(d.FileURL, "/uploads/audio/"))
	require.NotNil(t, d.ArtworkURL)
	assert.True(t, strings.HasPrefix(*d.ArtworkURL, "/uploads/artwork/"))

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/user/profile", nil), token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stageName":"alice"`)
}

func TestUploadRequiresAuth(t *testing.T) {
	s := newTestServer(t)
	req := uploadRequest(t, map[string]string{"title": "x", "genre": "y"},
		filePart{"audio", "song.mp3", "audio/mpeg", audioBytes(10)})

	rec := s.do(t, req, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperr.CodeAuthRequired, decodeError(t, rec).Code)

	req = uploadRequest(t, map[string]string{"title": "x", "genre": "y"},
		filePart{"audio", "song.mp3", "audio/mpeg", audioBytes(10)})
	rec = s.do(t, req, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperr.CodeInvalidToken, decodeError(t, rec).Code)
}

func TestUploadRejectsBadAudio(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "bob")
	req := uploadRequest(t, map[string]string{"title": "x", "genre": "y"},
		filePart{"audio", "virus.exe", "audio/mpeg", []byte("MZ")})

	rec := s.do(t, req, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.CodeInvalidAudioFile, decodeError(t, rec).Code)
}

func TestStreamRanges(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "carol")
	audio := audioBytes(5000)
	d := s.upload(t, token, "Ranged", audio)
	path := "/api/tracks/" + d.ID + "/stream"

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Range", "bytes=0-999")
	rec := s.do(t, req, "")
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 0-999/5000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "1000", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, audio[:1000], rec.Body.Bytes())

	req = httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Range", "bytes=4000-")
	rec = s.do(t, req, "")
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 4000-4999/5000", rec.Header().Get("Content-Range"))
	assert.Equal(t, audio[4000:], rec.Body.Bytes())

	rec = s.do(t, httptest.NewRequest(http.MethodGet, path, nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5000", rec.Header().Get("Content-Length"))
	assert.Equal(t, audio, rec.Body.Bytes())

	for _, bad := range []string{"bytes=5000-", "bytes=900-100", "bytes=abc-"} {
		req = httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Range", bad)
		rec = s.do(t, req, "")
		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code, bad)
		assert.Equal(t, "bytes */5000", rec.Header().Get("Content-Range"), bad)
		assert.Equal(t, apperr.CodeRangeNotSatisfied, decodeError(t, rec).Code)
	}
}

func TestStreamCountsPlays(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "dave")
	d := s.upload(t, token, "Counted", audioBytes(100))
	path := "/api/tracks/" + d.ID + "/stream"

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("User-Agent", "test-agent")
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		}()
	}
	wg.Wait()
	require.NoError(t, s.recorder.Close(context.Background()))

	tr, err := s.tracks.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), tr.StreamCount)
	count, err := s.streams.CountByTrack(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), count)
}

func removeFile(t *testing.T, s *testServer, fileURL string) {
	t.Helper()
	kind, name, ok := storage.ParseURL(fileURL)
	require.True(t, ok)
	require.NoError(t, s.store.Remove(context.Background(), kind, name))
}

func TestMissingFileIsHidden(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "erin")
	kept := s.upload(t, token, "Kept", audioBytes(10))
	lost := s.upload(t, token, "Lost", audioBytes(10))
	removeFile(t, s, lost.FileURL)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/tracks/"+lost.ID+"/stream", nil), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.CodeFileNotFound, decodeError(t, rec).Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/tracks?limit=10", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page track.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Pagination.Total)
	require.Len(t, page.Tracks, 1)
	assert.Equal(t, kept.ID, page.Tracks[0].ID)
	assert.False(t, page.Pagination.HasMore)
}

func TestListRejectsBadPagination(t *testing.T) {
	s := newTestServer(t)
	for _, q := range []string{"limit=0", "limit=101", "limit=abc", "offset=-1"} {
		rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/tracks?"+q, nil), "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, apperr.CodeValidation, decodeError(t, rec).Code, q)
	}
}

func TestGetTrack(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "frank")
	d := s.upload(t, token, "Visible", audioBytes(10))

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/tracks/"+d.ID, nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Visible"`)
	assert.Contains(t, rec.Body.String(), `"stageName":"frank"`)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/tracks/nope", nil), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.CodeTrackNotFound, decodeError(t, rec).Code)
}

func TestDeleteOwnership(t *testing.T) {
	s := newTestServer(t)
	owner := s.register(t, "grace")
	other := s.register(t, "heidi")
	d := s.upload(t, owner, "Mine", audioBytes(10))
	path := "/api/tracks/" + d.ID

	rec := s.do(t, httptest.NewRequest(http.MethodDelete, path, nil), other)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperr.CodeUnauthorized, decodeError(t, rec).Code)

	// artwork already gone still deletes cleanly
	removeFile(t, s, *d.ArtworkURL)
	rec = s.do(t, httptest.NewRequest(http.MethodDelete, path, nil), owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		DeletedTrack track.Deleted `json:"deletedTrack"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, track.Deleted{ID: d.ID, Title: "Mine"}, resp.DeletedTrack)

	kind, name, _ := storage.ParseURL(d.FileURL)
	_, err := s.store.Stat(context.Background(), kind, name)
	assert.True(t, storage.IsNotExist(err))

	rec = s.do(t, httptest.NewRequest(http.MethodDelete, path, nil), owner)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticUploads(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "ivan")
	d := s.upload(t, token, "Art", audioBytes(10))

	rec := s.do(t, httptest.NewRequest(http.MethodGet, *d.ArtworkURL, nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	for _, p := range []string{"/uploads/", "/uploads/audio/", "/uploads/other/x.mp3", "/uploads/audio/missing.mp3"} {
		rec = s.do(t, httptest.NewRequest(http.MethodGet, p, nil), "")
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
	}
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	body := `{"email":"judy@example.com","username":"judy","password":"password123"}`
	rec := s.do(t, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body)), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body)), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.CodeUserExists, decodeError(t, rec).Code)

	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"judy@example.com","password":"password123"}`)), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.NotEmpty(t, login.Token)

	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"judy@example.com","password":"wrong-password"}`)), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{`)), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.CodeInvalidRequest, decodeError(t, rec).Code)
}

func TestServiceRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"connected"`)

	s.cache = errors.New("redis down")
	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cache":"disconnected"`)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/nothing", nil), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.CodeEndpointNotFound, decodeError(t, rec).Code)

	rec = s.do(t, httptest.NewRequest(http.MethodPut, "/api/tracks", nil), "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, apperr.CodeMethodNotAllowed, decodeError(t, rec).Code)
}

func TestCORSExposesRangeHeaders(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := s.do(t, req, "")

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	exposed := rec.Header().Get("Access-Control-Expose-Headers")
	assert.Contains(t, exposed, "Content-Range")
	assert.Contains(t, exposed, "Accept-Ranges")
}

func TestPanicBecomes500(t *testing.T) {
	h := &APIHandler{cfg: &config.Config{Env: config.EnvTest}}
	handler := h.RecoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), apperr.CodeInternal)
}

func TestUploadOverNetworkExtendsDeadlines(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "netuser")
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	req := uploadRequest(t, map[string]string{"title": "Net", "genre": "Ambient"},
		filePart{"audio", "song.mp3", "audio/mpeg", audioBytes(2048)})
	target, err := url.Parse(srv.URL + req.URL.Path)
	require.NoError(t, err)
	req.URL = target
	req.Host = target.Host
	req.RequestURI = ""
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var out uploadResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "Net", out.Track.Title)
}
