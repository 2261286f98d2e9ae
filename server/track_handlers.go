package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mixflow/core/apperr"
	"mixflow/core/track"
	"mixflow/logger"

	"github.com/gorilla/mux"
)

// UploadTrackHandler handles audio file uploads and metadata.
// Expected multipart form fields:
// - audio: the audio file (mp3, wav, flac, m4a, aac, ogg)
// - artwork: cover art image (jpeg, png, webp, optional)
// - title, genre (required) and description, subGenre, bpm, keySignature,
//   isExplicit, isPublic, tags (optional)
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())

	// 大文件上传放宽读写超时
	if h.cfg.UploadTimeout > 0 {
		deadline := time.Now().Add(h.cfg.UploadTimeout)
		rc := http.NewResponseController(w)
		if err := rc.SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			logger.Debug("failed to extend read deadline", logger.ErrorField(err))
		}
		if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			logger.Debug("failed to extend write deadline", logger.ErrorField(err))
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.validator.Config().MaxRequestSize())

	res, err := h.validator.Parse(r.Context(), r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := h.tracks.Upload(r.Context(), userID, res)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logger.Info("[Upload] track uploaded",
		logger.String("trackId", d.ID),
		logger.String("userId", userID),
		logger.String("fileUrl", d.FileURL))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Track uploaded successfully",
		"track":   d,
	})
}

func queryInt(r *http.Request, key string, fallback, lower int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lower {
		return 0, apperr.Validation(key + " must be an integer >= " + strconv.Itoa(lower))
	}
	return n, nil
}

// GetTracksHandler lists servable tracks with pagination.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", track.DefaultLimit, 1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0, 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.tracks.List(r.Context(), track.ListQuery{
		Limit:  limit,
		Offset: offset,
		Genre:  strings.TrimSpace(r.URL.Query().Get("genre")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetTrackHandler returns one servable track.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	t, err := h.tracks.GetServable(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"track": track.ViewOf(t)})
}

// DeleteTrackHandler removes a track owned by the caller.
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())
	deleted, err := h.tracks.Delete(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logger.Info("[Delete] track deleted", logger.String("trackId", deleted.ID), logger.String("userId", userID))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Track deleted successfully",
		"deletedTrack": deleted,
	})
}
