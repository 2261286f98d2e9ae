package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"mixflow/core/analytics"
	"mixflow/core/apperr"
	"mixflow/core/httprange"
	"mixflow/logger"

	"github.com/gorilla/mux"
)

// StreamTrackHandler serves the audio of a servable track, honouring a single
// byte range. Every request that gets a 200 or 206 counts as one play.
func (h *APIHandler) StreamTrackHandler(w http.ResponseWriter, r *http.Request) {
	t, f, err := h.tracks.OpenAudio(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer f.Close()

	size := f.Size
	header := w.Header()
	header.Set("Accept-Ranges", "bytes")

	rng, partial, err := httprange.Parse(r.Header.Get("Range"), size)
	if err != nil {
		header.Set("Content-Range", httprange.Unsatisfied(size))
		h.writeError(w, r, apperr.New(http.StatusRequestedRangeNotSatisfiable,
			apperr.CodeRangeNotSatisfied, "Requested range not satisfiable").Wrap(err))
		return
	}

	status := http.StatusOK
	length := size
	if partial {
		if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
			h.writeError(w, r, apperr.Storage(err))
			return
		}
		status = http.StatusPartialContent
		length = rng.Length()
		header.Set("Content-Range", rng.ContentRange(size))
	}

	h.recorder.Record(analytics.Play{
		TrackID:   t.ID,
		UserID:    GetUserIDFromContext(r.Context()),
		UserAgent: r.UserAgent(),
	})

	// 长音频不受服务端写超时限制
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil &&
		!errors.Is(err, http.ErrNotSupported) {
		logger.Debug("failed to clear write deadline", logger.ErrorField(err))
	}

	header.Set("Content-Type", "audio/mpeg")
	header.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if n, err := io.CopyN(w, f, length); err != nil {
		// Usually the client went away; the play stays counted.
		logger.Debug("stream interrupted",
			logger.String("trackId", t.ID),
			logger.Int64("sent", n),
			logger.Int64("want", length),
			logger.ErrorField(err))
	}
}
