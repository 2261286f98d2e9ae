package server

import (
	"net/http"

	"mixflow/core/artist"

	"github.com/gorilla/mux"
)

// CreateArtistHandler turns the caller into an artist.
func (h *APIHandler) CreateArtistHandler(w http.ResponseWriter, r *http.Request) {
	var req artist.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	a, err := h.artists.Create(r.Context(), GetUserIDFromContext(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Artist profile created successfully",
		"artist":  a,
	})
}

// GetMyTracksHandler lists every track of the calling artist.
func (h *APIHandler) GetMyTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.artists.MyTracks(r.Context(), GetUserIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Tracks retrieved successfully",
		"tracks":  tracks,
		"total":   len(tracks),
	})
}

// GetArtistHandler returns a public artist profile.
func (h *APIHandler) GetArtistHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.artists.GetProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"artist": p})
}
