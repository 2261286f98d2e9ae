package server

import (
	"net/http"

	"mixflow/core/user"
)

// GetUserProfileHandler returns the caller with their artist profile.
func (h *APIHandler) GetUserProfileHandler(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Profile(r.Context(), GetUserIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": u})
}

// UpdateUserProfileHandler applies a partial profile update.
func (h *APIHandler) UpdateUserProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req user.UpdateInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), GetUserIDFromContext(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Profile updated successfully",
		"user":    u,
	})
}
