package server

import (
	"net/http"

	"mixflow/core/apperr"
	"mixflow/storage"
)

// StaticUploadHandler serves stored files under /uploads/{audio,artwork}/.
// Directory listings are never produced.
func (h *APIHandler) StaticUploadHandler(w http.ResponseWriter, r *http.Request) {
	kind, name, ok := storage.ParseURL(r.URL.Path)
	if !ok {
		h.writeError(w, r, apperr.NotFound(apperr.CodeFileNotFound, "File not found"))
		return
	}
	f, err := h.store.Open(r.Context(), kind, name)
	if err != nil {
		if storage.IsNotExist(err) {
			h.writeError(w, r, apperr.NotFound(apperr.CodeFileNotFound, "File not found"))
			return
		}
		h.writeError(w, r, apperr.Storage(err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", storage.ContentType(name))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, name, f.ModTime, f)
}
