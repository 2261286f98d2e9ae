package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter wires every route. Access logging and panic recovery wrap the
// whole tree so unknown routes are logged too.
func NewRouter(h *APIHandler) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(h.NotFoundHandler)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.MethodNotAllowedHandler)

	r.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)

	// The subrouter has no NotFoundHandler; unmatched paths fall through to r.
	r.HandleFunc("/api", h.IndexHandler).Methods(http.MethodGet)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/", h.IndexHandler).Methods(http.MethodGet)

	// 认证
	api.HandleFunc("/auth/register", h.RegisterHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.LoginHandler).Methods(http.MethodPost)

	// 用户
	api.HandleFunc("/user/profile", h.AuthMiddleware(h.GetUserProfileHandler)).Methods(http.MethodGet)
	api.HandleFunc("/user/profile", h.AuthMiddleware(h.UpdateUserProfileHandler)).Methods(http.MethodPatch)

	// 艺术家
	api.HandleFunc("/artist/create", h.AuthMiddleware(h.CreateArtistHandler)).Methods(http.MethodPost)
	api.HandleFunc("/artist/tracks", h.AuthMiddleware(h.GetMyTracksHandler)).Methods(http.MethodGet)
	api.HandleFunc("/artist/{id}", h.GetArtistHandler).Methods(http.MethodGet)

	// 曲目
	api.HandleFunc("/tracks", h.GetTracksHandler).Methods(http.MethodGet)
	api.HandleFunc("/tracks/upload", h.AuthMiddleware(h.UploadTrackHandler)).Methods(http.MethodPost)
	api.HandleFunc("/tracks/{id}/stream", h.OptionalAuthMiddleware(h.StreamTrackHandler)).Methods(http.MethodGet)
	api.HandleFunc("/tracks/{id}", h.GetTrackHandler).Methods(http.MethodGet)
	api.HandleFunc("/tracks/{id}", h.AuthMiddleware(h.DeleteTrackHandler)).Methods(http.MethodDelete)

	// 静态文件
	r.PathPrefix("/uploads/").HandlerFunc(h.StaticUploadHandler).Methods(http.MethodGet, http.MethodHead)

	c := cors.New(cors.Options{
		AllowedOrigins:   h.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Range"},
		ExposedHeaders:   []string{"Content-Range", "Accept-Ranges", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	return LoggingMiddleware(h.RecoverMiddleware(c.Handler(r)))
}
