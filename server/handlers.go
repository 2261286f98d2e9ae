package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"mixflow/config"
	"mixflow/core/analytics"
	"mixflow/core/apperr"
	"mixflow/core/artist"
	"mixflow/core/auth"
	"mixflow/core/track"
	"mixflow/core/upload"
	"mixflow/core/user"
	"mixflow/logger"
	"mixflow/storage"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg       *config.Config
	issuer    *auth.Issuer
	users     *user.Service
	artists   *artist.Service
	tracks    *track.Service
	validator *upload.Validator
	recorder  *analytics.Recorder
	store     storage.Store

	database HealthCheck
	cache    HealthCheck // nil when no cache is configured
	objects  HealthCheck // nil for the local file store
	started  time.Time
}

// Deps groups the collaborators of an APIHandler.
type Deps struct {
	Config    *config.Config
	Issuer    *auth.Issuer
	Users     *user.Service
	Artists   *artist.Service
	Tracks    *track.Service
	Validator *upload.Validator
	Recorder  *analytics.Recorder
	Store     storage.Store
	Database  HealthCheck
	Cache     HealthCheck
	Storage   HealthCheck
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(d Deps) *APIHandler {
	return &APIHandler{
		cfg:       d.Config,
		issuer:    d.Issuer,
		users:     d.Users,
		artists:   d.Artists,
		tracks:    d.Tracks,
		validator: d.Validator,
		recorder:  d.Recorder,
		store:     d.Store,
		database:  d.Database,
		cache:     d.Cache,
		objects:   d.Storage,
		started:   time.Now(),
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to encode response", logger.ErrorField(err))
	}
}

// writeError renders err as {error, code}. Causes are logged; they reach the
// client only in development.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	if e.Status >= http.StatusInternalServerError {
		logger.Error("request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.String("code", e.Code),
			logger.ErrorField(err))
	} else {
		logger.Debug("request rejected",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.String("code", e.Code),
			logger.Int("status", e.Status))
	}

	resp := errorResponse{Error: e.Message, Code: e.Code}
	if h.cfg.IsDevelopment() && e.Err != nil {
		resp.Details = e.Err.Error()
	}
	writeJSON(w, e.Status, resp)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.BadRequest(apperr.CodeInvalidRequest, "Request body is required")
		}
		return apperr.BadRequest(apperr.CodeInvalidRequest, "Invalid JSON body").Wrap(err)
	}
	return nil
}

// IndexHandler lists the public API.
func (h *APIHandler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "MixFlow API",
		"version": h.cfg.Version,
		"endpoints": map[string]string{
			"auth":   "/api/auth",
			"user":   "/api/user",
			"artist": "/api/artist",
			"tracks": "/api/tracks",
			"health": "/health",
		},
	})
}

// HealthHandler pings the database and any configured cache or object store.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	resp := map[string]interface{}{
		"status":      "OK",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"version":     h.cfg.Version,
		"environment": h.cfg.Env,
		"uptime":      int64(time.Since(h.started).Seconds()),
	}

	checks := []struct {
		name  string
		check HealthCheck
	}{
		{"database", h.database},
		{"cache", h.cache},
		{"storage", h.objects},
	}
	for _, c := range checks {
		if c.check == nil {
			continue
		}
		resp[c.name] = "connected"
		if err := c.check(ctx); err != nil {
			logger.Warn("health check failed", logger.String("dependency", c.name), logger.ErrorField(err))
			resp[c.name] = "disconnected"
			status = http.StatusServiceUnavailable
		}
	}
	if status != http.StatusOK {
		resp["status"] = "ERROR"
	}
	writeJSON(w, status, resp)
}

// NotFoundHandler answers unknown routes.
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, apperr.NotFound(apperr.CodeEndpointNotFound, "Endpoint not found"))
}

// MethodNotAllowedHandler answers known routes called with the wrong method.
func (h *APIHandler) MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, apperr.New(http.StatusMethodNotAllowed, apperr.CodeMethodNotAllowed, "Method not allowed"))
}
