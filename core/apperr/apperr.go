// Package apperr defines the client-facing error taxonomy. Services return
// *Error values; the HTTP layer renders them as {error, code[, details]}.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeInvalidFieldName   = "INVALID_FIELD_NAME"
	CodeInvalidAudioFile   = "INVALID_AUDIO_FILE"
	CodeInvalidImageFile   = "INVALID_IMAGE_FILE"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeTooManyFiles       = "TOO_MANY_FILES"
	CodeAudioFileRequired  = "AUDIO_FILE_REQUIRED"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeAuthRequired       = "AUTHENTICATION_REQUIRED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeArtistRequired     = "ARTIST_REQUIRED"
	CodeTrackNotFound      = "TRACK_NOT_FOUND"
	CodeFileNotFound       = "FILE_NOT_FOUND"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeArtistNotFound     = "ARTIST_NOT_FOUND"
	CodeEndpointNotFound   = "ENDPOINT_NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeUserExists         = "USER_ALREADY_EXISTS"
	CodeUsernameTaken      = "USERNAME_TAKEN"
	CodeArtistExists       = "ARTIST_PROFILE_EXISTS"
	CodeRangeNotSatisfied  = "RANGE_NOT_SATISFIABLE"
	CodeDatabase           = "DATABASE_ERROR"
	CodeStorage            = "STORAGE_ERROR"
	CodeInternal           = "INTERNAL_SERVER_ERROR"
)

// Error is an error with an HTTP status and a stable code.
type Error struct {
	Status  int
	Code    string
	Message string
	// Err is the underlying cause. It is logged, never sent to clients
	// outside development.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so errors.Is(err, apperr.ErrTrackNotFound) works
// for wrapped copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

// New creates an Error.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func BadRequest(code, message string) *Error {
	return New(http.StatusBadRequest, code, message)
}

func Validation(message string) *Error {
	return New(http.StatusBadRequest, CodeValidation, message)
}

func Unauthorized(code, message string) *Error {
	return New(http.StatusUnauthorized, code, message)
}

func Forbidden(code, message string) *Error {
	return New(http.StatusForbidden, code, message)
}

func NotFound(code, message string) *Error {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(http.StatusConflict, code, message)
}

// Database reports a metadata store failure with a generic message.
func Database(cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeDatabase, Message: "Database operation failed", Err: cause}
}

// Storage reports a file store failure with a generic message.
func Storage(cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeStorage, Message: "File storage operation failed", Err: cause}
}

// Internal reports an unexpected failure.
func Internal(cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "Internal server error", Err: cause}
}

var (
	ErrTrackNotFound  = NotFound(CodeTrackNotFound, "Track not found")
	ErrFileNotFound   = NotFound(CodeFileNotFound, "Audio file not found")
	ErrUserNotFound   = NotFound(CodeUserNotFound, "User not found")
	ErrArtistNotFound = NotFound(CodeArtistNotFound, "Artist not found")
	ErrNotOwner       = Forbidden(CodeUnauthorized, "You can only delete your own tracks")
	ErrArtistRequired = Forbidden(CodeArtistRequired, "Artist profile required")
	ErrAuthRequired   = Unauthorized(CodeAuthRequired, "Authentication required")
	ErrInvalidToken   = Unauthorized(CodeInvalidToken, "Invalid or expired token")
)

// From extracts an *Error from err, converting anything else to Internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// CodeOf returns the code carried by err, or "" if it has none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
