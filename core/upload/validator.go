// Package upload validates multipart uploads and streams accepted files
// into the file store.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"mixflow/core/apperr"
	"mixflow/logger"
	"mixflow/storage"
)

var errFileTooLarge = errors.New("file exceeds size limit")

// StoredFile is an accepted part written to the store.
type StoredFile struct {
	Field        storage.Kind
	OriginalName string
	Filename     string
	MimeType     string
	Size         int64
	URL          string
}

// Result holds the accepted files and text fields of one request.
type Result struct {
	Files  map[storage.Kind]*StoredFile
	Values map[string][]string
}

// File returns the stored file for field, or nil.
func (r *Result) File(field storage.Kind) *StoredFile {
	if r == nil {
		return nil
	}
	return r.Files[field]
}

// Value returns the first value of a text field.
func (r *Result) Value(key string) string {
	if vs := r.Values[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Has reports whether the text field was sent.
func (r *Result) Has(key string) bool {
	_, ok := r.Values[key]
	return ok
}

// Validator accepts multipart requests part by part.
type Validator struct {
	store storage.Store
	cfg   Config
	now   func() time.Time
}

// NewValidator creates a Validator writing into store.
func NewValidator(store storage.Store, cfg Config) *Validator {
	return &Validator{store: store, cfg: cfg, now: time.Now}
}

// Config returns the active limits.
func (v *Validator) Config() Config { return v.cfg }

// Parse reads the multipart body of r. Rejected parts are never kept: on
// any error every file already written for this request is removed.
func (v *Validator) Parse(ctx context.Context, r *http.Request) (*Result, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apperr.BadRequest(apperr.CodeInvalidRequest, "Expected a multipart/form-data body").Wrap(err)
	}

	res := &Result{Files: map[storage.Kind]*StoredFile{}, Values: map[string][]string{}}
	if err := v.readParts(ctx, mr, res); err != nil {
		v.Discard(ctx, res)
		return nil, err
	}
	return res, nil
}

func (v *Validator) readParts(ctx context.Context, mr *multipart.Reader, res *Result) error {
	fields := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return bodyError(err)
		}

		if part.FileName() == "" {
			fields++
			if fields > v.cfg.MaxFields {
				part.Close()
				return apperr.Validation("Too many form fields")
			}
			err = v.readField(part, res)
		} else {
			err = v.storeFile(ctx, part, res)
		}
		part.Close()
		if err != nil {
			return err
		}
	}
}

func (v *Validator) readField(part *multipart.Part, res *Result) error {
	name := part.FormName()
	data, err := io.ReadAll(io.LimitReader(part, v.cfg.MaxFieldSize+1))
	if err != nil {
		return bodyError(err)
	}
	if int64(len(data)) > v.cfg.MaxFieldSize {
		return apperr.Validation(fmt.Sprintf("Field %q is too large", name))
	}
	res.Values[name] = append(res.Values[name], string(data))
	return nil
}

func (v *Validator) storeFile(ctx context.Context, part *multipart.Part, res *Result) error {
	field := storage.Kind(part.FormName())
	if !field.Valid() {
		return apperr.BadRequest(apperr.CodeInvalidFieldName,
			fmt.Sprintf("Unexpected field %q. Allowed fields: audio, artwork", part.FormName()))
	}
	if len(res.Files) >= v.cfg.MaxFiles || res.Files[field] != nil {
		return apperr.BadRequest(apperr.CodeTooManyFiles,
			fmt.Sprintf("Too many files. Maximum is %d, one per field", v.cfg.MaxFiles))
	}

	original := part.FileName()
	mimeType := partMIMEType(part)
	switch field {
	case storage.KindAudio:
		if !AcceptAudio(mimeType, original) {
			return apperr.BadRequest(apperr.CodeInvalidAudioFile,
				"Invalid audio file type. Allowed: mp3, wav, flac, aac, m4a, webm, ogg, wma")
		}
	case storage.KindArtwork:
		if !AcceptImage(mimeType, original) {
			return apperr.BadRequest(apperr.CodeInvalidImageFile,
				"Invalid image file type. Allowed: jpg, jpeg, png, webp")
		}
	}

	name := storage.GenerateName(field, original, v.now())
	n, err := v.store.Save(ctx, field, name, &sizeLimitReader{r: part, remaining: v.cfg.MaxFileSize})
	if err != nil {
		if errors.Is(err, errFileTooLarge) {
			return apperr.BadRequest(apperr.CodeFileTooLarge,
				fmt.Sprintf("File too large. Maximum size is %d MB", v.cfg.MaxFileSize/(1024*1024)))
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return bodyError(maxErr)
		}
		if ctx.Err() != nil {
			return apperr.BadRequest(apperr.CodeInvalidRequest, "Upload interrupted").Wrap(err)
		}
		return apperr.Storage(err)
	}

	res.Files[field] = &StoredFile{
		Field:        field,
		OriginalName: original,
		Filename:     name,
		MimeType:     mimeType,
		Size:         n,
		URL:          storage.URL(field, name),
	}
	logger.Debug("upload part stored",
		logger.String("field", string(field)),
		logger.String("filename", name),
		logger.Int64("size", n))
	return nil
}

// Discard removes every file stored for res.
func (v *Validator) Discard(ctx context.Context, res *Result) {
	if res == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, f := range res.Files {
		if err := v.store.Remove(ctx, f.Field, f.Filename); err != nil {
			logger.Warn("failed to remove rejected upload",
				logger.String("filename", f.Filename), logger.ErrorField(err))
		}
	}
}

func partMIMEType(part *multipart.Part) string {
	ct := part.Header.Get("Content-Type")
	if ct == "" {
		return "application/octet-stream"
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperr.BadRequest(apperr.CodeFileTooLarge, "Request body too large").Wrap(err)
	}
	return apperr.BadRequest(apperr.CodeInvalidRequest, "Malformed multipart body").Wrap(err)
}

// sizeLimitReader fails once more than remaining bytes are read.
type sizeLimitReader struct {
	r         io.Reader
	remaining int64
}

func (l *sizeLimitReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, errFileTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return 0, errFileTooLarge
	}
	return n, err
}
