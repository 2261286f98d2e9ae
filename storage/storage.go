// Package storage holds uploaded audio and artwork files.
package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/zeebo/errs"
)

// Error is the class of all file store errors.
var Error = errs.Class("filestore")

// ErrNotExist reports a missing file. Backends wrap it so errors.Is works.
var ErrNotExist = fs.ErrNotExist

// IsNotExist reports whether err says the file is missing.
func IsNotExist(err error) bool { return errors.Is(err, ErrNotExist) }

// URLPrefix is the public path under which stored files are served.
const URLPrefix = "/uploads/"

// Kind identifies one of the flat namespaces in the store.
type Kind string

const (
	KindAudio   Kind = "audio"
	KindArtwork Kind = "artwork"
)

// Kinds lists every namespace.
var Kinds = []Kind{KindAudio, KindArtwork}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindAudio || k == KindArtwork
}

// Info describes a stored file.
type Info struct {
	Kind    Kind
	Name    string
	Size    int64
	ModTime time.Time
}

// File is an open stored file positioned at offset 0.
type File struct {
	io.ReadSeekCloser
	Info
}

// Store is a flat two-namespace blob store.
type Store interface {
	// Save writes r under (kind, name) and returns the byte count. A
	// partially written file is removed before an error is returned.
	Save(ctx context.Context, kind Kind, name string, r io.Reader) (int64, error)
	// Open returns a seekable reader. Missing files yield ErrNotExist.
	Open(ctx context.Context, kind Kind, name string) (*File, error)
	// Stat returns metadata. Missing files yield ErrNotExist.
	Stat(ctx context.Context, kind Kind, name string) (Info, error)
	// Remove deletes a file. Removing a missing file is not an error.
	Remove(ctx context.Context, kind Kind, name string) error
	// Walk calls fn for every file of kind.
	Walk(ctx context.Context, kind Kind, fn func(Info) error) error
}

// URL returns the public URL for a stored file.
func URL(kind Kind, name string) string {
	return URLPrefix + string(kind) + "/" + name
}

// ParseURL maps a public URL back to its (kind, name). Anything that does
// not name a single file directly inside a known kind is rejected.
func ParseURL(u string) (Kind, string, bool) {
	rest, ok := strings.CutPrefix(u, URLPrefix)
	if !ok {
		return "", "", false
	}
	kind, name, ok := strings.Cut(rest, "/")
	if !ok || !Kind(kind).Valid() || !ValidName(name) {
		return "", "", false
	}
	return Kind(kind), name, true
}

// ValidName reports whether name is a plain file name with no separators or
// relative components.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return path.Base(name) == name
}

func checkName(kind Kind, name string) error {
	if !kind.Valid() {
		return Error.New("unknown kind %q", kind)
	}
	if !ValidName(name) {
		return Error.New("invalid file name %q", name)
	}
	return nil
}
