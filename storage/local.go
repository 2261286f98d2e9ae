package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore keeps files in <root>/<kind>/<name>.
type LocalStore struct {
	root string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates the kind directories below root.
func NewLocalStore(root string) (*LocalStore, error) {
	s := &LocalStore{root: root}
	for _, kind := range Kinds {
		if err := ensureDirExists(s.dir(kind)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Root returns the base directory.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) dir(kind Kind) string {
	return filepath.Join(s.root, string(kind))
}

func (s *LocalStore) path(kind Kind, name string) string {
	return filepath.Join(s.dir(kind), name)
}

// ensureDirExists creates dir if needed. Safe to call concurrently.
func ensureDirExists(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

func (s *LocalStore) Save(ctx context.Context, kind Kind, name string, r io.Reader) (int64, error) {
	if err := checkName(kind, name); err != nil {
		return 0, err
	}
	// 目录可能在运行中被删除, 每次写入前重新创建
	if err := ensureDirExists(s.dir(kind)); err != nil {
		return 0, err
	}

	p := s.path(kind, name)
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	n, err := io.Copy(f, contextReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(p)
		return n, Error.Wrap(err)
	}
	return n, nil
}

func (s *LocalStore) Open(ctx context.Context, kind Kind, name string) (*File, error) {
	if err := checkName(kind, name); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(kind, name))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, Error.Wrap(err)
	}
	if !fi.Mode().IsRegular() {
		_ = f.Close()
		return nil, Error.Wrap(ErrNotExist)
	}
	return &File{ReadSeekCloser: f, Info: infoOf(kind, fi)}, nil
}

func (s *LocalStore) Stat(ctx context.Context, kind Kind, name string) (Info, error) {
	if err := checkName(kind, name); err != nil {
		return Info{}, err
	}
	fi, err := os.Stat(s.path(kind, name))
	if err != nil {
		return Info{}, Error.Wrap(err)
	}
	if !fi.Mode().IsRegular() {
		return Info{}, Error.Wrap(ErrNotExist)
	}
	return infoOf(kind, fi), nil
}

func (s *LocalStore) Remove(ctx context.Context, kind Kind, name string) error {
	if err := checkName(kind, name); err != nil {
		return err
	}
	err := os.Remove(s.path(kind, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Error.Wrap(err)
	}
	return nil
}

func (s *LocalStore) Walk(ctx context.Context, kind Kind, fn func(Info) error) error {
	if !kind.Valid() {
		return Error.New("unknown kind %q", kind)
	}
	entries, err := os.ReadDir(s.dir(kind))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return Error.Wrap(err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.Type().IsRegular() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if err := fn(infoOf(kind, fi)); err != nil {
			return err
		}
	}
	return nil
}

func infoOf(kind Kind, fi fs.FileInfo) Info {
	return Info{Kind: kind, Name: fi.Name(), Size: fi.Size(), ModTime: fi.ModTime()}
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
