package storage

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"mixflow/logger"
)

// StatCache remembers file metadata for files known to exist.
type StatCache interface {
	Get(ctx context.Context, kind Kind, name string) (Info, bool, error)
	Set(ctx context.Context, info Info) error
	Invalidate(ctx context.Context, kind Kind, name string) error
	Purge(ctx context.Context) (int, error)
}

// CachedStore serves Stat from a StatCache. Only positive results are
// cached, so a missing file is always re-checked against the backend.
//
// A cached entry can only be trusted while something reports files removed
// behind the store's back. The cache is therefore consulted only while at
// least one invalidation source (a Watcher or BucketWatcher) is registered
// through Watch; otherwise every Stat goes to the backend.
type CachedStore struct {
	Store
	cache   StatCache
	sources atomic.Int32
}

// NewCachedStore wraps store with cache.
func NewCachedStore(store Store, cache StatCache) *CachedStore {
	return &CachedStore{Store: store, cache: cache}
}

// Watch registers an invalidation source and returns the func that
// unregisters it. The first registration purges the cache, since removals
// that happened while nothing was watching were never reported.
func (s *CachedStore) Watch(ctx context.Context) (stop func()) {
	if s.sources.Add(1) == 1 {
		s.Reset(ctx)
	}
	var once sync.Once
	return func() {
		once.Do(func() { s.sources.Add(-1) })
	}
}

// Watched reports whether Stat is currently served from the cache.
func (s *CachedStore) Watched() bool {
	return s.sources.Load() > 0
}

func (s *CachedStore) Stat(ctx context.Context, kind Kind, name string) (Info, error) {
	if !s.Watched() {
		return s.Store.Stat(ctx, kind, name)
	}

	info, ok, err := s.cache.Get(ctx, kind, name)
	if err != nil {
		logger.Warn("stat cache get failed", logger.String("name", name), logger.ErrorField(err))
	} else if ok {
		return info, nil
	}

	info, err = s.Store.Stat(ctx, kind, name)
	if err != nil {
		return Info{}, err
	}
	if err := s.cache.Set(ctx, info); err != nil {
		logger.Warn("stat cache set failed", logger.String("name", name), logger.ErrorField(err))
	}
	return info, nil
}

func (s *CachedStore) Open(ctx context.Context, kind Kind, name string) (*File, error) {
	f, err := s.Store.Open(ctx, kind, name)
	if IsNotExist(err) {
		s.Invalidate(ctx, kind, name)
	}
	return f, err
}

func (s *CachedStore) Save(ctx context.Context, kind Kind, name string, r io.Reader) (int64, error) {
	n, err := s.Store.Save(ctx, kind, name, r)
	s.Invalidate(ctx, kind, name)
	return n, err
}

func (s *CachedStore) Remove(ctx context.Context, kind Kind, name string) error {
	err := s.Store.Remove(ctx, kind, name)
	s.Invalidate(ctx, kind, name)
	return err
}

// Invalidate drops any cached entry for (kind, name).
func (s *CachedStore) Invalidate(ctx context.Context, kind Kind, name string) {
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), kind, name); err != nil {
		logger.Warn("stat cache invalidate failed", logger.String("name", name), logger.ErrorField(err))
	}
}

// Reset drops every cached entry. Sources call it when they may have
// missed events.
func (s *CachedStore) Reset(ctx context.Context) {
	n, err := s.cache.Purge(context.WithoutCancel(ctx))
	if err != nil {
		logger.Warn("stat cache purge failed", logger.ErrorField(err))
		return
	}
	logger.Debug("stat cache purged", logger.Int("keys", n))
}
