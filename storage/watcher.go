package storage

import (
	"context"
	"path/filepath"
	"sync"

	"mixflow/logger"

	"github.com/fsnotify/fsnotify"
)

// Invalidator drops cached metadata for files removed outside the service.
type Invalidator interface {
	Invalidate(ctx context.Context, kind Kind, name string)
	Reset(ctx context.Context)
	Watch(ctx context.Context) (stop func())
}

// Watcher invalidates cached stats when files under a LocalStore are
// removed or renamed outside the service.
type Watcher struct {
	watcher *fsnotify.Watcher
	target  Invalidator
	dirs    map[string]Kind

	stopOnce sync.Once
	stop     func()
}

// NewWatcher watches every kind directory of store and registers with
// target as soon as the watches are in place. Run must be called to
// deliver the events.
func NewWatcher(ctx context.Context, store *LocalStore, target Invalidator) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	w := &Watcher{
		watcher: fw,
		target:  target,
		dirs:    make(map[string]Kind, len(Kinds)),
	}
	for _, kind := range Kinds {
		dir := filepath.Clean(store.dir(kind))
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, Error.Wrap(err)
		}
		w.dirs[dir] = kind
	}
	w.stop = target.Watch(ctx)
	return w, nil
}

// Run processes events until ctx is done or Close is called. If a kind
// directory itself goes away its watch is lost, so the watcher unregisters
// and Run returns.
func (w *Watcher) Run(ctx context.Context) {
	defer w.unregister()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			path := filepath.Clean(event.Name)
			if kind, ok := w.dirs[path]; ok {
				logger.Warn("upload directory removed, stat cache disabled",
					logger.String("kind", string(kind)), logger.String("dir", path))
				w.target.Reset(ctx)
				return
			}
			kind, ok := w.dirs[filepath.Dir(path)]
			if !ok {
				continue
			}
			name := filepath.Base(path)
			logger.Debug("stored file removed externally",
				logger.String("kind", string(kind)), logger.String("name", name))
			w.target.Invalidate(ctx, kind, name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// 事件可能已丢失 (如队列溢出), 清空缓存
			logger.Warn("watcher error", logger.ErrorField(err))
			w.target.Reset(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the watcher. Run returns once the event channels close.
func (w *Watcher) Close() error {
	w.unregister()
	return Error.Wrap(w.watcher.Close())
}

func (w *Watcher) unregister() {
	w.stopOnce.Do(w.stop)
}
