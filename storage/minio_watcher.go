package storage

import (
	"context"
	"net/url"
	"strings"
	"time"

	"mixflow/logger"

	"github.com/minio/minio-go/v7/pkg/notification"
)

const bucketRetryDelay = 5 * time.Second

// BucketWatcher invalidates cached stats when objects are removed from a
// MinioStore bucket, using MinIO bucket notifications.
type BucketWatcher struct {
	store  *MinioStore
	target Invalidator
	retry  time.Duration
}

// NewBucketWatcher creates a BucketWatcher for store.
func NewBucketWatcher(store *MinioStore, target Invalidator) *BucketWatcher {
	return &BucketWatcher{store: store, target: target, retry: bucketRetryDelay}
}

// Run listens for s3:ObjectRemoved:* events until ctx is done. The target
// is registered only while a listener is open; a broken listener
// unregisters, purges the cache and reconnects after a delay.
func (w *BucketWatcher) Run(ctx context.Context) {
	for {
		events := w.store.client.ListenBucketNotification(ctx, w.store.bucket, "", "",
			[]string{string(notification.ObjectRemovedAll)})
		stop := w.target.Watch(ctx)
		err := w.consume(ctx, events)
		stop()
		if ctx.Err() != nil {
			return
		}
		logger.Warn("bucket notifications interrupted, stat cache disabled",
			logger.String("bucket", w.store.bucket), logger.ErrorField(err))
		w.target.Reset(ctx)

		select {
		case <-time.After(w.retry):
		case <-ctx.Done():
			return
		}
	}
}

// consume applies removal events until the channel closes, an error
// arrives or ctx is done.
func (w *BucketWatcher) consume(ctx context.Context, events <-chan notification.Info) error {
	for {
		select {
		case info, ok := <-events:
			if !ok {
				return Error.New("notification stream closed")
			}
			if info.Err != nil {
				return Error.Wrap(info.Err)
			}
			for _, ev := range info.Records {
				if !strings.HasPrefix(ev.EventName, "s3:ObjectRemoved:") {
					continue
				}
				kind, name, ok := parseObjectKey(ev.S3.Object.Key)
				if !ok {
					continue
				}
				logger.Debug("stored object removed externally",
					logger.String("kind", string(kind)), logger.String("name", name))
				w.target.Invalidate(ctx, kind, name)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseObjectKey splits an event key (URL-encoded "<kind>/<name>").
func parseObjectKey(key string) (Kind, string, bool) {
	if unescaped, err := url.QueryUnescape(key); err == nil {
		key = unescaped
	}
	k, name, ok := strings.Cut(key, "/")
	kind := Kind(k)
	if !ok || !kind.Valid() || !ValidName(name) {
		return "", "", false
	}
	return kind, name, true
}
