// Package analytics records plays off the request path.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mixflow/logger"
	"mixflow/model"
	"mixflow/repository"
)

// Play is one successful stream response.
type Play struct {
	TrackID   string
	UserID    string // empty for anonymous listeners
	UserAgent string
}

// Options 播放统计配置
type Options struct {
	Workers int
	Queue   int
	Timeout time.Duration
}

// Recorder increments stream counts and logs plays asynchronously. Record
// never blocks; failures are logged and dropped.
type Recorder struct {
	tracks  repository.TrackRepository
	streams repository.StreamRepository
	timeout time.Duration

	queue chan Play

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	failures atomic.Int64
	dropped  atomic.Int64
}

// NewRecorder starts the worker pool.
func NewRecorder(tracks repository.TrackRepository, streams repository.StreamRepository, opts Options) *Recorder {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	r := &Recorder{
		tracks:  tracks,
		streams: streams,
		timeout: opts.Timeout,
		queue:   make(chan Play, max(opts.Queue, 0)),
	}
	for i := 0; i < opts.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for p := range r.queue {
		r.process(p)
	}
}

// Record submits p. When the queue is full the play is handled by a
// dedicated goroutine; after Close it is dropped.
func (r *Recorder) Record(p Play) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		logger.Warn("analytics recorder closed, play dropped", logger.String("trackId", p.TrackID))
		return
	}
	select {
	case r.queue <- p:
	default:
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.process(p)
		}()
	}
}

func (r *Recorder) process(p Play) {
	defer func() {
		if v := recover(); v != nil {
			r.failures.Add(1)
			logger.Error("analytics panic recovered",
				logger.String("trackId", p.TrackID),
				logger.String("panic", fmt.Sprint(v)))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.tracks.IncrementStreamCount(ctx, p.TrackID); err != nil {
		r.failures.Add(1)
		logger.Error("failed to increment stream count",
			logger.String("trackId", p.TrackID), logger.ErrorField(err))
	}

	if p.UserID == "" {
		return
	}
	stream := &model.Stream{
		UserID:         &p.UserID,
		TrackID:        p.TrackID,
		DurationPlayed: 0,
		Platform:       model.PlatformWeb,
	}
	if p.UserAgent != "" {
		ua := p.UserAgent
		stream.DeviceType = &ua
	}
	if err := r.streams.Create(ctx, stream); err != nil {
		r.failures.Add(1)
		logger.Error("failed to record stream event",
			logger.String("trackId", p.TrackID),
			logger.String("userId", p.UserID),
			logger.ErrorField(err))
	}
}

// Failures returns the number of failed or panicked writes.
func (r *Recorder) Failures() int64 { return r.failures.Load() }

// Dropped returns the number of plays submitted after Close.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Close stops accepting plays and waits for pending ones until ctx is done.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("analytics drain: %w", ctx.Err())
	}
}
