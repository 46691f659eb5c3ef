// Package memory is an in-process queue. Tasks are lost when the process
// exits; the pending-photo sweeper re-enqueues them on the next start.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/queue"
)

var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)

type Options struct {
	Concurrency int
	MaxRetry    int
	Buffer      int
	// Backoff overrides queue.Backoff, mainly for tests.
	Backoff func(attempt int) time.Duration
	Logger  *slog.Logger
}

type task struct {
	photoID int64
	attempt int
}

// Queue delivers tasks to Consume workers through a buffered channel.
// A photo that is already waiting is not queued twice.
type Queue struct {
	opts  Options
	tasks chan task

	mu      sync.Mutex
	waiting map[int64]struct{}
	closed  bool
	timers  map[*time.Timer]struct{}

	// sync mode
	handler queue.Handler
}

var _ queue.Queue = (*Queue)(nil)

func New(opts Options) *Queue {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxRetry < 0 {
		opts.MaxRetry = 0
	}
	if opts.Buffer < 1 {
		opts.Buffer = 1024
	}
	if opts.Backoff == nil {
		opts.Backoff = queue.Backoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Queue{
		opts:    opts,
		tasks:   make(chan task, opts.Buffer),
		waiting: make(map[int64]struct{}),
		timers:  make(map[*time.Timer]struct{}),
	}
}

// NewSync returns a queue that runs h inside Enqueue, retrying retryable
// failures immediately. Handler errors are logged, not returned.
func NewSync(h queue.Handler, maxRetry int, logger *slog.Logger) *Queue {
	q := New(Options{MaxRetry: maxRetry, Logger: logger})
	q.handler = h
	return q
}

func (q *Queue) Enqueue(ctx context.Context, photoID int64) error {
	if q.handler != nil {
		q.runSync(ctx, photoID)
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if _, ok := q.waiting[photoID]; ok {
		return nil
	}
	select {
	case q.tasks <- task{photoID: photoID}:
		q.waiting[photoID] = struct{}{}
		return nil
	default:
		return ErrFull
	}
}

func (q *Queue) runSync(ctx context.Context, photoID int64) {
	for attempt := 0; ; attempt++ {
		err := queue.Run(ctx, q.handler, photoID)
		if err == nil {
			return
		}
		if !apperr.Retryable(err) || attempt >= q.opts.MaxRetry {
			q.opts.Logger.Error("recognition task failed", "photo_id", photoID, "attempt", attempt+1, "error", err)
			return
		}
		q.opts.Logger.Warn("recognition task failed, retrying", "photo_id", photoID, "attempt", attempt+1, "error", err)
	}
}

// Consume starts Concurrency workers and blocks until ctx is cancelled or
// the queue is closed. In sync mode it only waits.
func (q *Queue) Consume(ctx context.Context, h queue.Handler) error {
	if q.handler != nil {
		<-ctx.Done()
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < q.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx, h)
		}()
	}
	wg.Wait()
	return nil
}

func (q *Queue) work(ctx context.Context, h queue.Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-q.tasks:
			if !ok {
				return
			}
			q.mu.Lock()
			delete(q.waiting, t.photoID)
			q.mu.Unlock()
			q.handle(ctx, h, t)
		}
	}
}

func (q *Queue) handle(ctx context.Context, h queue.Handler, t task) {
	err := queue.Run(ctx, h, t.photoID)
	if err == nil {
		return
	}
	logger := q.opts.Logger.With("photo_id", t.photoID, "attempt", t.attempt+1, "error", err)
	if !apperr.Retryable(err) {
		logger.Error("recognition task failed permanently")
		return
	}
	if t.attempt >= q.opts.MaxRetry {
		logger.Error("recognition task exhausted retries")
		return
	}

	delay := q.opts.Backoff(t.attempt + 1)
	logger.Warn("recognition task failed, retrying", "delay", delay)
	q.retryAfter(task{photoID: t.photoID, attempt: t.attempt + 1}, delay)
}

func (q *Queue) retryAfter(t task, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.timers, timer)
		if q.closed {
			return
		}
		select {
		case q.tasks <- t:
			q.waiting[t.photoID] = struct{}{}
		default:
			q.opts.Logger.Error("dropping retry, queue full", "photo_id", t.photoID)
		}
	})
	q.timers[timer] = struct{}{}
}

// Close stops accepting tasks and cancels pending retries. Workers exit
// once the buffer drains.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	close(q.tasks)
	return nil
}
