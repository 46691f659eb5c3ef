package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vbonduro/fridgecam/internal/domain"
)

const (
	sweepBatch          = 100
	defaultReclaimAfter = 15 * time.Minute
)

type staleLister interface {
	ListStale(ctx context.Context, pendingBefore, processingBefore time.Time, limit int) ([]*domain.Photo, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, photoID int64) error
}

// Sweeper re-enqueues photos that have sat in pending too long, which
// happens when the enqueue after a capture failed or a memory queue was lost
// on restart. It also reclaims photos stuck in processing after their worker
// died; the per-photo lock keeps a still-running task from being doubled.
type Sweeper struct {
	photos       staleLister
	queue        enqueuer
	interval     time.Duration
	staleAfter   time.Duration
	reclaimAfter time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

type SweeperOption func(*Sweeper)

// WithReclaimAfter sets how long a photo may stay processing before it is
// handed to the queue again.
func WithReclaimAfter(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.reclaimAfter = d
		}
	}
}

func NewSweeper(photos staleLister, q enqueuer, interval, staleAfter time.Duration, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		photos:       photos,
		queue:        q,
		interval:     interval,
		staleAfter:   staleAfter,
		reclaimAfter: defaultReclaimAfter,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", s.interval)
	}
	s.logger.Info("pending photo sweeper started", "interval", s.interval, "stale_after", s.staleAfter, "reclaim_after", s.reclaimAfter)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("pending photo sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce enqueues up to one batch of stale pending or abandoned
// processing photos and reports how many were enqueued.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	photos, err := s.photos.ListStale(ctx, now.Add(-s.staleAfter), now.Add(-s.reclaimAfter), sweepBatch)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, p := range photos {
		if err := s.queue.Enqueue(ctx, p.ID); err != nil {
			s.logger.Warn("failed to re-enqueue photo", "photo_id", p.ID, "status", p.Status, "error", err)
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		s.logger.Info("re-enqueued stale photos", "count", enqueued)
	}
	return enqueued, nil
}
