// Package recognition runs the vision model over captured photos and stores
// what it finds.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/domain"
	"github.com/vbonduro/fridgecam/internal/lock"
	"github.com/vbonduro/fridgecam/internal/metrics"
	"github.com/vbonduro/fridgecam/internal/photostore"
	"github.com/vbonduro/fridgecam/internal/store"
	"github.com/vbonduro/fridgecam/internal/vision"
)

const (
	maxNameLen     = 100
	maxQuantityLen = 50
)

// ErrInProgress means another worker holds the photo. It is retryable.
var ErrInProgress = errors.New("recognition already in progress")

// photoRepository is the subset of store.PhotoStore that Task requires.
type photoRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Photo, error)
	TransitionStatus(ctx context.Context, id int64, to domain.RecognitionStatus) error
	CompleteRecognition(ctx context.Context, photoID int64, items []*domain.RecognizedItem, rawResponse string) error
}

type Task struct {
	photos   photoRepository
	media    photostore.PhotoStore
	analyzer vision.VisionAnalyzer
	locker   lock.Locker
	metrics  *metrics.Metrics
	tempDir  string
	logger   *slog.Logger
}

type Option func(*Task)

// WithTempDir sets where images are materialized; empty means os.TempDir.
func WithTempDir(dir string) Option {
	return func(t *Task) { t.tempDir = dir }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Task) { t.metrics = m }
}

func NewTask(
	photos photoRepository,
	media photostore.PhotoStore,
	analyzer vision.VisionAnalyzer,
	locker lock.Locker,
	logger *slog.Logger,
	opts ...Option,
) *Task {
	t := &Task{
		photos:   photos,
		media:    media,
		analyzer: analyzer,
		locker:   locker,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run recognizes one photo. It is safe to call again for the same photo:
// completed photos are skipped and concurrent runs are refused with
// ErrInProgress. The returned error is classified with apperr so the queue
// can decide whether to retry.
func (t *Task) Run(ctx context.Context, photoID int64) error {
	const op = "recognition.Run"
	logger := t.logger.With("photo_id", photoID)

	photo, err := t.photos.GetByID(ctx, photoID)
	if err != nil {
		return apperr.Persistence(op, err)
	}
	if photo == nil {
		logger.Warn("photo not found, dropping task")
		return nil
	}
	if photo.Status == domain.StatusCompleted {
		logger.Info("photo already recognized")
		return nil
	}

	unlock, err := t.locker.Lock(ctx, "photo:"+strconv.FormatInt(photoID, 10))
	if errors.Is(err, lock.ErrLocked) {
		return apperr.Conflict(op, ErrInProgress)
	}
	if err != nil {
		return apperr.Transport(op, fmt.Errorf("acquire lock: %w", err))
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to release photo lock", "error", err)
		}
	}()

	if err := t.photos.TransitionStatus(ctx, photoID, domain.StatusProcessing); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			logger.Warn("photo vanished before processing")
			return nil
		case errors.Is(err, store.ErrStatusConflict):
			// Another run finished between the read above and the lock.
			logger.Info("photo no longer eligible for recognition", "error", err)
			return nil
		default:
			return apperr.Persistence(op, err)
		}
	}
	logger.Info("recognition started")

	started := time.Now()
	itemCount, err := t.recognize(ctx, photo)
	t.metrics.ObserveRecognition(started, err)
	if err != nil {
		logger.Error("recognition failed", "error", err, "kind", apperr.KindOf(err).String())
		t.markFailed(context.WithoutCancel(ctx), photoID, logger)
		return err
	}

	logger.Info("recognition completed", "items", itemCount, "duration", time.Since(started))
	return nil
}

func (t *Task) recognize(ctx context.Context, photo *domain.Photo) (int, error) {
	const op = "recognition.recognize"

	f, err := t.materialize(ctx, photo)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = f.Close()
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.logger.Warn("failed to remove temp image", "path", f.Name(), "error", err)
		}
	}()

	result, err := t.analyzer.Analyze(ctx, f, photo.ContentType)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.Analysis(op, err)
		}
		return 0, err
	}

	items := buildItems(photo, result.Items)
	if err := t.photos.CompleteRecognition(ctx, photo.ID, items, result.RawResponse); err != nil {
		return 0, apperr.Persistence(op, err)
	}
	return len(items), nil
}

// materialize copies the stored image into a temp file positioned at its
// start. The caller removes it.
func (t *Task) materialize(ctx context.Context, photo *domain.Photo) (*os.File, error) {
	const op = "recognition.materialize"

	rc, _, err := t.media.Get(ctx, photo.ImageKey)
	if errors.Is(err, photostore.ErrNotFound) {
		return nil, apperr.NotFound(op, fmt.Errorf("image %s: %w", photo.ImageKey, err))
	}
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	defer func() { _ = rc.Close() }()

	f, err := os.CreateTemp(t.tempDir, "fridgecam-*"+photostore.MimeTypeToExt(photo.ContentType))
	if err != nil {
		return nil, apperr.Persistence(op, fmt.Errorf("create temp file: %w", err))
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}
	if _, err := io.Copy(f, rc); err != nil {
		cleanup()
		return nil, apperr.Persistence(op, fmt.Errorf("copy image: %w", err))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, apperr.Persistence(op, fmt.Errorf("rewind image: %w", err))
	}
	return f, nil
}

func (t *Task) markFailed(ctx context.Context, photoID int64, logger *slog.Logger) {
	err := t.photos.TransitionStatus(ctx, photoID, domain.StatusFailed)
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return
	}
	logger.Warn("failed to mark photo failed", "error", err)
}

func buildItems(photo *domain.Photo, detected []vision.DetectedItem) []*domain.RecognizedItem {
	items := make([]*domain.RecognizedItem, 0, len(detected))
	placement := photo.PlacementDate()
	for _, d := range detected {
		items = append(items, &domain.RecognizedItem{
			Name:                truncate(d.Name, maxNameLen),
			Quantity:            truncate(d.Quantity, maxQuantityLen),
			EstimatedExpiryInfo: d.EstimatedExpiryInfo,
			PlacementDate:       placement,
			OwnerID:             photo.UploadedBy,
		})
	}
	return items
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
