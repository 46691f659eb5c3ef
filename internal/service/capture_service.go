package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/device"
	"github.com/vbonduro/fridgecam/internal/domain"
	"github.com/vbonduro/fridgecam/internal/metrics"
	"github.com/vbonduro/fridgecam/internal/photostore"
	"github.com/vbonduro/fridgecam/internal/store"
)

// deviceGetter is the subset of store.DeviceStore that CaptureService requires.
type deviceGetter interface {
	GetByID(ctx context.Context, id int64) (*domain.Device, error)
}

// capturePhotoRepository is the subset of store.PhotoStore that CaptureService requires.
type capturePhotoRepository interface {
	Create(ctx context.Context, photo *domain.Photo) (*domain.Photo, error)
	GetByID(ctx context.Context, id int64) (*domain.Photo, error)
}

// operationLogRepository is the subset of store.OperationLogStore that CaptureService requires.
type operationLogRepository interface {
	Create(ctx context.Context, log *domain.OperationLog) (*domain.OperationLog, error)
	AttachPhoto(ctx context.Context, logID, photoID int64) error
}

type photoFetcher interface {
	FetchPhoto(ctx context.Context, d *domain.Device) (*device.Capture, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, photoID int64) error
}

type CaptureService struct {
	devices deviceGetter
	photos  capturePhotoRepository
	logs    operationLogRepository
	fetcher photoFetcher
	media   photostore.PhotoStore
	queue   enqueuer
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger
}

func NewCaptureService(
	devices deviceGetter,
	photos capturePhotoRepository,
	logs operationLogRepository,
	fetcher photoFetcher,
	media photostore.PhotoStore,
	queue enqueuer,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CaptureService {
	return &CaptureService{
		devices: devices,
		photos:  photos,
		logs:    logs,
		fetcher: fetcher,
		media:   media,
		queue:   queue,
		metrics: m,
		now:     time.Now,
		logger:  logger,
	}
}

// TriggerCapture pulls a still from the device, stores it and queues it for
// recognition. uploadedBy may be nil for unattended captures.
func (s *CaptureService) TriggerCapture(ctx context.Context, deviceID int64, uploadedBy *int64) (*domain.Photo, error) {
	const op = "service.TriggerCapture"

	dev, err := s.activeDevice(ctx, op, deviceID)
	if err != nil {
		return nil, err
	}
	photo, err := s.capture(ctx, dev, uploadedBy)
	s.metrics.ObserveCapture(err)
	if err != nil {
		s.logger.Error("capture failed", "device", dev.ExternalID, "error", err, "kind", apperr.KindOf(err).String())
		return nil, err
	}
	s.enqueue(ctx, photo.ID)
	return photo, nil
}

// OpenResult is the outcome of an open-fridge operation.
type OpenResult struct {
	Log   *domain.OperationLog
	Photo *domain.Photo
}

// OpenFridge records that the user opened the fridge, then captures a photo
// and links it to the log entry. The log entry survives a failed capture.
func (s *CaptureService) OpenFridge(ctx context.Context, actor Actor, deviceID int64, opType, notes string) (*OpenResult, error) {
	const op = "service.OpenFridge"

	operation, err := domain.ParseOperationType(opType)
	if err != nil {
		return nil, apperr.Invalid(op, err)
	}
	dev, err := s.activeDevice(ctx, op, deviceID)
	if err != nil {
		return nil, err
	}

	entry, err := s.logs.Create(ctx, &domain.OperationLog{
		UserID:        actor.UserID,
		DeviceID:      dev.ID,
		OperationType: operation,
		Notes:         strings.TrimSpace(notes),
	})
	if err != nil {
		return nil, storeError(op, err)
	}
	result := &OpenResult{Log: entry}
	s.logger.Info("fridge opened", "device", dev.ExternalID, "user_id", actor.UserID, "operation", operation, "log_id", entry.ID)

	uploadedBy := actor.UserID
	photo, err := s.capture(ctx, dev, &uploadedBy)
	s.metrics.ObserveCapture(err)
	if err != nil {
		s.logger.Error("capture failed", "device", dev.ExternalID, "log_id", entry.ID, "error", err)
		return result, err
	}
	result.Photo = photo

	if err := s.logs.AttachPhoto(ctx, entry.ID, photo.ID); err != nil {
		return result, storeError(op, err)
	}
	entry.PhotoID = &photo.ID

	s.enqueue(ctx, photo.ID)
	return result, nil
}

// Recognize queues a photo that is not completed for another recognition
// run. A processing photo is accepted so an operator can reclaim one whose
// worker died; if the worker is still alive the per-photo lock holds the new
// run back until it finishes.
func (s *CaptureService) Recognize(ctx context.Context, photoID int64) (*domain.Photo, error) {
	const op = "service.Recognize"

	photo, err := s.photos.GetByID(ctx, photoID)
	if err != nil {
		return nil, storeError(op, err)
	}
	if photo == nil {
		return nil, notFound(op, "photo %d not found", photoID)
	}
	switch photo.Status {
	case domain.StatusPending, domain.StatusProcessing, domain.StatusFailed:
	default:
		return nil, apperr.Errorf(apperr.KindConflict, op, "photo %d is %s", photoID, photo.Status)
	}
	if err := s.queue.Enqueue(ctx, photoID); err != nil {
		return nil, apperr.Transport(op, fmt.Errorf("enqueue photo %d: %w", photoID, err))
	}
	s.logger.Info("photo queued for recognition", "photo_id", photoID, "status", photo.Status)
	return photo, nil
}

func (s *CaptureService) activeDevice(ctx context.Context, op string, deviceID int64) (*domain.Device, error) {
	dev, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, storeError(op, err)
	}
	if dev == nil {
		return nil, notFound(op, "device %d not found", deviceID)
	}
	if !dev.IsActive {
		return nil, apperr.Errorf(apperr.KindConfiguration, op, "device %s is not active", dev.ExternalID)
	}
	return dev, nil
}

func (s *CaptureService) capture(ctx context.Context, dev *domain.Device, uploadedBy *int64) (*domain.Photo, error) {
	const op = "service.capture"
	logger := s.logger.With("device", dev.ExternalID)

	capture, err := s.fetcher.FetchPhoto(ctx, dev)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(capture.ContentType, "image/") {
		return nil, apperr.Errorf(apperr.KindDataFormat, op, "content type %q is not an image", capture.ContentType)
	}
	image, err := device.DecodeImage(capture.ImageBase64)
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, apperr.Errorf(apperr.KindDataFormat, op, "device returned an empty image")
	}
	capturedAt, err := device.CaptureTime(capture.Timestamp, image)
	if err != nil {
		return nil, err
	}
	logger.Debug("capture decoded", "bytes", len(image), "content_type", capture.ContentType, "captured_at", capturedAt)

	now := s.now().UTC()
	key, err := s.media.Save(ctx, photostore.CapturePrefix(now, dev.ExternalID), capture.ContentType, bytes.NewReader(image))
	if err != nil {
		return nil, apperr.Persistence(op, fmt.Errorf("save image: %w", err))
	}

	photo, err := s.photos.Create(ctx, &domain.Photo{
		DeviceID:    dev.ID,
		ImageKey:    key,
		CapturedAt:  capturedAt,
		ContentType: capture.ContentType,
		UploadedBy:  uploadedBy,
		UploadedAt:  now,
	})
	if err != nil {
		if derr := s.media.Delete(context.WithoutCancel(ctx), key); derr != nil && !errors.Is(derr, photostore.ErrNotFound) {
			logger.Warn("failed to remove orphaned image", "key", key, "error", derr)
		}
		return nil, storeError(op, err)
	}
	logger.Info("photo captured", "photo_id", photo.ID, "key", key)
	return photo, nil
}

// enqueue is best effort: a photo left pending is picked up by the sweeper.
func (s *CaptureService) enqueue(ctx context.Context, photoID int64) {
	if err := s.queue.Enqueue(ctx, photoID); err != nil {
		s.logger.Warn("failed to enqueue recognition, leaving photo pending", "photo_id", photoID, "error", err)
	}
}

var _ photoFetcher = (*device.Client)(nil)
var _ capturePhotoRepository = (*store.PhotoStore)(nil)
