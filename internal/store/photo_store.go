package store

import (
	"context"
	"fmt"
	"time"

	"github.com/vbonduro/fridgecam/internal/domain"
	"gorm.io/gorm"
)

const defaultItemBatchSize = 100

type PhotoStore struct {
	db            *gorm.DB
	itemBatchSize int
}

type PhotoStoreOption func(*PhotoStore)

// WithItemBatchSize sets how many recognized items are written per INSERT
// when a recognition result is stored.
func WithItemBatchSize(n int) PhotoStoreOption {
	return func(s *PhotoStore) {
		if n > 0 {
			s.itemBatchSize = n
		}
	}
}

func NewPhotoStore(db *gorm.DB, opts ...PhotoStoreOption) *PhotoStore {
	s := &PhotoStore{db: db, itemBatchSize: defaultItemBatchSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PhotoFilter narrows List. Zero values mean "any".
type PhotoFilter struct {
	DeviceID int64
	Status   domain.RecognitionStatus
	Limit    int
}

// Create inserts a photo. A new photo always starts out pending.
func (s *PhotoStore) Create(ctx context.Context, photo *domain.Photo) (*domain.Photo, error) {
	photo.Status = domain.StatusPending
	if photo.UploadedAt.IsZero() {
		photo.UploadedAt = s.db.NowFunc()
	}
	photo.StatusUpdatedAt = photo.UploadedAt.UTC()
	if photo.ContentType == "" {
		photo.ContentType = "image/jpeg"
	}
	if err := s.db.WithContext(ctx).Create(photo).Error; err != nil {
		return nil, fmt.Errorf("failed to create photo: %w", err)
	}
	return photo, nil
}

func (s *PhotoStore) GetByID(ctx context.Context, id int64) (*domain.Photo, error) {
	var photo domain.Photo
	err := s.db.WithContext(ctx).First(&photo, id).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return &photo, nil
}

func (s *PhotoStore) List(ctx context.Context, filter PhotoFilter) ([]*domain.Photo, error) {
	q := s.db.WithContext(ctx).Order("uploaded_at DESC, id DESC")
	if filter.DeviceID != 0 {
		q = q.Where("device_id = ?", filter.DeviceID)
	}
	if filter.Status != "" {
		q = q.Where("recognition_status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var photos []*domain.Photo
	if err := q.Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return photos, nil
}

// ListStale returns photos that have been pending since before
// pendingBefore or processing since before processingBefore, least recently
// changed first. A processing photo that old was abandoned by its worker.
func (s *PhotoStore) ListStale(ctx context.Context, pendingBefore, processingBefore time.Time, limit int) ([]*domain.Photo, error) {
	q := s.db.WithContext(ctx).
		Where("(recognition_status = ? AND status_updated_at < ?) OR (recognition_status = ? AND status_updated_at < ?)",
			domain.StatusPending, pendingBefore.UTC(), domain.StatusProcessing, processingBefore.UTC()).
		Order("status_updated_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var photos []*domain.Photo
	if err := q.Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale photos: %w", err)
	}
	return photos, nil
}

// TransitionStatus moves the photo to status to, but only if its current
// status allows it. The check and the write are a single UPDATE so two
// workers cannot both claim the same photo from a pending state.
func (s *PhotoStore) TransitionStatus(ctx context.Context, id int64, to domain.RecognitionStatus) error {
	from := domain.PredecessorsOf(to)
	if len(from) == 0 {
		return fmt.Errorf("photo %d to %s: %w", id, to, ErrStatusConflict)
	}
	result := s.db.WithContext(ctx).Model(&domain.Photo{}).
		Where("id = ? AND recognition_status IN ?", id, from).
		Updates(map[string]any{
			"recognition_status": to,
			"status_updated_at":  s.db.NowFunc(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update photo status: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	photo, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if photo == nil {
		return fmt.Errorf("photo %d: %w", id, ErrNotFound)
	}
	return fmt.Errorf("photo %d is %s, cannot move to %s: %w", id, photo.Status, to, ErrStatusConflict)
}

// CompleteRecognition replaces the photo's recognized items with items,
// stores the raw model reply and marks the photo completed. Either all of
// it happens or none of it does. The photo must be processing.
func (s *PhotoStore) CompleteRecognition(ctx context.Context, photoID int64, items []*domain.RecognizedItem, rawResponse string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("photo_id = ?", photoID).Delete(&domain.RecognizedItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear items: %w", err)
		}

		if len(items) > 0 {
			now := tx.NowFunc()
			for _, item := range items {
				item.ID = 0
				item.PhotoID = photoID
				if item.AddedAt.IsZero() {
					item.AddedAt = now
				}
			}
			if err := tx.CreateInBatches(items, s.itemBatchSize).Error; err != nil {
				return fmt.Errorf("failed to insert items: %w", err)
			}
		}

		result := tx.Model(&domain.Photo{}).
			Where("id = ? AND recognition_status = ?", photoID, domain.StatusProcessing).
			Updates(map[string]any{
				"recognition_status": domain.StatusCompleted,
				"raw_response":       rawResponse,
				"status_updated_at":  tx.NowFunc(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to complete photo: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("photo %d is not processing: %w", photoID, ErrStatusConflict)
		}
		return nil
	})
	if err != nil {
		for _, item := range items {
			item.ID = 0
		}
	}
	return err
}

// Delete removes the photo row and returns it so the caller can remove the
// stored image. Recognized items cascade.
func (s *PhotoStore) Delete(ctx context.Context, id int64) (*domain.Photo, error) {
	photo, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if photo == nil {
		return nil, fmt.Errorf("photo %d: %w", id, ErrNotFound)
	}
	if err := s.db.WithContext(ctx).Delete(&domain.Photo{}, id).Error; err != nil {
		return nil, fmt.Errorf("failed to delete photo: %w", err)
	}
	return photo, nil
}
