package store

import (
	"context"
	"fmt"

	"github.com/vbonduro/fridgecam/internal/domain"
	"gorm.io/gorm"
)

type OperationLogStore struct {
	db *gorm.DB
}

func NewOperationLogStore(db *gorm.DB) *OperationLogStore {
	return &OperationLogStore{db: db}
}

func (s *OperationLogStore) Create(ctx context.Context, log *domain.OperationLog) (*domain.OperationLog, error) {
	if log.StartedAt.IsZero() {
		log.StartedAt = s.db.NowFunc()
	}
	log.PhotoID = nil
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return nil, fmt.Errorf("failed to create operation log: %w", err)
	}
	return log, nil
}

func (s *OperationLogStore) GetByID(ctx context.Context, id int64) (*domain.OperationLog, error) {
	var log domain.OperationLog
	err := s.db.WithContext(ctx).First(&log, id).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation log: %w", err)
	}
	return &log, nil
}

// AttachPhoto links photoID to the log. A log is linked at most once; a
// second attach fails with ErrStatusConflict.
func (s *OperationLogStore) AttachPhoto(ctx context.Context, logID, photoID int64) error {
	result := s.db.WithContext(ctx).Model(&domain.OperationLog{}).
		Where("id = ? AND photo_id IS NULL", logID).
		Update("photo_id", photoID)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return fmt.Errorf("photo %d already linked: %w", photoID, ErrDuplicate)
		}
		return fmt.Errorf("failed to attach photo: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	log, err := s.GetByID(ctx, logID)
	if err != nil {
		return err
	}
	if log == nil {
		return fmt.Errorf("operation log %d: %w", logID, ErrNotFound)
	}
	return fmt.Errorf("operation log %d already has a photo: %w", logID, ErrStatusConflict)
}

// ListByDevice returns the device's logs, newest first.
func (s *OperationLogStore) ListByDevice(ctx context.Context, deviceID int64, limit int) ([]*domain.OperationLog, error) {
	q := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var logs []*domain.OperationLog
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list operation logs: %w", err)
	}
	return logs, nil
}
