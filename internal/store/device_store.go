package store

import (
	"context"
	"fmt"

	"github.com/vbonduro/fridgecam/internal/domain"
	"gorm.io/gorm"
)

type DeviceStore struct {
	db *gorm.DB
}

func NewDeviceStore(db *gorm.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

func (s *DeviceStore) Create(ctx context.Context, device *domain.Device) (*domain.Device, error) {
	if err := s.db.WithContext(ctx).Create(device).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("device %q: %w", device.ExternalID, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	return device, nil
}

func (s *DeviceStore) GetByID(ctx context.Context, id int64) (*domain.Device, error) {
	var device domain.Device
	err := s.db.WithContext(ctx).First(&device, id).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &device, nil
}

func (s *DeviceStore) GetByExternalID(ctx context.Context, externalID string) (*domain.Device, error) {
	var device domain.Device
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&device).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &device, nil
}

func (s *DeviceStore) List(ctx context.Context, activeOnly bool) ([]*domain.Device, error) {
	q := s.db.WithContext(ctx).Order("name ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var devices []*domain.Device
	if err := q.Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// Update overwrites the editable fields of the device with the given id.
func (s *DeviceStore) Update(ctx context.Context, device *domain.Device) error {
	result := s.db.WithContext(ctx).Model(&domain.Device{}).Where("id = ?", device.ID).Updates(map[string]any{
		"external_id":          device.ExternalID,
		"name":                 device.Name,
		"api_url":              device.APIURL,
		"location_description": device.LocationDescription,
		"is_active":            device.IsActive,
	})
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return fmt.Errorf("device %q: %w", device.ExternalID, ErrDuplicate)
		}
		return fmt.Errorf("failed to update device: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("device %d: %w", device.ID, ErrNotFound)
	}
	return nil
}

// Delete removes the device; photos, items and logs cascade.
func (s *DeviceStore) Delete(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&domain.Device{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete device: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	return nil
}
