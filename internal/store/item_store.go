package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/vbonduro/fridgecam/internal/domain"
	"gorm.io/gorm"
)

type ItemStore struct {
	db *gorm.DB
}

func NewItemStore(db *gorm.DB) *ItemStore {
	return &ItemStore{db: db}
}

// ItemFilter narrows List. Zero values mean "any".
type ItemFilter struct {
	DeviceID int64
	PhotoID  int64
	OwnerID  int64
	// Query matches a substring of the item name, case-insensitively.
	Query string
	Limit int
}

func (s *ItemStore) GetByID(ctx context.Context, id int64) (*domain.RecognizedItem, error) {
	var item domain.RecognizedItem
	err := s.db.WithContext(ctx).First(&item, id).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

func (s *ItemStore) ListByPhotoID(ctx context.Context, photoID int64) ([]*domain.RecognizedItem, error) {
	return s.List(ctx, ItemFilter{PhotoID: photoID})
}

// List returns items newest first.
func (s *ItemStore) List(ctx context.Context, filter ItemFilter) ([]*domain.RecognizedItem, error) {
	q := s.db.WithContext(ctx).Model(&domain.RecognizedItem{}).
		Select("recognized_items.*").
		Order("recognized_items.added_at DESC, recognized_items.id DESC")
	if filter.DeviceID != 0 {
		q = q.Joins("JOIN photos ON photos.id = recognized_items.photo_id").
			Where("photos.device_id = ?", filter.DeviceID)
	}
	if filter.PhotoID != 0 {
		q = q.Where("recognized_items.photo_id = ?", filter.PhotoID)
	}
	if filter.OwnerID != 0 {
		q = q.Where("recognized_items.owner_id = ?", filter.OwnerID)
	}
	if query := strings.TrimSpace(filter.Query); query != "" {
		q = q.Where("LOWER(recognized_items.name) LIKE ?", "%"+strings.ToLower(query)+"%")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var items []*domain.RecognizedItem
	if err := q.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

// Update writes the user-editable fields of an item.
func (s *ItemStore) Update(ctx context.Context, item *domain.RecognizedItem) error {
	result := s.db.WithContext(ctx).Model(&domain.RecognizedItem{}).Where("id = ?", item.ID).Updates(map[string]any{
		"name":                  item.Name,
		"quantity":              item.Quantity,
		"estimated_expiry_info": item.EstimatedExpiryInfo,
		"owner_id":              item.OwnerID,
		"notes":                 item.Notes,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("item %d: %w", item.ID, ErrNotFound)
	}
	return nil
}

func (s *ItemStore) Delete(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&domain.RecognizedItem{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return nil
}
