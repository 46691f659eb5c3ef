package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/domain"
	"github.com/vbonduro/fridgecam/internal/photostore"
	"github.com/vbonduro/fridgecam/internal/store"
)

const defaultListLimit = 100

// photoRepository is the subset of store.PhotoStore that InventoryService requires.
type photoRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Photo, error)
	List(ctx context.Context, filter store.PhotoFilter) ([]*domain.Photo, error)
}

// itemRepository is the subset of store.ItemStore that InventoryService requires.
type itemRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.RecognizedItem, error)
	ListByPhotoID(ctx context.Context, photoID int64) ([]*domain.RecognizedItem, error)
	List(ctx context.Context, filter store.ItemFilter) ([]*domain.RecognizedItem, error)
	Update(ctx context.Context, item *domain.RecognizedItem) error
	Delete(ctx context.Context, id int64) error
}

type logLister interface {
	ListByDevice(ctx context.Context, deviceID int64, limit int) ([]*domain.OperationLog, error)
}

type InventoryService struct {
	photos photoRepository
	items  itemRepository
	logs   logLister
	media  photostore.PhotoStore
	logger *slog.Logger
}

func NewInventoryService(
	photos photoRepository,
	items itemRepository,
	logs logLister,
	media photostore.PhotoStore,
	logger *slog.Logger,
) *InventoryService {
	return &InventoryService{
		photos: photos,
		items:  items,
		logs:   logs,
		media:  media,
		logger: logger,
	}
}

func (s *InventoryService) ListPhotos(ctx context.Context, filter store.PhotoFilter) ([]*domain.Photo, error) {
	const op = "service.ListPhotos"
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid(op, "unknown status %q", filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	photos, err := s.photos.List(ctx, filter)
	if err != nil {
		return nil, storeError(op, err)
	}
	return photos, nil
}

// PhotoDetail bundles a photo with the items recognized in it.
type PhotoDetail struct {
	*domain.Photo
	Items []*domain.RecognizedItem
}

func (s *InventoryService) GetPhoto(ctx context.Context, id int64) (*PhotoDetail, error) {
	const op = "service.GetPhoto"
	photo, err := s.photo(ctx, op, id)
	if err != nil {
		return nil, err
	}
	items, err := s.items.ListByPhotoID(ctx, id)
	if err != nil {
		return nil, storeError(op, err)
	}
	return &PhotoDetail{Photo: photo, Items: items}, nil
}

// OpenImage returns the stored image of a photo. The caller closes it.
func (s *InventoryService) OpenImage(ctx context.Context, id int64) (io.ReadCloser, string, error) {
	const op = "service.OpenImage"
	photo, err := s.photo(ctx, op, id)
	if err != nil {
		return nil, "", err
	}
	rc, mimeType, err := s.media.Get(ctx, photo.ImageKey)
	if errors.Is(err, photostore.ErrNotFound) {
		return nil, "", apperr.NotFound(op, err)
	}
	if err != nil {
		return nil, "", apperr.Persistence(op, err)
	}
	return rc, mimeType, nil
}

func (s *InventoryService) photo(ctx context.Context, op string, id int64) (*domain.Photo, error) {
	photo, err := s.photos.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(op, err)
	}
	if photo == nil {
		return nil, notFound(op, "photo %d not found", id)
	}
	return photo, nil
}

// ItemQuery selects items for ListItems.
type ItemQuery struct {
	DeviceID int64
	Mine     bool
	Query    string
	Limit    int
}

func (s *InventoryService) ListItems(ctx context.Context, actor Actor, q ItemQuery) ([]*domain.RecognizedItem, error) {
	filter := store.ItemFilter{DeviceID: q.DeviceID, Query: q.Query, Limit: q.Limit}
	if q.Mine {
		filter.OwnerID = actor.UserID
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	items, err := s.items.List(ctx, filter)
	if err != nil {
		return nil, storeError("service.ListItems", err)
	}
	return items, nil
}

func (s *InventoryService) GetItem(ctx context.Context, id int64) (*domain.RecognizedItem, error) {
	return s.item(ctx, "service.GetItem", id)
}

// ItemUpdate carries the user-editable fields of an item.
type ItemUpdate struct {
	Name                string
	Quantity            string
	EstimatedExpiryInfo string
	Notes               string
}

// UpdateItem edits an item. Only its owner or staff may do so.
func (s *InventoryService) UpdateItem(ctx context.Context, actor Actor, id int64, upd ItemUpdate) (*domain.RecognizedItem, error) {
	const op = "service.UpdateItem"

	item, err := s.editableItem(ctx, op, actor, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(upd.Name)
	if name == "" {
		return nil, invalid(op, "item name is required")
	}
	if utf8.RuneCountInString(name) > 100 {
		return nil, invalid(op, "item name must be at most 100 characters")
	}
	if utf8.RuneCountInString(upd.Quantity) > 50 {
		return nil, invalid(op, "quantity must be at most 50 characters")
	}

	item.Name = name
	item.Quantity = strings.TrimSpace(upd.Quantity)
	item.EstimatedExpiryInfo = strings.TrimSpace(upd.EstimatedExpiryInfo)
	item.Notes = strings.TrimSpace(upd.Notes)
	if err := s.items.Update(ctx, item); err != nil {
		return nil, storeError(op, err)
	}
	s.logger.Info("item updated", "item_id", id, "user_id", actor.UserID)
	return item, nil
}

func (s *InventoryService) DeleteItem(ctx context.Context, actor Actor, id int64) error {
	const op = "service.DeleteItem"
	if _, err := s.editableItem(ctx, op, actor, id); err != nil {
		return err
	}
	if err := s.items.Delete(ctx, id); err != nil {
		return storeError(op, err)
	}
	s.logger.Info("item deleted", "item_id", id, "user_id", actor.UserID)
	return nil
}

func (s *InventoryService) item(ctx context.Context, op string, id int64) (*domain.RecognizedItem, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(op, err)
	}
	if item == nil {
		return nil, notFound(op, "item %d not found", id)
	}
	return item, nil
}

func (s *InventoryService) editableItem(ctx context.Context, op string, actor Actor, id int64) (*domain.RecognizedItem, error) {
	item, err := s.item(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if actor.IsStaff || (item.OwnerID != nil && *item.OwnerID == actor.UserID) {
		return item, nil
	}
	return nil, forbidden(op)
}

// ListLogs returns a device's open-fridge history, newest first. Non-staff
// users see only their own entries.
func (s *InventoryService) ListLogs(ctx context.Context, actor Actor, deviceID int64, limit int) ([]*domain.OperationLog, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	logs, err := s.logs.ListByDevice(ctx, deviceID, limit)
	if err != nil {
		return nil, storeError("service.ListLogs", err)
	}
	if actor.IsStaff {
		return logs, nil
	}
	own := logs[:0]
	for _, l := range logs {
		if l.UserID == actor.UserID {
			own = append(own, l)
		}
	}
	return own, nil
}
