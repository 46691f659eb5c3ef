package service

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/domain"
	"github.com/vbonduro/fridgecam/internal/store"
	"gorm.io/gorm"
)

type inventoryFixture struct {
	db     *gorm.DB
	svc    *InventoryService
	media  *stubPhotoStore
	photos *store.PhotoStore
	logs   *store.OperationLogStore
	alice  *domain.User
	bob    *domain.User
	device *domain.Device
	photo  *domain.Photo
}

// newInventoryFixture stores one recognized photo with two items owned by
// alice.
func newInventoryFixture(t *testing.T) *inventoryFixture {
	t.Helper()
	d := openTestDB(t)
	ctx := context.Background()
	f := &inventoryFixture{
		db:     d,
		media:  newStubPhotoStore(),
		photos: store.NewPhotoStore(d),
		logs:   store.NewOperationLogStore(d),
		alice:  createUser(t, d, "alice", false),
		bob:    createUser(t, d, "bob", false),
		device: createDevice(t, d, "cam-1", true),
	}
	f.svc = NewInventoryService(f.photos, store.NewItemStore(d), f.logs, f.media, discardLogger())

	key, err := f.media.Save(ctx, "fridge_photos/2024/05/06/cam-1", "image/png", bytes.NewReader([]byte("png-bytes")))
	require.NoError(t, err)
	f.photo, err = f.photos.Create(ctx, &domain.Photo{
		DeviceID:    f.device.ID,
		ImageKey:    key,
		CapturedAt:  time.Date(2024, 5, 6, 7, 0, 0, 0, time.UTC),
		ContentType: "image/png",
		UploadedBy:  &f.alice.ID,
	})
	require.NoError(t, err)
	require.NoError(t, f.photos.TransitionStatus(ctx, f.photo.ID, domain.StatusProcessing))
	placed := f.photo.PlacementDate()
	require.NoError(t, f.photos.CompleteRecognition(ctx, f.photo.ID, []*domain.RecognizedItem{
		{Name: "Milk", Quantity: "1 carton", PlacementDate: placed, OwnerID: &f.alice.ID},
		{Name: "Cheddar", Quantity: "200 g", PlacementDate: placed, OwnerID: &f.alice.ID},
	}, "raw"))
	return f
}

func (f *inventoryFixture) itemNamed(t *testing.T, name string) *domain.RecognizedItem {
	t.Helper()
	items, err := f.svc.ListItems(context.Background(), Actor{UserID: f.alice.ID}, ItemQuery{Query: name})
	require.NoError(t, err)
	require.Len(t, items, 1)
	return items[0]
}

func TestInventory_GetPhotoWithItems(t *testing.T) {
	f := newInventoryFixture(t)

	detail, err := f.svc.GetPhoto(context.Background(), f.photo.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, detail.Status)
	assert.Len(t, detail.Items, 2)

	_, err = f.svc.GetPhoto(context.Background(), 9999)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestInventory_ListPhotos(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	photos, err := f.svc.ListPhotos(ctx, store.PhotoFilter{DeviceID: f.device.ID})
	require.NoError(t, err)
	assert.Len(t, photos, 1)

	photos, err = f.svc.ListPhotos(ctx, store.PhotoFilter{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Empty(t, photos)

	_, err = f.svc.ListPhotos(ctx, store.PhotoFilter{Status: "bogus"})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestInventory_OpenImage(t *testing.T) {
	f := newInventoryFixture(t)

	rc, mimeType, err := f.svc.OpenImage(context.Background(), f.photo.ID)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", mimeType)

	require.NoError(t, f.media.Delete(context.Background(), f.photo.ImageKey))
	_, _, err = f.svc.OpenImage(context.Background(), f.photo.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestInventory_ListItemsFilters(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()

	mine, err := f.svc.ListItems(ctx, Actor{UserID: f.alice.ID}, ItemQuery{Mine: true})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	bobs, err := f.svc.ListItems(ctx, Actor{UserID: f.bob.ID}, ItemQuery{Mine: true})
	require.NoError(t, err)
	assert.Empty(t, bobs)

	all, err := f.svc.ListItems(ctx, Actor{UserID: f.bob.ID}, ItemQuery{DeviceID: f.device.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestInventory_UpdateItem(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()
	milk := f.itemNamed(t, "milk")

	updated, err := f.svc.UpdateItem(ctx, Actor{UserID: f.alice.ID}, milk.ID, ItemUpdate{
		Name: "Oat milk", Quantity: "half", EstimatedExpiryInfo: "2-3 days", Notes: "opened",
	})
	require.NoError(t, err)
	assert.Equal(t, "Oat milk", updated.Name)

	got, err := f.svc.GetItem(ctx, milk.ID)
	require.NoError(t, err)
	assert.Equal(t, "half", got.Quantity)
	assert.Equal(t, "opened", got.Notes)
	assert.Equal(t, "2-3 days", got.EstimatedExpiryInfo)
}

func TestInventory_UpdateItemPermissions(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()
	milk := f.itemNamed(t, "milk")
	upd := ItemUpdate{Name: "Milk"}

	_, err := f.svc.UpdateItem(ctx, Actor{UserID: f.bob.ID}, milk.ID, upd)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = f.svc.UpdateItem(ctx, Actor{UserID: f.bob.ID, IsStaff: true}, milk.ID, upd)
	assert.NoError(t, err)

	_, err = f.svc.UpdateItem(ctx, Actor{UserID: f.alice.ID}, milk.ID, ItemUpdate{Name: "   "})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestInventory_DeleteItem(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()
	cheddar := f.itemNamed(t, "cheddar")

	err := f.svc.DeleteItem(ctx, Actor{UserID: f.bob.ID}, cheddar.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	require.NoError(t, f.svc.DeleteItem(ctx, Actor{UserID: f.alice.ID}, cheddar.ID))
	_, err = f.svc.GetItem(ctx, cheddar.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestInventory_ListLogs(t *testing.T) {
	f := newInventoryFixture(t)
	ctx := context.Background()
	for _, u := range []*domain.User{f.alice, f.bob} {
		_, err := f.logs.Create(ctx, &domain.OperationLog{
			UserID: u.ID, DeviceID: f.device.ID, OperationType: domain.OperationPutIn,
		})
		require.NoError(t, err)
	}

	all, err := f.svc.ListLogs(ctx, Actor{UserID: f.bob.ID, IsStaff: true}, f.device.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := f.svc.ListLogs(ctx, Actor{UserID: f.alice.ID}, f.device.ID, 0)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, f.alice.ID, own[0].UserID)
}
