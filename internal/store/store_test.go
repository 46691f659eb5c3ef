package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vbonduro/fridgecam/internal/db"
	"github.com/vbonduro/fridgecam/internal/domain"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(d) })
	return d
}

func createTestUser(t *testing.T, d *gorm.DB, username string) *domain.User {
	t.Helper()
	user, err := NewUserStore(d).Create(context.Background(), username, "hash", false)
	require.NoError(t, err)
	return user
}

func createTestDevice(t *testing.T, d *gorm.DB, externalID string) *domain.Device {
	t.Helper()
	url := "http://camera.local"
	device, err := NewDeviceStore(d).Create(context.Background(), &domain.Device{
		ExternalID: externalID,
		Name:       "Fridge " + externalID,
		APIURL:     &url,
		IsActive:   true,
	})
	require.NoError(t, err)
	return device
}

func createTestPhoto(t *testing.T, d *gorm.DB, deviceID int64) *domain.Photo {
	t.Helper()
	photo, err := NewPhotoStore(d).Create(context.Background(), &domain.Photo{
		DeviceID:    deviceID,
		ImageKey:    "fridge_photos/2024/01/01/cam_1.jpg",
		CapturedAt:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		ContentType: "image/jpeg",
	})
	require.NoError(t, err)
	return photo
}
