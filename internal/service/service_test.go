package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/fridgecam/internal/db"
	"github.com/vbonduro/fridgecam/internal/device"
	"github.com/vbonduro/fridgecam/internal/domain"
	"github.com/vbonduro/fridgecam/internal/photostore"
	"github.com/vbonduro/fridgecam/internal/store"
	"gorm.io/gorm"
)

const onePixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(d) })
	return d
}

// stubPhotoStore is a minimal in-memory photostore.PhotoStore for tests.
type stubPhotoStore struct {
	mu      sync.Mutex
	saved   map[string][]byte
	saveErr error
	deleted []string
}

func newStubPhotoStore() *stubPhotoStore {
	return &stubPhotoStore{saved: make(map[string][]byte)}
}

func (s *stubPhotoStore) Save(_ context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := prefix + "_photo" + photostore.MimeTypeToExt(mimeType)
	s.saved[key] = data
	return key, nil
}

func (s *stubPhotoStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.saved[key]
	if !ok {
		return nil, "", photostore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), photostore.ExtToMimeType(key), nil
}

func (s *stubPhotoStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *stubPhotoStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.saved))
	for k := range s.saved {
		keys = append(keys, k)
	}
	return keys
}

type mockFetcher struct{ mock.Mock }

func (m *mockFetcher) FetchPhoto(ctx context.Context, d *domain.Device) (*device.Capture, error) {
	args := m.Called(ctx, d)
	c, _ := args.Get(0).(*device.Capture)
	return c, args.Error(1)
}

type stubQueue struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (q *stubQueue) Enqueue(_ context.Context, photoID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, photoID)
	return nil
}

func createUser(t *testing.T, d *gorm.DB, username string, staff bool) *domain.User {
	t.Helper()
	u, err := store.NewUserStore(d).Create(context.Background(), username, "hash", staff)
	require.NoError(t, err)
	return u
}

func createDevice(t *testing.T, d *gorm.DB, externalID string, active bool) *domain.Device {
	t.Helper()
	url := "http://" + strings.ToLower(externalID) + ".local"
	dev, err := store.NewDeviceStore(d).Create(context.Background(), &domain.Device{
		ExternalID: externalID,
		Name:       "Fridge " + externalID,
		APIURL:     &url,
		IsActive:   active,
	})
	require.NoError(t, err)
	return dev
}
