package recognition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/fridgecam/internal/domain"
)

type recordingQueue struct {
	mu      sync.Mutex
	ids     []int64
	failFor map[int64]bool
}

func (q *recordingQueue) Enqueue(_ context.Context, photoID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failFor[photoID] {
		return errors.New("queue unavailable")
	}
	q.ids = append(q.ids, photoID)
	return nil
}

func (q *recordingQueue) enqueued() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int64(nil), q.ids...)
}

func (f *fixture) createPhotoAt(t *testing.T, uploadedAt time.Time) *domain.Photo {
	t.Helper()
	photo, err := f.photos.Create(context.Background(), &domain.Photo{
		DeviceID:   f.device.ID,
		ImageKey:   "fridge_photos/2024/03/05/cam-1_x.png",
		CapturedAt: uploadedAt,
		UploadedAt: uploadedAt,
	})
	require.NoError(t, err)
	return photo
}

func TestSweepOnce_EnqueuesOnlyStalePending(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	stale := f.createPhotoAt(t, now.Add(-time.Hour))
	fresh := f.createPhotoAt(t, now.Add(-time.Minute))
	done := f.createPhotoAt(t, now.Add(-2*time.Hour))
	require.NoError(t, f.photos.TransitionStatus(context.Background(), done.ID, domain.StatusProcessing))

	q := &recordingQueue{}
	s := NewSweeper(f.photos, q, time.Minute, 10*time.Minute, discardLogger())
	s.now = func() time.Time { return now }

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{stale.ID}, q.enqueued())
	assert.NotContains(t, q.enqueued(), fresh.ID)
}

func TestSweepOnce_ReclaimsAbandonedProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	abandoned := f.createPhoto(t)
	require.NoError(t, f.photos.TransitionStatus(ctx, abandoned.ID, domain.StatusProcessing))
	require.NoError(t, f.db.Model(&domain.Photo{}).Where("id = ?", abandoned.ID).
		Update("status_updated_at", now.Add(-20*time.Minute)).Error)

	running := f.createPhotoAt(t, now.Add(-time.Hour))
	require.NoError(t, f.photos.TransitionStatus(ctx, running.ID, domain.StatusProcessing))

	q := &recordingQueue{}
	s := NewSweeper(f.photos, q, time.Minute, 10*time.Minute, discardLogger(), WithReclaimAfter(15*time.Minute))
	s.now = func() time.Time { return now }

	n, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{abandoned.ID}, q.enqueued())

	// The reclaimed run moves the photo through processing again to completed.
	require.NoError(t, f.task.Run(ctx, abandoned.ID))
	got, err := f.photos.GetByID(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestSweeperRun_RejectsNonPositiveInterval(t *testing.T) {
	f := newFixture(t)
	s := NewSweeper(f.photos, &recordingQueue{}, 0, 10*time.Minute, discardLogger())
	assert.Error(t, s.Run(context.Background()))
}

func TestSweepOnce_ContinuesPastEnqueueErrors(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	first := f.createPhotoAt(t, now.Add(-3*time.Hour))
	second := f.createPhotoAt(t, now.Add(-2*time.Hour))

	q := &recordingQueue{failFor: map[int64]bool{first.ID: true}}
	s := NewSweeper(f.photos, q, time.Minute, 10*time.Minute, discardLogger())
	s.now = func() time.Time { return now }

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{second.ID}, q.enqueued())
}

func TestSweeperRun_SweepsUntilCancelled(t *testing.T) {
	f := newFixture(t)
	stale := f.createPhotoAt(t, time.Now().Add(-time.Hour))

	q := &recordingQueue{}
	s := NewSweeper(f.photos, q, 20*time.Millisecond, 10*time.Minute, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(q.enqueued()) >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, stale.ID, q.enqueued()[0])
}
