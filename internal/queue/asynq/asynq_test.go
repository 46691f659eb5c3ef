package asynq

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/queue"
)

func task(t *testing.T, photoID int64) *asynq.Task {
	t.Helper()
	b, err := queue.EncodePayload(photoID)
	require.NoError(t, err)
	return asynq.NewTask(TaskTypeRecognizePhoto, b)
}

func TestWrap_Success(t *testing.T) {
	var got int64
	h := wrap(func(_ context.Context, id int64) error {
		got = id
		return nil
	})

	require.NoError(t, h(context.Background(), task(t, 11)))
	assert.Equal(t, int64(11), got)
}

func TestWrap_RetryableError(t *testing.T) {
	h := wrap(func(context.Context, int64) error {
		return apperr.Transport("test", errors.New("camera offline"))
	})

	err := h(context.Background(), task(t, 1))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestWrap_NonRetryableError(t *testing.T) {
	h := wrap(func(context.Context, int64) error {
		return apperr.DataFormat("test", errors.New("garbage"))
	})

	err := h(context.Background(), task(t, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Contains(t, err.Error(), "garbage")
}

func TestWrap_BadPayload(t *testing.T) {
	called := false
	h := wrap(func(context.Context, int64) error {
		called = true
		return nil
	})

	err := h(context.Background(), asynq.NewTask(TaskTypeRecognizePhoto, []byte("nope")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.False(t, called)
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	a := &slogAdapter{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	a.Info("worker ", "ready")
	assert.Contains(t, buf.String(), "worker ready")
}

// TestQueue_Redis exercises a real Redis when FRIDGECAM_TEST_REDIS_ADDR is set.
func TestQueue_Redis(t *testing.T) {
	addr := os.Getenv("FRIDGECAM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FRIDGECAM_TEST_REDIS_ADDR not set")
	}

	q := New(asynq.RedisClientOpt{Addr: addr}, Config{QueueName: "fridgecam-test", Concurrency: 1}, nil)
	defer q.Close()

	var got atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, id int64) error {
			got.Store(id)
			return nil
		})
	}()

	require.NoError(t, q.Enqueue(ctx, 99))
	require.Eventually(t, func() bool { return got.Load() == 99 }, 10*time.Second, 50*time.Millisecond)
}
