// Package asynq runs recognition tasks on Redis through hibiken/asynq.
package asynq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/queue"
)

const TaskTypeRecognizePhoto = "photo:recognize"

type Config struct {
	QueueName   string
	Concurrency int
	MaxRetry    int
	// Timeout bounds one task run, including the vision call.
	Timeout time.Duration
	// UniqueFor suppresses duplicate enqueues of the same photo.
	UniqueFor time.Duration
}

type Queue struct {
	redisOpt asynq.RedisClientOpt
	client   *asynq.Client
	cfg      Config
	logger   *slog.Logger
}

var _ queue.Queue = (*Queue)(nil)

func New(redisOpt asynq.RedisClientOpt, cfg Config, logger *slog.Logger) *Queue {
	if cfg.QueueName == "" {
		cfg.QueueName = "recognition"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.UniqueFor <= 0 {
		cfg.UniqueFor = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		redisOpt: redisOpt,
		client:   asynq.NewClient(redisOpt),
		cfg:      cfg,
		logger:   logger,
	}
}

func (q *Queue) Enqueue(ctx context.Context, photoID int64) error {
	b, err := queue.EncodePayload(photoID)
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeRecognizePhoto, b), q.taskOptions()...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		q.logger.Debug("recognition task already queued", "photo_id", photoID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue photo %d: %w", photoID, err)
	}
	q.logger.Info("recognition task enqueued", "photo_id", photoID, "task_id", info.ID, "queue", info.Queue)
	return nil
}

func (q *Queue) taskOptions() []asynq.Option {
	return []asynq.Option{
		asynq.Queue(q.cfg.QueueName),
		asynq.MaxRetry(q.cfg.MaxRetry),
		asynq.Timeout(q.cfg.Timeout),
		asynq.Unique(q.cfg.UniqueFor),
	}
}

// Consume runs an asynq server until ctx is cancelled.
func (q *Queue) Consume(ctx context.Context, h queue.Handler) error {
	srv := asynq.NewServer(q.redisOpt, asynq.Config{
		Concurrency: q.cfg.Concurrency,
		Queues:      map[string]int{q.cfg.QueueName: 1},
		Logger:      &slogAdapter{logger: q.logger},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return queue.Backoff(n + 1)
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeRecognizePhoto, wrap(h))

	q.logger.Info("queue worker started", "queue", q.cfg.QueueName, "concurrency", q.cfg.Concurrency)
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	<-ctx.Done()
	srv.Shutdown()
	q.logger.Info("queue worker stopped")
	return nil
}

// wrap adapts h to asynq. Failures that must not be retried are wrapped
// with asynq.SkipRetry so the task is archived at once.
func wrap(h queue.Handler) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		photoID, err := queue.DecodePayload(t.Payload())
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if err := h(ctx, photoID); err != nil {
			if !apperr.Retryable(err) {
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return err
		}
		return nil
	}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// slogAdapter satisfies asynq.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Debug(args ...any) { a.logger.Debug(fmt.Sprint(args...)) }
func (a *slogAdapter) Info(args ...any)  { a.logger.Info(fmt.Sprint(args...)) }
func (a *slogAdapter) Warn(args ...any)  { a.logger.Warn(fmt.Sprint(args...)) }
func (a *slogAdapter) Error(args ...any) { a.logger.Error(fmt.Sprint(args...)) }
func (a *slogAdapter) Fatal(args ...any) { a.logger.Error(fmt.Sprint(args...)) }
