// Package natsqueue runs recognition tasks on a NATS JetStream work-queue
// stream.
package natsqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/queue"
)

type Config struct {
	Stream       string
	ConsumerName string
	Concurrency  int
	MaxRetry     int
	AckWait      time.Duration
	// RetryDelay overrides queue.Backoff, mainly for tests.
	RetryDelay func(attempt int) time.Duration
}

type Queue struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	stream  jetstream.Stream
	subject string
	cfg     Config
	logger  *slog.Logger
}

var _ queue.Queue = (*Queue)(nil)

// New ensures the work-queue stream exists. The connection is owned by the
// caller.
func New(ctx context.Context, nc *nats.Conn, cfg Config, logger *slog.Logger) (*Queue, error) {
	if cfg.Stream == "" {
		cfg.Stream = "FRIDGECAM"
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = "recognizer"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 5 * time.Minute
	}
	if cfg.RetryDelay == nil {
		cfg.RetryDelay = queue.Backoff
	}
	if logger == nil {
		logger = slog.Default()
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	subject := cfg.Stream + ".photos.recognize"
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}

	return &Queue{nc: nc, js: js, stream: stream, subject: subject, cfg: cfg, logger: logger}, nil
}

func (q *Queue) Enqueue(ctx context.Context, photoID int64) error {
	b, err := queue.EncodePayload(photoID)
	if err != nil {
		return err
	}
	ack, err := q.js.Publish(ctx, q.subject, b)
	if err != nil {
		return fmt.Errorf("failed to enqueue photo %d: %w", photoID, err)
	}
	q.logger.Info("recognition task enqueued", "photo_id", photoID, "stream", ack.Stream, "seq", ack.Sequence)
	return nil
}

// Consume pulls from a durable consumer with Concurrency fetch loops until
// ctx is cancelled.
func (q *Queue) Consume(ctx context.Context, h queue.Handler) error {
	consumer, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       q.cfg.ConsumerName,
		FilterSubject: q.subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       q.cfg.AckWait,
		MaxDeliver:    q.cfg.MaxRetry + 1,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	q.logger.Info("queue worker started", "stream", q.cfg.Stream, "consumer", q.cfg.ConsumerName, "concurrency", q.cfg.Concurrency)
	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.fetchLoop(ctx, consumer, h)
		}()
	}
	wg.Wait()
	q.logger.Info("queue worker stopped")
	return nil
}

func (q *Queue) fetchLoop(ctx context.Context, consumer jetstream.Consumer, h queue.Handler) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, nats.ErrTimeout) {
				q.logger.Warn("fetch failed", "error", err)
				time.Sleep(time.Second)
			}
			continue
		}
		for msg := range msgs.Messages() {
			q.handleMessage(ctx, msg, h)
		}
		if msgs.Error() != nil && ctx.Err() == nil && !errors.Is(msgs.Error(), nats.ErrTimeout) {
			q.logger.Debug("fetch error", "error", msgs.Error())
		}
	}
}

func (q *Queue) handleMessage(ctx context.Context, msg jetstream.Msg, h queue.Handler) {
	if ctx.Err() != nil {
		if err := msg.Nak(); err != nil {
			q.logger.Warn("failed to NAK message during shutdown", "error", err)
		}
		return
	}

	photoID, err := queue.DecodePayload(msg.Data())
	if err != nil {
		q.logger.Error("dropping malformed task", "error", err)
		if err := msg.Term(); err != nil {
			q.logger.Warn("failed to TERM message", "error", err)
		}
		return
	}

	attempt := 1
	if meta, err := msg.Metadata(); err == nil {
		attempt = int(meta.NumDelivered)
	}
	logger := q.logger.With("photo_id", photoID, "attempt", attempt)

	err = queue.Run(ctx, h, photoID)
	switch {
	case err == nil:
		if err := msg.Ack(); err != nil {
			logger.Warn("failed to ACK message", "error", err)
		}
	case !apperr.Retryable(err):
		logger.Error("recognition task failed permanently", "error", err)
		if err := msg.Term(); err != nil {
			logger.Warn("failed to TERM message", "error", err)
		}
	default:
		delay := q.cfg.RetryDelay(attempt)
		logger.Warn("recognition task failed, retrying", "error", err, "delay", delay)
		if err := msg.NakWithDelay(delay); err != nil {
			logger.Warn("failed to NAK message", "error", err)
		}
	}
}

// Close is a no-op; the connection belongs to the caller.
func (q *Queue) Close() error {
	return nil
}
