package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	hibikenasynq "github.com/hibiken/asynq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/vbonduro/fridgecam/internal/auth"
	"github.com/vbonduro/fridgecam/internal/config"
	"github.com/vbonduro/fridgecam/internal/db"
	"github.com/vbonduro/fridgecam/internal/device"
	"github.com/vbonduro/fridgecam/internal/lock"
	"github.com/vbonduro/fridgecam/internal/metrics"
	"github.com/vbonduro/fridgecam/internal/photostore"
	"github.com/vbonduro/fridgecam/internal/photostore/local"
	s3store "github.com/vbonduro/fridgecam/internal/photostore/s3"
	"github.com/vbonduro/fridgecam/internal/queue"
	asynqqueue "github.com/vbonduro/fridgecam/internal/queue/asynq"
	"github.com/vbonduro/fridgecam/internal/queue/memory"
	"github.com/vbonduro/fridgecam/internal/queue/natsqueue"
	"github.com/vbonduro/fridgecam/internal/recognition"
	"github.com/vbonduro/fridgecam/internal/service"
	"github.com/vbonduro/fridgecam/internal/store"
	"github.com/vbonduro/fridgecam/internal/vision"
	claudevision "github.com/vbonduro/fridgecam/internal/vision/claude"
	ollamavision "github.com/vbonduro/fridgecam/internal/vision/ollama"
	openaivision "github.com/vbonduro/fridgecam/internal/vision/openai"
	"github.com/vbonduro/fridgecam/internal/web"
)

// app holds the long-lived dependencies shared by the subcommands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *gorm.DB
	media   photostore.PhotoStore
	queue   queue.Queue
	metrics *metrics.Metrics

	users   *store.UserStore
	devices *store.DeviceStore
	photos  *store.PhotoStore
	items   *store.ItemStore
	logs    *store.OperationLogStore

	redis   *redis.Client
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.db, err = db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, func() error { return db.Close(a.db) })

	a.users = store.NewUserStore(a.db)
	a.devices = store.NewDeviceStore(a.db)
	a.photos = store.NewPhotoStore(a.db)
	a.items = store.NewItemStore(a.db)
	a.logs = store.NewOperationLogStore(a.db)

	if a.media, err = newPhotoStore(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if a.queue, err = a.newQueue(ctx); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.queue.Close)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to close resource", "error", err)
		}
	}
	a.closers = nil
}

func (a *app) redisClient() *redis.Client {
	if a.redis == nil {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		a.closers = append(a.closers, a.redis.Close)
	}
	return a.redis
}

func (a *app) newQueue(ctx context.Context) (queue.Queue, error) {
	cfg := a.cfg
	switch cfg.QueueBackend {
	case "asynq":
		a.logger.Info("using asynq queue", "redis", cfg.RedisAddr)
		return asynqqueue.New(hibikenasynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, asynqqueue.Config{
			Concurrency: cfg.QueueConcurrency,
			MaxRetry:    cfg.QueueMaxRetry,
		}, a.logger), nil
	case "nats":
		nc, err := a.natsConn()
		if err != nil {
			return nil, err
		}
		a.logger.Info("using NATS JetStream queue", "stream", cfg.NATSStream, "embedded", cfg.NATSEmbedded)
		q, err := natsqueue.New(ctx, nc, natsqueue.Config{
			Stream:      cfg.NATSStream,
			Concurrency: cfg.QueueConcurrency,
			MaxRetry:    cfg.QueueMaxRetry,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		a.logger.Info("using in-process queue", "concurrency", cfg.QueueConcurrency)
		return memory.New(memory.Options{
			Concurrency: cfg.QueueConcurrency,
			MaxRetry:    cfg.QueueMaxRetry,
			Logger:      a.logger,
		}), nil
	}
}

func (a *app) natsConn() (*nats.Conn, error) {
	if a.cfg.NATSEmbedded {
		emb, err := natsqueue.StartEmbedded(a.cfg.NATSStoreDir)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { emb.Shutdown(); return nil })
		return emb.Conn, nil
	}
	nc, err := nats.Connect(a.cfg.NATSURL, nats.Name("fridgecam"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.closers = append(a.closers, func() error { return nc.Drain() })
	return nc, nil
}

func (a *app) locker() lock.Locker {
	if a.cfg.LockBackend == "redis" {
		return lock.NewRedisLocker(a.redisClient(), "fridgecam:lock:", a.cfg.LockTTL)
	}
	return lock.NewMemoryLocker()
}

func (a *app) recognitionTask() (*recognition.Task, error) {
	analyzer, err := newVisionAnalyzer(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	return recognition.NewTask(a.photos, a.media, analyzer, a.locker(), a.logger,
		recognition.WithTempDir(a.cfg.TempDir),
		recognition.WithMetrics(a.metrics),
	), nil
}

func (a *app) sweeper() *recognition.Sweeper {
	return recognition.NewSweeper(a.photos, a.queue, a.cfg.SweepInterval, a.cfg.SweepStaleAfter, a.logger,
		recognition.WithReclaimAfter(a.cfg.SweepReclaimAfter))
}

func (a *app) userService() *service.UserService {
	return service.NewUserService(a.users, auth.NewTokens(a.cfg.AuthSecret, a.cfg.TokenTTL), a.logger)
}

func (a *app) captureService() *service.CaptureService {
	client := device.NewClient(a.cfg.DeviceTimeout, a.logger)
	return service.NewCaptureService(a.devices, a.photos, a.logs, client, a.media, a.queue, a.metrics, a.logger)
}

func (a *app) server() *web.Server {
	tokens := auth.NewTokens(a.cfg.AuthSecret, a.cfg.TokenTTL)
	return web.NewServer(web.Deps{
		Users:     service.NewUserService(a.users, tokens, a.logger),
		Devices:   service.NewDeviceService(a.devices, a.logger),
		Capture:   a.captureService(),
		Inventory: service.NewInventoryService(a.photos, a.items, a.logs, a.media, a.logger),
		Tokens:    tokens,
		Metrics:   a.metrics.Handler(),
		Ping:      func(ctx context.Context) error { return db.Ping(ctx, a.db) },
	}, a.logger)
}

func newPhotoStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (photostore.PhotoStore, error) {
	if cfg.PhotoBackend == "s3" {
		logger.Info("using S3 photo store", "bucket", cfg.S3Bucket, "endpoint", cfg.S3Endpoint)
		st, err := s3store.New(ctx, s3store.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 photo store: %w", err)
		}
		return st, nil
	}
	logger.Info("using local photo store", "path", cfg.PhotoPath)
	st, err := local.NewLocalPhotoStore(cfg.PhotoPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize photo store: %w", err)
	}
	return st, nil
}

func newVisionAnalyzer(cfg *config.Config, logger *slog.Logger) (vision.VisionAnalyzer, error) {
	switch cfg.VisionBackend {
	case "claude":
		if cfg.ClaudeAPIKey == "" {
			return nil, errors.New("CLAUDE_API_KEY is required when VISION_BACKEND=claude")
		}
		logger.Info("using Claude vision backend", "model", cfg.ClaudeModel)
		return claudevision.NewClaudeAnalyzer(cfg.ClaudeAPIKey, cfg.ClaudeModel, logger,
			claudevision.WithTimeout(cfg.VisionTimeout)), nil
	case "ollama":
		logger.Info("using Ollama vision backend", "model", cfg.OllamaModel)
		return ollamavision.NewOllamaAnalyzer(cfg.OllamaHost, cfg.OllamaModel, cfg.VisionTimeout, logger), nil
	default:
		logger.Info("using OpenAI-compatible vision backend", "base_url", cfg.VisionBaseURL, "model", cfg.VisionModel)
		return openaivision.NewOpenAIAnalyzer(cfg.VisionBaseURL, cfg.VisionAPIKey, cfg.VisionModel, cfg.VisionTimeout, logger), nil
	}
}
