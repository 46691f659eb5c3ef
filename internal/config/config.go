package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	DBDriver   string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN      string `env:"DB_DSN" envDefault:"/data/fridgecam.db"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile    string `env:"LOG_FILE"`

	AuthSecret string        `env:"AUTH_SECRET"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	DeviceTimeout time.Duration `env:"DEVICE_TIMEOUT" envDefault:"10s"`

	VisionBackend string        `env:"VISION_BACKEND" envDefault:"openai"`
	VisionBaseURL string        `env:"VISION_BASE_URL" envDefault:"http://localhost:1234/v1"`
	VisionAPIKey  string        `env:"VISION_API_KEY" envDefault:"lm-studio"`
	VisionModel   string        `env:"VISION_MODEL" envDefault:"qwen2.5-vl-7b-instruct"`
	VisionTimeout time.Duration `env:"VISION_TIMEOUT" envDefault:"120s"`
	ClaudeAPIKey  string        `env:"CLAUDE_API_KEY"`
	ClaudeModel   string        `env:"CLAUDE_MODEL" envDefault:"claude-sonnet-4-5"`
	OllamaHost    string        `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	OllamaModel   string        `env:"OLLAMA_MODEL" envDefault:"llava"`

	PhotoBackend      string `env:"PHOTO_BACKEND" envDefault:"local"`
	PhotoPath         string `env:"PHOTO_LOCAL_PATH" envDefault:"/data/photos"`
	S3Bucket          string `env:"S3_BUCKET"`
	S3Region          string `env:"S3_REGION" envDefault:"auto"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`

	QueueBackend     string `env:"QUEUE_BACKEND" envDefault:"memory"`
	QueueConcurrency int    `env:"QUEUE_CONCURRENCY" envDefault:"4"`
	QueueMaxRetry    int    `env:"QUEUE_MAX_RETRY" envDefault:"3"`
	RedisAddr        string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword    string `env:"REDIS_PASSWORD"`
	RedisDB          int    `env:"REDIS_DB" envDefault:"0"`
	NATSURL          string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSStream       string `env:"NATS_STREAM" envDefault:"FRIDGECAM"`
	NATSEmbedded     bool   `env:"NATS_EMBEDDED" envDefault:"false"`
	NATSStoreDir     string `env:"NATS_STORE_DIR" envDefault:"/data/nats"`

	LockBackend string        `env:"LOCK_BACKEND" envDefault:"memory"`
	LockTTL     time.Duration `env:"LOCK_TTL" envDefault:"5m"`

	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	SweepStaleAfter   time.Duration `env:"SWEEP_STALE_AFTER" envDefault:"10m"`
	SweepReclaimAfter time.Duration `env:"SWEEP_RECLAIM_AFTER" envDefault:"15m"`
	TempDir           string        `env:"TEMP_DIR"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// minAuthSecretLen is the shortest AUTH_SECRET accepted for signing tokens.
const minAuthSecretLen = 32

func (c *Config) validate() error {
	if len(c.AuthSecret) < minAuthSecretLen {
		return fmt.Errorf("AUTH_SECRET must be set to at least %d characters", minAuthSecretLen)
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.VisionBackend {
	case "openai", "claude", "ollama":
	default:
		return fmt.Errorf("unsupported VISION_BACKEND %q", c.VisionBackend)
	}
	switch c.PhotoBackend {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when PHOTO_BACKEND=s3")
		}
	default:
		return fmt.Errorf("unsupported PHOTO_BACKEND %q", c.PhotoBackend)
	}
	switch c.QueueBackend {
	case "memory", "asynq", "nats":
	default:
		return fmt.Errorf("unsupported QUEUE_BACKEND %q", c.QueueBackend)
	}
	switch c.LockBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported LOCK_BACKEND %q", c.LockBackend)
	}
	if c.QueueConcurrency < 1 {
		return errors.New("QUEUE_CONCURRENCY must be positive")
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"TOKEN_TTL", c.TokenTTL},
		{"DEVICE_TIMEOUT", c.DeviceTimeout},
		{"VISION_TIMEOUT", c.VisionTimeout},
		{"LOCK_TTL", c.LockTTL},
		{"SWEEP_INTERVAL", c.SweepInterval},
		{"SWEEP_STALE_AFTER", c.SweepStaleAfter},
		{"SWEEP_RECLAIM_AFTER", c.SweepReclaimAfter},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if c.SweepReclaimAfter <= c.VisionTimeout {
		return fmt.Errorf("SWEEP_RECLAIM_AFTER (%s) must exceed VISION_TIMEOUT (%s)", c.SweepReclaimAfter, c.VisionTimeout)
	}
	return nil
}
