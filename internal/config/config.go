package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration for the support service.
type Config struct {
	// Service Configuration
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"support-api"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"SUPPORT_API_PORT" envDefault:"8288"`
	LogLevel        string        `env:"SUPPORT_LOG_LEVEL" envDefault:"info"`
	EnableTracing   bool          `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// CORS: the widget is embedded on customer pages, so cross-origin
	// requests are the norm.
	CORSAllowOrigins []string `env:"SUPPORT_CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`

	// Database
	DatabaseURL string `env:"DB_POSTGRESQL_DSN,notEmpty"`

	// Database Connection Pool
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Telegram Bridge
	TelegramBotToken   string `env:"SUPPORT_TELEGRAM_BOT_TOKEN"`
	TelegramAPIBaseURL string `env:"SUPPORT_TELEGRAM_API_BASE_URL" envDefault:"https://api.telegram.org"`
	SupportGroupID     int64  `env:"SUPPORT_TELEGRAM_GROUP_ID"`
	WebhookSecret      string `env:"SUPPORT_TELEGRAM_WEBHOOK_SECRET"`

	// Storage Backend Selection
	StorageBackend string `env:"SUPPORT_STORAGE_BACKEND" envDefault:"s3"` // Options: "s3" or "local"

	// Local Storage Configuration
	LocalStoragePath    string `env:"SUPPORT_LOCAL_STORAGE_PATH"`
	LocalStorageBaseURL string `env:"SUPPORT_LOCAL_STORAGE_BASE_URL"`

	// S3 Storage Configuration
	S3Endpoint      string `env:"SUPPORT_S3_ENDPOINT"`
	S3PublicBaseURL string `env:"SUPPORT_S3_PUBLIC_BASE_URL"`
	S3Region        string `env:"SUPPORT_S3_REGION" envDefault:"us-west-2"`
	S3Bucket        string `env:"SUPPORT_S3_BUCKET"`
	S3AccessKeyID   string `env:"SUPPORT_S3_ACCESS_KEY_ID"`
	S3SecretKey     string `env:"SUPPORT_S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle  bool   `env:"SUPPORT_S3_USE_PATH_STYLE" envDefault:"true"`

	// Image Handling
	MaxImageBytes      int64         `env:"SUPPORT_MAX_IMAGE_BYTES" envDefault:"10485760"`
	RemoteFetchTimeout time.Duration `env:"SUPPORT_REMOTE_FETCH_TIMEOUT" envDefault:"15s"`

	// Retention
	RetentionEnabled bool          `env:"SUPPORT_RETENTION_ENABLED" envDefault:"true"`
	RetentionWindow  time.Duration `env:"SUPPORT_RETENTION_WINDOW" envDefault:"72h"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.TelegramBotToken = strings.TrimSpace(cfg.TelegramBotToken)
	cfg.WebhookSecret = strings.TrimSpace(cfg.WebhookSecret)
	cfg.S3Bucket = strings.TrimSpace(cfg.S3Bucket)
	cfg.S3AccessKeyID = strings.TrimSpace(cfg.S3AccessKeyID)
	cfg.S3SecretKey = strings.TrimSpace(cfg.S3SecretKey)
	cfg.S3Endpoint = strings.TrimSpace(cfg.S3Endpoint)
	cfg.S3PublicBaseURL = strings.TrimSpace(cfg.S3PublicBaseURL)
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 10 * 1024 * 1024
	}
	if cfg.TelegramBotToken != "" && cfg.SupportGroupID == 0 {
		return nil, fmt.Errorf("SUPPORT_TELEGRAM_GROUP_ID is required when SUPPORT_TELEGRAM_BOT_TOKEN is set")
	}
	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsLocalStorage returns true if local storage backend is configured.
func (c *Config) IsLocalStorage() bool {
	return strings.ToLower(strings.TrimSpace(c.StorageBackend)) == "local"
}

// IsS3Storage returns true if S3 storage backend is configured.
func (c *Config) IsS3Storage() bool {
	backend := strings.ToLower(strings.TrimSpace(c.StorageBackend))
	return backend == "" || backend == "s3"
}

// TelegramConfigured reports whether the bot bridge can reach Telegram.
func (c *Config) TelegramConfigured() bool {
	return c.TelegramBotToken != "" && c.SupportGroupID != 0
}
