// Package config loads server settings from WORKQ_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"WORKQ_DATABASE_URL,required,notEmpty"`
	HTTPAddr    string `env:"WORKQ_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr    string `env:"WORKQ_GRPC_ADDR" envDefault:":9090"`
	NATSURL     string `env:"WORKQ_NATS_URL"` // empty = no events

	// Connection pool
	DBMaxOpenConns    int           `env:"WORKQ_DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"WORKQ_DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"WORKQ_DB_CONN_MAX_LIFETIME" envDefault:"5m"`

	// Auth settings
	JWTSecret      string `env:"WORKQ_JWT_SECRET"` // empty = every caller is anonymous
	AllowAnonymous bool   `env:"WORKQ_ALLOW_ANONYMOUS" envDefault:"false"`

	// Query engine settings
	DefaultPageSize int           `env:"WORKQ_DEFAULT_PAGE_SIZE" envDefault:"20"`
	MaxPageSize     int           `env:"WORKQ_MAX_PAGE_SIZE" envDefault:"1000"`
	TimeZone        string        `env:"WORKQ_TIME_ZONE" envDefault:"UTC"`
	QueryTimeout    time.Duration `env:"WORKQ_QUERY_TIMEOUT" envDefault:"30s"`

	// Observability
	LogLevel     string `env:"WORKQ_LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"WORKQ_LOG_FORMAT" envDefault:"text"`
	OTELEndpoint string `env:"WORKQ_OTEL_ENDPOINT"` // empty = tracing disabled

	// Saved query export
	ExportInterval   time.Duration `env:"WORKQ_EXPORT_INTERVAL" envDefault:"0s"` // 0 = disabled
	ExportS3Bucket   string        `env:"WORKQ_EXPORT_S3_BUCKET"`
	ExportS3Key      string        `env:"WORKQ_EXPORT_S3_KEY" envDefault:"workq/queries.jsonl"`
	ExportS3Region   string        `env:"WORKQ_EXPORT_S3_REGION" envDefault:"us-east-1"`
	ExportS3Endpoint string        `env:"WORKQ_EXPORT_S3_ENDPOINT"` // custom endpoint for MinIO
	ExportGitRepo    string        `env:"WORKQ_EXPORT_GIT_REPO"`
	ExportGitFile    string        `env:"WORKQ_EXPORT_GIT_FILE" envDefault:"queries.jsonl"`
	ExportGitBranch  string        `env:"WORKQ_EXPORT_GIT_BRANCH" envDefault:"main"`

	// Location is TimeZone resolved by Load.
	Location *time.Location `env:"-"`
}

func Load() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("WORKQ_TIME_ZONE: %w", err)
	}
	c.Location = loc

	if c.DefaultPageSize < 1 {
		return nil, fmt.Errorf("WORKQ_DEFAULT_PAGE_SIZE must be positive, got %d", c.DefaultPageSize)
	}
	if c.MaxPageSize < c.DefaultPageSize {
		return nil, fmt.Errorf("WORKQ_MAX_PAGE_SIZE (%d) must not be below WORKQ_DEFAULT_PAGE_SIZE (%d)", c.MaxPageSize, c.DefaultPageSize)
	}
	if c.ExportInterval < 0 {
		return nil, fmt.Errorf("WORKQ_EXPORT_INTERVAL must not be negative")
	}
	if _, err := c.level(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("WORKQ_LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c *Config) Logger() *slog.Logger {
	lvl, _ := c.level()
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
