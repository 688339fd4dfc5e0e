package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrObjectNotFound = errors.New("object not found")

// BlobStore serves submitted document bytes by key.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Ping(ctx context.Context) error
}

type Config struct {
	Provider       string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	Region         string
	UseSSL         bool
	ConnectTimeout time.Duration
}

// New builds the store for cfg.Provider ("minio" or "s3").
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (BlobStore, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "minio":
		return NewMinIOStore(cfg, logger)
	case "s3":
		return NewS3Store(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.Provider)
	}
}
