package storage

import (
	"context"
	"errors"

	"github.com/SunnyC0d3/booking-system-sub009/core/config"
)

var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectStore keeps generated calendar files.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Driver {
	case config.StorageDriverS3:
		return NewS3Store(cfg), nil
	default:
		return NewFSStore(cfg.LocalDir)
	}
}
