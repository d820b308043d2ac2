package cache

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("cache entry not found")

// Store persists opaque blobs by key.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}
