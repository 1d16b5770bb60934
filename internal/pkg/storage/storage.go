// Package storage persists opaque blobs such as checkpoints either on the
// local filesystem or in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("object not found")

// Store is a flat key/value blob store
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Location returns a human-readable address for key, used in logs.
	Location(key string) string
}
