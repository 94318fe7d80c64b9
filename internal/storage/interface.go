package storage

import (
	"context"
	"io"
)

// ObjectStorage is the mirror target for export artifacts. The local export
// tree stays authoritative; implementations only hold replicas.
type ObjectStorage interface {
	// Upload stores an object under the given key
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download retrieves an object by key
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the public URL for an object
	GetURL(key string) string

	// Delete removes an object
	Delete(ctx context.Context, key string) error

	// Exists checks whether an object is present
	Exists(ctx context.Context, key string) (bool, error)
}
