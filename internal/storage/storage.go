// Package storage contains blob storage abstractions with a local filesystem backend
// and an S3-compatible (MinIO) backend. Keys are slash-separated paths relative to the
// backend root or bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"meddocs/internal/config"
)

var (
	// ErrObjectNotFound is returned by Get when no object exists under the key.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for empty keys or keys escaping the storage root.
	ErrInvalidKey = errors.New("invalid object key")
)

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1.
// ContentType and Metadata are optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is the blob store used by the document service.
type Storage interface {
	// Put stores the content of r under key. Size in the returned info is the number of bytes written.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get opens the object for a single sequential read. It returns ErrObjectNotFound if the key is absent.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes the object. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every object whose key starts with prefix, including leftovers of
	// interrupted writes when the backend has any.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// New builds the backend selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", config.StorageDriverLocal:
		return NewLocal(cfg.Root)
	case config.StorageDriverMinIO:
		return NewMinIO(ctx, cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
