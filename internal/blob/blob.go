// Package blob stores the raw bytes of uploaded files. The S3 implementation
// talks to AWS or any S3-compatible server (MinIO); Memory backs tests.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get for a missing object.
var ErrNotFound = errors.New("blob: object not found")

// Object is an open blob. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	// Size is -1 when the store does not report it.
	Size int64
}

type Store interface {
	// Put stores size bytes from r under key. size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	// Delete of a missing object is not an error.
	Delete(ctx context.Context, key string) error
}
