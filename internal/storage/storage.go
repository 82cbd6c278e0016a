// Package storage provides the blob stores that hold inspection photos.
// Objects are addressed by key on write and by public URL afterwards.
package storage

import (
	"context"
	"io"
)

// BlobStore uploads and deletes photo objects.
type BlobStore interface {
	// Upload stores r under key and returns its public URL.
	Upload(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error)

	// Delete removes the object behind a public URL returned by Upload.
	Delete(ctx context.Context, publicURL string) error
}
