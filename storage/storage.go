// Package storage provides blob storage for submitted audio clips.
// The pipeline only holds path references; ownership of the bytes lives here.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for audio blob storage operations.
type Storage interface {
	// Upload writes data from reader to the given path.
	Upload(ctx context.Context, path string, reader io.Reader) error

	// Download returns a reader for the object at the given path.
	// The caller is responsible for closing the returned ReadCloser.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the object at the given path.
	// Returns nil if the object does not exist.
	Delete(ctx context.Context, path string) error

	// Exists checks whether an object exists at the given path.
	Exists(ctx context.Context, path string) (bool, error)

	// URL returns a URL for accessing the object at the given path.
	URL(ctx context.Context, path string) (string, error)
}

// FreeSpaceReporter is optionally implemented by storage backends that can
// report remaining capacity. The intake guard refuses uploads when free
// space runs low.
type FreeSpaceReporter interface {
	// FreeBytes returns the number of bytes available for new uploads.
	FreeBytes() (uint64, error)
}
