// Package storage defines the interface for the object store pages are archived to.
// This abstraction keeps the ingest loop independent of a specific backend
// (Google Cloud Storage, an S3-compatible service, the local filesystem, or memory).
package storage

import (
	"context"
	"fmt"
	"io"
)

// Provider is the blob store contract used by the ingest loop.
type Provider interface {
	// Exists reports whether an object is already stored under key.
	Exists(ctx context.Context, key string) (bool, error)
	// PutObject writes the object and returns a URI describing where it landed.
	PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error)
}

// NoOpProvider never reports stored objects and discards writes.
// It is useful for dry runs where pages are fetched but not persisted.
type NoOpProvider struct{}

// Exists for NoOpProvider always returns false.
func (n *NoOpProvider) Exists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

// PutObject drains r and returns a noop:// URI.
func (n *NoOpProvider) PutObject(_ context.Context, key string, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", fmt.Errorf("drain reader: %w", err)
	}
	return "noop://" + key, nil
}
