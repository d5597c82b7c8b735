// Package storage defines the Backend interface for file content blobs and
// a factory that builds one from configuration.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// Backend stores opaque content blobs by key. The virtual file tree is kept
// elsewhere; a backend only knows keys.
//
// Implementations report a missing key with an error that matches
// fs.ErrNotExist under errors.Is.
type Backend interface {
	// GetObject returns the object body and its size.
	GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// PutObject stores body under key, replacing any existing object.
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error

	// DeleteObject removes an object. Deleting a missing key is not an error.
	DeleteObject(ctx context.Context, key string) error

	// CopyObject copies an object from srcKey to dstKey.
	CopyObject(ctx context.Context, srcKey, dstKey string) error

	// ObjectExists checks if an object exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// Type returns the backend type identifier ("s3", "local", "memory").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// ReadAll reads a whole object into memory.
func ReadAll(ctx context.Context, b Backend, key string) ([]byte, error) {
	rc, _, err := b.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// PutBytes stores data under key.
func PutBytes(ctx context.Context, b Backend, key string, data []byte) error {
	return b.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)))
}
