// Package memory provides an in-process storage backend, used when the
// workspace content does not need to outlive the agent and in tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sync"
)

// Backend keeps objects in a map.
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New creates an empty memory backend.
func New() *Backend {
	return &Backend{objects: make(map[string][]byte)}
}

// GetObject returns a reader over a copy-free snapshot of the object.
func (b *Backend) GetObject(_ context.Context, key string) (io.ReadCloser, int64, error) {
	b.mu.RLock()
	data, ok := b.objects[key]
	b.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("get object %s: %w", key, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// PutObject stores the body. Stored slices are never mutated, so readers
// holding an older slice keep a consistent view.
func (b *Backend) PutObject(_ context.Context, key string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body for %s: %w", key, err)
	}
	b.mu.Lock()
	b.objects[key] = data
	b.mu.Unlock()
	return nil
}

// DeleteObject removes an object.
func (b *Backend) DeleteObject(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.objects, key)
	b.mu.Unlock()
	return nil
}

// CopyObject copies an object.
func (b *Backend) CopyObject(_ context.Context, srcKey, dstKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[srcKey]
	if !ok {
		return fmt.Errorf("copy %s -> %s: %w", srcKey, dstKey, fs.ErrNotExist)
	}
	b.objects[dstKey] = data
	return nil
}

// ObjectExists reports whether key is stored.
func (b *Backend) ObjectExists(_ context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[key]
	return ok, nil
}

// Len returns the number of stored objects.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// Type returns "memory".
func (b *Backend) Type() string { return "memory" }

// Close is a no-op.
func (b *Backend) Close() error { return nil }
