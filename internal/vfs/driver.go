package vfs

import (
	"context"
	"io"
	"time"
)

// Info describes one node of a driver's tree.
type Info struct {
	Path      string
	Dir       bool
	MediaType string
	Size      int64
	Created   time.Time
	Modified  time.Time
}

// Name returns the last path element.
func (i Info) Name() string { return Base(i.Path) }

// Driver is the raw hierarchical storage underneath a FileSystem. Paths are
// absolute and cleaned. A missing path is reported with an error matching
// fs.ErrNotExist.
//
// FileSystem serializes mutating calls; read calls may run concurrently with
// each other but never with a mutation.
type Driver interface {
	// Kind names the driver for logs and metrics.
	Kind() string

	Stat(ctx context.Context, p string) (Info, error)

	// List returns the direct children of the folder at p.
	List(ctx context.Context, p string) ([]Info, error)

	// Mkdir creates one folder. The parent exists and p does not.
	Mkdir(ctx context.Context, p string) error

	// WriteFile creates or replaces the content of a file. An empty
	// mediaType keeps the current one.
	WriteFile(ctx context.Context, p string, data []byte, mediaType string) error

	Open(ctx context.Context, p string) (io.ReadCloser, error)

	SetMediaType(ctx context.Context, p, mediaType string) error

	// Remove deletes a file or a whole folder subtree.
	Remove(ctx context.Context, p string) error

	// Move relocates a subtree. dst does not exist and its parent does.
	Move(ctx context.Context, src, dst string) error

	// Copy duplicates a subtree. dst does not exist and its parent does.
	Copy(ctx context.Context, src, dst string) error
}
