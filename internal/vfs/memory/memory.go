// Package memory is a vfs.Driver that keeps the tree in process memory and
// stores file content as blobs in a storage.Backend.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/clock"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/storage"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

type node struct {
	dir        bool
	mediaType  string
	blobKey    string
	size       int64
	compressed bool
	created    time.Time
	modified   time.Time
	children   map[string]*node
}

// Options configure a Driver.
type Options struct {
	// Clock stamps created/modified times. Defaults to the real clock.
	Clock clock.Clock

	// Compress stores blobs zstd-compressed when that saves space.
	Compress bool
}

// Driver implements vfs.Driver.
type Driver struct {
	mu    sync.RWMutex
	root  *node
	blobs storage.Backend
	clock clock.Clock
	opts  Options
}

// New creates an empty tree whose file content lives in blobs.
func New(blobs storage.Backend, opts Options) *Driver {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	now := opts.Clock.Now()
	return &Driver{
		root:  &node{dir: true, mediaType: vfs.MediaTypeFolder, created: now, modified: now, children: map[string]*node{}},
		blobs: blobs,
		clock: opts.Clock,
		opts:  opts,
	}
}

// NewFileSystem is shorthand for vfs.New(New(blobs, opts)).
func NewFileSystem(blobs storage.Backend, opts Options) *vfs.FileSystem {
	return vfs.New(New(blobs, opts))
}

func (d *Driver) Kind() string { return "memory" }

func notExist(p string) error {
	return fmt.Errorf("%s: %w", p, fs.ErrNotExist)
}

func (d *Driver) lookup(p string) (*node, error) {
	n := d.root
	for _, seg := range vfs.Segments(p) {
		if !n.dir {
			return nil, notExist(p)
		}
		child, ok := n.children[seg]
		if !ok {
			return nil, notExist(p)
		}
		n = child
	}
	return n, nil
}

func (d *Driver) parentOf(p string) (*node, string, error) {
	parent, err := d.lookup(vfs.Parent(p))
	if err != nil {
		return nil, "", err
	}
	if !parent.dir {
		return nil, "", notExist(p)
	}
	return parent, vfs.Base(p), nil
}

// touch returns a modification time strictly after prev so every write is
// observable by mtime comparison.
func (d *Driver) touch(prev time.Time) time.Time {
	now := d.clock.Now()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}

func info(p string, n *node) vfs.Info {
	return vfs.Info{
		Path:      p,
		Dir:       n.dir,
		MediaType: n.mediaType,
		Size:      n.size,
		Created:   n.created,
		Modified:  n.modified,
	}
}

func (d *Driver) Stat(_ context.Context, p string) (vfs.Info, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, err := d.lookup(p)
	if err != nil {
		return vfs.Info{}, err
	}
	return info(p, n), nil
}

func (d *Driver) List(_ context.Context, p string) ([]vfs.Info, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, err := d.lookup(p)
	if err != nil {
		return nil, err
	}
	if !n.dir {
		return nil, fmt.Errorf("list %s: not a folder", p)
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]vfs.Info, 0, len(names))
	for _, name := range names {
		out = append(out, info(vfs.Join(p, name), n.children[name]))
	}
	return out, nil
}

func (d *Driver) Mkdir(_ context.Context, p string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	parent, name, err := d.parentOf(p)
	if err != nil {
		return err
	}
	if _, exists := parent.children[name]; exists {
		return fmt.Errorf("mkdir %s: %w", p, fs.ErrExist)
	}
	now := d.clock.Now()
	parent.children[name] = &node{dir: true, mediaType: vfs.MediaTypeFolder, created: now, modified: now, children: map[string]*node{}}
	parent.modified = d.touch(parent.modified)
	return nil
}

func (d *Driver) WriteFile(ctx context.Context, p string, data []byte, mediaType string) error {
	stored, compressed := data, false
	if d.opts.Compress {
		stored, compressed = compress(data)
	}
	key := "blobs/" + uuid.NewString()
	if err := storage.PutBytes(ctx, d.blobs, key, stored); err != nil {
		return fmt.Errorf("store content of %s: %w", p, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	parent, name, err := d.parentOf(p)
	if err != nil {
		d.dropBlob(ctx, key)
		return err
	}
	n, exists := parent.children[name]
	if exists && n.dir {
		d.dropBlob(ctx, key)
		return fmt.Errorf("write %s: is a folder", p)
	}
	if !exists {
		now := d.clock.Now()
		n = &node{mediaType: vfs.MediaTypeDefault, created: now}
		parent.children[name] = n
		parent.modified = d.touch(parent.modified)
	}
	old := n.blobKey
	n.blobKey, n.size, n.compressed = key, int64(len(data)), compressed
	if mediaType != "" {
		n.mediaType = mediaType
	}
	n.modified = d.touch(n.modified)
	if old != "" {
		d.dropBlob(ctx, old)
	}
	return nil
}

// dropBlob deletes a blob that is no longer referenced. Failures only leak
// storage, so they are logged.
func (d *Driver) dropBlob(ctx context.Context, key string) {
	if err := d.blobs.DeleteObject(ctx, key); err != nil {
		logging.Warn("failed to delete blob", zap.String("key", key), zap.Error(err))
	}
}

func (d *Driver) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	d.mu.RLock()
	n, err := d.lookup(p)
	if err != nil {
		d.mu.RUnlock()
		return nil, err
	}
	if n.dir {
		d.mu.RUnlock()
		return nil, fmt.Errorf("open %s: is a folder", p)
	}
	key, size, compressed := n.blobKey, n.size, n.compressed
	d.mu.RUnlock()

	if key == "" {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	data, err := storage.ReadAll(ctx, d.blobs, key)
	if err != nil {
		return nil, fmt.Errorf("load content of %s: %w", p, err)
	}
	if compressed {
		if data, err = decompress(data, size); err != nil {
			return nil, fmt.Errorf("load content of %s: %w", p, err)
		}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (d *Driver) SetMediaType(_ context.Context, p, mediaType string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(p)
	if err != nil {
		return err
	}
	n.mediaType = mediaType
	n.modified = d.touch(n.modified)
	return nil
}

func (d *Driver) Remove(ctx context.Context, p string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	parent, name, err := d.parentOf(p)
	if err != nil {
		return err
	}
	n, ok := parent.children[name]
	if !ok {
		return notExist(p)
	}
	delete(parent.children, name)
	parent.modified = d.touch(parent.modified)
	d.dropBlobs(ctx, n)
	return nil
}

func (d *Driver) dropBlobs(ctx context.Context, n *node) {
	if n.blobKey != "" {
		d.dropBlob(ctx, n.blobKey)
	}
	for _, c := range n.children {
		d.dropBlobs(ctx, c)
	}
}

func (d *Driver) Move(_ context.Context, src, dst string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	srcParent, srcName, err := d.parentOf(src)
	if err != nil {
		return err
	}
	n, ok := srcParent.children[srcName]
	if !ok {
		return notExist(src)
	}
	dstParent, dstName, err := d.parentOf(dst)
	if err != nil {
		return err
	}
	if _, exists := dstParent.children[dstName]; exists {
		return fmt.Errorf("move to %s: %w", dst, fs.ErrExist)
	}
	delete(srcParent.children, srcName)
	dstParent.children[dstName] = n
	srcParent.modified = d.touch(srcParent.modified)
	dstParent.modified = d.touch(dstParent.modified)
	return nil
}

func (d *Driver) Copy(ctx context.Context, src, dst string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(src)
	if err != nil {
		return err
	}
	dstParent, dstName, err := d.parentOf(dst)
	if err != nil {
		return err
	}
	if _, exists := dstParent.children[dstName]; exists {
		return fmt.Errorf("copy to %s: %w", dst, fs.ErrExist)
	}
	cp, err := d.deepCopy(ctx, n)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	dstParent.children[dstName] = cp
	dstParent.modified = d.touch(dstParent.modified)
	return nil
}

func (d *Driver) deepCopy(ctx context.Context, n *node) (*node, error) {
	now := d.clock.Now()
	cp := &node{
		dir:        n.dir,
		mediaType:  n.mediaType,
		size:       n.size,
		compressed: n.compressed,
		created:    now,
		modified:   now,
	}
	if n.blobKey != "" {
		cp.blobKey = "blobs/" + uuid.NewString()
		if err := d.blobs.CopyObject(ctx, n.blobKey, cp.blobKey); err != nil {
			return nil, err
		}
	}
	if n.dir {
		cp.children = make(map[string]*node, len(n.children))
		for name, c := range n.children {
			cc, err := d.deepCopy(ctx, c)
			if err != nil {
				return nil, err
			}
			cp.children[name] = cc
		}
	}
	return cp, nil
}
