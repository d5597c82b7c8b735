// Package local is a vfs.Driver backed by a directory on disk.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

// Driver maps vfs paths onto files below a root directory. Media types are
// detected from names; explicit overrides are kept in memory.
type Driver struct {
	root string

	mu         sync.RWMutex
	mediaTypes map[string]string
}

// New creates a driver rooted at dir, creating it if needed.
func New(dir string) (*Driver, error) {
	if dir == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root %s: %w", abs, err)
	}
	return &Driver{root: abs, mediaTypes: make(map[string]string)}, nil
}

// NewFileSystem is shorthand for vfs.New over a local driver.
func NewFileSystem(dir string) (*vfs.FileSystem, *Driver, error) {
	d, err := New(dir)
	if err != nil {
		return nil, nil, err
	}
	return vfs.New(d), d, nil
}

// RootDir returns the absolute directory backing the workspace root.
func (d *Driver) RootDir() string { return d.root }

// OSPath maps a vfs path to a filesystem path.
func (d *Driver) OSPath(p string) string {
	return filepath.Join(d.root, filepath.FromSlash(vfs.Clean(p)))
}

// VFSPath maps a filesystem path below the root back to a vfs path. ok is
// false for paths outside the root.
func (d *Driver) VFSPath(osPath string) (string, bool) {
	rel, err := filepath.Rel(d.root, osPath)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return vfs.Clean(rel), true
}

func (d *Driver) Kind() string { return "local" }

// normalize maps "a path element is a file" to fs.ErrNotExist.
func normalize(err error) error {
	if errors.Is(err, syscall.ENOTDIR) {
		return fmt.Errorf("%v: %w", err, fs.ErrNotExist)
	}
	return err
}

func (d *Driver) info(p string, fi fs.FileInfo) vfs.Info {
	in := vfs.Info{
		Path:     p,
		Dir:      fi.IsDir(),
		Created:  fi.ModTime(),
		Modified: fi.ModTime(),
	}
	if in.Dir {
		in.MediaType = vfs.MediaTypeFolder
		return in
	}
	in.Size = fi.Size()
	d.mu.RLock()
	mt, ok := d.mediaTypes[p]
	d.mu.RUnlock()
	if !ok {
		mt = vfs.DetectMediaType(fi.Name(), nil)
	}
	in.MediaType = mt
	return in
}

func (d *Driver) Stat(_ context.Context, p string) (vfs.Info, error) {
	fi, err := os.Stat(d.OSPath(p))
	if err != nil {
		return vfs.Info{}, normalize(err)
	}
	return d.info(p, fi), nil
}

func (d *Driver) List(_ context.Context, p string) ([]vfs.Info, error) {
	entries, err := os.ReadDir(d.OSPath(p))
	if err != nil {
		return nil, normalize(err)
	}
	out := make([]vfs.Info, 0, len(entries))
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		out = append(out, d.info(vfs.Join(p, e.Name()), fi))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (d *Driver) Mkdir(_ context.Context, p string) error {
	return normalize(os.Mkdir(d.OSPath(p), 0o755))
}

func (d *Driver) WriteFile(_ context.Context, p string, data []byte, mediaType string) error {
	if err := os.WriteFile(d.OSPath(p), data, 0o644); err != nil {
		return normalize(err)
	}
	if mediaType != "" {
		d.mu.Lock()
		d.mediaTypes[p] = mediaType
		d.mu.Unlock()
	}
	return nil
}

func (d *Driver) Open(_ context.Context, p string) (io.ReadCloser, error) {
	f, err := os.Open(d.OSPath(p))
	if err != nil {
		return nil, normalize(err)
	}
	return f, nil
}

func (d *Driver) SetMediaType(_ context.Context, p, mediaType string) error {
	if _, err := os.Stat(d.OSPath(p)); err != nil {
		return normalize(err)
	}
	d.mu.Lock()
	d.mediaTypes[p] = mediaType
	d.mu.Unlock()
	return nil
}

func (d *Driver) Remove(_ context.Context, p string) error {
	target := d.OSPath(p)
	if _, err := os.Lstat(target); err != nil {
		return normalize(err)
	}
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	d.rekey(p, "")
	return nil
}

func (d *Driver) Move(_ context.Context, src, dst string) error {
	if _, err := os.Lstat(d.OSPath(dst)); err == nil {
		return fmt.Errorf("move to %s: %w", dst, fs.ErrExist)
	}
	if err := os.Rename(d.OSPath(src), d.OSPath(dst)); err != nil {
		return normalize(err)
	}
	d.rekey(src, dst)
	return nil
}

// rekey moves media type overrides of a subtree to dst, or drops them
// when dst is empty.
func (d *Driver) rekey(src, dst string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for p, mt := range d.mediaTypes {
		if p != src && !vfs.IsAncestor(src, p) {
			continue
		}
		delete(d.mediaTypes, p)
		if dst != "" {
			d.mediaTypes[vfs.Rebase(p, src, dst)] = mt
		}
	}
}

func (d *Driver) Copy(_ context.Context, src, dst string) error {
	if _, err := os.Lstat(d.OSPath(dst)); err == nil {
		return fmt.Errorf("copy to %s: %w", dst, fs.ErrExist)
	}
	srcRoot := d.OSPath(src)
	dstRoot := d.OSPath(dst)
	err := filepath.WalkDir(srcRoot, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dstRoot, rel)
		if e.IsDir() {
			return os.Mkdir(target, 0o755)
		}
		return copyFile(path, target)
	})
	if err != nil {
		return normalize(err)
	}

	d.mu.Lock()
	for p, mt := range d.mediaTypes {
		if p == src || vfs.IsAncestor(src, p) {
			d.mediaTypes[vfs.Rebase(p, src, dst)] = mt
		}
	}
	d.mu.Unlock()
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
