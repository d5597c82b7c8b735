package vfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
)

// Unzip extracts a zip archive into folder f. Existing files are
// overwritten. skipFirstLevel drops the archive's top-level folder (the
// archive root is the project root); stripComponents drops that many more
// leading path elements. Entries left with no path are ignored.
func (f *File) Unzip(ctx context.Context, r io.Reader, skipFirstLevel bool, stripComponents int) error {
	if err := f.requireFolder("unzip"); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return apperr.Wrap(apperr.ErrServer, err, "read archive")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return apperr.Wrap(apperr.ErrServer, err, "open archive")
	}

	strip := stripComponents
	if skipFirstLevel {
		strip++
	}

	fsys := f.fsys
	var events []ChangeEvent
	fsys.mu.Lock()
	err = func() error {
		if err := fsys.checkLocked(ctx, f.info.Path, PermWrite); err != nil {
			return err
		}
		for _, entry := range zr.File {
			segs := Segments(entry.Name)
			for _, s := range segs {
				if s == ".." {
					return apperr.Serverf("archive entry %q leaves the target folder", entry.Name)
				}
			}
			if len(segs) <= strip {
				continue
			}
			target := Join(f.info.Path, strings.Join(segs[strip:], "/"))

			if entry.FileInfo().IsDir() {
				created, err := fsys.mkdirAllLocked(ctx, target)
				events = append(events, createdEvents(created)...)
				if err != nil {
					return err
				}
				continue
			}

			created, err := fsys.mkdirAllLocked(ctx, Parent(target))
			events = append(events, createdEvents(created)...)
			if err != nil {
				return err
			}
			content, err := readZipEntry(entry)
			if err != nil {
				return err
			}

			kind := Created
			existing, statErr := fsys.driver.Stat(ctx, target)
			switch {
			case statErr == nil && existing.Dir:
				return apperr.Conflictf("archive file %s collides with a folder", target)
			case statErr == nil:
				kind = Modified
			case !errors.Is(statErr, fs.ErrNotExist):
				return fsys.storeErr("stat", target, statErr)
			}
			if err := fsys.driver.WriteFile(ctx, target, content, DetectMediaType(target, content)); err != nil {
				return fsys.storeErr("write", target, err)
			}
			events = append(events, ChangeEvent{Kind: kind, Path: target})
		}
		return nil
	}()
	fsys.mu.Unlock()

	fsys.notify(events...)
	if err != nil {
		return err
	}
	fsys.ok("unzip")
	return nil
}

func readZipEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrServer, err, "open archive entry "+entry.Name)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrServer, err, "read archive entry "+entry.Name)
	}
	return content, nil
}

// Zip writes folder f as a zip archive to w. Entry names are relative to f
// and folders are stored with a trailing slash.
func (f *File) Zip(ctx context.Context, w io.Writer) error {
	if err := f.requireFolder("zip"); err != nil {
		return err
	}
	fsys := f.fsys
	zw := zip.NewWriter(w)

	fsys.mu.RLock()
	err := func() error {
		if err := fsys.checkLocked(ctx, f.info.Path, PermRead); err != nil {
			return err
		}
		return fsys.walkLocked(ctx, f, func(n *File) error {
			if n.info.Path == f.info.Path {
				return nil
			}
			name := strings.TrimPrefix(Rebase(n.info.Path, f.info.Path, Root), "/")
			hdr := &zip.FileHeader{Name: name, Modified: n.info.Modified}
			if n.info.Dir {
				hdr.Name += "/"
				_, err := zw.CreateHeader(hdr)
				return err
			}
			hdr.Method = zip.Deflate
			out, err := zw.CreateHeader(hdr)
			if err != nil {
				return err
			}
			rc, err := fsys.driver.Open(ctx, n.info.Path)
			if err != nil {
				return fsys.storeErr("open", n.info.Path, err)
			}
			defer rc.Close()
			_, err = io.Copy(out, rc)
			return err
		})
	}()
	fsys.mu.RUnlock()
	if err != nil {
		if apperr.Kind(err) != nil {
			return err
		}
		return apperr.Wrap(apperr.ErrServer, err, fmt.Sprintf("zip %s", f.info.Path))
	}
	if err := zw.Close(); err != nil {
		return apperr.Wrap(apperr.ErrServer, err, "finish archive")
	}
	fsys.ok("zip")
	return nil
}
