package projecttype

import (
	"context"
	"strings"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
)

// ErrReadOnlyProvider is returned by SetValues of providers that cannot
// store values.
var ErrReadOnlyProvider = apperr.ValueStoragef("value provider is read-only")

type readOnly struct {
	folder *entry.FolderEntry
	fn     func(ctx context.Context, folder *entry.FolderEntry, name string) ([]string, error)
}

func (p readOnly) Values(ctx context.Context, name string) ([]string, error) {
	return p.fn(ctx, p.folder, name)
}

func (readOnly) SetValues(context.Context, string, []string) error { return ErrReadOnlyProvider }

// ReadOnlyProvider returns a factory for providers that compute values with
// fn and reject writes.
func ReadOnlyProvider(fn func(ctx context.Context, folder *entry.FolderEntry, name string) ([]string, error)) ValueProviderFactory {
	return FactoryFunc(func(folder *entry.FolderEntry) ValueProvider {
		return readOnly{folder: folder, fn: fn}
	})
}

// MarkerFileProvider yields values when the project folder contains marker
// and fails otherwise, which makes a required attribute detect the type.
func MarkerFileProvider(marker string, values ...string) ValueProviderFactory {
	return ReadOnlyProvider(func(ctx context.Context, folder *entry.FolderEntry, name string) ([]string, error) {
		if folder == nil {
			return nil, apperr.ValueStoragef("attribute %s: no project folder", name)
		}
		c, err := folder.GetChild(ctx, marker)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrValueStorage, err, "attribute "+name)
		}
		if c == nil {
			return nil, apperr.ValueStoragef("attribute %s: %s not found in %s", name, marker, folder.Path())
		}
		return append([]string(nil), values...), nil
	})
}

type fileContent struct {
	folder *entry.FolderEntry
	rel    string
}

// FileContentProvider stores an attribute as the lines of a file below the
// project folder.
func FileContentProvider(relPath string) ValueProviderFactory {
	return FactoryFunc(func(folder *entry.FolderEntry) ValueProvider {
		return fileContent{folder: folder, rel: relPath}
	})
}

func (p fileContent) Values(ctx context.Context, name string) ([]string, error) {
	f, err := p.folder.GetChildFile(ctx, p.rel)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrValueStorage, err, "attribute "+name)
	}
	if f == nil {
		return nil, apperr.ValueStoragef("attribute %s: %s not found", name, p.rel)
	}
	data, err := f.ContentAsBytes(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrValueStorage, err, "attribute "+name)
	}
	var values []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			values = append(values, line)
		}
	}
	return values, nil
}

func (p fileContent) SetValues(ctx context.Context, name string, values []string) error {
	content := []byte(strings.Join(values, "\n"))
	f, err := p.folder.GetChildFile(ctx, p.rel)
	if err != nil {
		return apperr.Wrap(apperr.ErrValueStorage, err, "attribute "+name)
	}
	if f != nil {
		return wrapValueErr(f.UpdateContent(ctx, content), name)
	}

	dir := p.folder
	parts := strings.Split(strings.Trim(p.rel, "/"), "/")
	if len(parts) > 1 {
		if dir, err = p.folder.CreateFolder(ctx, strings.Join(parts[:len(parts)-1], "/")); err != nil {
			return wrapValueErr(err, name)
		}
	}
	_, err = dir.CreateFile(ctx, parts[len(parts)-1], content)
	return wrapValueErr(err, name)
}

func wrapValueErr(err error, name string) error {
	if err == nil || apperr.IsValueStorage(err) {
		return err
	}
	return apperr.Wrap(apperr.ErrValueStorage, err, "store attribute "+name)
}
