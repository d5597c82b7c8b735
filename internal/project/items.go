package project

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

var errSearchLimit = errors.New("search limit reached")

func visible(e entry.Entry) bool { return e.Name() != MarkerFolder }

// describe builds the reference of e. Project folders carry the computed
// project attributes; GetItem handlers of the owning project's types may
// adjust the reported attributes.
func (m *Manager) describe(ctx context.Context, e entry.Entry) (*ItemReference, error) {
	f := e.VirtualFile()
	ref := &ItemReference{
		Name:        e.Name(),
		Path:        e.Path(),
		Type:        ItemFile,
		MediaType:   e.MediaType(),
		Created:     e.Created(),
		Modified:    e.Modified(),
		Attributes:  map[string][]string{},
		Permissions: f.Permissions(ctx),
	}
	if e.IsFolder() {
		ref.Type = ItemFolder
	} else {
		ref.Size = f.Size()
	}

	_, cfg, err := m.owner(ctx, e.Path())
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return ref, nil
	}
	folder, err := entry.LookupFolder(ctx, m.fsys, cfg.Path)
	if err != nil || folder == nil {
		return ref, err
	}
	proj := m.materialize(ctx, folder, cfg)
	ref.Project = proj.Path
	if e.IsFolder() && cfg.Path == e.Path() {
		ref.Type = ItemProject
		ref.Attributes = cloneAttributes(proj.Attributes)
	}
	for _, def := range proj.Types().All() {
		for _, h := range m.handlers.GetItem(def.ID) {
			if err := h.OnGetItem(ctx, e, ref.Attributes); err != nil {
				return nil, fmt.Errorf("get item %s: %w", e.Path(), err)
			}
		}
	}
	return ref, nil
}

// GetItem describes the item at p.
func (m *Manager) GetItem(ctx context.Context, p string) (ref *ItemReference, err error) {
	defer m.observe("get_item", time.Now(), &err)
	e, err := entry.Lookup(ctx, m.fsys, vfs.Clean(p))
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.NotFoundf("item %s does not exist", p)
	}
	return m.describe(ctx, e)
}

func (m *Manager) folderAt(ctx context.Context, p string) (*entry.FolderEntry, error) {
	folder, err := entry.LookupFolder(ctx, m.fsys, vfs.Clean(p))
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, apperr.NotFoundf("folder %s does not exist", p)
	}
	return folder, nil
}

// GetChildren describes the direct children of the folder at p.
func (m *Manager) GetChildren(ctx context.Context, p string) (out []*ItemReference, err error) {
	defer m.observe("get_children", time.Now(), &err)
	folder, err := m.folderAt(ctx, p)
	if err != nil {
		return nil, err
	}
	children, err := folder.Children(ctx, visible)
	if err != nil {
		return nil, err
	}
	out = make([]*ItemReference, 0, len(children))
	for _, c := range children {
		ref, err := m.describe(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, nil
}

// GetTree describes the folder at p and its descendants down to depth
// levels. A negative depth is unlimited. Files are included only with
// includeFiles.
func (m *Manager) GetTree(ctx context.Context, p string, depth int, includeFiles bool) (tree *TreeElement, err error) {
	defer m.observe("get_tree", time.Now(), &err)
	folder, err := m.folderAt(ctx, p)
	if err != nil {
		return nil, err
	}
	return m.tree(ctx, folder, depth, includeFiles)
}

func (m *Manager) tree(ctx context.Context, e entry.Entry, depth int, includeFiles bool) (*TreeElement, error) {
	ref, err := m.describe(ctx, e)
	if err != nil {
		return nil, err
	}
	node := &TreeElement{Node: *ref}
	folder, ok := e.(*entry.FolderEntry)
	if !ok || depth == 0 {
		return node, nil
	}
	children, err := folder.Children(ctx, func(c entry.Entry) bool {
		return visible(c) && (includeFiles || c.IsFolder())
	})
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		child, err := m.tree(ctx, c, depth-1, includeFiles)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

// SearchOptions selects files in Search. Name is a glob matched against
// file names; Text must occur in the file content. Empty criteria match
// everything. MaxItems of zero or less is unlimited.
type SearchOptions struct {
	Name     string
	Text     string
	MaxItems int
	Skip     int
}

// Search returns the files below p matching opts, in path order.
func (m *Manager) Search(ctx context.Context, p string, opts SearchOptions) (out []*ItemReference, err error) {
	defer m.observe("search", time.Now(), &err)
	if opts.Name != "" {
		if _, err := path.Match(opts.Name, ""); err != nil {
			return nil, apperr.Conflictf("invalid name pattern %q", opts.Name)
		}
	}
	folder, err := m.folderAt(ctx, p)
	if err != nil {
		return nil, err
	}

	var matches []entry.Entry
	skipped := 0
	err = folder.Walk(ctx, func(e entry.Entry) error {
		if e.IsFolder() {
			if !visible(e) {
				return vfs.SkipDir
			}
			return nil
		}
		ok, err := matchFile(ctx, e.(*entry.FileEntry), opts)
		if err != nil || !ok {
			return err
		}
		if skipped < opts.Skip {
			skipped++
			return nil
		}
		matches = append(matches, e)
		if opts.MaxItems > 0 && len(matches) >= opts.MaxItems {
			return errSearchLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errSearchLimit) {
		return nil, err
	}

	out = make([]*ItemReference, 0, len(matches))
	for _, e := range matches {
		ref, err := m.describe(ctx, e)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, nil
}

func matchFile(ctx context.Context, f *entry.FileEntry, opts SearchOptions) (bool, error) {
	if opts.Name != "" {
		if ok, _ := path.Match(opts.Name, f.Name()); !ok {
			return false, nil
		}
	}
	if opts.Text == "" {
		return true, nil
	}
	data, err := f.ContentAsBytes(ctx)
	if err != nil {
		return false, err
	}
	return bytes.Contains(data, []byte(opts.Text)), nil
}

// ExportZip writes the folder at p as a zip archive to w.
func (m *Manager) ExportZip(ctx context.Context, p string, w io.Writer) (err error) {
	defer m.observe("export_zip", time.Now(), &err)
	folder, err := m.folderAt(ctx, p)
	if err != nil {
		return err
	}
	return folder.Zip(ctx, w)
}

// ImportZip extracts a zip archive into the folder at p.
func (m *Manager) ImportZip(ctx context.Context, p string, r io.Reader, skipFirstLevel bool) (err error) {
	defer m.observe("import_zip", time.Now(), &err)
	folder, err := m.folderAt(ctx, p)
	if err != nil {
		return err
	}
	return folder.Unzip(ctx, r, skipFirstLevel, 0)
}
