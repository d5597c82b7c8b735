package importer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/entry"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vcs/git"
)

// GitImporter clones a repository and copies the work tree, .git included,
// into the project folder. Parameters: branch, depth, keepDir (import a
// single subdirectory, dropping VCS metadata).
type GitImporter struct {
	// TempDir holds clones while they are copied; empty means os.TempDir.
	TempDir string
}

func (GitImporter) Type() string { return "git" }

func (g GitImporter) Import(ctx context.Context, base *entry.FolderEntry, src Source, out LineConsumer) error {
	tmp, err := os.MkdirTemp(g.TempDir, "wsagent-clone-*")
	if err != nil {
		return apperr.Wrap(apperr.ErrServer, err, "create clone directory")
	}
	defer os.RemoveAll(tmp)

	depth, _ := strconv.Atoi(src.Param("depth", "0"))
	dest := filepath.Join(tmp, "repo")
	opts := git.CloneOptions{Branch: src.Param("branch", ""), Depth: depth}
	if err := git.Clone(ctx, src.Location, dest, opts, out.WriteLine); err != nil {
		return apperr.Wrap(apperr.ErrServer, err, "clone")
	}

	root := dest
	if keep := strings.Trim(src.Param("keepDir", ""), "/"); keep != "" {
		root = filepath.Join(dest, filepath.FromSlash(keep))
		if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
			return apperr.NotFoundf("directory %s not found in %s", keep, src.Location)
		}
	}
	out.WriteLine("Copying into " + base.Path())
	return CopyDir(ctx, root, base)
}

// CopyDir copies the directory tree at dir into folder, overwriting files
// that already exist. Symbolic links are skipped.
func CopyDir(ctx context.Context, dir string, folder *entry.FolderEntry) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch {
		case d.IsDir():
			_, err := folder.CreateFolder(ctx, rel)
			return err
		case d.Type()&fs.ModeSymlink != 0:
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return apperr.Wrap(apperr.ErrServer, err, "read "+p)
		}
		parent := folder
		if i := strings.LastIndex(rel, "/"); i >= 0 {
			if parent, err = folder.GetChildFolder(ctx, rel[:i]); err != nil {
				return err
			}
		}
		existing, err := parent.GetChildFile(ctx, d.Name())
		if err != nil {
			return err
		}
		if existing != nil {
			return existing.UpdateContent(ctx, data)
		}
		_, err = parent.CreateFile(ctx, d.Name(), data)
		return err
	})
}
