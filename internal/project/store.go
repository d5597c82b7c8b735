package project

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/apperr"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/auth"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

// ConfigStore persists top-level project configurations keyed by project
// path. Module configurations travel inside their parent.
type ConfigStore interface {
	// Load returns the configuration stored for path, or nil when there is
	// none.
	Load(ctx context.Context, path string) (*Config, error)
	Save(ctx context.Context, cfg *Config) error
	// Delete removes the configuration for path. Deleting a missing
	// configuration succeeds.
	Delete(ctx context.Context, path string) error
	List(ctx context.Context) ([]*Config, error)
}

// MarkerFolder holds agent metadata inside a project folder. It is hidden
// from listings.
const MarkerFolder = ".wsagent"

const configFile = "project.json"

// FolderConfigStore keeps each configuration as JSON inside the project
// folder, so it follows the folder on move and copy.
type FolderConfigStore struct {
	fsys *vfs.FileSystem
}

// NewFolderConfigStore returns a store writing into fsys.
func NewFolderConfigStore(fsys *vfs.FileSystem) *FolderConfigStore {
	return &FolderConfigStore{fsys: fsys}
}

// Metadata files belong to the agent, not to the caller.
func system(ctx context.Context) context.Context {
	return auth.WithPrincipal(ctx, nil)
}

func (s *FolderConfigStore) Load(ctx context.Context, p string) (*Config, error) {
	ctx = system(ctx)
	p = vfs.Clean(p)
	f, err := s.fsys.Get(ctx, vfs.Join(p, MarkerFolder+"/"+configFile))
	if err != nil || f == nil || !f.IsFile() {
		return nil, err
	}
	data, err := f.ContentBytes(ctx)
	if err != nil {
		return nil, err
	}
	return decodeConfig(data, p)
}

// decodeConfig parses a stored configuration and rebases it onto p when it
// was written for another path.
func decodeConfig(data []byte, p string) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, apperr.Wrap(apperr.ErrServer, err, fmt.Sprintf("decode configuration of %s", p))
	}
	if cfg.Path != "" && cfg.Path != p {
		cfg.rebase(cfg.Path, p)
	}
	cfg.Path = p
	if cfg.Attributes == nil {
		cfg.Attributes = map[string][]string{}
	}
	return &cfg, nil
}

func (s *FolderConfigStore) Save(ctx context.Context, cfg *Config) error {
	ctx = system(ctx)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode configuration of %s: %w", cfg.Path, err)
	}
	folder, err := s.fsys.Get(ctx, cfg.Path)
	if err != nil {
		return err
	}
	if folder == nil || !folder.IsFolder() {
		return apperr.NotFoundf("project folder %s does not exist", cfg.Path)
	}
	meta, err := folder.CreateFolder(ctx, MarkerFolder)
	if err != nil {
		return err
	}
	existing, err := meta.Child(ctx, configFile)
	if err != nil {
		return err
	}
	if existing != nil {
		return existing.UpdateContent(ctx, data)
	}
	_, err = meta.CreateFile(ctx, configFile, data)
	return err
}

func (s *FolderConfigStore) Delete(ctx context.Context, p string) error {
	ctx = system(ctx)
	meta, err := s.fsys.Get(ctx, vfs.Join(p, MarkerFolder))
	if err != nil || meta == nil {
		return err
	}
	return meta.Delete(ctx)
}

func (s *FolderConfigStore) List(ctx context.Context) ([]*Config, error) {
	ctx = system(ctx)
	root, err := s.fsys.Root(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Config
	err = root.Walk(ctx, func(f *vfs.File) error {
		if f.IsFile() || f.Name() != MarkerFolder {
			return nil
		}
		cfg, err := s.Load(ctx, vfs.Parent(f.Path()))
		if err != nil {
			return err
		}
		if cfg != nil {
			out = append(out, cfg)
		}
		return vfs.SkipDir
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
