package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/arthur-debert/agentpack/pkg/errors"
	"github.com/arthur-debert/agentpack/pkg/logging"
	"github.com/arthur-debert/agentpack/pkg/types"
	"github.com/rs/zerolog"
)

// Local serves packs from a directory of pack directories, each holding a
// manifest.json plus per-type component subdirectories.
type Local struct {
	fs     types.FS
	root   string
	cfg    types.SourceConfig
	logger zerolog.Logger
}

// NewLocal creates a local source rooted at cfg.Config["path"].
func NewLocal(fs types.FS, cfg types.SourceConfig) *Local {
	return &Local{
		fs:     fs,
		root:   cfg.Config["path"],
		cfg:    cfg,
		logger: logging.GetLogger("source.local"),
	}
}

func (s *Local) Info() types.SourceInfo {
	return types.SourceInfo{
		ID:       s.cfg.ID,
		Type:     types.SourceLocal,
		Enabled:  s.cfg.Enabled,
		Priority: s.cfg.Priority,
		Location: s.root,
	}
}

// ListPacks returns the sorted names of directories containing a readable,
// parseable manifest. Unreadable entries are skipped, never aborting the
// listing.
func (s *Local) ListPacks(ctx context.Context) ([]string, error) {
	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrFileAccess, "cannot read local pack directory").
			WithDetail("path", s.root)
	}

	var packs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := s.fs.ReadFile(filepath.Join(s.root, entry.Name(), ManifestFileName))
		if err != nil {
			s.logger.Trace().Str("pack", entry.Name()).Msg("Skipping directory without readable manifest")
			continue
		}
		if _, err := parseManifest(data, entry.Name()); err != nil {
			s.logger.Debug().Str("pack", entry.Name()).Err(err).Msg("Skipping directory with invalid manifest")
			continue
		}
		packs = append(packs, entry.Name())
	}

	sort.Strings(packs)
	return packs, nil
}

func (s *Local) HasPack(ctx context.Context, name string) bool {
	_, err := s.fs.Stat(filepath.Join(s.root, name, ManifestFileName))
	return err == nil
}

func (s *Local) LoadPack(ctx context.Context, name string) (*types.PackStructure, error) {
	packDir := filepath.Join(s.root, name)
	data, err := s.fs.ReadFile(filepath.Join(packDir, ManifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrNotFound, "pack %s not found in source %s", name, s.cfg.ID).
				WithDetail("pack", name).
				WithDetail("source", s.cfg.ID)
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "cannot read manifest for pack %s", name)
	}

	manifest, err := parseManifest(data, name)
	if err != nil {
		return nil, err
	}

	return &types.PackStructure{Manifest: manifest, Path: packDir}, nil
}

func (s *Local) ComponentPath(pack *types.PackStructure, componentType types.ComponentType, name string) string {
	return componentPath(pack, componentType, name)
}

func (s *Local) HasComponent(ctx context.Context, pack *types.PackStructure, componentType types.ComponentType, name string) bool {
	_, err := s.fs.Stat(componentPath(pack, componentType, name))
	return err == nil
}

// ClearExpiredCache is a no-op: local packs are read straight from disk.
func (s *Local) ClearExpiredCache() error { return nil }

// ClearAllCache is a no-op: local packs are read straight from disk.
func (s *Local) ClearAllCache() error { return nil }
