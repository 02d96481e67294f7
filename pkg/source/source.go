package source

import (
	"encoding/json"
	"path/filepath"

	"github.com/arthur-debert/agentpack/pkg/errors"
	"github.com/arthur-debert/agentpack/pkg/types"
)

// ManifestFileName is the manifest file every pack carries at its root.
const ManifestFileName = "manifest.json"

// New constructs a pack source from its persisted configuration. Remote
// sources keep their on-disk cache under cacheDir.
func New(fs types.FS, cfg types.SourceConfig, cacheDir string) (types.PackSource, error) {
	switch cfg.Type {
	case types.SourceLocal:
		return NewLocal(fs, cfg), nil
	case types.SourceRemote:
		return NewRemote(fs, cfg, cacheDir)
	case types.SourceGitHub:
		return NewGitHub(fs, cfg, cacheDir)
	default:
		return nil, errors.Newf(errors.ErrSourceInvalid, "unknown source type %q for source %s", cfg.Type, cfg.ID)
	}
}

// parseManifest decodes manifest bytes, mapping failures to a parse error.
func parseManifest(data []byte, packName string) (*types.PackManifest, error) {
	var manifest types.PackManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, errors.Wrapf(err, errors.ErrManifestParse, "invalid manifest for pack %s", packName).
			WithDetail("pack", packName)
	}
	return &manifest, nil
}

// componentPath locates a single component file under a pack's components
// root. Shared by every source shape: once a pack is materialized locally,
// component layout is identical.
func componentPath(pack *types.PackStructure, componentType types.ComponentType, name string) string {
	return filepath.Join(pack.ComponentsRoot(), string(componentType), name+componentType.Extension())
}
