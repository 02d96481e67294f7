package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arthur-debert/agentpack/pkg/archive"
	"github.com/arthur-debert/agentpack/pkg/errors"
	"github.com/arthur-debert/agentpack/pkg/logging"
	"github.com/arthur-debert/agentpack/pkg/types"
	"github.com/rs/zerolog"
)

// remoteMetadata is the optional per-pack metadata document a remote
// endpoint may serve next to the archive, declaring the archive checksum.
type remoteMetadata struct {
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

// remoteIndex is the endpoint's pack listing document.
type remoteIndex struct {
	Packs []string `json:"packs"`
}

// Remote serves packs from a generic HTTP endpoint publishing
// <base>/index.json, <base>/packs/<name>.json (optional metadata) and
// <base>/packs/<name>.tar.gz archives. Fetches go memory cache → disk
// cache → network.
type Remote struct {
	fs      types.FS
	baseURL string
	client  *httpClient
	cache   *packCache
	cfg     types.SourceConfig
	logger  zerolog.Logger
}

// NewRemote creates a remote source from its configuration. Recognized
// config keys: "url" (required), "ttlSeconds" (optional cache TTL).
func NewRemote(fs types.FS, cfg types.SourceConfig, cacheDir string) (*Remote, error) {
	baseURL := strings.TrimRight(cfg.Config["url"], "/")
	if baseURL == "" {
		return nil, errors.Newf(errors.ErrSourceInvalid, "remote source %s has no url configured", cfg.ID)
	}

	ttl := DefaultCacheTTL
	if raw := cfg.Config["ttlSeconds"]; raw != "" {
		var seconds int64
		if _, err := fmt.Sscanf(raw, "%d", &seconds); err == nil && seconds > 0 {
			ttl = time.Duration(seconds) * time.Second
		}
	}

	return &Remote{
		fs:      fs,
		baseURL: baseURL,
		client:  newHTTPClient(nil),
		cache:   newPackCache(fs, filepath.Join(cacheDir, cfg.ID), ttl),
		cfg:     cfg,
		logger:  logging.GetLogger("source.remote"),
	}, nil
}

func (s *Remote) Info() types.SourceInfo {
	return types.SourceInfo{
		ID:       s.cfg.ID,
		Type:     types.SourceRemote,
		Enabled:  s.cfg.Enabled,
		Priority: s.cfg.Priority,
		Location: s.baseURL,
	}
}

func (s *Remote) indexURL() string {
	return s.baseURL + "/index.json"
}

func (s *Remote) metadataURL(name string) string {
	return s.baseURL + "/packs/" + name + ".json"
}

func (s *Remote) archiveURL(name string) string {
	return s.baseURL + "/packs/" + name + ".tar.gz"
}

func (s *Remote) ListPacks(ctx context.Context) ([]string, error) {
	data, err := s.client.get(ctx, s.indexURL())
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrNetwork, "cannot list packs from %s", s.baseURL)
	}

	var index remoteIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, errors.Wrapf(err, errors.ErrManifestParse, "invalid pack index from %s", s.baseURL)
	}

	packs := append([]string(nil), index.Packs...)
	sort.Strings(packs)
	return packs, nil
}

func (s *Remote) HasPack(ctx context.Context, name string) bool {
	if _, ok := s.cache.get(name); ok {
		return true
	}
	status, err := s.client.head(ctx, s.archiveURL(name))
	return err == nil && status == http.StatusOK
}

func (s *Remote) LoadPack(ctx context.Context, name string) (*types.PackStructure, error) {
	if structure, ok := s.cache.get(name); ok {
		s.logger.Debug().Str("pack", name).Msg("Serving pack from cache")
		return structure, nil
	}

	// Metadata is optional: endpoints that do not publish it simply skip
	// checksum verification.
	var declared string
	if metaData, err := s.client.get(ctx, s.metadataURL(name)); err == nil {
		var meta remoteMetadata
		if err := json.Unmarshal(metaData, &meta); err == nil {
			declared = meta.Checksum
		}
	}

	archiveData, err := s.client.get(ctx, s.archiveURL(name))
	if err != nil {
		if errors.IsErrorCode(err, errors.ErrNotFound) {
			return nil, errors.Newf(errors.ErrNotFound, "pack %s not found in source %s", name, s.cfg.ID).
				WithDetail("pack", name).
				WithDetail("source", s.cfg.ID)
		}
		return nil, err
	}

	if err := verifyChecksum(archiveData, declared); err != nil {
		// The cache is left untouched on integrity failures.
		return nil, err
	}

	dir, err := s.cache.prepare(name)
	if err != nil {
		return nil, err
	}
	if err := archive.ExtractTarGz(s.fs, bytes.NewReader(archiveData), dir, archive.StripTopLevel()); err != nil {
		return nil, err
	}

	manifestData, err := s.fs.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, errors.Newf(errors.ErrManifestInvalid, "archive for pack %s contains no manifest", name)
	}
	manifest, err := parseManifest(manifestData, name)
	if err != nil {
		return nil, err
	}

	return s.cache.store(name, manifest, declared)
}

func (s *Remote) ComponentPath(pack *types.PackStructure, componentType types.ComponentType, name string) string {
	return componentPath(pack, componentType, name)
}

func (s *Remote) HasComponent(ctx context.Context, pack *types.PackStructure, componentType types.ComponentType, name string) bool {
	_, err := s.fs.Stat(componentPath(pack, componentType, name))
	return err == nil
}

func (s *Remote) ClearExpiredCache() error {
	return s.cache.clearExpired()
}

func (s *Remote) ClearAllCache() error {
	return s.cache.clearAll()
}
