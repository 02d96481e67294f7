package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
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

const defaultGitHubAPI = "https://api.github.com"

// githubContent is the contents-API response for a single file.
type githubContent struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GitHub serves packs from a repository directory via the GitHub API:
// the contents API for manifests and single files, the tarball API for
// full-pack fetches. Same cache and checksum contract as Remote.
type GitHub struct {
	fs      types.FS
	client  *httpClient
	cache   *packCache
	cfg     types.SourceConfig
	apiBase string
	owner   string
	repo    string
	branch  string
	dir     string
	logger  zerolog.Logger
}

// NewGitHub creates a GitHub source. Recognized config keys: "owner" and
// "repo" (required), "branch" (default main), "path" (pack directory inside
// the repository, default packs), "token" (bearer auth), "apiUrl" and
// "ttlSeconds" (tests and self-hosted endpoints).
func NewGitHub(fs types.FS, cfg types.SourceConfig, cacheDir string) (*GitHub, error) {
	owner := cfg.Config["owner"]
	repo := cfg.Config["repo"]
	if owner == "" || repo == "" {
		return nil, errors.Newf(errors.ErrSourceInvalid, "github source %s needs owner and repo configured", cfg.ID)
	}

	branch := cfg.Config["branch"]
	if branch == "" {
		branch = "main"
	}
	dir := strings.Trim(cfg.Config["path"], "/")
	if dir == "" {
		dir = "packs"
	}
	apiBase := strings.TrimRight(cfg.Config["apiUrl"], "/")
	if apiBase == "" {
		apiBase = defaultGitHubAPI
	}

	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if token := cfg.Config["token"]; token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	ttl := DefaultCacheTTL
	if raw := cfg.Config["ttlSeconds"]; raw != "" {
		var seconds int64
		if _, err := fmt.Sscanf(raw, "%d", &seconds); err == nil && seconds > 0 {
			ttl = time.Duration(seconds) * time.Second
		}
	}

	return &GitHub{
		fs:      fs,
		client:  newHTTPClient(headers),
		cache:   newPackCache(fs, filepath.Join(cacheDir, cfg.ID), ttl),
		cfg:     cfg,
		apiBase: apiBase,
		owner:   owner,
		repo:    repo,
		branch:  branch,
		dir:     dir,
		logger:  logging.GetLogger("source.github"),
	}, nil
}

func (s *GitHub) Info() types.SourceInfo {
	return types.SourceInfo{
		ID:       s.cfg.ID,
		Type:     types.SourceGitHub,
		Enabled:  s.cfg.Enabled,
		Priority: s.cfg.Priority,
		Location: fmt.Sprintf("github.com/%s/%s", s.owner, s.repo),
	}
}

func (s *GitHub) contentsURL(repoPath string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", s.apiBase, s.owner, s.repo, repoPath, s.branch)
}

func (s *GitHub) tarballURL() string {
	return fmt.Sprintf("%s/repos/%s/%s/tarball/%s", s.apiBase, s.owner, s.repo, s.branch)
}

// fetchFile fetches and decodes a single file through the contents API.
func (s *GitHub) fetchFile(ctx context.Context, repoPath string) ([]byte, error) {
	data, err := s.client.get(ctx, s.contentsURL(repoPath))
	if err != nil {
		return nil, err
	}

	var content githubContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, errors.Wrapf(err, errors.ErrManifestParse, "unexpected contents response for %s", repoPath)
	}
	if content.Encoding != "base64" {
		return nil, errors.Newf(errors.ErrManifestParse, "unexpected encoding %q for %s", content.Encoding, repoPath)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrManifestParse, "cannot decode contents of %s", repoPath)
	}
	return decoded, nil
}

// ListPacks lists the directories under the configured pack path.
func (s *GitHub) ListPacks(ctx context.Context) ([]string, error) {
	data, err := s.client.get(ctx, s.contentsURL(s.dir))
	if err != nil {
		if errors.IsErrorCode(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var entries []githubContent
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(err, errors.ErrManifestParse, "unexpected directory listing for %s", s.dir)
	}

	var packs []string
	for _, entry := range entries {
		if entry.Type == "dir" {
			packs = append(packs, entry.Name)
		}
	}
	sort.Strings(packs)
	return packs, nil
}

func (s *GitHub) HasPack(ctx context.Context, name string) bool {
	if _, ok := s.cache.get(name); ok {
		return true
	}
	_, err := s.fetchFile(ctx, path.Join(s.dir, name, ManifestFileName))
	return err == nil
}

func (s *GitHub) LoadPack(ctx context.Context, name string) (*types.PackStructure, error) {
	if structure, ok := s.cache.get(name); ok {
		s.logger.Debug().Str("pack", name).Msg("Serving pack from cache")
		return structure, nil
	}

	manifestData, err := s.fetchFile(ctx, path.Join(s.dir, name, ManifestFileName))
	if err != nil {
		if errors.IsErrorCode(err, errors.ErrNotFound) {
			return nil, errors.Newf(errors.ErrNotFound, "pack %s not found in source %s", name, s.cfg.ID).
				WithDetail("pack", name).
				WithDetail("source", s.cfg.ID)
		}
		return nil, err
	}

	// A pack may declare its manifest checksum in an optional sidecar file;
	// verification follows the same integrity contract as Remote.
	var declared string
	if sumData, err := s.fetchFile(ctx, path.Join(s.dir, name, "manifest.checksum")); err == nil {
		declared = strings.TrimSpace(string(sumData))
	}
	if err := verifyChecksum(manifestData, declared); err != nil {
		return nil, err
	}

	manifest, err := parseManifest(manifestData, name)
	if err != nil {
		return nil, err
	}

	tarball, err := s.client.get(ctx, s.tarballURL())
	if err != nil {
		return nil, err
	}

	dir, err := s.cache.prepare(name)
	if err != nil {
		return nil, err
	}
	if err := archive.ExtractTarGz(s.fs, bytes.NewReader(tarball),
		dir, archive.SubdirAfterTopLevel(path.Join(s.dir, name))); err != nil {
		return nil, err
	}

	// The extracted tree normally carries the manifest too; make sure it is
	// present even for sparse tarballs so the cache round-trips.
	manifestPath := filepath.Join(dir, ManifestFileName)
	if _, statErr := s.fs.Stat(manifestPath); statErr != nil {
		if err := s.fs.WriteFile(manifestPath, manifestData, 0644); err != nil {
			return nil, errors.Wrapf(err, errors.ErrFileWrite, "cannot materialize manifest for pack %s", name)
		}
	}

	return s.cache.store(name, manifest, declared)
}

func (s *GitHub) ComponentPath(pack *types.PackStructure, componentType types.ComponentType, name string) string {
	return componentPath(pack, componentType, name)
}

func (s *GitHub) HasComponent(ctx context.Context, pack *types.PackStructure, componentType types.ComponentType, name string) bool {
	if _, err := s.fs.Stat(componentPath(pack, componentType, name)); err == nil {
		return true
	}
	// Fall back to the contents API so a single component can be checked
	// without a full pack fetch.
	packName := pack.Manifest.Name
	_, err := s.fetchFile(ctx, path.Join(s.dir, packName, string(componentType), name+componentType.Extension()))
	return err == nil
}

func (s *GitHub) ClearExpiredCache() error {
	return s.cache.clearExpired()
}

func (s *GitHub) ClearAllCache() error {
	return s.cache.clearAll()
}
