package source

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/arthur-debert/agentpack/pkg/errors"
	"github.com/arthur-debert/agentpack/pkg/internal/hashutil"
	"github.com/arthur-debert/agentpack/pkg/types"
)

// DefaultCacheTTL is how long fetched pack content is reused before the
// source of truth is consulted again.
const DefaultCacheTTL = 5 * time.Minute

// cacheMetadataFile sits next to the extracted files of a cached pack.
const cacheMetadataFile = ".metadata.json"

type cacheMetadata struct {
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	Checksum   string    `json:"checksum,omitempty"`
	FetchedAt  time.Time `json:"fetchedAt"`
	TTLSeconds int64     `json:"ttlSeconds"`
}

type memEntry struct {
	structure *types.PackStructure
	fetchedAt time.Time
}

// packCache is the two-level cache shared by the remote source shapes: an
// in-memory TTL map in front of an on-disk directory of extracted packs.
// The disk cache is purely a performance optimization and is safe to clear
// at any time.
type packCache struct {
	fs  types.FS
	dir string
	ttl time.Duration

	mu  sync.Mutex
	mem map[string]memEntry
}

func newPackCache(fs types.FS, dir string, ttl time.Duration) *packCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &packCache{
		fs:  fs,
		dir: dir,
		ttl: ttl,
		mem: make(map[string]memEntry),
	}
}

// packDir is where a named pack's extracted files live.
func (c *packCache) packDir(name string) string {
	return filepath.Join(c.dir, name)
}

// get returns a cached structure, consulting memory then disk.
func (c *packCache) get(name string) (*types.PackStructure, bool) {
	c.mu.Lock()
	entry, ok := c.mem[name]
	c.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.structure, true
	}

	return c.getDisk(name)
}

func (c *packCache) getDisk(name string) (*types.PackStructure, bool) {
	dir := c.packDir(name)
	metaData, err := c.fs.ReadFile(filepath.Join(dir, cacheMetadataFile))
	if err != nil {
		return nil, false
	}
	var meta cacheMetadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, false
	}
	if time.Since(meta.FetchedAt) >= time.Duration(meta.TTLSeconds)*time.Second {
		return nil, false
	}

	manifestData, err := c.fs.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, false
	}
	manifest, err := parseManifest(manifestData, name)
	if err != nil {
		return nil, false
	}

	structure := &types.PackStructure{Manifest: manifest, Path: dir}
	c.mu.Lock()
	c.mem[name] = memEntry{structure: structure, fetchedAt: meta.FetchedAt}
	c.mu.Unlock()
	return structure, true
}

// prepare clears any stale on-disk content for a pack and returns the
// directory fresh fetches should extract into.
func (c *packCache) prepare(name string) (string, error) {
	dir := c.packDir(name)
	if err := c.fs.RemoveAll(dir); err != nil {
		return "", errors.Wrapf(err, errors.ErrFileAccess, "cannot clear cache for pack %s", name)
	}
	if err := c.fs.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, errors.ErrDirCreate, "cannot create cache directory for pack %s", name)
	}
	return dir, nil
}

// store finishes a fetch: writes the metadata marker next to the extracted
// files and records the structure in memory.
func (c *packCache) store(name string, manifest *types.PackManifest, checksum string) (*types.PackStructure, error) {
	dir := c.packDir(name)
	now := time.Now()
	meta := cacheMetadata{
		Name:       name,
		Version:    manifest.Version,
		Checksum:   checksum,
		FetchedAt:  now,
		TTLSeconds: int64(c.ttl / time.Second),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "cannot encode cache metadata")
	}
	if err := c.fs.WriteFile(filepath.Join(dir, cacheMetadataFile), data, 0644); err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileWrite, "cannot write cache metadata for pack %s", name)
	}

	structure := &types.PackStructure{Manifest: manifest, Path: dir}
	c.mu.Lock()
	c.mem[name] = memEntry{structure: structure, fetchedAt: now}
	c.mu.Unlock()
	return structure, nil
}

// clearExpired drops memory entries and on-disk pack directories past
// their TTL.
func (c *packCache) clearExpired() error {
	c.mu.Lock()
	for name, entry := range c.mem {
		if time.Since(entry.fetchedAt) >= c.ttl {
			delete(c.mem, name)
		}
	}
	c.mu.Unlock()

	entries, err := c.fs.ReadDir(c.dir)
	if err != nil {
		return nil // nothing cached yet
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, fresh := c.getDisk(entry.Name()); !fresh {
			if err := c.fs.RemoveAll(filepath.Join(c.dir, entry.Name())); err != nil {
				return errors.Wrapf(err, errors.ErrFileAccess, "cannot remove expired cache entry %s", entry.Name())
			}
		}
	}
	return nil
}

// clearAll drops every cache entry, memory and disk.
func (c *packCache) clearAll() error {
	c.mu.Lock()
	c.mem = make(map[string]memEntry)
	c.mu.Unlock()

	if err := c.fs.RemoveAll(c.dir); err != nil {
		return errors.Wrap(err, errors.ErrFileAccess, "cannot clear cache directory")
	}
	return nil
}

// verifyChecksum compares fetched bytes against a declared checksum.
// An empty declaration skips verification.
func verifyChecksum(data []byte, declared string) error {
	if declared == "" {
		return nil
	}
	actual := hashutil.Checksum(data)
	if actual != declared {
		return errors.Newf(errors.ErrIntegrity, "checksum mismatch: declared %s, got %s", declared, actual)
	}
	return nil
}
