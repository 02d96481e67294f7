package types

import "context"

// SourceType identifies the transport a pack source uses.
type SourceType string

const (
	SourceLocal  SourceType = "local"
	SourceRemote SourceType = "remote"
	SourceGitHub SourceType = "github"
)

// SourceConfig is one entry in sources.json. The local source is implicit,
// always present and non-removable; Priority governs search order when a
// pack name is not bound to a specific source (higher wins).
type SourceConfig struct {
	ID       string            `json:"id"`
	Type     SourceType        `json:"type"`
	Enabled  bool              `json:"enabled"`
	Priority int               `json:"priority"`
	Config   map[string]string `json:"config,omitempty"`
}

// SourcesFile is the on-disk shape of sources.json.
type SourcesFile struct {
	Sources       []SourceConfig `json:"sources"`
	DefaultSource string         `json:"defaultSource,omitempty"`
}

// SourceInfo describes a source without requiring any I/O.
type SourceInfo struct {
	ID       string
	Type     SourceType
	Enabled  bool
	Priority int
	// Location is the source root: a directory for local sources, a base
	// URL for remote ones, owner/repo for GitHub.
	Location string
}

// PackSource locates and fetches packs by name. Implementations exist for
// local directories, generic HTTP tarball endpoints and the GitHub API.
type PackSource interface {
	// Info describes the source without performing I/O.
	Info() SourceInfo

	// ListPacks returns the sorted names of packs the source can serve.
	// Listing is best-effort: entries that cannot be read or parsed are
	// skipped, never aborting the whole listing.
	ListPacks(ctx context.Context) ([]string, error)

	// HasPack reports whether the source can serve the named pack. It
	// never returns an error; failures read as false.
	HasPack(ctx context.Context, name string) bool

	// LoadPack fetches and parses the named pack's manifest, returning a
	// structure whose Path points at locally readable component files.
	LoadPack(ctx context.Context, name string) (*PackStructure, error)

	// ComponentPath returns the path a single component would be read
	// from, without loading or fetching anything.
	ComponentPath(pack *PackStructure, componentType ComponentType, name string) string

	// HasComponent reports whether the named component exists.
	HasComponent(ctx context.Context, pack *PackStructure, componentType ComponentType, name string) bool

	// ClearExpiredCache drops cache entries past their TTL. No-op for
	// uncached sources.
	ClearExpiredCache() error

	// ClearAllCache drops every cache entry. No-op for uncached sources.
	ClearAllCache() error
}
