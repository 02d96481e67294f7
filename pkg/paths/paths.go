// Package paths centralizes every file and directory location agentpack
// reads or writes inside a project checkout, so layout decisions live in
// one place.
package paths

import (
	"path/filepath"

	"github.com/arthur-debert/agentpack/pkg/types"
)

const (
	// StateDirName is the tool-state directory created at the project root.
	StateDirName = ".agentpack"

	// DefaultAgentsDir is where agent components are installed, relative to
	// the project root. Agents live in the host tool's own directory rather
	// than the agentpack state directory.
	DefaultAgentsDir = ".claude/agents"

	// DefaultLocalPacksDir is where the implicit local source looks for
	// pack directories, relative to the project root.
	DefaultLocalPacksDir = "packs"
)

// Paths resolves locations inside a single project root.
type Paths struct {
	root      string
	agentsDir string
}

// Option configures a Paths instance.
type Option func(*Paths)

// WithAgentsDir overrides the tool-specific agents directory (relative to
// the project root).
func WithAgentsDir(dir string) Option {
	return func(p *Paths) {
		p.agentsDir = dir
	}
}

// New creates a Paths rooted at the given project directory.
func New(projectRoot string, opts ...Option) *Paths {
	p := &Paths{
		root:      projectRoot,
		agentsDir: DefaultAgentsDir,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Root returns the project root directory.
func (p *Paths) Root() string {
	return p.root
}

// StateDir returns the tool-state directory.
func (p *Paths) StateDir() string {
	return filepath.Join(p.root, StateDirName)
}

// SourcesFile returns the path of sources.json.
func (p *Paths) SourcesFile() string {
	return filepath.Join(p.StateDir(), "sources.json")
}

// PacksFile returns the path of packs.json.
func (p *Paths) PacksFile() string {
	return filepath.Join(p.StateDir(), "packs.json")
}

// ConfigFile returns the path of the merged project configuration.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.StateDir(), "config.json")
}

// LockFile returns the path of the per-project lock guarding manifest and
// configuration read-modify-write.
func (p *Paths) LockFile() string {
	return filepath.Join(p.StateDir(), ".lock")
}

// SnapshotDir returns the directory holding manifest snapshots.
func (p *Paths) SnapshotDir() string {
	return filepath.Join(p.StateDir(), "packs")
}

// SnapshotFile returns the manifest snapshot path for a pack.
func (p *Paths) SnapshotFile(packName string) string {
	return filepath.Join(p.SnapshotDir(), packName+".manifest.json")
}

// SecurityDir returns the directory holding trust state.
func (p *Paths) SecurityDir() string {
	return filepath.Join(p.StateDir(), "security")
}

// TrustPolicyFile returns the path of the trust policy.
func (p *Paths) TrustPolicyFile() string {
	return filepath.Join(p.SecurityDir(), "trust-policy.json")
}

// TrustedSourcesFile returns the path of the trusted-sources list.
func (p *Paths) TrustedSourcesFile() string {
	return filepath.Join(p.SecurityDir(), "trusted-sources.json")
}

// TrustRecordsFile returns the path of the audit trail.
func (p *Paths) TrustRecordsFile() string {
	return filepath.Join(p.SecurityDir(), "trust-records.json")
}

// CacheDir returns the on-disk cache directory for remote sources.
func (p *Paths) CacheDir() string {
	return filepath.Join(p.StateDir(), "cache")
}

// LocalPacksDir returns the directory the implicit local source serves
// packs from.
func (p *Paths) LocalPacksDir() string {
	return filepath.Join(p.root, DefaultLocalPacksDir)
}

// ComponentDir returns the installation directory for a component type.
// Agents go to the tool-specific agents directory; other types to
// type-named subdirectories of the state directory.
func (p *Paths) ComponentDir(t types.ComponentType) string {
	if t == types.ComponentAgents {
		return filepath.Join(p.root, filepath.FromSlash(p.agentsDir))
	}
	return filepath.Join(p.StateDir(), string(t))
}

// ComponentFile returns the installation path for a single component.
func (p *Paths) ComponentFile(t types.ComponentType, name string) string {
	return filepath.Join(p.ComponentDir(t), name+t.Extension())
}
