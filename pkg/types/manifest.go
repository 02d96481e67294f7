package types

import "time"

// PackManifest is the parsed manifest.json of a pack: its identity, the
// components it declares, and the packs it depends on.
type PackManifest struct {
	Name               string             `json:"name,omitempty"`
	Version            string             `json:"version,omitempty"`
	Description        string             `json:"description,omitempty"`
	Author             string             `json:"author,omitempty"`
	Components         PackComponents     `json:"components"`
	Dependencies       []string           `json:"dependencies,omitempty"`
	Tags               []string           `json:"tags,omitempty"`
	Category           string             `json:"category,omitempty"`
	Configuration      *PackConfiguration `json:"configuration,omitempty"`
	PostInstall        *PostInstall       `json:"postInstall,omitempty"`
	CompatibilityRange string             `json:"compatibilityRange,omitempty"`
}

// PackComponents groups declared components by type.
type PackComponents struct {
	Modes     []ComponentRef `json:"modes,omitempty"`
	Workflows []ComponentRef `json:"workflows,omitempty"`
	Agents    []ComponentRef `json:"agents,omitempty"`
	Hooks     []ComponentRef `json:"hooks,omitempty"`
}

// PackConfiguration carries optional settings a pack contributes to the
// project configuration on install.
type PackConfiguration struct {
	DefaultMode     string          `json:"defaultMode,omitempty"`
	CustomCommands  []CustomCommand `json:"customCommands,omitempty"`
	ProjectSettings map[string]any  `json:"projectSettings,omitempty"`
}

// CustomCommand is a named command a pack offers to the host tool.
type CustomCommand struct {
	Name        string `json:"name"`
	Command     string `json:"command,omitempty"`
	Description string `json:"description,omitempty"`
}

// PostInstall holds the optional post-install message and commands.
// Commands are informational only and are never executed.
type PostInstall struct {
	Message  string   `json:"message,omitempty"`
	Commands []string `json:"commands,omitempty"`
}

// Of returns the declared components of the given type.
func (c PackComponents) Of(t ComponentType) []ComponentRef {
	switch t {
	case ComponentModes:
		return c.Modes
	case ComponentWorkflows:
		return c.Workflows
	case ComponentAgents:
		return c.Agents
	case ComponentHooks:
		return c.Hooks
	}
	return nil
}

// Count returns the total number of declared components across all types.
func (c PackComponents) Count() int {
	return len(c.Modes) + len(c.Workflows) + len(c.Agents) + len(c.Hooks)
}

// ModeNames returns the names of all declared modes.
func (m *PackManifest) ModeNames() []string {
	names := make([]string, 0, len(m.Components.Modes))
	for _, c := range m.Components.Modes {
		names = append(names, c.Name)
	}
	return names
}

// PackStructure is a loaded pack: its manifest plus the local path its
// component files can be read from. It is rebuilt on every load and is
// never persisted as-is.
type PackStructure struct {
	Manifest *PackManifest
	// Path is the local directory the pack was loaded from (the pack
	// directory for local sources, the extracted cache directory for
	// remote ones).
	Path string
	// ComponentsPath overrides Path as the root of the per-type component
	// subdirectories when set.
	ComponentsPath string
}

// ComponentsRoot returns the directory holding the per-type component
// subdirectories.
func (p *PackStructure) ComponentsRoot() string {
	if p.ComponentsPath != "" {
		return p.ComponentsPath
	}
	return p.Path
}

// ManifestSnapshot is the persisted copy of a manifest taken at install
// time so uninstall does not depend on the originating source surviving.
type ManifestSnapshot struct {
	PackName string        `json:"packName"`
	Source   string        `json:"source"`
	TakenAt  time.Time     `json:"takenAt"`
	Manifest *PackManifest `json:"manifest"`
}

// ProjectPackRecord is one entry in packs.json describing an installed pack.
type ProjectPackRecord struct {
	Version     string    `json:"version"`
	InstalledAt time.Time `json:"installedAt"`
	Source      string    `json:"source"`
}

// PacksFile is the on-disk shape of packs.json.
type PacksFile struct {
	Packs map[string]ProjectPackRecord `json:"packs"`
}
