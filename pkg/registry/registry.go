// Package registry aggregates pack sources behind a single lookup: a
// priority-ordered search across enabled sources, plus dependency closure
// resolution with cycle and missing-node detection.
package registry

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/arthur-debert/agentpack/pkg/errors"
	"github.com/arthur-debert/agentpack/pkg/logging"
	"github.com/arthur-debert/agentpack/pkg/paths"
	"github.com/arthur-debert/agentpack/pkg/source"
	"github.com/arthur-debert/agentpack/pkg/types"
	"github.com/rs/zerolog"
)

// LocalSourceID names the implicit, always-present local source.
const LocalSourceID = "local"

// Registry holds the configured pack sources for one project.
type Registry struct {
	fs      types.FS
	paths   *paths.Paths
	file    types.SourcesFile
	sources map[string]types.PackSource
	logger  zerolog.Logger
}

// New creates a registry for the given project, loading sources.json and
// seeding it with the implicit local source on first use.
func New(fs types.FS, p *paths.Paths) (*Registry, error) {
	r := &Registry{
		fs:      fs,
		paths:   p,
		sources: make(map[string]types.PackSource),
		logger:  logging.GetLogger("registry"),
	}

	if err := r.loadSourcesFile(); err != nil {
		return nil, err
	}

	for _, cfg := range r.file.Sources {
		src, err := source.New(fs, cfg, p.CacheDir())
		if err != nil {
			return nil, err
		}
		r.sources[cfg.ID] = src
	}

	return r, nil
}

func (r *Registry) loadSourcesFile() error {
	data, err := r.fs.ReadFile(r.paths.SourcesFile())
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrap(err, errors.ErrConfigLoad, "cannot read sources.json")
		}
		r.file = types.SourcesFile{
			Sources: []types.SourceConfig{{
				ID:       LocalSourceID,
				Type:     types.SourceLocal,
				Enabled:  true,
				Priority: 100,
				Config:   map[string]string{"path": r.paths.LocalPacksDir()},
			}},
			DefaultSource: LocalSourceID,
		}
		return r.saveSourcesFile()
	}

	if err := json.Unmarshal(data, &r.file); err != nil {
		return errors.Wrap(err, errors.ErrConfigParse, "sources.json is corrupt")
	}

	// The local source is implicit: re-seed it if a hand-edited file
	// dropped it.
	for _, cfg := range r.file.Sources {
		if cfg.ID == LocalSourceID {
			return nil
		}
	}
	r.file.Sources = append(r.file.Sources, types.SourceConfig{
		ID:       LocalSourceID,
		Type:     types.SourceLocal,
		Enabled:  true,
		Priority: 100,
		Config:   map[string]string{"path": r.paths.LocalPacksDir()},
	})
	return r.saveSourcesFile()
}

func (r *Registry) saveSourcesFile() error {
	data, err := json.MarshalIndent(r.file, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "cannot encode sources.json")
	}
	if err := r.fs.MkdirAll(r.paths.StateDir(), 0755); err != nil {
		return errors.Wrap(err, errors.ErrDirCreate, "cannot create state directory")
	}
	if err := r.fs.WriteFile(r.paths.SourcesFile(), data, 0644); err != nil {
		return errors.Wrap(err, errors.ErrConfigWrite, "cannot write sources.json")
	}
	return nil
}

// DefaultSource returns the configured default source ID.
func (r *Registry) DefaultSource() string {
	return r.file.DefaultSource
}

// Source returns the source with the given ID.
func (r *Registry) Source(id string) (types.PackSource, bool) {
	src, ok := r.sources[id]
	return src, ok
}

// AddSource registers and persists a new source configuration.
func (r *Registry) AddSource(cfg types.SourceConfig) error {
	if cfg.ID == "" {
		return errors.New(errors.ErrInvalidInput, "source id must not be empty")
	}
	if _, exists := r.sources[cfg.ID]; exists {
		return errors.Newf(errors.ErrInvalidInput, "source %s already exists", cfg.ID)
	}

	src, err := source.New(r.fs, cfg, r.paths.CacheDir())
	if err != nil {
		return err
	}

	r.file.Sources = append(r.file.Sources, cfg)
	if err := r.saveSourcesFile(); err != nil {
		return err
	}
	r.sources[cfg.ID] = src
	return nil
}

// RemoveSource removes a configured source. The implicit local source is
// non-removable.
func (r *Registry) RemoveSource(id string) error {
	if id == LocalSourceID {
		return errors.New(errors.ErrInvalidInput, "the local source cannot be removed")
	}
	if _, exists := r.sources[id]; !exists {
		return errors.Newf(errors.ErrNotFound, "source %s is not configured", id)
	}

	kept := r.file.Sources[:0]
	for _, cfg := range r.file.Sources {
		if cfg.ID != id {
			kept = append(kept, cfg)
		}
	}
	r.file.Sources = kept
	if err := r.saveSourcesFile(); err != nil {
		return err
	}
	delete(r.sources, id)
	return nil
}

// Register adds a runtime-only source that is not persisted to
// sources.json. Replaces any source with the same ID.
func (r *Registry) Register(src types.PackSource) {
	r.sources[src.Info().ID] = src
}

// orderedSources returns the enabled sources in descending priority order,
// ties broken by ID for determinism.
func (r *Registry) orderedSources() []types.PackSource {
	var out []types.PackSource
	for _, src := range r.sources {
		if src.Info().Enabled {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Info(), out[j].Info()
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.ID < b.ID
	})
	return out
}

// LoadPack finds and loads a pack. With preferredSourceID set, only that
// source is consulted; otherwise sources are tried in descending priority
// and the first success wins.
func (r *Registry) LoadPack(ctx context.Context, name, preferredSourceID string) (*types.PackStructure, types.PackSource, error) {
	if preferredSourceID != "" {
		src, ok := r.sources[preferredSourceID]
		if !ok {
			return nil, nil, errors.Newf(errors.ErrNotFound, "source %s is not configured", preferredSourceID)
		}
		structure, err := src.LoadPack(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		return structure, src, nil
	}

	var attempted []string
	for _, src := range r.orderedSources() {
		info := src.Info()
		attempted = append(attempted, info.ID)
		structure, err := src.LoadPack(ctx, name)
		if err != nil {
			if errors.IsErrorCode(err, errors.ErrNotFound) {
				continue
			}
			r.logger.Warn().Str("source", info.ID).Str("pack", name).Err(err).
				Msg("Source failed to load pack, trying next")
			continue
		}
		return structure, src, nil
	}

	return nil, nil, errors.Newf(errors.ErrNotFound, "pack %s not found in any source (tried: %s)",
		name, strings.Join(attempted, ", ")).
		WithDetail("pack", name).
		WithDetail("sources", attempted)
}

// FindPackSource returns the source that would serve the named pack, or
// nil when no source has it.
func (r *Registry) FindPackSource(ctx context.Context, name string) types.PackSource {
	for _, src := range r.orderedSources() {
		if src.HasPack(ctx, name) {
			return src
		}
	}
	return nil
}

// ListAvailablePacks unions the listings of all enabled sources. A failing
// source is logged and skipped, never aborting the aggregation.
func (r *Registry) ListAvailablePacks(ctx context.Context) []types.PackListing {
	var listings []types.PackListing
	for _, src := range r.orderedSources() {
		info := src.Info()
		packs, err := src.ListPacks(ctx)
		if err != nil {
			r.logger.Warn().Str("source", info.ID).Err(err).Msg("Source listing failed, skipping")
			continue
		}
		for _, name := range packs {
			listings = append(listings, types.PackListing{Name: name, SourceID: info.ID})
		}
	}
	return listings
}

// ClearExpiredCache clears expired cache entries on every source.
func (r *Registry) ClearExpiredCache() error {
	for _, src := range r.sources {
		if err := src.ClearExpiredCache(); err != nil {
			return err
		}
	}
	return nil
}

// ClearAllCache clears all cache entries on every source.
func (r *Registry) ClearAllCache() error {
	for _, src := range r.sources {
		if err := src.ClearAllCache(); err != nil {
			return err
		}
	}
	return nil
}
