// Package installer materializes pack components into the project tree and
// reverses the operation later. Install keeps enough bookkeeping (a
// packs.json record plus a manifest snapshot) that uninstall works even when
// the originating source has disappeared.
package installer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/agentpack/pkg/errors"
	"github.com/arthur-debert/agentpack/pkg/logging"
	"github.com/arthur-debert/agentpack/pkg/paths"
	"github.com/arthur-debert/agentpack/pkg/projectconfig"
	"github.com/arthur-debert/agentpack/pkg/types"
)

// Options control a single install.
type Options struct {
	// Force overwrites existing target files instead of failing on conflict.
	Force bool
	// DryRun performs every check but writes nothing.
	DryRun bool
	// SkipOptional leaves non-required components out of the install.
	SkipOptional bool
	// Interactive marks installs driven by a prompting caller. The installer
	// itself never prompts; the flag is recorded for the audit trail.
	Interactive bool
}

// Installer writes and removes component files for a project root.
type Installer struct {
	fs     types.FS
	paths  *paths.Paths
	config *projectconfig.Store
	logger zerolog.Logger
}

// New returns an Installer for the project described by p.
func New(fs types.FS, p *paths.Paths) *Installer {
	return &Installer{
		fs:     fs,
		paths:  p,
		config: projectconfig.New(fs, p),
		logger: logging.GetLogger("installer"),
	}
}

// Config exposes the project configuration store backing this installer.
func (i *Installer) Config() *projectconfig.Store {
	return i.config
}

type planStep struct {
	componentType types.ComponentType
	ref           types.ComponentRef
	target        string
	label         string
}

// InstallPack writes every declared component of pack into the project.
//
// The conflict scan runs before any write: without Force, a single existing
// target fails the whole call with one error per conflict and nothing
// touched. Once writes begin, bookkeeping runs regardless of per-component
// failures so a later uninstall can clean up whatever landed.
func (i *Installer) InstallPack(ctx context.Context, pack *types.PackStructure, src types.PackSource, opts Options) (*types.InstallResult, error) {
	manifest := pack.Manifest
	result := &types.InstallResult{Pack: manifest.Name, DryRun: opts.DryRun}
	done := logging.LogOperationStart(i.logger.With().Str("pack", manifest.Name).Logger(), "install")
	defer done()

	var plan []planStep
	for _, t := range types.AllComponentTypes {
		for _, ref := range manifest.Components.Of(t) {
			label := string(t) + "/" + ref.Name
			if opts.SkipOptional && !ref.Required {
				result.Skipped = append(result.Skipped, label)
				continue
			}
			plan = append(plan, planStep{
				componentType: t,
				ref:           ref,
				target:        i.paths.ComponentFile(t, ref.Name),
				label:         label,
			})
		}
	}

	if !opts.Force {
		var conflicts []string
		for _, step := range plan {
			if _, err := i.fs.Stat(step.target); err == nil {
				conflicts = append(conflicts,
					fmt.Sprintf("component %s conflicts with existing file %s", step.label, step.target))
			}
		}
		if len(conflicts) > 0 {
			result.Errors = conflicts
			i.logger.Warn().Str("pack", manifest.Name).Int("conflicts", len(conflicts)).
				Msg("install aborted on conflicts")
			return result, nil
		}
	}

	if opts.DryRun {
		for _, step := range plan {
			result.Installed = append(result.Installed, step.label)
		}
		result.Success = true
		i.surfacePostInstall(manifest, result)
		return result, nil
	}

	for _, step := range plan {
		if err := i.writeComponent(ctx, pack, src, step); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to install component %s: %v", step.label, err))
			continue
		}
		result.Installed = append(result.Installed, step.label)
	}

	if manifest.Configuration != nil {
		if err := i.config.ApplyPackSettings(manifest.Name, manifest.Configuration); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to merge pack configuration: %v", err))
		}
	}

	// Bookkeeping runs on every non-dry-run attempt that passed the conflict
	// gate, even when some components failed to land.
	if err := i.recordInstall(pack, src.Info().ID); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("failed to record installation: %v", err))
	}

	i.surfacePostInstall(manifest, result)
	result.Success = len(result.Errors) == 0
	return result, nil
}

func (i *Installer) writeComponent(ctx context.Context, pack *types.PackStructure, src types.PackSource, step planStep) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sourcePath := src.ComponentPath(pack, step.componentType, step.ref.Name)
	data, err := i.fs.ReadFile(sourcePath)
	if err != nil {
		return errors.Wrap(err, errors.ErrFileAccess, "failed to read component source").
			WithDetail("path", sourcePath)
	}
	if err := i.fs.MkdirAll(filepath.Dir(step.target), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrDirCreate, "failed to create component directory")
	}
	if err := i.fs.WriteFile(step.target, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrFileWrite, "failed to write component").
			WithDetail("path", step.target)
	}
	return nil
}

func (i *Installer) surfacePostInstall(manifest *types.PackManifest, result *types.InstallResult) {
	post := manifest.PostInstall
	if post == nil {
		return
	}
	result.PostInstallMessage = post.Message
	if len(post.Commands) > 0 {
		i.logger.Warn().Str("pack", manifest.Name).Int("commands", len(post.Commands)).
			Msg("post-install commands are never executed; review them manually")
	}
}

func (i *Installer) recordInstall(pack *types.PackStructure, sourceID string) error {
	manifest := pack.Manifest
	return i.config.WithProjectLock(func() error {
		packsFile, err := i.loadPacksFile()
		if err != nil {
			return err
		}
		packsFile.Packs[manifest.Name] = types.ProjectPackRecord{
			Version:     manifest.Version,
			InstalledAt: time.Now().UTC(),
			Source:      sourceID,
		}
		if err := i.savePacksFile(packsFile); err != nil {
			return err
		}
		return i.writeSnapshot(pack, sourceID)
	})
}

func (i *Installer) writeSnapshot(pack *types.PackStructure, sourceID string) error {
	snapshot := types.ManifestSnapshot{
		PackName: pack.Manifest.Name,
		Source:   sourceID,
		TakenAt:  time.Now().UTC(),
		Manifest: pack.Manifest,
	}
	if err := i.fs.MkdirAll(i.paths.SnapshotDir(), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrDirCreate, "failed to create snapshot directory")
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrFileWrite, "failed to encode manifest snapshot")
	}
	path := i.paths.SnapshotFile(pack.Manifest.Name)
	if err := i.fs.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrFileWrite, "failed to write manifest snapshot").
			WithDetail("path", path)
	}
	return nil
}

// Snapshot returns the manifest snapshot taken when packName was installed,
// or nil when none exists.
func (i *Installer) Snapshot(packName string) (*types.ManifestSnapshot, error) {
	return i.loadSnapshot(packName)
}

func (i *Installer) loadSnapshot(packName string) (*types.ManifestSnapshot, error) {
	data, err := i.fs.ReadFile(i.paths.SnapshotFile(packName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrFileAccess, "failed to read manifest snapshot")
	}
	var snapshot types.ManifestSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.Wrap(err, errors.ErrManifestParse, "failed to parse manifest snapshot").
			WithDetail("pack", packName)
	}
	return &snapshot, nil
}

func (i *Installer) loadPacksFile() (*types.PacksFile, error) {
	packsFile := &types.PacksFile{Packs: map[string]types.ProjectPackRecord{}}
	data, err := i.fs.ReadFile(i.paths.PacksFile())
	if err != nil {
		if os.IsNotExist(err) {
			return packsFile, nil
		}
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to read packs file")
	}
	if err := json.Unmarshal(data, packsFile); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to parse packs file")
	}
	if packsFile.Packs == nil {
		packsFile.Packs = map[string]types.ProjectPackRecord{}
	}
	return packsFile, nil
}

func (i *Installer) savePacksFile(packsFile *types.PacksFile) error {
	data, err := json.MarshalIndent(packsFile, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigWrite, "failed to encode packs file")
	}
	if err := i.fs.MkdirAll(i.paths.StateDir(), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrDirCreate, "failed to create state directory")
	}
	if err := i.fs.WriteFile(i.paths.PacksFile(), data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrConfigWrite, "failed to write packs file")
	}
	return nil
}

// InstalledPacks returns the packs.json records keyed by pack name.
func (i *Installer) InstalledPacks() (map[string]types.ProjectPackRecord, error) {
	packsFile, err := i.loadPacksFile()
	if err != nil {
		return nil, err
	}
	return packsFile.Packs, nil
}
