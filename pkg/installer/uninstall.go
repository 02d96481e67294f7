package installer

import (
	"context"
	"fmt"
	"os"

	"github.com/arthur-debert/agentpack/pkg/logging"
	"github.com/arthur-debert/agentpack/pkg/types"
)

// UninstallPack removes the components a pack installed. The manifest
// snapshot taken at install time is the preferred description of what to
// remove; fallback is the live manifest the caller looked up (may be nil).
// With neither available, provenance cannot be confirmed and no files are
// removed, only reported.
//
// Component removal is best effort: a missing file is skipped, a failing
// removal is recorded and the remaining components are still attempted. The
// packs.json record and the snapshot are deleted even under partial failure
// so bookkeeping reflects that the pack is no longer managed; leftover files
// surface through Errors.
func (i *Installer) UninstallPack(ctx context.Context, packName string, fallback *types.PackManifest) (*types.UninstallResult, error) {
	result := &types.UninstallResult{Pack: packName}
	done := logging.LogOperationStart(i.logger.With().Str("pack", packName).Logger(), "uninstall")
	defer done()

	manifest := fallback
	snapshot, err := i.loadSnapshot(packName)
	if err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("manifest snapshot unreadable: %v", err))
	} else if snapshot != nil && snapshot.Manifest != nil {
		manifest = snapshot.Manifest
	}

	if manifest == nil {
		// Scanning mode: nothing confirms which files this pack owns, so
		// none are removed. The record still goes away.
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no manifest snapshot or source manifest for pack %s; no files were removed", packName))
		if err := i.removeBookkeeping(packName); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to remove installation record: %v", err))
		}
		result.Success = len(result.Errors) == 0
		return result, nil
	}

	for _, t := range types.AllComponentTypes {
		for _, ref := range manifest.Components.Of(t) {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			label := string(t) + "/" + ref.Name
			target := i.paths.ComponentFile(t, ref.Name)
			if _, err := i.fs.Stat(target); err != nil {
				if os.IsNotExist(err) {
					result.Skipped = append(result.Skipped, label)
					continue
				}
				result.Errors = append(result.Errors,
					fmt.Sprintf("failed to inspect component %s: %v", label, err))
				continue
			}
			if err := i.fs.Remove(target); err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("failed to remove component %s: %v", label, err))
				continue
			}
			result.Removed = append(result.Removed, label)
		}
	}

	if manifest.Configuration != nil {
		if err := i.config.RemovePackSettings(packName, manifest.Configuration); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to remove pack configuration: %v", err))
		}
	}

	if err := i.removeBookkeeping(packName); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("failed to remove installation record: %v", err))
	}

	result.Success = len(result.Errors) == 0
	return result, nil
}

func (i *Installer) removeBookkeeping(packName string) error {
	return i.config.WithProjectLock(func() error {
		packsFile, err := i.loadPacksFile()
		if err != nil {
			return err
		}
		delete(packsFile.Packs, packName)
		if err := i.savePacksFile(packsFile); err != nil {
			return err
		}
		if err := i.fs.Remove(i.paths.SnapshotFile(packName)); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}
