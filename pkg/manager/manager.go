// Package manager is the orchestration façade: look a pack up across
// sources, resolve its dependency closure, validate and trust-check every
// pack, and drive the installer dependency-first with per-pack retries.
package manager

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/agentpack/pkg/errors"
	"github.com/arthur-debert/agentpack/pkg/installer"
	"github.com/arthur-debert/agentpack/pkg/logging"
	"github.com/arthur-debert/agentpack/pkg/paths"
	"github.com/arthur-debert/agentpack/pkg/registry"
	"github.com/arthur-debert/agentpack/pkg/trust"
	"github.com/arthur-debert/agentpack/pkg/types"
	"github.com/arthur-debert/agentpack/pkg/validator"
)

// extraAttempts is how many times a failed per-pack install is retried after
// the initial attempt.
const extraAttempts = 3

// ConsentFunc decides whether an operation flagged by the trust layer may
// proceed. Warnings carry the reasons consent is being asked for.
type ConsentFunc func(packName string, warnings []string) bool

// Option configures a StarterPackManager.
type Option func(*StarterPackManager)

// WithRegistry substitutes the pack registry, mainly for tests.
func WithRegistry(r *registry.Registry) Option {
	return func(m *StarterPackManager) { m.registry = r }
}

// WithConsent installs the consent handler invoked when a trust check
// requires explicit approval. Without one, consent is denied.
func WithConsent(fn ConsentFunc) Option {
	return func(m *StarterPackManager) { m.consent = fn }
}

// StarterPackManager ties the registry, validator, trust manager and
// installer together behind a single install/uninstall surface.
type StarterPackManager struct {
	fs        types.FS
	paths     *paths.Paths
	registry  *registry.Registry
	validator *validator.PackValidator
	trust     *trust.Manager
	installer *installer.Installer
	consent   ConsentFunc
	logger    zerolog.Logger
}

// New builds a manager for the project rooted at projectRoot.
func New(fs types.FS, projectRoot string, opts ...Option) (*StarterPackManager, error) {
	p := paths.New(projectRoot)
	m := &StarterPackManager{
		fs:        fs,
		paths:     p,
		installer: installer.New(fs, p),
		logger:    logging.GetLogger("manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		reg, err := registry.New(fs, p)
		if err != nil {
			return nil, err
		}
		m.registry = reg
	}
	v, err := validator.New(fs)
	if err != nil {
		return nil, err
	}
	m.validator = v
	m.trust = trust.NewManager(fs, p)
	if err := m.trust.Initialize(); err != nil {
		return nil, err
	}
	return m, nil
}

// Registry exposes the pack registry for source management.
func (m *StarterPackManager) Registry() *registry.Registry {
	return m.registry
}

// Trust exposes the trust manager for policy management.
func (m *StarterPackManager) Trust() *trust.Manager {
	return m.trust
}

// loadPack prefers the configured default source and falls back to the
// priority-ordered search when the default cannot serve the name.
func (m *StarterPackManager) loadPack(ctx context.Context, name string) (*types.PackStructure, types.PackSource, error) {
	if def := m.registry.DefaultSource(); def != "" {
		if pack, src, err := m.registry.LoadPack(ctx, name, def); err == nil {
			return pack, src, nil
		}
	}
	return m.registry.LoadPack(ctx, name, "")
}

// InstallPack resolves name's dependency closure and installs every resolved
// dependency, dependency-first, then the target pack. Resolution failures
// abort before anything is written, naming every missing and circular entry.
// Each per-pack install retries independently; exhausting attempts aborts
// the whole operation.
func (m *StarterPackManager) InstallPack(ctx context.Context, name string, opts installer.Options) (*types.InstallResult, error) {
	pack, _, err := m.loadPack(ctx, name)
	if err != nil {
		return nil, err
	}

	resolution, err := m.registry.ResolveDependencies(ctx, pack)
	if err != nil {
		return nil, err
	}
	if !resolution.OK() {
		e := errors.Newf(errors.ErrDependency, "cannot install pack %s: unresolvable dependencies", name)
		if len(resolution.Missing) > 0 {
			e = e.WithDetail("missing", strings.Join(resolution.Missing, ", "))
		}
		if len(resolution.Circular) > 0 {
			e = e.WithDetail("circular", strings.Join(resolution.Circular, ", "))
		}
		return nil, e
	}

	for _, dep := range resolution.Resolved {
		if _, err := m.installWithRetry(ctx, dep, opts); err != nil {
			return nil, errors.Wrapf(err, errors.GetErrorCode(err), "failed to install dependency %s of %s", dep, name)
		}
	}
	return m.installWithRetry(ctx, name, opts)
}

// InstallPackDirect installs a single pack with no dependency resolution.
func (m *StarterPackManager) InstallPackDirect(ctx context.Context, name string, opts installer.Options) (*types.InstallResult, error) {
	return m.installWithRetry(ctx, name, opts)
}

func (m *StarterPackManager) installWithRetry(ctx context.Context, name string, opts installer.Options) (*types.InstallResult, error) {
	var lastResult *types.InstallResult
	var lastErr error
	for attempt := 1; attempt <= extraAttempts+1; attempt++ {
		result, err := m.installOnce(ctx, name, opts)
		if err != nil {
			if errors.IsErrorCode(err, errors.ErrSecurityRejected) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, err
			}
			m.logger.Warn().Str("pack", name).Int("attempt", attempt).Err(err).
				Msg("install attempt failed")
			lastErr = err
			lastResult = nil
			continue
		}
		result.Attempts = attempt
		if result.Success {
			return result, nil
		}
		m.logger.Warn().Str("pack", name).Int("attempt", attempt).
			Strs("errors", result.Errors).Msg("install attempt unsuccessful")
		lastResult = result
		lastErr = nil
	}

	e := errors.Newf(errors.ErrInstall, "failed to install pack %s after %d attempts", name, extraAttempts)
	if lastErr != nil {
		e = errors.Wrapf(lastErr, errors.ErrInstall, "failed to install pack %s after %d attempts", name, extraAttempts)
	} else if lastResult != nil && len(lastResult.Errors) > 0 {
		e = e.WithDetail("errors", strings.Join(lastResult.Errors, "; "))
	}
	return lastResult, e
}

// installOnce runs the full per-pack pipeline: load, validate, trust check,
// install, audit.
func (m *StarterPackManager) installOnce(ctx context.Context, name string, opts installer.Options) (*types.InstallResult, error) {
	pack, src, err := m.loadPack(ctx, name)
	if err != nil {
		return nil, err
	}
	info := src.Info()

	if validation := m.validator.ValidatePack(ctx, pack, src); !validation.Valid {
		return &types.InstallResult{
			Pack:   name,
			Errors: validation.Errors,
		}, nil
	}

	trustResult := m.trust.ValidatePack(pack, info)
	if !trustResult.Valid {
		m.recordRejection(info, pack)
		return nil, errors.New(errors.ErrSecurityRejected, "pack rejected by trust policy: "+strings.Join(trustResult.Errors, "; ")).
			WithDetail("pack", name)
	}
	consented := trustResult.Trusted
	if trustResult.RequiresConsent && !trustResult.Trusted {
		if m.consent == nil || !m.consent(name, trustResult.Warnings) {
			m.recordRejection(info, pack)
			return nil, errors.New(errors.ErrSecurityRejected, "installation of pack "+name+" was not consented to").
				WithDetail("warnings", strings.Join(trustResult.Warnings, "; "))
		}
		consented = true
	}

	result, err := m.installer.InstallPack(ctx, pack, src, opts)
	if err != nil {
		return nil, err
	}
	if result.Success && !opts.DryRun {
		if err := m.trust.RecordInstallation(info, pack, consented); err != nil {
			m.logger.Warn().Err(err).Str("pack", name).Msg("failed to write audit record")
		}
	}
	return result, nil
}

func (m *StarterPackManager) recordRejection(info types.SourceInfo, pack *types.PackStructure) {
	if err := m.trust.RecordRejection(info, pack); err != nil {
		m.logger.Warn().Err(err).Str("pack", pack.Manifest.Name).Msg("failed to write audit record")
	}
}

// UninstallPack removes a previously installed pack. The live source
// manifest, when still reachable, backs up a lost snapshot; the audit trail
// gets an uninstalled record when the pack's manifest is known.
func (m *StarterPackManager) UninstallPack(ctx context.Context, name string) (*types.UninstallResult, error) {
	var fallback *types.PackManifest
	var info types.SourceInfo
	if pack, src, err := m.loadPack(ctx, name); err == nil {
		fallback = pack.Manifest
		info = src.Info()
	}

	var audited *types.PackStructure
	if snapshot, err := m.installer.Snapshot(name); err == nil && snapshot != nil && snapshot.Manifest != nil {
		audited = &types.PackStructure{Manifest: snapshot.Manifest}
		if info.ID == "" {
			info = types.SourceInfo{ID: snapshot.Source}
		}
	} else if fallback != nil {
		audited = &types.PackStructure{Manifest: fallback}
	}

	result, err := m.installer.UninstallPack(ctx, name, fallback)
	if err != nil {
		return nil, err
	}
	if audited != nil {
		if auditErr := m.trust.RecordUninstallation(info, audited, true); auditErr != nil {
			m.logger.Warn().Err(auditErr).Str("pack", name).Msg("failed to write audit record")
		}
	}
	return result, nil
}

// ValidatePack loads a pack and runs full validation without installing it.
func (m *StarterPackManager) ValidatePack(ctx context.Context, name string) (*types.ValidationResult, error) {
	pack, src, err := m.loadPack(ctx, name)
	if err != nil {
		return nil, err
	}
	return m.validator.ValidatePack(ctx, pack, src), nil
}

// ListPacks aggregates the packs every enabled source can serve.
func (m *StarterPackManager) ListPacks(ctx context.Context) []types.PackListing {
	return m.registry.ListAvailablePacks(ctx)
}

// InstalledPacks returns the packs.json records.
func (m *StarterPackManager) InstalledPacks() (map[string]types.ProjectPackRecord, error) {
	return m.installer.InstalledPacks()
}

// ScanPack reports suspicious component names for a pack without side
// effects.
func (m *StarterPackManager) ScanPack(ctx context.Context, name string) ([]string, error) {
	pack, _, err := m.loadPack(ctx, name)
	if err != nil {
		return nil, err
	}
	return m.trust.ScanPackForThreats(pack), nil
}
