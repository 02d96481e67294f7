// Package trust enforces the per-project security policy: which sources
// and packs may be installed, under what consent, with an append-only
// audit trail of every decision.
package trust

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/arthur-debert/agentpack/pkg/errors"
	"github.com/arthur-debert/agentpack/pkg/internal/hashutil"
	"github.com/arthur-debert/agentpack/pkg/logging"
	"github.com/arthur-debert/agentpack/pkg/paths"
	"github.com/arthur-debert/agentpack/pkg/types"
	"github.com/rs/zerolog"
)

// componentCountAnomalyThreshold flags packs declaring implausibly many
// components.
const componentCountAnomalyThreshold = 50

// Manager owns the trust state of one project root. Construct one per
// project and call Initialize before use.
type Manager struct {
	fs     types.FS
	paths  *paths.Paths
	logger zerolog.Logger

	initialized    bool
	policy         types.TrustPolicy
	trustedSources []string
	records        []types.TrustRecord
}

// NewManager creates an uninitialized trust manager for a project.
func NewManager(fs types.FS, p *paths.Paths) *Manager {
	return &Manager{
		fs:     fs,
		paths:  p,
		logger: logging.GetLogger("trust"),
	}
}

// DefaultPolicy returns the policy seeded on first use: auditing and
// consent on, untrusted sources off, a 50 MiB pack size cap.
func DefaultPolicy() types.TrustPolicy {
	return types.TrustPolicy{
		AllowedDomains:        []string{},
		BlockedDomains:        []string{},
		TrustedAuthors:        []string{},
		TrustedSources:        []string{},
		AllowUntrustedSources: false,
		RequireConsent:        true,
		AuditEnabled:          true,
		MaxPackSizeBytes:      50 << 20,
	}
}

// Initialize creates the security directory and loads (or seeds) the
// policy, trusted-source list and prior audit records. Idempotent.
func (m *Manager) Initialize() error {
	if m.initialized {
		return nil
	}

	if err := m.fs.MkdirAll(m.paths.SecurityDir(), 0755); err != nil {
		return errors.Wrap(err, errors.ErrDirCreate, "cannot create security directory")
	}

	if err := m.loadOrSeedPolicy(); err != nil {
		return err
	}
	if err := loadJSON(m.fs, m.paths.TrustedSourcesFile(), &m.trustedSources); err != nil {
		return err
	}
	if err := loadJSON(m.fs, m.paths.TrustRecordsFile(), &m.records); err != nil {
		return err
	}

	m.initialized = true
	m.logger.Debug().Int("records", len(m.records)).Msg("Trust manager initialized")
	return nil
}

func (m *Manager) loadOrSeedPolicy() error {
	data, err := m.fs.ReadFile(m.paths.TrustPolicyFile())
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrap(err, errors.ErrConfigLoad, "cannot read trust policy")
		}
		m.policy = DefaultPolicy()
		return m.savePolicy()
	}
	if err := json.Unmarshal(data, &m.policy); err != nil {
		return errors.Wrap(err, errors.ErrConfigParse, "trust policy is corrupt")
	}
	return nil
}

func (m *Manager) savePolicy() error {
	return saveJSON(m.fs, m.paths.TrustPolicyFile(), m.policy)
}

// Policy returns the active trust policy.
func (m *Manager) Policy() types.TrustPolicy {
	return m.policy
}

// SetPolicy replaces and persists the trust policy.
func (m *Manager) SetPolicy(policy types.TrustPolicy) error {
	m.policy = policy
	return m.savePolicy()
}

// TrustSource adds a source to the persisted trusted list.
func (m *Manager) TrustSource(sourceID string) error {
	if slices.Contains(m.trustedSources, sourceID) {
		return nil
	}
	m.trustedSources = append(m.trustedSources, sourceID)
	return saveJSON(m.fs, m.paths.TrustedSourcesFile(), m.trustedSources)
}

// ValidateSource applies the policy to a source. Local and explicitly
// trusted sources bypass further checks; blocked domains are hard
// failures; everything else may require consent.
func (m *Manager) ValidateSource(info types.SourceInfo) *types.TrustResult {
	result := &types.TrustResult{Valid: true}

	if info.Type == types.SourceLocal {
		result.Trusted = true
		return result
	}
	if slices.Contains(m.trustedSources, info.ID) || slices.Contains(m.policy.TrustedSources, info.ID) {
		result.Trusted = true
		return result
	}

	domain := domainOf(info.Location)
	if domain != "" && slices.Contains(m.policy.BlockedDomains, domain) {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("source %s uses blocked domain %s", info.ID, domain))
		return result
	}

	if len(m.policy.AllowedDomains) > 0 && !slices.Contains(m.policy.AllowedDomains, domain) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("source %s domain %s is not on the allowed list", info.ID, domain))
		result.RequiresConsent = true
	}

	if !m.policy.AllowUntrustedSources {
		result.RequiresConsent = true
	}

	return result
}

// ValidatePack applies the policy to a loaded pack, merging the source
// validation into the outcome.
func (m *Manager) ValidatePack(pack *types.PackStructure, info types.SourceInfo) *types.TrustResult {
	result := &types.TrustResult{Valid: true}
	manifest := pack.Manifest

	if manifest.Author != "" && slices.Contains(m.policy.TrustedAuthors, manifest.Author) {
		result.Trusted = true
	}

	if hooks := len(manifest.Components.Hooks); hooks > 0 {
		// Hooks mutate host-tool behavior, so they always need consent.
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("pack %s declares %d hook(s) that change tool behavior", manifest.Name, hooks))
		result.RequiresConsent = true
	}

	if manifest.PostInstall != nil && len(manifest.PostInstall.Commands) > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("pack %s declares post-install commands; they will not be executed", manifest.Name))
	}

	if count := manifest.Components.Count(); count > componentCountAnomalyThreshold {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("pack %s declares %d components, which is unusually many", manifest.Name, count))
	}

	result.Merge(m.ValidateSource(info))
	return result
}

// RecordInstallation appends an audit record for an install, persisted
// immediately unless auditing is disabled by policy.
func (m *Manager) RecordInstallation(info types.SourceInfo, pack *types.PackStructure, userConsent bool) error {
	return m.record(info, pack, types.TrustActionInstalled, userConsent)
}

// RecordUninstallation appends an audit record for an uninstall.
func (m *Manager) RecordUninstallation(info types.SourceInfo, pack *types.PackStructure, userConsent bool) error {
	return m.record(info, pack, types.TrustActionUninstalled, userConsent)
}

// RecordRejection appends an audit record for a pack refused by policy or
// withheld consent.
func (m *Manager) RecordRejection(info types.SourceInfo, pack *types.PackStructure) error {
	return m.record(info, pack, types.TrustActionRejected, false)
}

func (m *Manager) record(info types.SourceInfo, pack *types.PackStructure, action string, userConsent bool) error {
	if !m.policy.AuditEnabled {
		return nil
	}

	checksum, err := hashutil.ManifestChecksum(pack.Manifest)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "cannot checksum manifest for audit record")
	}

	m.records = append(m.records, types.TrustRecord{
		SourceID:    info.ID,
		PackName:    pack.Manifest.Name,
		PackVersion: pack.Manifest.Version,
		Author:      pack.Manifest.Author,
		Timestamp:   time.Now(),
		Action:      action,
		UserConsent: userConsent,
		Checksum:    checksum,
	})
	return saveJSON(m.fs, m.paths.TrustRecordsFile(), m.records)
}

// Records returns the audit trail loaded at initialization plus any
// records appended since.
func (m *Manager) Records() []types.TrustRecord {
	return m.records
}

func domainOf(location string) string {
	parsed, err := url.Parse(location)
	if err != nil || parsed.Host == "" {
		// GitHub locations are host/owner/repo without a scheme.
		if parsed, err = url.Parse("https://" + location); err != nil {
			return ""
		}
	}
	return parsed.Hostname()
}

func loadJSON[T any](fs types.FS, path string, out *T) error {
	data, err := fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, errors.ErrConfigLoad, "cannot read %s", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, errors.ErrConfigParse, "%s is corrupt", path)
	}
	return nil
}

func saveJSON(fs types.FS, path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "cannot encode trust state")
	}
	if err := fs.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrConfigWrite, "cannot write %s", path)
	}
	return nil
}
