package types

// ValidationResult is the structured outcome of manifest and content
// validation. Warnings never flip Valid.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError appends an error and marks the result invalid.
func (r *ValidationResult) AddError(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

// AddWarning appends a warning without affecting validity.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// TrustResult is the outcome of a trust check on a source or a pack.
// RequiresConsent marks checks that may proceed only with explicit user
// approval; Trusted short-circuits further checks.
type TrustResult struct {
	Valid           bool
	Trusted         bool
	RequiresConsent bool
	Errors          []string
	Warnings        []string
}

// Merge folds another trust result into this one: validity is AND-ed,
// consent requirements are OR-ed, messages are concatenated.
func (r *TrustResult) Merge(other *TrustResult) {
	if other == nil {
		return
	}
	r.Valid = r.Valid && other.Valid
	r.RequiresConsent = r.RequiresConsent || other.RequiresConsent
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ResolutionResult partitions a pack's declared dependency closure into
// three disjoint sets. Resolved is dependency-first and deduplicated.
type ResolutionResult struct {
	Resolved []string
	Missing  []string
	Circular []string
}

// OK reports whether the closure resolved cleanly.
func (r *ResolutionResult) OK() bool {
	return len(r.Missing) == 0 && len(r.Circular) == 0
}

// InstallResult reports the outcome of installing one pack. Partial
// failures surface through Installed/Skipped/Errors rather than the
// aggregate Success alone.
type InstallResult struct {
	Success            bool
	Pack               string
	Installed          []string
	Skipped            []string
	Errors             []string
	PostInstallMessage string
	// Attempts counts how many times the install was tried, including the
	// successful one.
	Attempts int
	// DryRun marks results produced without touching the filesystem.
	DryRun bool
}

// UninstallResult reports the outcome of removing one pack. Skipped lists
// components whose files were already gone; Errors lists components whose
// removal failed and were left behind.
type UninstallResult struct {
	Success  bool
	Pack     string
	Removed  []string
	Skipped  []string
	Errors   []string
	Warnings []string
}

// PackListing is one entry in the aggregated available-packs listing.
type PackListing struct {
	Name     string
	SourceID string
}
