// Package types defines the core data structures shared across agentpack:
// pack manifests and their components, source configuration, trust policy
// and audit records, and the result shapes returned by the validation,
// installation and resolution layers.
package types
