package types

import "time"

// TrustPolicy is the mutable per-project policy governing which sources and
// packs may be installed without explicit consent. Seeded with defaults on
// first use and persisted under security/trust-policy.json.
type TrustPolicy struct {
	AllowedDomains        []string `json:"allowedDomains"`
	BlockedDomains        []string `json:"blockedDomains"`
	TrustedAuthors        []string `json:"trustedAuthors"`
	TrustedSources        []string `json:"trustedSources"`
	AllowUntrustedSources bool     `json:"allowUntrustedSources"`
	RequireConsent        bool     `json:"requireConsent"`
	AuditEnabled          bool     `json:"auditEnabled"`
	MaxPackSizeBytes      int64    `json:"maxPackSizeBytes"`
}

// TrustRecord is one append-only audit trail entry.
type TrustRecord struct {
	SourceID    string    `json:"sourceId"`
	PackName    string    `json:"packName"`
	PackVersion string    `json:"packVersion"`
	Author      string    `json:"author,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"`
	UserConsent bool      `json:"userConsent"`
	Checksum    string    `json:"checksum,omitempty"`
}

// Audit trail actions.
const (
	TrustActionInstalled   = "installed"
	TrustActionUninstalled = "uninstalled"
	TrustActionRejected    = "rejected"
)
