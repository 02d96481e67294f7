package trust

import (
	"fmt"
	"regexp"

	"github.com/arthur-debert/agentpack/pkg/types"
)

// suspiciousNamePatterns are scanned against every declared component
// name. The scan is pure and side-effect free; it feeds human-readable
// findings into the caller's decision, not the validity verdict.
var suspiciousNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\beval\b`),
	regexp.MustCompile(`\bexec\b`),
	regexp.MustCompile(`\bsystem\b`),
	regexp.MustCompile(`\bspawn\b`),
	regexp.MustCompile(`rm\s+-rf`),
	regexp.MustCompile(`curl\s+.*\|\s*sh`),
	regexp.MustCompile("`"),
	regexp.MustCompile(`\$\(`),
}

// ScanPackForThreats scans every declared component name against the
// suspicious pattern list, returning human-readable findings.
func (m *Manager) ScanPackForThreats(pack *types.PackStructure) []string {
	var findings []string
	for _, componentType := range types.AllComponentTypes {
		for _, component := range pack.Manifest.Components.Of(componentType) {
			for _, pattern := range suspiciousNamePatterns {
				if pattern.MatchString(component.Name) {
					findings = append(findings,
						fmt.Sprintf("Suspicious pattern in component name: %s", component.Name))
					break
				}
			}
		}
	}
	return findings
}
