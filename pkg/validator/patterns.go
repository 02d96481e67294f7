package validator

import "regexp"

// unsafeNamePattern rejects component names that could escape their
// installation directory or break path handling.
var unsafeNamePattern = regexp.MustCompile(`[/\\<>:"|?*]|\.\.|[\x00-\x1f]`)

// suspiciousCommandPatterns flag post-install command text that should
// never appear in a behavioral configuration pack. Commands are never
// executed either way.
var suspiciousCommandPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"rm -rf", regexp.MustCompile(`\brm\s+-(rf|fr|r\s+-f)\b`)},
	{"pipe to shell", regexp.MustCompile(`\|\s*(sh|bash|zsh)\b`)},
	{"download and execute", regexp.MustCompile(`(curl|wget)\s[^|]*\|`)},
	{"privilege escalation", regexp.MustCompile(`\bsudo\b`)},
	{"filesystem format", regexp.MustCompile(`\bmkfs\b|\bdd\s+if=`)},
	{"permission bomb", regexp.MustCompile(`chmod\s+-R?\s*777`)},
	{"eval", regexp.MustCompile(`\beval\b`)},
	{"fork bomb", regexp.MustCompile(`:\(\)\s*\{`)},
}

// injectedMarkupPatterns flag script or markup injection in component
// content. Components are prose and JSON documents; live markup has no
// business there.
var injectedMarkupPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"script tag", regexp.MustCompile(`(?i)<script[\s>]`)},
	{"iframe tag", regexp.MustCompile(`(?i)<iframe[\s>]`)},
	{"javascript url", regexp.MustCompile(`(?i)javascript:`)},
	{"event handler", regexp.MustCompile(`(?i)\bon(load|click|error|mouseover)\s*=`)},
	{"html data url", regexp.MustCompile(`(?i)data:text/html`)},
}

// forbiddenPathPrefixes are absolute system locations a pack root must
// never point at.
var forbiddenPathPrefixes = []string{
	"/etc",
	"/usr",
	"/bin",
	"/sbin",
	"/boot",
	"/var",
	"/sys",
	"/proc",
	"C:/Windows",
	"C:/Program Files",
}

func matchSuspiciousCommand(command string) string {
	for _, entry := range suspiciousCommandPatterns {
		if entry.pattern.MatchString(command) {
			return entry.name
		}
	}
	return ""
}

func matchInjectedMarkup(content []byte) string {
	for _, entry := range injectedMarkupPatterns {
		if entry.pattern.MatchString(string(content)) {
			return entry.name
		}
	}
	return ""
}
