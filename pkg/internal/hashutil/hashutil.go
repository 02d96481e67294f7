package hashutil

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/arthur-debert/agentpack/pkg/types"
)

// Checksum calculates the SHA256 checksum of a byte slice
func Checksum(data []byte) string {
	return fmt.Sprintf("sha256:%x", sha256.Sum256(data))
}

// FileChecksum calculates the SHA256 checksum of a file
func FileChecksum(fs types.FS, path string) (string, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Checksum(data), nil
}

// ManifestChecksum calculates a stable checksum over a manifest's canonical
// JSON encoding, used for the trust audit trail.
func ManifestChecksum(manifest *types.PackManifest) (string, error) {
	data, err := json.Marshal(manifest)
	if err != nil {
		return "", err
	}
	return Checksum(data), nil
}
