package hashutil

import (
	"testing"

	"github.com/arthur-debert/agentpack/pkg/filesystem"
	"github.com/arthur-debert/agentpack/pkg/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	sum := Checksum([]byte("Hello, World!\n"))

	assert.Contains(t, sum, "sha256:")
	assert.Len(t, sum, 71) // "sha256:" + 64 hex chars

	// Same input, same checksum
	assert.Equal(t, sum, Checksum([]byte("Hello, World!\n")))

	// Different input, different checksum
	assert.NotEqual(t, sum, Checksum([]byte("Hello, World")))
}

func TestFileChecksum(t *testing.T) {
	fs := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fs.WriteFile("/file.md", []byte("content"), 0644))

	sum, err := FileChecksum(fs, "/file.md")
	require.NoError(t, err)
	assert.Equal(t, Checksum([]byte("content")), sum)

	_, err = FileChecksum(fs, "/missing.md")
	assert.Error(t, err)
}

func TestManifestChecksum(t *testing.T) {
	manifest := &types.PackManifest{
		Name:    "focus-pack",
		Version: "1.0.0",
	}

	sum1, err := ManifestChecksum(manifest)
	require.NoError(t, err)

	sum2, err := ManifestChecksum(manifest)
	require.NoError(t, err)
	assert.Equal(t, sum1, sum2)

	manifest.Version = "1.0.1"
	sum3, err := ManifestChecksum(manifest)
	require.NoError(t, err)
	assert.NotEqual(t, sum1, sum3)
}
