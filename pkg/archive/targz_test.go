package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/agentpack/pkg/filesystem"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTarGz creates an in-memory tar.gz with the given name→content entries.
func buildTarGz(t *testing.T, entries map[string]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return &buf
}

func TestExtractTarGz_StripTopLevel(t *testing.T) {
	fs := filesystem.NewAferoFS(afero.NewMemMapFs())
	archive := buildTarGz(t, map[string]string{
		"web-dev/manifest.json":  `{"name":"web-dev"}`,
		"web-dev/modes/focus.md": "# Focus mode",
	})

	err := ExtractTarGz(fs, archive, "/cache/web-dev", StripTopLevel())
	require.NoError(t, err)

	data, err := fs.ReadFile(filepath.Join("/cache/web-dev", "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"web-dev"}`, string(data))

	data, err = fs.ReadFile(filepath.Join("/cache/web-dev", "modes", "focus.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Focus mode", string(data))
}

func TestExtractTarGz_SubdirAfterTopLevel(t *testing.T) {
	fs := filesystem.NewAferoFS(afero.NewMemMapFs())
	archive := buildTarGz(t, map[string]string{
		"repo-abc123/packs/web-dev/manifest.json": `{"name":"web-dev"}`,
		"repo-abc123/packs/other/manifest.json":   `{"name":"other"}`,
		"repo-abc123/README.md":                   "readme",
	})

	err := ExtractTarGz(fs, archive, "/cache/web-dev", SubdirAfterTopLevel("packs/web-dev"))
	require.NoError(t, err)

	_, err = fs.ReadFile(filepath.Join("/cache/web-dev", "manifest.json"))
	require.NoError(t, err)

	// Entries outside the requested subdirectory must not appear.
	_, err = fs.Stat(filepath.Join("/cache/web-dev", "README.md"))
	assert.Error(t, err)
	_, err = fs.Stat(filepath.Join("/cache/web-dev", "other"))
	assert.Error(t, err)
}

func TestExtractTarGz_RejectsTraversal(t *testing.T) {
	fs := filesystem.NewAferoFS(afero.NewMemMapFs())
	archive := buildTarGz(t, map[string]string{
		"pack/../../etc/passwd": "pwned",
	})

	err := ExtractTarGz(fs, archive, "/cache/pack", StripTopLevel())
	assert.Error(t, err)
}

func TestExtractTarGz_NotGzip(t *testing.T) {
	fs := filesystem.NewAferoFS(afero.NewMemMapFs())
	err := ExtractTarGz(fs, bytes.NewReader([]byte("plain text")), "/cache", nil)
	assert.Error(t, err)
}
