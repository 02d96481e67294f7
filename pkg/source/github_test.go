package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/arthur-debert/agentpack/pkg/filesystem"
	"github.com/arthur-debert/agentpack/pkg/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aperrors "github.com/arthur-debert/agentpack/pkg/errors"
)

const githubManifest = `{"name":"web-dev","version":"2.0.0","description":"Web pack","author":"octocat"}`

// githubFixture emulates the subset of the GitHub API the source uses.
type githubFixture struct {
	server      *httptest.Server
	tarballHits atomic.Int64
	sawAuth     atomic.Bool
}

func newGitHubFixture(t *testing.T) *githubFixture {
	t.Helper()
	f := &githubFixture{}
	tarball := packTarGz(t, "octocat-packs-abc123", map[string]string{
		"packs/web-dev/manifest.json":  githubManifest,
		"packs/web-dev/modes/focus.md": "# Focus",
		"packs/other/manifest.json":    `{"name":"other"}`,
	})

	contentsJSON := func(data string) string {
		return fmt.Sprintf(`{"name":"x","type":"file","encoding":"base64","content":%q}`,
			base64.StdEncoding.EncodeToString([]byte(data)))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/packs/contents/packs/web-dev/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			f.sawAuth.Store(true)
		}
		_, _ = w.Write([]byte(contentsJSON(githubManifest)))
	})
	mux.HandleFunc("/repos/octocat/packs/contents/packs/web-dev/manifest.checksum", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/repos/octocat/packs/contents/packs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"web-dev","type":"dir"},{"name":"other","type":"dir"},{"name":"README.md","type":"file"}]`))
	})
	mux.HandleFunc("/repos/octocat/packs/tarball/main", func(w http.ResponseWriter, r *http.Request) {
		f.tarballHits.Add(1)
		_, _ = w.Write(tarball)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newTestGitHub(t *testing.T, apiURL string, extra map[string]string) *GitHub {
	t.Helper()
	cfg := types.SourceConfig{
		ID:       "github-packs",
		Type:     types.SourceGitHub,
		Enabled:  true,
		Priority: 10,
		Config: map[string]string{
			"owner":  "octocat",
			"repo":   "packs",
			"apiUrl": apiURL,
		},
	}
	for k, v := range extra {
		cfg.Config[k] = v
	}
	s, err := NewGitHub(filesystem.NewAferoFS(afero.NewMemMapFs()), cfg, "/cache")
	require.NoError(t, err)
	return s
}

func TestGitHub_LoadPack(t *testing.T) {
	fixture := newGitHubFixture(t)
	s := newTestGitHub(t, fixture.server.URL, nil)
	ctx := context.Background()

	structure, err := s.LoadPack(ctx, "web-dev")
	require.NoError(t, err)
	assert.Equal(t, "web-dev", structure.Manifest.Name)
	assert.Equal(t, "2.0.0", structure.Manifest.Version)

	// Only the requested pack's subdirectory is extracted.
	assert.True(t, s.HasComponent(ctx, structure, types.ComponentModes, "focus"))
	_, err = s.fs.Stat(s.cache.packDir("other"))
	assert.Error(t, err)
}

func TestGitHub_LoadPack_Cached(t *testing.T) {
	fixture := newGitHubFixture(t)
	s := newTestGitHub(t, fixture.server.URL, nil)
	ctx := context.Background()

	_, err := s.LoadPack(ctx, "web-dev")
	require.NoError(t, err)
	_, err = s.LoadPack(ctx, "web-dev")
	require.NoError(t, err)
	assert.EqualValues(t, 1, fixture.tarballHits.Load())
}

func TestGitHub_LoadPack_NotFound(t *testing.T) {
	fixture := newGitHubFixture(t)
	s := newTestGitHub(t, fixture.server.URL, nil)

	_, err := s.LoadPack(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, aperrors.IsErrorCode(err, aperrors.ErrNotFound))
}

func TestGitHub_ListPacks(t *testing.T) {
	fixture := newGitHubFixture(t)
	s := newTestGitHub(t, fixture.server.URL, nil)

	packs, err := s.ListPacks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "web-dev"}, packs)
}

func TestGitHub_BearerToken(t *testing.T) {
	fixture := newGitHubFixture(t)
	s := newTestGitHub(t, fixture.server.URL, map[string]string{"token": "ghp_secret"})

	_, err := s.LoadPack(context.Background(), "web-dev")
	require.NoError(t, err)
	assert.True(t, fixture.sawAuth.Load())
}

func TestGitHub_RequiresOwnerAndRepo(t *testing.T) {
	_, err := NewGitHub(filesystem.NewAferoFS(afero.NewMemMapFs()), types.SourceConfig{
		ID:     "broken",
		Type:   types.SourceGitHub,
		Config: map[string]string{"owner": "octocat"},
	}, "/cache")
	assert.Error(t, err)
}
