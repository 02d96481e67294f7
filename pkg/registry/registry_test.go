package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/agentpack/pkg/filesystem"
	"github.com/arthur-debert/agentpack/pkg/paths"
	"github.com/arthur-debert/agentpack/pkg/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aperrors "github.com/arthur-debert/agentpack/pkg/errors"
)

// newTestRegistry builds a registry over a memory filesystem whose local
// source serves the given name→dependencies graph.
func newTestRegistry(t *testing.T, packs map[string][]string) (*Registry, types.FS, *paths.Paths) {
	t.Helper()
	fs := filesystem.NewAferoFS(afero.NewMemMapFs())
	p := paths.New("/project")

	for name, deps := range packs {
		writeLocalPack(t, fs, p, name, deps)
	}

	r, err := New(fs, p)
	require.NoError(t, err)
	return r, fs, p
}

func writeLocalPack(t *testing.T, fs types.FS, p *paths.Paths, name string, deps []string) {
	t.Helper()
	manifest := map[string]any{
		"name":        name,
		"version":     "1.0.0",
		"description": "test pack",
		"author":      "tester",
		"components":  map[string]any{},
	}
	if len(deps) > 0 {
		manifest["dependencies"] = deps
	}
	data, err := json.Marshal(manifest)
	require.NoError(t, err)

	dir := filepath.Join(p.LocalPacksDir(), name)
	require.NoError(t, fs.MkdirAll(dir, 0755))
	require.NoError(t, fs.WriteFile(filepath.Join(dir, "manifest.json"), data, 0644))
}

func loadPack(t *testing.T, r *Registry, name string) *types.PackStructure {
	t.Helper()
	structure, _, err := r.LoadPack(context.Background(), name, "")
	require.NoError(t, err)
	return structure
}

func TestNew_SeedsSourcesFile(t *testing.T) {
	fs := filesystem.NewAferoFS(afero.NewMemMapFs())
	p := paths.New("/project")

	r, err := New(fs, p)
	require.NoError(t, err)
	assert.Equal(t, LocalSourceID, r.DefaultSource())

	// sources.json was written with the implicit local source.
	data, err := fs.ReadFile(p.SourcesFile())
	require.NoError(t, err)
	var file types.SourcesFile
	require.NoError(t, json.Unmarshal(data, &file))
	require.Len(t, file.Sources, 1)
	assert.Equal(t, LocalSourceID, file.Sources[0].ID)
}

func TestResolveDependencies_NoDependencies(t *testing.T) {
	r, _, _ := newTestRegistry(t, map[string][]string{"solo": nil})

	result, err := r.ResolveDependencies(context.Background(), loadPack(t, r, "solo"))
	require.NoError(t, err)
	assert.Empty(t, result.Resolved)
	assert.Empty(t, result.Missing)
	assert.Empty(t, result.Circular)
	assert.True(t, result.OK())
}

func TestResolveDependencies_Chain(t *testing.T) {
	r, _, _ := newTestRegistry(t, map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"d"},
		"d": {"e"},
		"e": nil,
	})

	result, err := r.ResolveDependencies(context.Background(), loadPack(t, r, "a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "d", "c", "b"}, result.Resolved)
}

func TestResolveDependencies_SelfDependency(t *testing.T) {
	r, _, _ := newTestRegistry(t, map[string][]string{"selfish": {"selfish"}})

	result, err := r.ResolveDependencies(context.Background(), loadPack(t, r, "selfish"))
	require.NoError(t, err)
	assert.Contains(t, result.Circular, "selfish")
	assert.Empty(t, result.Resolved)
}

func TestResolveDependencies_Cycle(t *testing.T) {
	r, _, _ := newTestRegistry(t, map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	})

	result, err := r.ResolveDependencies(context.Background(), loadPack(t, r, "a"))
	require.NoError(t, err)
	assert.Contains(t, result.Circular, "a")
}

func TestResolveDependencies_Diamond(t *testing.T) {
	r, _, _ := newTestRegistry(t, map[string][]string{
		"top":    {"left", "right"},
		"left":   {"shared"},
		"right":  {"shared"},
		"shared": nil,
	})

	result, err := r.ResolveDependencies(context.Background(), loadPack(t, r, "top"))
	require.NoError(t, err)

	// The shared dependency resolves exactly once, ordered before both
	// dependents.
	count := 0
	sharedIdx, leftIdx, rightIdx := -1, -1, -1
	for i, name := range result.Resolved {
		switch name {
		case "shared":
			count++
			sharedIdx = i
		case "left":
			leftIdx = i
		case "right":
			rightIdx = i
		}
	}
	assert.Equal(t, 1, count)
	assert.Less(t, sharedIdx, leftIdx)
	assert.Less(t, sharedIdx, rightIdx)
	assert.Empty(t, result.Circular)
}

func TestResolveDependencies_Missing(t *testing.T) {
	r, _, _ := newTestRegistry(t, map[string][]string{"lonely": {"ghost", "phantom"}})

	result, err := r.ResolveDependencies(context.Background(), loadPack(t, r, "lonely"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ghost", "phantom"}, result.Missing)
	assert.False(t, result.OK())
}

func TestResolveDependencies_DeepAndWide(t *testing.T) {
	packs := map[string][]string{}

	// A chain sixty levels deep.
	for i := 0; i < 60; i++ {
		name := fmt.Sprintf("deep-%d", i)
		if i < 59 {
			packs[name] = []string{fmt.Sprintf("deep-%d", i+1)}
		} else {
			packs[name] = nil
		}
	}

	// A root with fifty direct dependencies, the first of which heads the
	// deep chain.
	var wide []string
	for i := 0; i < 50; i++ {
		name := fmt.Sprintf("wide-%d", i)
		wide = append(wide, name)
		packs[name] = nil
	}
	packs["root"] = append([]string{"deep-0"}, wide...)

	r, _, _ := newTestRegistry(t, packs)
	result, err := r.ResolveDependencies(context.Background(), loadPack(t, r, "root"))
	require.NoError(t, err)
	assert.Len(t, result.Resolved, 110)
	assert.Empty(t, result.Missing)
	assert.Empty(t, result.Circular)

	// Dependency-first: deep-59 comes before deep-0.
	idx := map[string]int{}
	for i, name := range result.Resolved {
		idx[name] = i
	}
	assert.Less(t, idx["deep-59"], idx["deep-0"])
}

func TestLoadPack_PriorityOrder(t *testing.T) {
	r, fs, p := newTestRegistry(t, map[string][]string{"shared-name": nil})

	// A second local-shaped source with higher priority serving a pack of
	// the same name but a different version.
	highRoot := "/alt-packs"
	dir := filepath.Join(highRoot, "shared-name")
	require.NoError(t, fs.MkdirAll(dir, 0755))
	require.NoError(t, fs.WriteFile(filepath.Join(dir, "manifest.json"),
		[]byte(`{"name":"shared-name","version":"9.9.9"}`), 0644))

	require.NoError(t, r.AddSource(types.SourceConfig{
		ID:       "priority-source",
		Type:     types.SourceLocal,
		Enabled:  true,
		Priority: 200,
		Config:   map[string]string{"path": highRoot},
	}))

	structure, src, err := r.LoadPack(context.Background(), "shared-name", "")
	require.NoError(t, err)
	assert.Equal(t, "priority-source", src.Info().ID)
	assert.Equal(t, "9.9.9", structure.Manifest.Version)

	// A preferred source pins the lookup.
	structure, src, err = r.LoadPack(context.Background(), "shared-name", LocalSourceID)
	require.NoError(t, err)
	assert.Equal(t, LocalSourceID, src.Info().ID)
	assert.Equal(t, "1.0.0", structure.Manifest.Version)

	_ = p
}

func TestLoadPack_NotFoundNamesAttemptedSources(t *testing.T) {
	r, _, _ := newTestRegistry(t, nil)

	_, _, err := r.LoadPack(context.Background(), "nowhere", "")
	require.Error(t, err)
	assert.True(t, aperrors.IsErrorCode(err, aperrors.ErrNotFound))
	assert.Contains(t, err.Error(), "local")
}

func TestRemoveSource_LocalIsProtected(t *testing.T) {
	r, _, _ := newTestRegistry(t, nil)

	err := r.RemoveSource(LocalSourceID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be removed")
}

func TestAddAndRemoveSource_Persisted(t *testing.T) {
	r, fs, p := newTestRegistry(t, nil)

	require.NoError(t, r.AddSource(types.SourceConfig{
		ID:       "extra",
		Type:     types.SourceLocal,
		Enabled:  true,
		Priority: 10,
		Config:   map[string]string{"path": "/extra"},
	}))

	// A fresh registry instance sees the persisted source.
	r2, err := New(fs, p)
	require.NoError(t, err)
	_, ok := r2.Source("extra")
	assert.True(t, ok)

	require.NoError(t, r.RemoveSource("extra"))
	r3, err := New(fs, p)
	require.NoError(t, err)
	_, ok = r3.Source("extra")
	assert.False(t, ok)
}

func TestListAvailablePacks_SourceFailureDoesNotAbort(t *testing.T) {
	r, _, _ := newTestRegistry(t, map[string][]string{"web-dev": nil})

	r.Register(&failingSource{id: "flaky"})

	listings := r.ListAvailablePacks(context.Background())
	require.Len(t, listings, 1)
	assert.Equal(t, "web-dev", listings[0].Name)
	assert.Equal(t, LocalSourceID, listings[0].SourceID)
}

// failingSource errors on every operation.
type failingSource struct {
	id string
}

func (f *failingSource) Info() types.SourceInfo {
	return types.SourceInfo{ID: f.id, Type: types.SourceRemote, Enabled: true, Priority: 1}
}

func (f *failingSource) ListPacks(ctx context.Context) ([]string, error) {
	return nil, aperrors.New(aperrors.ErrNetwork, "listing failed")
}

func (f *failingSource) HasPack(ctx context.Context, name string) bool { return false }

func (f *failingSource) LoadPack(ctx context.Context, name string) (*types.PackStructure, error) {
	return nil, aperrors.New(aperrors.ErrNetwork, "load failed")
}

func (f *failingSource) ComponentPath(pack *types.PackStructure, componentType types.ComponentType, name string) string {
	return ""
}

func (f *failingSource) HasComponent(ctx context.Context, pack *types.PackStructure, componentType types.ComponentType, name string) bool {
	return false
}

func (f *failingSource) ClearExpiredCache() error { return nil }
func (f *failingSource) ClearAllCache() error     { return nil }
