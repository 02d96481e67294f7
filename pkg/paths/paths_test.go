package paths

import (
	"path/filepath"
	"testing"

	"github.com/arthur-debert/agentpack/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestPaths_StateLayout(t *testing.T) {
	p := New("/project")

	assert.Equal(t, filepath.Join("/project", ".agentpack"), p.StateDir())
	assert.Equal(t, filepath.Join("/project", ".agentpack", "sources.json"), p.SourcesFile())
	assert.Equal(t, filepath.Join("/project", ".agentpack", "packs.json"), p.PacksFile())
	assert.Equal(t, filepath.Join("/project", ".agentpack", "packs", "web-dev.manifest.json"), p.SnapshotFile("web-dev"))
	assert.Equal(t, filepath.Join("/project", ".agentpack", "security", "trust-policy.json"), p.TrustPolicyFile())
}

func TestPaths_ComponentFile(t *testing.T) {
	p := New("/project")

	tests := []struct {
		componentType types.ComponentType
		name          string
		expected      string
	}{
		{types.ComponentModes, "focus", filepath.Join("/project", ".agentpack", "modes", "focus.md")},
		{types.ComponentWorkflows, "review", filepath.Join("/project", ".agentpack", "workflows", "review.md")},
		{types.ComponentHooks, "pre-commit", filepath.Join("/project", ".agentpack", "hooks", "pre-commit.json")},
		{types.ComponentAgents, "helper", filepath.Join("/project", ".claude", "agents", "helper.md")},
	}

	for _, tt := range tests {
		t.Run(string(tt.componentType), func(t *testing.T) {
			assert.Equal(t, tt.expected, p.ComponentFile(tt.componentType, tt.name))
		})
	}
}

func TestPaths_WithAgentsDir(t *testing.T) {
	p := New("/project", WithAgentsDir(".cursor/agents"))
	assert.Equal(t, filepath.Join("/project", ".cursor", "agents", "helper.md"),
		p.ComponentFile(types.ComponentAgents, "helper"))
}
