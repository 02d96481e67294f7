package types

// ComponentType identifies one of the four installable artifact kinds a
// pack may declare.
type ComponentType string

const (
	ComponentModes     ComponentType = "modes"
	ComponentWorkflows ComponentType = "workflows"
	ComponentAgents    ComponentType = "agents"
	ComponentHooks     ComponentType = "hooks"
)

// AllComponentTypes lists every component type in manifest order.
var AllComponentTypes = []ComponentType{
	ComponentModes,
	ComponentWorkflows,
	ComponentAgents,
	ComponentHooks,
}

// Extension returns the file extension used for components of this type.
// Hooks are JSON documents; everything else is markdown.
func (t ComponentType) Extension() string {
	if t == ComponentHooks {
		return ".json"
	}
	return ".md"
}

// IsValid reports whether t is one of the known component types.
func (t ComponentType) IsValid() bool {
	switch t {
	case ComponentModes, ComponentWorkflows, ComponentAgents, ComponentHooks:
		return true
	}
	return false
}

// ComponentRef is a manifest entry declaring a single component.
type ComponentRef struct {
	Name         string         `json:"name"`
	Required     bool           `json:"required"`
	CustomConfig map[string]any `json:"customConfig,omitempty"`
}
