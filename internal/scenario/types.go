package scenario

import "path/filepath"

// MCPServer is a typed launch spec for one auxiliary MCP server.
//
// Command may be a single executable or a shell-style string; Normalize
// splits the latter into Command plus Args so the manifest handed to the
// agent always carries an argv-shaped spec.
type MCPServer struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// SkillSet is one named configuration under test: the skills made available
// to the agent, optional MCP servers, an optional tool allow-list, and
// optional extra prompt text.
type SkillSet struct {
	Name         string               `yaml:"name"`
	Skills       []string             `yaml:"skills,omitempty"`
	MCPServers   map[string]MCPServer `yaml:"mcp_servers,omitempty"`
	AllowedTools []string             `yaml:"allowed_tools,omitempty"`
	ExtraPrompt  string               `yaml:"extra_prompt,omitempty"`
}

// Scenario is a named task definition evaluated against each of its skill
// sets. Immutable once loaded.
type Scenario struct {
	Name        string
	Path        string
	Prompt      string
	Description string
	SkillSets   []SkillSet
}

// ContextDir is the directory of context files seeded into each isolated
// environment. It may not exist; a missing context dir means an empty
// environment.
func (s *Scenario) ContextDir() string {
	return filepath.Join(s.Path, "context")
}
