// Package envbuild materializes the isolated per-task environment the agent
// process runs in: scenario context files, the selected skills, an MCP
// server manifest, and any credentials the agent needs.
package envbuild

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"skillbench/internal/scenario"
)

// Config describes one environment build.
type Config struct {
	// ScenarioDir is the scenario's own directory, used for scenario-level
	// secrets (.env).
	ScenarioDir string
	// ContextDir is copied into the environment root when it exists.
	ContextDir string
	// RepoDir anchors repo-relative skill paths.
	RepoDir string
	// Skills lists skill references: repo-relative files, repo-relative
	// folders, or HTTP(S) URLs.
	Skills []string
	// MCPServers, when non-empty, is serialized into the environment's MCP
	// manifest.
	MCPServers map[string]scenario.MCPServer
}

// Environment is a disposable per-task sandbox.
type Environment struct {
	// Dir is the environment root; the agent process runs with this as its
	// working directory.
	Dir string
	// MCPConfigPath is the manifest path, empty when no MCP servers are
	// configured.
	MCPConfigPath string
}

// SettingsDir is the agent's private settings folder inside the environment.
func (e *Environment) SettingsDir() string {
	return filepath.Join(e.Dir, ".claude")
}

// Cleanup removes the environment. Failure to clean up is non-fatal and
// logged.
func (e *Environment) Cleanup(log *slog.Logger) {
	if e == nil || e.Dir == "" {
		return
	}
	if err := os.RemoveAll(e.Dir); err != nil {
		log.Warn("environment cleanup failed", "dir", e.Dir, "error", err)
	}
}

// Build creates a fresh isolated environment. A missing context dir is not
// an error; a failed skill fetch or copy aborts the build.
func Build(cfg Config) (*Environment, error) {
	envDir, err := os.MkdirTemp("", "skillbench-")
	if err != nil {
		return nil, fmt.Errorf("create environment dir: %w", err)
	}
	env := &Environment{Dir: envDir}

	if cfg.ContextDir != "" {
		if _, statErr := os.Stat(cfg.ContextDir); statErr == nil {
			if err := copyTree(cfg.ContextDir, envDir); err != nil {
				return env, fmt.Errorf("copy context: %w", err)
			}
		}
	}

	settingsDir := env.SettingsDir()
	if err := os.MkdirAll(settingsDir, 0o755); err != nil {
		return env, fmt.Errorf("create settings dir: %w", err)
	}

	if creds := readAgentCredentials(); creds != "" {
		credPath := filepath.Join(settingsDir, ".credentials.json")
		if err := os.WriteFile(credPath, []byte(creds), 0o600); err != nil {
			return env, fmt.Errorf("write credentials: %w", err)
		}
	}

	if len(cfg.Skills) > 0 {
		skillsDir := filepath.Join(settingsDir, "skills")
		if err := os.MkdirAll(skillsDir, 0o755); err != nil {
			return env, fmt.Errorf("create skills dir: %w", err)
		}
		for _, ref := range cfg.Skills {
			if IsURL(ref) {
				if err := downloadSkill(ref, skillsDir); err != nil {
					return env, err
				}
				continue
			}
			if err := copyLocalSkill(cfg.RepoDir, ref, skillsDir); err != nil {
				return env, fmt.Errorf("copy skill %s: %w", ref, err)
			}
		}
	}

	if len(cfg.MCPServers) > 0 {
		manifestPath, err := writeMCPManifest(settingsDir, cfg.MCPServers)
		if err != nil {
			return env, err
		}
		env.MCPConfigPath = manifestPath

		// MCP servers launched with --env-file expect the scenario's
		// secrets next to the agent's working directory.
		envFile := filepath.Join(cfg.ScenarioDir, ".env")
		if _, statErr := os.Stat(envFile); statErr == nil {
			if err := copyFile(envFile, filepath.Join(envDir, ".env")); err != nil {
				return env, fmt.Errorf("copy scenario secrets: %w", err)
			}
		}
	}

	return env, nil
}

func writeMCPManifest(settingsDir string, servers map[string]scenario.MCPServer) (string, error) {
	manifest := struct {
		MCPServers map[string]scenario.MCPServer `json:"mcpServers"`
	}{MCPServers: servers}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode mcp manifest: %w", err)
	}
	path := filepath.Join(settingsDir, "mcp-servers.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write mcp manifest: %w", err)
	}
	return path, nil
}
