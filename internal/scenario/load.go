package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxDescriptionLen = 60

// LoadFromDir loads every scenario directory under scenariosDir, sorted by
// name. Hidden directories are skipped.
func LoadFromDir(scenariosDir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(scenariosDir)
	if err != nil {
		return nil, fmt.Errorf("scan scenarios dir: %w", err)
	}

	var scenarios []*Scenario
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		s, loadErr := Load(filepath.Join(scenariosDir, entry.Name()))
		if loadErr != nil {
			return nil, loadErr
		}
		scenarios = append(scenarios, s)
	}
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", scenariosDir)
	}
	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].Name < scenarios[j].Name })
	return scenarios, nil
}

// Load loads and validates a single scenario directory containing prompt.txt,
// skill-sets.yaml, and optionally scenario.md and context/.
func Load(scenarioDir string) (*Scenario, error) {
	abs, err := filepath.Abs(scenarioDir)
	if err != nil {
		return nil, fmt.Errorf("resolve scenario dir: %w", err)
	}
	name := filepath.Base(abs)

	promptData, err := os.ReadFile(filepath.Join(abs, "prompt.txt"))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: read prompt: %w", name, err)
	}

	setsData, err := os.ReadFile(filepath.Join(abs, "skill-sets.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: read skill sets: %w", name, err)
	}
	sets, err := parseSkillSets(setsData, name)
	if err != nil {
		return nil, err
	}

	s := &Scenario{
		Name:        name,
		Path:        abs,
		Prompt:      strings.TrimSpace(string(promptData)),
		Description: loadDescription(abs),
		SkillSets:   sets,
	}
	return s, nil
}

func parseSkillSets(data []byte, scenarioName string) ([]SkillSet, error) {
	var doc struct {
		Sets []SkillSet `yaml:"sets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("scenario %s: parse skill-sets.yaml: %w", scenarioName, err)
	}
	if len(doc.Sets) == 0 {
		return nil, fmt.Errorf("scenario %s: skill-sets.yaml defines no sets", scenarioName)
	}

	seen := make(map[string]struct{}, len(doc.Sets))
	for i := range doc.Sets {
		set := &doc.Sets[i]
		if strings.TrimSpace(set.Name) == "" {
			return nil, fmt.Errorf("scenario %s: sets[%d] has no name", scenarioName, i)
		}
		if _, dup := seen[set.Name]; dup {
			return nil, fmt.Errorf("scenario %s: duplicate skill set name %q", scenarioName, set.Name)
		}
		seen[set.Name] = struct{}{}

		for serverName := range set.MCPServers {
			server := set.MCPServers[serverName]
			if err := server.Normalize(); err != nil {
				return nil, fmt.Errorf("scenario %s: set %q: mcp server %q: %w",
					scenarioName, set.Name, serverName, err)
			}
			set.MCPServers[serverName] = server
		}
	}
	return doc.Sets, nil
}

// loadDescription returns the first non-heading line of scenario.md,
// truncated for display. Missing or unreadable files yield an empty
// description.
func loadDescription(scenarioDir string) string {
	data, err := os.ReadFile(filepath.Join(scenarioDir, "scenario.md"))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) > maxDescriptionLen {
			return line[:maxDescriptionLen] + "..."
		}
		return line
	}
	return ""
}
