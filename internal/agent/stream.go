package agent

import (
	"encoding/json"
	"sort"
	"strings"
)

// SkillTool is the tool name the agent uses to invoke a skill; its input
// names the skill.
const SkillTool = "Skill"

// Record is the normalized result decoded from the agent's stream-json
// output.
type Record struct {
	// Text is the agent's free text, in arrival order, double-newline
	// separated.
	Text string `yaml:"-"`
	// SkillsInvoked lists skill invocations in order, duplicates preserved.
	SkillsInvoked []string `yaml:"skills_invoked"`
	// ToolsUsed lists distinct tools in first-use order.
	ToolsUsed []string `yaml:"tools_used"`

	// From the init event.
	Model           string   `yaml:"model"`
	SkillsAvailable []string `yaml:"skills_available"`
	MCPServers      []string `yaml:"mcp_servers"`

	// From the terminal result event.
	DurationMS   int64   `yaml:"duration_ms"`
	NumTurns     int     `yaml:"num_turns"`
	TotalCostUSD float64 `yaml:"total_cost_usd"`
	InputTokens  int     `yaml:"input_tokens"`
	OutputTokens int     `yaml:"output_tokens"`
}

type contentBlock struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Name  string `json:"name"`
	Input struct {
		Skill string `json:"skill"`
	} `json:"input"`
}

type streamEvent struct {
	Type       string          `json:"type"`
	Subtype    string          `json:"subtype"`
	Model      string          `json:"model"`
	Skills     []string        `json:"skills"`
	MCPServers json.RawMessage `json:"mcp_servers"`
	Message    struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
	DurationMS   int64   `json:"duration_ms"`
	NumTurns     int     `json:"num_turns"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	Usage        struct {
		InputTokens              int `json:"input_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
		OutputTokens             int `json:"output_tokens"`
	} `json:"usage"`
}

// Decode parses the newline-delimited JSON stream into a Record. Lines that
// are not valid JSON objects are skipped; empty input yields an empty
// record. Decode never fails.
func Decode(raw string) Record {
	rec := Record{
		SkillsInvoked:   []string{},
		ToolsUsed:       []string{},
		SkillsAvailable: []string{},
		MCPServers:      []string{},
	}

	var textParts []string
	toolSeen := make(map[string]struct{})

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '{' {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "system":
			if ev.Subtype != "init" {
				continue
			}
			rec.Model = ev.Model
			if ev.Skills != nil {
				rec.SkillsAvailable = ev.Skills
			}
			rec.MCPServers = decodeServerNames(ev.MCPServers)

		case "assistant":
			for _, block := range ev.Message.Content {
				switch block.Type {
				case "text":
					if text := strings.TrimSpace(block.Text); text != "" {
						textParts = append(textParts, text)
					}
				case "tool_use":
					if block.Name == "" {
						continue
					}
					if _, seen := toolSeen[block.Name]; !seen {
						toolSeen[block.Name] = struct{}{}
						rec.ToolsUsed = append(rec.ToolsUsed, block.Name)
					}
					if block.Name == SkillTool && block.Input.Skill != "" {
						rec.SkillsInvoked = append(rec.SkillsInvoked, block.Input.Skill)
					}
				}
			}

		case "result":
			rec.DurationMS = ev.DurationMS
			rec.NumTurns = ev.NumTurns
			rec.TotalCostUSD = ev.TotalCostUSD
			rec.InputTokens = ev.Usage.InputTokens +
				ev.Usage.CacheReadInputTokens +
				ev.Usage.CacheCreationInputTokens
			rec.OutputTokens = ev.Usage.OutputTokens
		}
	}

	rec.Text = strings.Join(textParts, "\n\n")
	return rec
}

// decodeServerNames accepts the two shapes the init event uses for MCP
// servers: a name-keyed object, or a list of names or {name: ...} objects.
func decodeServerNames(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}

	var byName map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byName); err == nil {
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}

	var plain []string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var objects []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &objects); err == nil {
		names := make([]string, 0, len(objects))
		for _, o := range objects {
			if o.Name != "" {
				names = append(names, o.Name)
			}
		}
		return names
	}
	return []string{}
}
