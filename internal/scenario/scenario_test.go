package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScenario(t *testing.T, dir string, prompt, sets string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "prompt.txt"), []byte(prompt), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skill-sets.yaml"), []byte(sets), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadScenario(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fix-bug")
	writeScenario(t, dir, "Fix the bug.\n", `sets:
  - name: baseline
  - name: with-skill
    skills:
      - skills/debugging/SKILL.md
    allowed_tools:
      - Read
      - Edit
    extra_prompt: Use the debugging skill.
`)
	if err := os.WriteFile(filepath.Join(dir, "scenario.md"), []byte("# Fix bug\n\nA scenario about fixing a bug.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Name != "fix-bug" {
		t.Fatalf("name = %q, want fix-bug", s.Name)
	}
	if s.Prompt != "Fix the bug." {
		t.Fatalf("prompt = %q", s.Prompt)
	}
	if s.Description != "A scenario about fixing a bug." {
		t.Fatalf("description = %q", s.Description)
	}
	if len(s.SkillSets) != 2 {
		t.Fatalf("skill sets = %d, want 2", len(s.SkillSets))
	}
	if got := s.SkillSets[1].ExtraPrompt; got != "Use the debugging skill." {
		t.Fatalf("extra prompt = %q", got)
	}
	if got := s.ContextDir(); got != filepath.Join(dir, "context") {
		t.Fatalf("context dir = %q", got)
	}
}

func TestLoadRejectsDuplicateSetNames(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dup")
	writeScenario(t, dir, "p", "sets:\n  - name: a\n  - name: a\n")

	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "duplicate skill set name") {
		t.Fatalf("err = %v, want duplicate name error", err)
	}
}

func TestLoadRejectsMissingPrompt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "noprompt")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skill-sets.yaml"), []byte("sets:\n  - name: a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for missing prompt.txt")
	}
}

func TestMCPServerNormalizeSplitsCommand(t *testing.T) {
	m := MCPServer{Command: `npx -y "@scope/server-github"`}
	if err := m.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if m.Command != "npx" {
		t.Fatalf("command = %q, want npx", m.Command)
	}
	if len(m.Args) != 2 || m.Args[0] != "-y" || m.Args[1] != "@scope/server-github" {
		t.Fatalf("args = %#v", m.Args)
	}
}

func TestMCPServerNormalizeKeepsExplicitArgs(t *testing.T) {
	m := MCPServer{Command: "npx", Args: []string{"-y", "server"}}
	if err := m.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if m.Command != "npx" || len(m.Args) != 2 {
		t.Fatalf("spec changed unexpectedly: %#v", m)
	}
}

func TestMCPServerNormalizeRejectsBadQuoting(t *testing.T) {
	m := MCPServer{Command: `npx "unterminated`}
	if err := m.Normalize(); err == nil {
		t.Fatal("expected error for unterminated quote")
	}
}

func TestLoadFromDirSortsByName(t *testing.T) {
	root := t.TempDir()
	writeScenario(t, filepath.Join(root, "zeta"), "p", "sets:\n  - name: a\n")
	writeScenario(t, filepath.Join(root, "alpha"), "p", "sets:\n  - name: a\n")
	if err := os.MkdirAll(filepath.Join(root, ".hidden"), 0o755); err != nil {
		t.Fatal(err)
	}

	scenarios, err := LoadFromDir(root)
	if err != nil {
		t.Fatalf("load from dir: %v", err)
	}
	if len(scenarios) != 2 {
		t.Fatalf("scenarios = %d, want 2", len(scenarios))
	}
	if scenarios[0].Name != "alpha" || scenarios[1].Name != "zeta" {
		t.Fatalf("order = %s, %s", scenarios[0].Name, scenarios[1].Name)
	}
}
