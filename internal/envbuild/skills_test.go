package envbuild

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skillbench/internal/scenario"
)

func TestNormalizeGitHubURL(t *testing.T) {
	got := NormalizeGitHubURL("https://github.com/org/repo/blob/main/skills/x/SKILL.md")
	want := "https://raw.githubusercontent.com/org/repo/main/skills/x/SKILL.md"
	if got != want {
		t.Fatalf("normalized = %q, want %q", got, want)
	}
}

func TestNormalizeGitHubURLLeavesOtherHosts(t *testing.T) {
	url := "https://example.com/skills/my-skill/SKILL.md"
	if got := NormalizeGitHubURL(url); got != url {
		t.Fatalf("normalized = %q, want unchanged", got)
	}
}

func TestNormalizeGitHubURLLeavesNonBlobPaths(t *testing.T) {
	url := "https://github.com/org/repo/releases/tag/v1"
	if got := NormalizeGitHubURL(url); got != url {
		t.Fatalf("normalized = %q, want unchanged", got)
	}
}

func TestFolderNameForURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://example.com/skills/my-skill/SKILL.md", "my-skill"},
		{"https://raw.githubusercontent.com/org/repo/main/skills/x/SKILL.md", "x"},
		{"https://raw.githubusercontent.com/org/repo/main/SKILL.md", "repo"},
		{"https://example.com/SKILL.md", "example-com"},
	}
	for _, tc := range cases {
		if got := FolderNameForURL(tc.url); got != tc.want {
			t.Errorf("FolderNameForURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestIsURL(t *testing.T) {
	if !IsURL("https://example.com/SKILL.md") {
		t.Fatal("https URL not recognized")
	}
	if IsURL("skills/debugging/SKILL.md") {
		t.Fatal("relative path treated as URL")
	}
}

func TestBuildDownloadsRemoteSkill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# remote skill\n"))
	}))
	defer srv.Close()

	env, err := Build(Config{Skills: []string{srv.URL + "/skills/remote-skill/SKILL.md"}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer os.RemoveAll(env.Dir)

	data, err := os.ReadFile(filepath.Join(env.SettingsDir(), "skills", "remote-skill", "SKILL.md"))
	if err != nil {
		t.Fatalf("read downloaded skill: %v", err)
	}
	if string(data) != "# remote skill\n" {
		t.Fatalf("skill content = %q", data)
	}
}

func TestBuildFailsOnFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	env, err := Build(Config{Skills: []string{srv.URL + "/skills/gone/SKILL.md"}})
	if env != nil {
		defer os.RemoveAll(env.Dir)
	}
	if err == nil {
		t.Fatal("expected error for 404 skill fetch")
	}
}

func TestBuildCopiesContextAndLocalSkills(t *testing.T) {
	repo := t.TempDir()
	scenarioDir := filepath.Join(repo, "evals", "scenarios", "s1")
	contextDir := filepath.Join(scenarioDir, "context")
	if err := os.MkdirAll(filepath.Join(contextDir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(contextDir, "src", "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	skillDir := filepath.Join(repo, "skills", "debugging")
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte("# debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	env, err := Build(Config{
		ScenarioDir: scenarioDir,
		ContextDir:  contextDir,
		RepoDir:     repo,
		Skills:      []string{"skills/debugging/SKILL.md"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer os.RemoveAll(env.Dir)

	if _, err := os.Stat(filepath.Join(env.Dir, "src", "main.go")); err != nil {
		t.Fatalf("context not copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.SettingsDir(), "skills", "debugging", "SKILL.md")); err != nil {
		t.Fatalf("skill not copied: %v", err)
	}
	if env.MCPConfigPath != "" {
		t.Fatalf("mcp config path = %q, want empty", env.MCPConfigPath)
	}
}

func TestBuildWritesMCPManifestAndSecrets(t *testing.T) {
	scenarioDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(scenarioDir, ".env"), []byte("TOKEN=abc\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	env, err := Build(Config{
		ScenarioDir: scenarioDir,
		MCPServers: map[string]scenario.MCPServer{
			"github": {Command: "npx", Args: []string{"-y", "server-github"}},
		},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer os.RemoveAll(env.Dir)

	if env.MCPConfigPath == "" {
		t.Fatal("mcp config path is empty")
	}
	data, err := os.ReadFile(env.MCPConfigPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	for _, want := range []string{`"mcpServers"`, `"github"`, `"npx"`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("manifest missing %s:\n%s", want, data)
		}
	}
	if _, err := os.Stat(filepath.Join(env.Dir, ".env")); err != nil {
		t.Fatalf("scenario secrets not copied: %v", err)
	}
}
