package runner

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"skillbench/internal/agent"
	"skillbench/internal/envbuild"
	"skillbench/internal/scenario"
	"skillbench/internal/transcript"
)

// metadata is the per-task record persisted as metadata.yaml.
type metadata struct {
	Scenario     string `yaml:"scenario"`
	SkillSet     string `yaml:"skill_set"`
	Success      bool   `yaml:"success"`
	Error        string `yaml:"error,omitempty"`
	agent.Record `yaml:",inline"`
}

// outputDir is where one task's artifacts live inside a run directory.
func outputDir(runDir string, s *scenario.Scenario, set scenario.SkillSet) string {
	return filepath.Join(runDir, s.Name, set.Name)
}

// record persists all artifacts for a finished task: the agent's final
// output, the raw stream, metadata, changed files, a unified diff, and the
// rendered transcript.
func (r *Runner) record(s *scenario.Scenario, set scenario.SkillSet, runDir string, env *envbuild.Environment, out *agent.RunOutput, changed []string, result RunResult, log *slog.Logger) error {
	dir := outputDir(runDir, s, set)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "output.md"), []byte(out.Record.Text), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "raw.jsonl"), []byte(out.RawStream), 0o644); err != nil {
		return fmt.Errorf("write raw stream: %w", err)
	}

	if err := writeMetadata(dir, metadata{
		Scenario: s.Name,
		SkillSet: set.Name,
		Success:  result.Success,
		Error:    result.Error,
		Record:   out.Record,
	}); err != nil {
		return err
	}

	if err := recordChanges(s.ContextDir(), env.Dir, dir, changed); err != nil {
		return err
	}

	transcript.Generate(env.SettingsDir(), dir, s.Name, set.Name, log)
	return nil
}

// recordFailure persists the minimal artifact set for a task that never
// produced agent output, so every task leaves a metadata.yaml behind.
func (r *Runner) recordFailure(s *scenario.Scenario, set scenario.SkillSet, runDir string, result RunResult, log *slog.Logger) {
	dir := outputDir(runDir, s, set)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("record failure artifacts", "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "output.md"), []byte(result.Output), 0o644); err != nil {
		log.Warn("record failure artifacts", "error", err)
	}
	if err := writeMetadata(dir, metadata{
		Scenario: s.Name,
		SkillSet: set.Name,
		Success:  false,
		Error:    result.Error,
		Record: agent.Record{
			SkillsInvoked:   []string{},
			ToolsUsed:       []string{},
			SkillsAvailable: []string{},
			MCPServers:      []string{},
		},
	}); err != nil {
		log.Warn("record failure artifacts", "error", err)
	}
}

func writeMetadata(dir string, md metadata) error {
	data, err := yaml.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.yaml"), data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// recordChanges copies each changed file out of the environment into
// changes/ and writes a combined unified diff against the scenario context.
func recordChanges(contextDir, envDir, dir string, changed []string) error {
	if len(changed) == 0 {
		return nil
	}

	changesDir := filepath.Join(dir, "changes")
	var combined string
	for _, rel := range changed {
		dst := filepath.Join(changesDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create changes dir: %w", err)
		}
		if err := copyFile(filepath.Join(envDir, rel), dst); err != nil {
			return fmt.Errorf("copy changed file %s: %w", rel, err)
		}

		diff, err := diffFile(contextDir, envDir, rel)
		if err != nil {
			return err
		}
		combined += diff
	}

	if combined != "" {
		if err := os.WriteFile(filepath.Join(dir, "changes.diff"), []byte(combined), 0o644); err != nil {
			return fmt.Errorf("write changes diff: %w", err)
		}
	}
	return nil
}

// diffFile renders a unified diff for one changed file. New files diff
// against an empty original.
func diffFile(contextDir, envDir, rel string) (string, error) {
	modified, err := os.ReadFile(filepath.Join(envDir, rel))
	if err != nil {
		return "", fmt.Errorf("read modified %s: %w", rel, err)
	}
	var original []byte
	if data, err := os.ReadFile(filepath.Join(contextDir, rel)); err == nil {
		original = data
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(original)),
		B:        difflib.SplitLines(string(modified)),
		FromFile: filepath.Join("original", rel),
		ToFile:   filepath.Join("modified", rel),
		Context:  3,
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
