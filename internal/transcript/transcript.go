// Package transcript turns the agent's native session log into a browsable
// HTML transcript by delegating to an external renderer.
package transcript

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

const defaultRenderer = "claude-transcripts"

// rendererCommand returns the renderer executable, overridable via
// SKILLBENCH_TRANSCRIPT_RENDERER.
func rendererCommand() string {
	if cmd := os.Getenv("SKILLBENCH_TRANSCRIPT_RENDERER"); cmd != "" {
		return cmd
	}
	return defaultRenderer
}

// FindSessionLog locates the agent's session log under the environment's
// settings dir. Sub-agent logs (agent-*.jsonl) are skipped. Returns empty
// when no session log exists.
func FindSessionLog(settingsDir string) string {
	matches, err := filepath.Glob(filepath.Join(settingsDir, "projects", "*", "*.jsonl"))
	if err != nil {
		return ""
	}
	sort.Strings(matches)
	for _, m := range matches {
		if !strings.HasPrefix(filepath.Base(m), "agent-") {
			return m
		}
	}
	return ""
}

// Generate renders the session log into outputDir/transcript and retitles
// the pages with the scenario and skill set names. All failures are logged
// and swallowed; a missing session log or renderer is not an error.
func Generate(settingsDir, outputDir, scenarioName, skillSetName string, log *slog.Logger) {
	sessionLog := FindSessionLog(settingsDir)
	if sessionLog == "" {
		return
	}

	transcriptDir := filepath.Join(outputDir, "transcript")
	cmd := exec.Command(rendererCommand(), sessionLog, transcriptDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Warn("transcript generation failed", "error", err, "output", strings.TrimSpace(string(out)))
		return
	}

	title := scenarioName + " / " + skillSetName
	if err := retitle(transcriptDir, title); err != nil {
		log.Warn("transcript retitle failed", "error", err)
	}
}

// retitle replaces the renderer's generic page titles with the task
// identity, in both <title> and <h1> forms.
func retitle(transcriptDir, title string) error {
	pages, err := filepath.Glob(filepath.Join(transcriptDir, "*.html"))
	if err != nil {
		return err
	}
	for _, page := range pages {
		data, err := os.ReadFile(page)
		if err != nil {
			return err
		}
		content := string(data)
		content = strings.ReplaceAll(content, "<title>Claude Code transcript", "<title>"+title)
		content = strings.ReplaceAll(content, ">Claude Code transcript<", ">"+title+"<")
		if err := os.WriteFile(page, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}
