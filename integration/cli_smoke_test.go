package integration_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skillbench/integration/harness"
)

func TestCLISmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	workspace := t.TempDir()
	runDir := t.TempDir()

	fixture := filepath.Join(harness.RepoRoot(t), "integration", "fixtures", "workspace-min")
	harness.CopyFixture(t, fixture, workspace)

	stdout, stderr, code := harness.Run(t, binPath, runDir, []string{"--help"})
	if code != 0 {
		t.Fatalf("skillbench --help exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout+stderr, "A/B test skill variations") {
		t.Fatalf("expected help output to include header\nstdout:\n%s\nstderr:\n%s", stdout, stderr)
	}

	args := []string{
		"run", "--all",
		"--workspace", workspace,
		"--agent", "mock",
	}
	stdout, stderr, code = harness.Run(t, binPath, runDir, args)
	if code != 0 {
		t.Fatalf("skillbench run exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "Run complete: 2 passed, 0 failed") {
		t.Fatalf("unexpected run summary\nstdout:\n%s", stdout)
	}

	runsDir := filepath.Join(workspace, "runs")
	runs, err := os.ReadDir(runsDir)
	if err != nil {
		t.Fatalf("read runs dir: %v", err)
	}
	var runID string
	for _, e := range runs {
		if e.IsDir() {
			runID = e.Name()
		}
	}
	if runID == "" {
		t.Fatal("no run directory created")
	}

	for _, skillSet := range []string{"baseline", "guided"} {
		taskDir := filepath.Join(runsDir, runID, "demo", skillSet)
		for _, artifact := range []string{"output.md", "raw.jsonl", "metadata.yaml"} {
			if _, err := os.Stat(filepath.Join(taskDir, artifact)); err != nil {
				t.Fatalf("missing artifact %s/%s: %v", skillSet, artifact, err)
			}
		}
		// The mock agent leaves NOTES.md in the environment, so change
		// detection must capture it.
		if _, err := os.Stat(filepath.Join(taskDir, "changes", "NOTES.md")); err != nil {
			t.Fatalf("missing changed file for %s: %v", skillSet, err)
		}
	}

	if _, err := os.Stat(filepath.Join(runsDir, "events.db")); err != nil {
		t.Fatalf("audit db not written: %v", err)
	}
}

func TestGradeAndReportSmoke(t *testing.T) {
	binPath := harness.BuildBinary(t)
	workspace := t.TempDir()
	runDir := t.TempDir()

	fixture := filepath.Join(harness.RepoRoot(t), "integration", "fixtures", "workspace-min")
	harness.CopyFixture(t, fixture, workspace)

	stdout, stderr, code := harness.Run(t, binPath, runDir, []string{
		"run", "--all", "--workspace", workspace, "--agent", "mock", "--parallel", "--workers", "2",
	})
	if code != 0 {
		t.Fatalf("skillbench run exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}

	stdout, stderr, code = harness.Run(t, binPath, runDir, []string{
		"grade", "--workspace", workspace,
	})
	if code != 0 {
		t.Fatalf("skillbench grade exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "output.md") {
		t.Fatalf("grade output missing review list\nstdout:\n%s", stdout)
	}

	runs, err := os.ReadDir(filepath.Join(workspace, "runs"))
	if err != nil {
		t.Fatal(err)
	}
	var runID string
	for _, e := range runs {
		if e.IsDir() {
			runID = e.Name()
		}
	}
	if _, err := os.Stat(filepath.Join(workspace, "runs", runID, "grades.yaml")); err != nil {
		t.Fatalf("grades.yaml not scaffolded: %v", err)
	}

	stdout, stderr, code = harness.Run(t, binPath, runDir, []string{
		"report", "--workspace", workspace, runID,
	})
	if code != 0 {
		t.Fatalf("skillbench report exit code %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "## Summary") {
		t.Fatalf("report missing summary\nstdout:\n%s", stdout)
	}
	if _, err := os.Stat(filepath.Join(workspace, "reports", runID+".md")); err != nil {
		t.Fatalf("report file not written: %v", err)
	}
}

func TestRunLookupErrors(t *testing.T) {
	binPath := harness.BuildBinary(t)
	workspace := t.TempDir()
	if err := os.MkdirAll(filepath.Join(workspace, "runs"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, stderr, code := harness.Run(t, binPath, t.TempDir(), []string{
		"report", "--workspace", workspace, "1999",
	})
	if code == 0 {
		t.Fatal("expected nonzero exit for unknown run")
	}
	if !strings.Contains(stderr, "no run") {
		t.Fatalf("stderr = %q", stderr)
	}
}
