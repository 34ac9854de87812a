package runner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"skillbench/internal/agent"
	"skillbench/internal/scenario"
	"skillbench/internal/workspace"
)

func testWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	root := t.TempDir()
	ws := &workspace.Workspace{
		Root:         root,
		RepoDir:      filepath.Join(root, "repo"),
		ScenariosDir: filepath.Join(root, "scenarios"),
		RunsDir:      filepath.Join(root, "runs"),
		ReportsDir:   filepath.Join(root, "reports"),
	}
	if err := ws.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	return ws
}

func testScenario(t *testing.T, name string) *scenario.Scenario {
	t.Helper()
	dir := t.TempDir()
	ctxDir := filepath.Join(dir, "context")
	if err := os.MkdirAll(ctxDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ctxDir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &scenario.Scenario{Name: name, Path: dir, Prompt: "do the thing"}
}

func TestRunScenarioRecordsArtifacts(t *testing.T) {
	ws := testWorkspace(t)
	r := New(ws, &agent.MockAgent{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	runDir, err := r.CreateRunDir()
	if err != nil {
		t.Fatal(err)
	}
	s := testScenario(t, "fix-bug")
	set := scenario.SkillSet{Name: "baseline"}

	res := r.RunScenario(context.Background(), s, set, runDir)
	if !res.Success {
		t.Fatalf("success = false, error = %q", res.Error)
	}
	if res.ScenarioName != "fix-bug" || res.SkillSetName != "baseline" {
		t.Fatalf("result identity = %q/%q", res.ScenarioName, res.SkillSetName)
	}
	if !strings.Contains(res.Output, "do the thing") {
		t.Fatalf("output = %q", res.Output)
	}

	dir := filepath.Join(runDir, "fix-bug", "baseline")
	for _, name := range []string{"output.md", "raw.jsonl", "metadata.yaml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing artifact %s: %v", name, err)
		}
	}

	// The mock agent writes NOTES.md into the environment.
	if _, err := os.Stat(filepath.Join(dir, "changes", "NOTES.md")); err != nil {
		t.Fatalf("changed file not captured: %v", err)
	}
	diff, err := os.ReadFile(filepath.Join(dir, "changes.diff"))
	if err != nil {
		t.Fatalf("read changes.diff: %v", err)
	}
	if !strings.Contains(string(diff), "+mock agent") {
		t.Fatalf("diff missing added line:\n%s", diff)
	}

	data, err := os.ReadFile(filepath.Join(dir, "metadata.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var md map[string]any
	if err := yaml.Unmarshal(data, &md); err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if md["scenario"] != "fix-bug" || md["success"] != true {
		t.Fatalf("metadata = %v", md)
	}
	if md["model"] != "mock-model" {
		t.Fatalf("model = %v", md["model"])
	}
	if _, ok := md["tools_used"]; !ok {
		t.Fatal("metadata missing tools_used")
	}
}

func TestRunScenarioPromptComposition(t *testing.T) {
	ws := testWorkspace(t)
	r := New(ws, &agent.MockAgent{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	runDir, err := r.CreateRunDir()
	if err != nil {
		t.Fatal(err)
	}
	s := testScenario(t, "compose")
	set := scenario.SkillSet{Name: "extra", ExtraPrompt: "use the skill"}

	res := r.RunScenario(context.Background(), s, set, runDir)
	// The mock agent echoes the first prompt line; the extra text is
	// appended after a blank line, so the base prompt must lead.
	if !strings.Contains(res.Output, "do the thing") {
		t.Fatalf("output = %q", res.Output)
	}
}

// countingAgent tracks peak concurrency across Run calls.
type countingAgent struct {
	current atomic.Int64
	peak    atomic.Int64
}

func (a *countingAgent) Name() string { return "counting" }

func (a *countingAgent) Run(ctx context.Context, cfg agent.RunConfig) (*agent.RunOutput, error) {
	cur := a.current.Add(1)
	for {
		p := a.peak.Load()
		if cur <= p || a.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	time.Sleep(30 * time.Millisecond)
	a.current.Add(-1)

	out := &agent.RunOutput{Outcome: agent.OutcomeCompleted, Success: true}
	out.Record = agent.Decode("")
	return out, nil
}

func TestRunParallelBoundsConcurrency(t *testing.T) {
	ws := testWorkspace(t)
	ag := &countingAgent{}
	r := New(ws, ag, slog.New(slog.NewTextHandler(io.Discard, nil)))

	runDir, err := r.CreateRunDir()
	if err != nil {
		t.Fatal(err)
	}

	var tasks []Task
	for i := 0; i < 8; i++ {
		tasks = append(tasks, Task{
			Scenario: testScenario(t, "s"),
			SkillSet: scenario.SkillSet{Name: "k"},
			RunDir:   runDir,
		})
	}

	var completed atomic.Int64
	results := r.RunParallel(context.Background(), tasks, 2, func(Task, RunResult) {
		completed.Add(1)
	})

	if len(results) != len(tasks) {
		t.Fatalf("results = %d, want %d", len(results), len(tasks))
	}
	if got := completed.Load(); got != int64(len(tasks)) {
		t.Fatalf("progress calls = %d, want %d", got, len(tasks))
	}
	if peak := ag.peak.Load(); peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

// panicAgent simulates an unexpected failure inside a task.
type panicAgent struct{}

func (a *panicAgent) Name() string { return "panic" }

func (a *panicAgent) Run(ctx context.Context, cfg agent.RunConfig) (*agent.RunOutput, error) {
	panic("boom")
}

func TestRunParallelContainsPanics(t *testing.T) {
	ws := testWorkspace(t)
	r := New(ws, &panicAgent{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	runDir, err := r.CreateRunDir()
	if err != nil {
		t.Fatal(err)
	}
	tasks := []Task{
		{Scenario: testScenario(t, "alpha"), SkillSet: scenario.SkillSet{Name: "one"}, RunDir: runDir},
		{Scenario: testScenario(t, "beta"), SkillSet: scenario.SkillSet{Name: "two"}, RunDir: runDir},
	}

	results := r.RunParallel(context.Background(), tasks, 4, nil)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].ScenarioName != "alpha" || results[1].ScenarioName != "beta" {
		t.Fatalf("result order = %q, %q", results[0].ScenarioName, results[1].ScenarioName)
	}
	for _, res := range results {
		if res.Success {
			t.Fatal("panicking task reported success")
		}
		if !strings.Contains(res.Error, "unexpected error") {
			t.Fatalf("error = %q", res.Error)
		}
	}
}

func TestRunAllSequentialOrder(t *testing.T) {
	ws := testWorkspace(t)
	r := New(ws, &agent.MockAgent{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	runDir, err := r.CreateRunDir()
	if err != nil {
		t.Fatal(err)
	}
	tasks := []Task{
		{Scenario: testScenario(t, "first"), SkillSet: scenario.SkillSet{Name: "a"}, RunDir: runDir},
		{Scenario: testScenario(t, "second"), SkillSet: scenario.SkillSet{Name: "a"}, RunDir: runDir},
	}

	var order []string
	results := r.RunAll(context.Background(), tasks, func(task Task, _ RunResult) {
		order = append(order, task.Scenario.Name)
	})
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	if order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v", order)
	}
}
