// Package runner executes (scenario, skill set) tasks: it builds an
// isolated environment, supervises the agent process, detects what changed,
// and records the artifacts for later grading.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"skillbench/internal/agent"
	"skillbench/internal/audit"
	"skillbench/internal/changeset"
	"skillbench/internal/envbuild"
	"skillbench/internal/scenario"
	"skillbench/internal/workspace"
)

// Names excluded from change detection at any depth: agent internals,
// caches, and scenario secrets.
var excludeNames = map[string]struct{}{
	".claude": {},
	".cache":  {},
	"Caches":  {},
	".env":    {},
}

// Task is a single scenario + skill-set combination to run.
type Task struct {
	Scenario *scenario.Scenario
	SkillSet scenario.SkillSet
	RunDir   string
}

// RunResult is the outcome of executing one Task. Exactly one RunResult is
// produced per Task, written to disk before being returned.
type RunResult struct {
	ScenarioName  string
	SkillSetName  string
	Output        string
	Success       bool
	Error         string
	SkillsInvoked []string
	ToolsUsed     []string
}

// Runner executes scenarios against skill sets.
type Runner struct {
	Workspace    *workspace.Workspace
	Agent        agent.Agent
	Audit        *audit.Logger
	Log          *slog.Logger
	Timeout      time.Duration
	StallTimeout time.Duration
}

// New returns a Runner using the given agent, with audit logging rooted in
// the workspace's runs directory.
func New(ws *workspace.Workspace, ag agent.Agent, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		Workspace: ws,
		Agent:     ag,
		Audit:     audit.NewLogger(filepath.Join(ws.RunsDir, "events.db")),
		Log:       log,
	}
}

// CreateRunDir creates a timestamped directory for this run.
func (r *Runner) CreateRunDir() (string, error) {
	runDir := filepath.Join(r.Workspace.RunsDir, time.Now().Format("2006-01-02-150405"))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return runDir, nil
}

// RunScenario runs a single scenario with a skill set and records its
// artifacts. Failures at any phase resolve to a failed RunResult; artifacts
// are persisted for successful and failed tasks alike.
func (r *Runner) RunScenario(ctx context.Context, s *scenario.Scenario, set scenario.SkillSet, runDir string) RunResult {
	log := r.Log.With("scenario", s.Name, "skill_set", set.Name)
	log.Info("starting")

	runID := filepath.Base(runDir)
	auditPayload := map[string]any{"scenario": s.Name, "skill_set": set.Name, "agent": r.Agent.Name()}
	if err := r.Audit.LogEvent(runID, "runner", "task_started", auditPayload); err != nil {
		log.Debug("audit log failed", "error", err)
	}

	result := r.executeTask(ctx, s, set, runDir, log)

	auditPayload["success"] = result.Success
	if result.Error != "" {
		auditPayload["error"] = result.Error
	}
	if err := r.Audit.LogEvent(runID, "runner", "task_finished", auditPayload); err != nil {
		log.Debug("audit log failed", "error", err)
	}

	if result.Success {
		log.Info("finished")
	} else {
		log.Warn("failed", "error", result.Error)
	}
	return result
}

func (r *Runner) executeTask(ctx context.Context, s *scenario.Scenario, set scenario.SkillSet, runDir string, log *slog.Logger) RunResult {
	result := RunResult{
		ScenarioName:  s.Name,
		SkillSetName:  set.Name,
		SkillsInvoked: []string{},
		ToolsUsed:     []string{},
	}

	env, err := envbuild.Build(envbuild.Config{
		ScenarioDir: s.Path,
		ContextDir:  s.ContextDir(),
		RepoDir:     r.Workspace.RepoDir,
		Skills:      set.Skills,
		MCPServers:  set.MCPServers,
	})
	if env != nil {
		defer env.Cleanup(log)
	}
	if err != nil {
		result.Error = fmt.Sprintf("build environment: %v", err)
		r.recordFailure(s, set, runDir, result, log)
		return result
	}

	prompt := s.Prompt
	if set.ExtraPrompt != "" {
		prompt = prompt + "\n\n" + set.ExtraPrompt
	}

	out, runErr := r.Agent.Run(ctx, agent.RunConfig{
		EnvDir:        env.Dir,
		SettingsDir:   env.SettingsDir(),
		Prompt:        prompt,
		MCPConfigPath: env.MCPConfigPath,
		AllowedTools:  set.AllowedTools,
		Timeout:       r.Timeout,
		StallTimeout:  r.StallTimeout,
		Log:           log,
	})
	if runErr != nil {
		result.Error = fmt.Sprintf("run agent: %v", runErr)
		r.recordFailure(s, set, runDir, result, log)
		return result
	}

	result.Output = out.Record.Text
	result.Success = out.Success
	result.Error = out.Err
	result.SkillsInvoked = out.Record.SkillsInvoked
	result.ToolsUsed = out.Record.ToolsUsed

	changed, diffErr := changeset.Detect(s.ContextDir(), env.Dir, excludeNames)
	if diffErr != nil {
		result.Success = false
		if result.Error == "" {
			result.Error = fmt.Sprintf("detect changes: %v", diffErr)
		}
	}

	if err := r.record(s, set, runDir, env, out, changed, result, log); err != nil {
		result.Success = false
		if result.Error == "" {
			result.Error = fmt.Sprintf("record artifacts: %v", err)
		}
		log.Warn("record artifacts failed", "error", err)
	}
	return result
}
