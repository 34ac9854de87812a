// Package agent launches and supervises the external coding-agent process
// and decodes its streaming output.
package agent

import (
	"context"
	"log/slog"
	"time"
)

// Default supervision budgets.
const (
	DefaultTimeout      = 10 * time.Minute
	DefaultStallTimeout = 60 * time.Second
)

// Agent runs one prompt inside an isolated environment.
type Agent interface {
	Name() string
	Run(ctx context.Context, cfg RunConfig) (*RunOutput, error)
}

// RunConfig configures one agent execution.
type RunConfig struct {
	// EnvDir is the isolated environment the process runs in.
	EnvDir string
	// SettingsDir is the agent's private settings folder inside EnvDir.
	SettingsDir string
	// Prompt is the fully composed prompt string.
	Prompt string
	// MCPConfigPath, when set, is passed to the agent as its MCP manifest.
	MCPConfigPath string
	// AllowedTools restricts the agent's tools; unlisted tools are
	// auto-denied. Empty means unrestricted (all permission prompts
	// bypassed).
	AllowedTools []string
	// Timeout is the total wall-clock budget (DefaultTimeout when zero).
	Timeout time.Duration
	// StallTimeout kills the process after this long without output
	// (DefaultStallTimeout when zero).
	StallTimeout time.Duration
	// Log receives progress events; nil disables progress logging.
	Log *slog.Logger
}

// OutcomeKind classifies how a supervised run ended. Callers branch on this
// instead of error types.
type OutcomeKind int

const (
	// OutcomeCompleted means the process exited on its own.
	OutcomeCompleted OutcomeKind = iota
	// OutcomeTimeout means the total-runtime budget expired.
	OutcomeTimeout
	// OutcomeStalled means the liveness budget expired.
	OutcomeStalled
	// OutcomeLaunchFailed means the process never started.
	OutcomeLaunchFailed
	// OutcomeCanceled means the caller's context was canceled.
	OutcomeCanceled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeStalled:
		return "stalled"
	case OutcomeLaunchFailed:
		return "launch-failed"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// RunOutput captures everything a supervised run produced.
type RunOutput struct {
	// Record is the decoded stream; partial output is still decoded after a
	// kill.
	Record Record
	// RawStream is the verbatim line stream for archival.
	RawStream string
	// Outcome classifies how the run ended.
	Outcome OutcomeKind
	// ExitCode is the process exit status (-1 if it never exited cleanly).
	ExitCode int
	// Success is true only for a completed run with exit code zero.
	Success bool
	// Err is the human-readable cause for failed runs, empty on success.
	Err string
}
