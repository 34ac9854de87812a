package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// scanBufSize bounds a single stream line; agent turns can carry large
// tool results.
const scanBufSize = 16 * 1024 * 1024

// ClaudeAgent shells out to the claude CLI in non-interactive streaming
// mode.
type ClaudeAgent struct {
	// Command overrides the executable name, for tests.
	Command string
}

func (a *ClaudeAgent) Name() string {
	return "claude"
}

func (a *ClaudeAgent) command() string {
	if a.Command != "" {
		return a.Command
	}
	return "claude"
}

// buildArgs composes the CLI invocation. With an allow-list, unlisted tools
// are auto-denied; without one, all permission prompts are bypassed.
func buildArgs(cfg RunConfig) []string {
	args := []string{
		"--print",
		"--verbose",
		"--output-format", "stream-json",
	}
	if len(cfg.AllowedTools) > 0 {
		args = append(args,
			"--allowedTools", strings.Join(cfg.AllowedTools, ","),
			"--permission-mode", "dontAsk",
		)
	} else {
		args = append(args, "--dangerously-skip-permissions")
	}
	if cfg.MCPConfigPath != "" {
		args = append(args, "--mcp-config", cfg.MCPConfigPath)
	}
	return append(args, "-p", cfg.Prompt)
}

// Run launches the agent process and supervises its output stream under the
// total-runtime and stall budgets. Failures during supervision are reported
// in the RunOutput, never as an error; the error return covers invalid
// configuration only.
func (a *ClaudeAgent) Run(ctx context.Context, cfg RunConfig) (*RunOutput, error) {
	if cfg.EnvDir == "" {
		return nil, errors.New("env dir is required")
	}
	if cfg.SettingsDir == "" {
		return nil, errors.New("settings dir is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = DefaultStallTimeout
	}
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cmd := exec.Command(a.command(), buildArgs(cfg)...)
	cmd.Dir = cfg.EnvDir
	cmd.Env = append(os.Environ(), "CLAUDE_CONFIG_DIR="+cfg.SettingsDir)
	setProcessGroup(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	out := &RunOutput{ExitCode: -1}
	if err := cmd.Start(); err != nil {
		out.Outcome = OutcomeLaunchFailed
		out.Err = fmt.Sprintf("launch %s: %v", a.command(), err)
		return out, nil
	}

	// The reader goroutine owns stdout; killing the process group closes
	// every writer of the pipe, which ends the goroutine and unblocks the
	// drain below.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), scanBufSize)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var raw strings.Builder
	start := time.Now()
	lastOutput := start
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	killed := false
	kill := func() {
		killed = true
		killProcessGroup(cmd)
	}
	// checkBudgets enforces the two timers; it reports whether it killed
	// the process.
	checkBudgets := func() bool {
		if elapsed := time.Since(start); elapsed > cfg.Timeout {
			kill()
			out.Outcome = OutcomeTimeout
			out.Err = fmt.Sprintf("timeout after %d minutes", int(cfg.Timeout.Minutes()))
			log.Warn(out.Err)
			return true
		}
		if stall := time.Since(lastOutput); stall > cfg.StallTimeout {
			kill()
			out.Outcome = OutcomeStalled
			out.Err = fmt.Sprintf("stalled for %ds (possibly waiting for approval)", int(cfg.StallTimeout.Seconds()))
			log.Warn(out.Err)
			return true
		}
		return false
	}
	cancel := func() {
		kill()
		out.Outcome = OutcomeCanceled
		out.Err = fmt.Sprintf("canceled: %v", ctx.Err())
		log.Warn(out.Err)
	}

supervise:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break supervise
			}
			raw.WriteString(line)
			raw.WriteByte('\n')
			lastOutput = time.Now()
			logProgress(log, line, time.Since(start))

		case <-ticker.C:
			if checkBudgets() {
				break supervise
			}

		case <-ctx.Done():
			cancel()
			break supervise
		}
	}

	// Drain whatever the reader buffered before the pipe closed.
	for line := range lines {
		raw.WriteString(line)
		raw.WriteByte('\n')
	}

	// The pipe reaching EOF does not mean the process exited: a child that
	// closes stdout but keeps running stays under both budgets until it is
	// reaped.
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	ctxDone := ctx.Done()
	var waitErr error
reap:
	for {
		select {
		case waitErr = <-waitCh:
			break reap
		case <-ticker.C:
			if !killed {
				checkBudgets()
			}
		case <-ctxDone:
			ctxDone = nil
			if !killed {
				cancel()
			}
		}
	}
	out.ExitCode = exitCodeFromError(waitErr)

	out.RawStream = raw.String()
	out.Record = Decode(out.RawStream)
	if errText := stderr.String(); errText != "" {
		out.Record.Text += "\n\n[stderr]\n" + errText
	}

	out.Success = !killed && out.Outcome == OutcomeCompleted && out.ExitCode == 0
	return out, nil
}

// logProgress surfaces tool invocations from a stream line for
// human-observable liveness during long runs.
func logProgress(log *slog.Logger, line string, elapsed time.Duration) {
	var ev streamEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Type != "assistant" {
		return
	}
	stamp := fmt.Sprintf("%d:%02d", int(elapsed.Minutes()), int(elapsed.Seconds())%60)
	for _, block := range ev.Message.Content {
		if block.Type != "tool_use" {
			continue
		}
		if block.Name == SkillTool {
			name := block.Input.Skill
			if name == "" {
				name = "unknown"
			}
			log.Debug("skill: "+name, "elapsed", stamp)
			continue
		}
		name := block.Name
		if name == "" {
			name = "unknown"
		}
		log.Debug("tool: "+name, "elapsed", stamp)
	}
}

func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
