package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MockAgent is a deterministic, offline agent used for end-to-end testing
// of the scheduler and recorder. It emits a small, well-formed stream and
// leaves one file in the environment so change detection has something to
// find.
type MockAgent struct{}

func (a *MockAgent) Name() string {
	return "mock"
}

func (a *MockAgent) Run(ctx context.Context, cfg RunConfig) (*RunOutput, error) {
	if cfg.EnvDir == "" {
		return nil, errors.New("env dir is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	notesPath := filepath.Join(cfg.EnvDir, "NOTES.md")
	if err := os.WriteFile(notesPath, []byte("mock agent: no real agent executed\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write notes: %w", err)
	}

	events := []any{
		map[string]any{
			"type":        "system",
			"subtype":     "init",
			"model":       "mock-model",
			"skills":      []string{},
			"mcp_servers": map[string]any{},
		},
		map[string]any{
			"type": "assistant",
			"message": map[string]any{
				"content": []any{
					map[string]any{"type": "tool_use", "name": "Write", "input": map[string]any{}},
					map[string]any{"type": "text", "text": "Mock run completed for prompt: " + firstLine(cfg.Prompt)},
				},
			},
		},
		map[string]any{
			"type":           "result",
			"duration_ms":    1,
			"num_turns":      1,
			"total_cost_usd": 0.0,
			"usage":          map[string]any{"input_tokens": 0, "output_tokens": 0},
		},
	}

	var raw strings.Builder
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("marshal mock event: %w", err)
		}
		raw.Write(data)
		raw.WriteByte('\n')
	}

	out := &RunOutput{
		RawStream: raw.String(),
		Outcome:   OutcomeCompleted,
		ExitCode:  0,
		Success:   true,
	}
	out.Record = Decode(out.RawStream)
	return out, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
