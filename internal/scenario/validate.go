package scenario

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Normalize validates the launch spec and splits a shell-style Command
// string into Command plus Args. A spec that already carries Args keeps its
// Command verbatim.
func (m *MCPServer) Normalize() error {
	if strings.TrimSpace(m.Command) == "" {
		return fmt.Errorf("command is required")
	}
	if len(m.Args) > 0 {
		return nil
	}
	words, err := shellquote.Split(m.Command)
	if err != nil {
		return fmt.Errorf("parse command %q: %w", m.Command, err)
	}
	if len(words) == 0 {
		return fmt.Errorf("command is empty after parsing")
	}
	m.Command = words[0]
	if len(words) > 1 {
		m.Args = words[1:]
	}
	return nil
}
