//go:build !windows

package agent

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the child in its own process group so a kill also
// reaches grandchildren (shell tools, MCP servers) that inherited the
// output pipe.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup kills the child's whole process group, falling back to
// the direct child if the group cannot be resolved.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		return
	}
	_ = cmd.Process.Kill()
}
