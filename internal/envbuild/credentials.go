package envbuild

import (
	"os/exec"
	"runtime"
	"strings"
)

const keychainService = "Claude Code-credentials"

// readAgentCredentials reads the agent's OAuth credentials from the macOS
// Keychain. On other platforms, or when the entry is missing, it returns
// empty and the agent falls back to its own auth flow.
func readAgentCredentials() string {
	if runtime.GOOS != "darwin" {
		return ""
	}
	out, err := exec.Command("security", "find-generic-password", "-s", keychainService, "-w").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
