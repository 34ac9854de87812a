package harness

import (
	"bytes"
	"errors"
	"os/exec"
	"testing"
)

// Run executes the skillbench binary in workDir and returns its stdout,
// stderr, and exit code. A failure to launch at all fails the test.
func Run(t *testing.T, binPath, workDir string, args []string) (string, string, int) {
	t.Helper()

	cmd := exec.Command(binPath, args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			t.Fatalf("run %s: %v", binPath, err)
		}
		exitCode = exitErr.ExitCode()
	}
	return stdout.String(), stderr.String(), exitCode
}
