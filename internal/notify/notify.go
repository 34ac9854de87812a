package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Notifier sends system notifications.
type Notifier struct {
	Enabled bool
}

// Send sends a system notification.
// On macOS, uses osascript to display notifications.
// On other platforms, this is a no-op.
func (n *Notifier) Send(title, message string) error {
	if !n.Enabled {
		return nil
	}

	if runtime.GOOS != "darwin" {
		// Only macOS supported for now
		return nil
	}

	return sendMacOSNotification(title, message)
}

// sendMacOSNotification uses osascript to display a notification.
func sendMacOSNotification(title, message string) error {
	// Escape quotes in title and message
	title = strings.ReplaceAll(title, `"`, `\"`)
	message = strings.ReplaceAll(message, `"`, `\"`)

	script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
	cmd := exec.Command("osascript", "-e", script)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	return nil
}

// FormatRunComplete formats an eval-run completion notification message.
func FormatRunComplete(runID string, passed, failed int) (title, message string) {
	total := passed + failed
	if failed > 0 {
		title = "⚠️ Eval Run Finished With Failures"
		message = fmt.Sprintf("%s: %d/%d tasks failed", runID, failed, total)
	} else {
		title = "✅ Eval Run Complete"
		message = fmt.Sprintf("%s: %d/%d tasks passed", runID, passed, total)
	}
	return title, message
}
