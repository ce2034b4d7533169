//go:build darwin

package notices

import (
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// OSAScriptNotifier sends macOS notifications via osascript in a background
// goroutine.
type OSAScriptNotifier struct {
	enabled bool
	log     *zap.Logger
}

func NewOSAScriptNotifier(enabled bool, log *zap.Logger) *OSAScriptNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &OSAScriptNotifier{enabled: enabled, log: log}
}

// NewPlatformNotifier creates the platform-appropriate notifier for macOS.
func NewPlatformNotifier(enabled bool, log *zap.Logger) Notifier {
	return NewOSAScriptNotifier(enabled, log)
}

func (n *OSAScriptNotifier) Notify(notice Notice) {
	if !n.enabled {
		return
	}

	title := fmt.Sprintf("genwatch: %s", notice.Kind)
	subtitle := ""
	if notice.SessionID != "" {
		subtitle = fmt.Sprintf("Session: %s", truncateSessionID(notice.SessionID))
	}

	go func() {
		if err := sendOSANotification(title, subtitle, notice.Message); err != nil {
			n.log.Warn("failed to send macOS notification", zap.Error(err))
		}
	}()
}

func sendOSANotification(title, subtitle, message string) error {
	title = escapeAppleScript(title)
	subtitle = escapeAppleScript(subtitle)
	message = escapeAppleScript(message)

	script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
	if subtitle != "" {
		script = fmt.Sprintf(`display notification "%s" with title "%s" subtitle "%s"`, message, title, subtitle)
	}
	return exec.Command("osascript", "-e", script).Run()
}

// escapeAppleScript escapes characters that could break AppleScript strings.
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
