//go:build linux

package notices

import (
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// NotifySendNotifier sends desktop notifications via notify-send in a
// background goroutine.
type NotifySendNotifier struct {
	enabled bool
	log     *zap.Logger
}

func NewNotifySendNotifier(enabled bool, log *zap.Logger) *NotifySendNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotifySendNotifier{enabled: enabled, log: log}
}

// NewPlatformNotifier creates the platform-appropriate notifier for Linux.
func NewPlatformNotifier(enabled bool, log *zap.Logger) Notifier {
	return NewNotifySendNotifier(enabled, log)
}

func (n *NotifySendNotifier) Notify(notice Notice) {
	if !n.enabled {
		return
	}

	title := fmt.Sprintf("genwatch: %s", notice.Kind)
	body := notice.Message
	if notice.SessionID != "" {
		body = fmt.Sprintf("Session: %s\n%s", truncateSessionID(notice.SessionID), notice.Message)
	}

	urgency := "normal"
	if notice.Severity == SeverityCritical {
		urgency = "critical"
	}

	go func() {
		if err := sendNotifySend(title, body, urgency); err != nil {
			n.log.Warn("failed to send desktop notification", zap.Error(err))
		}
	}()
}

func sendNotifySend(title, body, urgency string) error {
	cmd := exec.Command("notify-send", "--urgency", urgency, "--app-name", "genwatch", title, body)
	return cmd.Run()
}
