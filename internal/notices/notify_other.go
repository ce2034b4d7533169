//go:build !linux && !darwin

package notices

import "go.uber.org/zap"

// NewPlatformNotifier returns a no-op notifier on platforms without a
// supported notification command.
func NewPlatformNotifier(bool, *zap.Logger) Notifier {
	return NopNotifier()
}
