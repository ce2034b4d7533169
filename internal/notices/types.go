// Package notices collects transient, dismissible messages about anomalies
// that do not end a session: a failed cancel request, a dropped protocol
// event, an unknown event type.
package notices

import "time"

// Notice kinds.
const (
	KindCancelFailed     = "CancelFailed"
	KindProtocol         = "ProtocolViolation"
	KindUnknownEvent     = "UnknownEvent"
	KindStreamError      = "StreamError"
	KindHistoryFailed    = "HistoryUnavailable"
	KindSessionCompleted = "SessionCompleted"
)

// Severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

type Notice struct {
	ID        uint64
	Kind      string
	Severity  string
	Message   string
	SessionID string // empty for notices not tied to a session
	At        time.Time
}

// Notifier delivers notices outside the application, e.g. as desktop
// notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notice)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}

// NopNotifier discards everything.
func NopNotifier() Notifier { return nopNotifier{} }
