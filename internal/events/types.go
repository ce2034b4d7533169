package events

import "time"

// FormattedEvent holds a display-ready activity line with metadata.
type FormattedEvent struct {
	SessionID string
	EventType Type
	Formatted string
	Timestamp time.Time
	Success   *bool // nil if not applicable
}

// TypeNote marks activity lines produced locally, never sent by the server.
const TypeNote Type = "note"
