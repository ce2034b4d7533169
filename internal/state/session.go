package state

import (
	"time"

	"github.com/nixlim/genwatch/internal/session"
)

// Age returns how long ago the session was created.
func Age(e Entry, now time.Time) time.Duration {
	if e.Session.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(e.Session.CreatedAt)
}

// TruncateID shortens id for display, suffixing "..." when cut.
func TruncateID(id string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(id) <= maxLen {
		return id
	}
	if maxLen <= 3 {
		return id[:maxLen]
	}
	return id[:maxLen-3] + "..."
}

// FilterByStatus returns entries in the given status.
func FilterByStatus(entries []Entry, status session.Status) []Entry {
	var result []Entry
	for i := range entries {
		if entries[i].Session.Status == status {
			result = append(result, entries[i])
		}
	}
	return result
}

// ActiveEntries returns entries whose session has not reached a terminal
// status.
func ActiveEntries(entries []Entry) []Entry {
	var result []Entry
	for i := range entries {
		if !entries[i].Session.Status.Terminal() {
			result = append(result, entries[i])
		}
	}
	return result
}
