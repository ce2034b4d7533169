package events

import (
	"fmt"
	"strings"
	"time"
)

// Format converts a decoded event into a display-ready activity line:
//   - stream_start:    "[session] Stream started: N files, ~T tokens"
//   - file_created:    "[session] + path (language)"
//   - code_chunk:      "[session] path +N tokens"
//   - file_updated:    "[session] path done (N files complete)"
//   - progress_update: "[session] Progress P% (S/T tokens)"
//   - build_progress:  "[session] Build step status: output"
//   - preview_ready:   "[session] Preview ready: url"
//   - stream_complete: "[session] Complete: N files, T tokens in D"
//   - error:           "[session] Error: message"
func Format(sessionID string, ev Event, at time.Time) FormattedEvent {
	if at.IsZero() {
		at = time.Now()
	}
	fe := FormattedEvent{
		SessionID: sessionID,
		EventType: ev.Kind(),
		Timestamp: at,
	}
	s := shortID(sessionID)

	switch e := ev.(type) {
	case StreamStart:
		fe.Formatted = fmt.Sprintf("[%s] Stream started: %d files, ~%s tokens",
			s, e.TotalFiles, FormatTokenCount(int64(e.TotalTokens)))
	case FileCreated:
		lang := e.Language
		if lang == "" {
			lang = "text"
		}
		fe.Formatted = fmt.Sprintf("[%s] + %s (%s)", s, e.File, lang)
	case CodeChunk:
		fe.Formatted = fmt.Sprintf("[%s] %s +%d tokens", s, e.File, e.Tokens)
	case FileUpdated:
		fe.Formatted = fmt.Sprintf("[%s] %s ✓ (%d files complete)", s, e.File, e.CompletedFiles)
		fe.Success = boolPtr(true)
	case ProgressUpdate:
		fe.Formatted = fmt.Sprintf("[%s] Progress %.0f%% (%s/%s tokens)", s, e.ProgressPercent,
			FormatTokenCount(int64(e.StreamedTokens)), FormatTokenCount(int64(e.TotalTokens)))
	case BuildProgress:
		fe.Formatted = formatBuild(s, e, &fe)
	case PreviewReady:
		fe.Formatted = fmt.Sprintf("[%s] Preview ready: %s", s, e.PreviewURL)
		fe.Success = boolPtr(true)
	case StreamComplete:
		line := fmt.Sprintf("[%s] Complete: %d files, %s tokens", s, e.TotalFiles, FormatTokenCount(int64(e.TotalTokens)))
		if e.DurationMS > 0 {
			line += " in " + FormatDurationMS(e.DurationMS)
		}
		fe.Formatted = line
		fe.Success = boolPtr(true)
	case StreamError:
		fe.Formatted = fmt.Sprintf("[%s] ✗ Error: %s", s, truncate(e.Message, 120))
		fe.Success = boolPtr(false)
	default:
		fe.Formatted = fmt.Sprintf("[%s] %s", s, ev.Kind())
	}
	return fe
}

// Note builds an activity line for something that happened on this side of
// the stream, such as a cancellation or a dropped event.
func Note(sessionID, text string, success *bool, at time.Time) FormattedEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return FormattedEvent{
		SessionID: sessionID,
		EventType: TypeNote,
		Formatted: fmt.Sprintf("[%s] %s", shortID(sessionID), text),
		Timestamp: at,
		Success:   success,
	}
}

// Failed and Succeeded are Success values for Note.
func Failed() *bool    { return boolPtr(false) }
func Succeeded() *bool { return boolPtr(true) }

func formatBuild(session string, e BuildProgress, fe *FormattedEvent) string {
	switch strings.ToLower(e.Status) {
	case "completed":
		fe.Success = boolPtr(true)
	case "failed":
		fe.Success = boolPtr(false)
	}
	line := fmt.Sprintf("[%s] Build %s %s", session, e.Step, e.Status)
	if out := firstLine(e.Output); out != "" {
		line += ": " + truncate(out, 80)
	}
	return line
}

// FormatTokenCount renders counts above 1000 as "1.2k".
func FormatTokenCount(count int64) string {
	if count >= 1000 {
		return fmt.Sprintf("%.1fk", float64(count)/1000)
	}
	return fmt.Sprintf("%d", count)
}

// FormatDurationMS converts milliseconds to seconds with one decimal.
func FormatDurationMS(ms float64) string {
	return fmt.Sprintf("%.1fs", ms/1000)
}

func boolPtr(b bool) *bool { return &b }

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
