package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/genwatch/internal/events"
	"github.com/nixlim/genwatch/internal/notices"
	"github.com/nixlim/genwatch/internal/projection"
	"github.com/nixlim/genwatch/internal/session"
)

// eventTypeIcons maps event types to their display icons.
var eventTypeIcons = map[events.Type]string{
	events.TypeStreamStart:    ">>",
	events.TypeFileCreated:    "+ ",
	events.TypeFileUpdated:    "✓ ",
	events.TypeProgressUpdate: "% ",
	events.TypeBuildProgress:  "BD",
	events.TypePreviewReady:   "PV",
	events.TypeStreamComplete: "OK",
	events.TypeError:          "!!",
	events.TypeNote:           "--",
}

// eventTypeStyles maps event types to their display styles.
var eventTypeStyles = map[events.Type]lipgloss.Style{
	events.TypeStreamStart:    lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
	events.TypeFileCreated:    lipgloss.NewStyle().Foreground(lipgloss.Color("222")),
	events.TypeFileUpdated:    lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
	events.TypeProgressUpdate: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	events.TypeBuildProgress:  lipgloss.NewStyle().Foreground(lipgloss.Color("183")),
	events.TypePreviewReady:   lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
	events.TypeStreamComplete: lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
	events.TypeError:          lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
}

// renderActivityPanel renders the latest activity lines, newest at the
// bottom, after the activity filter.
func (m Model) renderActivityPanel(w, h int) string {
	contentW := w - 4
	if contentW < 10 {
		contentW = 10
	}
	contentH := h - 2
	if contentH < 1 {
		contentH = 1
	}

	var lines []string
	title := panelTitleStyle.Render("Activity")
	if m.filterActive() {
		title += dimStyle.Render(" [filtered]")
	}
	lines = append(lines, title)

	evts := m.activityFilter.Apply(m.snap.Activity)
	if len(evts) == 0 {
		lines = append(lines, dimStyle.Render("No activity yet"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
	}

	visible := contentH - 1
	if visible < 1 {
		visible = 1
	}
	start := max(len(evts)-visible, 0)
	for _, e := range evts[start:] {
		lines = append(lines, renderEventLine(e, contentW))
	}

	return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
}

func (m Model) filterActive() bool {
	if m.activityFilter.FailureOnly {
		return true
	}
	for _, on := range m.activityFilter.EventTypes {
		if !on {
			return true
		}
	}
	return false
}

// renderEventLine formats a single activity line for display.
func renderEventLine(e events.FormattedEvent, maxW int) string {
	icon := eventTypeIcons[e.EventType]
	if icon == "" {
		icon = "??"
	}

	style, ok := eventTypeStyles[e.EventType]
	if !ok {
		style = dimStyle
	}
	if e.Success != nil && !*e.Success {
		style = failedStyle
	}

	ts := e.Timestamp.Format("15:04:05")
	formatted := truncateStr(e.Formatted, maxW-len(ts)-len([]rune(icon))-2)
	return dimStyle.Render(ts) + " " + style.Render(icon+" "+formatted)
}

// renderBuildPanel shows the build ledger and, once available, the preview
// link.
func (m Model) renderBuildPanel(w, h int) string {
	contentW := w - 4
	if contentW < 10 {
		contentW = 10
	}

	st := m.snap.State
	var lines []string
	lines = append(lines, panelTitleStyle.Render("Build"))

	rows := st.BuildSteps()
	if len(rows) == 0 && st.Preview == nil && st.Error == "" {
		lines = append(lines, dimStyle.Render("Not started"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
	}

	lines = append(lines, buildRows(st, contentW)...)
	if st.Preview != nil && st.Preview.URL != "" {
		lines = append(lines, activeStyle.Render(truncateStr("Preview: "+st.Preview.URL, contentW)))
	}
	if st.Error != "" {
		lines = append(lines, failedStyle.Render(truncateStr("✗ "+st.Error, contentW)))
	}
	return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
}

// renderNoticesPanel lists active notices newest first; the status message
// takes the slot when nothing is pending.
func (m Model) renderNoticesPanel(w, h int) string {
	contentW := w - 4
	if contentW < 10 {
		contentW = 10
	}
	contentH := h - 2
	if contentH < 1 {
		contentH = 1
	}

	var active []string
	if m.notices != nil {
		ns := m.notices.Active()
		for i := len(ns) - 1; i >= 0 && len(active) < contentH; i-- {
			n := ns[i]
			line := fmt.Sprintf("[%s] %s", n.Kind, n.Message)
			if n.SessionID != "" {
				line = truncateID(n.SessionID, 8) + " " + line
			}
			active = append(active, noticeStyle(n.Severity).Render(truncateStr(line, contentW)))
		}
		if len(ns) > 0 && len(active) > 0 {
			hint := dimStyle.Render("  d:dismiss")
			if lipgloss.Width(active[0])+lipgloss.Width(hint) <= contentW {
				active[0] += hint
			}
		}
	}

	if len(active) == 0 {
		msg := m.statusMessage
		if msg == "" {
			msg = "No notices"
		}
		active = append(active, statusBarStyle.Render(truncateStr(msg, contentW)))
	}
	return renderBorderedPanel(strings.Join(active, "\n"), w, h)
}

func buildRows(st session.State, maxW int) []string {
	rows := projection.BuildRows(st.BuildSteps())
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		line := fmt.Sprintf("%s %-8s %s", r.Icon, r.Step, r.Status)
		if r.Output != "" {
			line += "  " + r.Output
		}
		line = truncateStr(line, maxW)
		switch r.Icon {
		case "✓":
			line = activeStyle.Render(line)
		case "✗":
			line = failedStyle.Render(line)
		case "◐":
			line = streamingStyle.Render(line)
		}
		out = append(out, line)
	}
	return out
}

func noticeStyle(severity string) lipgloss.Style {
	switch severity {
	case notices.SeverityCritical:
		return noticeCriticalStyle
	case notices.SeverityWarning:
		return noticeWarningStyle
	}
	return noticeInfoStyle
}
