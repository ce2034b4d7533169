package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/genwatch/internal/projection"
	"github.com/nixlim/genwatch/internal/session"
)

// renderFileTreePanel lists generated files grouped by directory.
func (m Model) renderFileTreePanel(w, h int) string {
	contentW := w - 4
	if contentW < 10 {
		contentW = 10
	}
	contentH := h - 2
	if contentH < 1 {
		contentH = 1
	}

	st := m.snap.State
	groups := projection.FileTree(st.Files(), m.activeTab())

	var lines []string
	lines = append(lines, panelTitleStyle.Render("Files")+dimStyle.Render(fmt.Sprintf(" (%d)", st.FileCount())))

	if len(groups) == 0 {
		lines = append(lines, "")
		lines = append(lines, dimStyle.Render("Waiting for files..."))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
	}

	var rows []string
	activeRow := 0
	for _, g := range groups {
		rows = append(rows, dimStyle.Render(truncateStr(g.Dir+"/", contentW)))
		for _, f := range g.Files {
			if f.Active {
				activeRow = len(rows)
			}
			rows = append(rows, formatTreeRow(f, contentW))
		}
	}

	// Keep the active file visible when the tree is taller than the panel.
	visible := contentH - 1
	if visible < 1 {
		visible = 1
	}
	start := 0
	if activeRow >= visible {
		start = activeRow - visible + 1
	}
	end := min(start+visible, len(rows))
	lines = append(lines, rows[start:end]...)

	return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
}

func formatTreeRow(f projection.TreeFile, maxW int) string {
	icon := projection.FileStatusIcon(f.Status)
	badge := fmt.Sprintf("%-3s", projection.Badge(f.Language))
	name := truncateStr(f.Name, maxW-8)
	row := fmt.Sprintf(" %s %s %s", icon, badge, name)

	switch {
	case f.Active:
		return selectedStyle.Render(row)
	case f.Status == session.FileStreaming:
		return streamingStyle.Render(row)
	case f.Status == session.FileCompleted:
		return activeStyle.Render(row)
	}
	return dimStyle.Render(row)
}

// renderCodePanel shows the tab strip and the content of the active file.
func (m Model) renderCodePanel(w, h int) string {
	contentW := w - 4
	if contentW < 10 {
		contentW = 10
	}

	active := m.activeTab()
	title := panelTitleStyle.Render("Code")
	if f, ok := m.snap.State.File(active); ok {
		title += dimStyle.Render(fmt.Sprintf(" %s  %s tokens", f.Path, formatNumber(int64(f.Tokens))))
		if f.Status == session.FileStreaming {
			title += " " + streamingStyle.Render("● writing")
		}
	}
	if !m.follow {
		title += dimStyle.Render(" [paused]")
	}

	lines := []string{
		title,
		renderTabs(m.snap.State.Paths(), active, contentW),
	}
	if active == "" {
		lines = append(lines, dimStyle.Render("No file selected"))
	} else {
		lines = append(lines, m.code.View())
	}
	return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
}

// renderTabs draws one tab per file in creation order, scrolled so that the
// active tab is always on screen.
func renderTabs(paths []string, active string, maxW int) string {
	if len(paths) == 0 {
		return ""
	}
	tabs := make([]string, len(paths))
	activeIdx := 0
	for i, p := range paths {
		label := truncateStr(tabLabel(p), 24)
		if p == active {
			activeIdx = i
			tabs[i] = activeTabStyle.Render(label)
		} else {
			tabs[i] = tabStyle.Render(label)
		}
	}

	start := 0
	for start < activeIdx && lipgloss.Width(strings.Join(tabs[start:activeIdx+1], "")) > maxW {
		start++
	}
	var b strings.Builder
	for _, t := range tabs[start:] {
		if lipgloss.Width(b.String())+lipgloss.Width(t) > maxW {
			break
		}
		b.WriteString(t)
	}
	out := b.String()
	if start > 0 {
		out = dimStyle.Render("‹") + out
	}
	return out
}

func tabLabel(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// truncateStr shortens s to maxLen runes, marking the cut with ".".
func truncateStr(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:max(maxLen, 0)])
	}
	return string(r[:maxLen-1]) + "."
}

// formatDuration formats a duration into a human-readable short form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
