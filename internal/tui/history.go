package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/genwatch/internal/projection"
	"github.com/nixlim/genwatch/internal/stats"
)

func (m Model) renderHistory() string {
	var sb strings.Builder

	sb.WriteString(m.renderHeader())
	sb.WriteByte('\n')

	if m.historyLoading && len(m.historyEntries) == 0 {
		sb.WriteByte('\n')
		sb.WriteString(dimStyle.Render("  Loading history..."))
		sb.WriteByte('\n')
		return m.withHistoryFooter(sb.String())
	}

	if m.historyErr != nil {
		sb.WriteString(noticeWarningStyle.Render("  Server unavailable, showing local sessions only: " + m.historyErr.Error()))
		sb.WriteByte('\n')
	}

	if len(m.historyEntries) == 0 {
		sb.WriteByte('\n')
		sb.WriteString(dimStyle.Render("  No sessions yet"))
		sb.WriteByte('\n')
		return m.withHistoryFooter(sb.String())
	}

	rows := projection.HistoryRows(m.historyEntries, time.Now())

	promptW := m.width - 50
	if promptW < 12 {
		promptW = 12
	}

	sb.WriteByte('\n')
	sb.WriteString(fmt.Sprintf("  %-10s %-14s %7s %9s %8s  %s", "Session", "Status", "Files", "Tokens", "Age", "Prompt"))
	sb.WriteByte('\n')
	sb.WriteString(dimStyle.Render("  " + strings.Repeat("─", max(m.width-4, 20))))
	sb.WriteByte('\n')

	visibleH := m.height - 9
	if visibleH < 1 {
		visibleH = 1
	}
	startIdx := 0
	if m.historyCursor >= visibleH {
		startIdx = m.historyCursor - visibleH + 1
	}
	endIdx := min(startIdx+visibleH, len(rows))

	for i := startIdx; i < endIdx; i++ {
		r := rows[i]
		status := lipgloss.NewStyle().Foreground(lipgloss.Color(r.Status.Color)).Render(fmt.Sprintf("%-14s", r.Status.Text))
		line := fmt.Sprintf("%-10s %s %7s %9s %8s  %s",
			truncateID(r.ID, 8), status, r.Files, formatNumber(int64(r.Tokens)),
			formatAge(r.Age), truncateStr(r.Prompt, promptW))
		if i == m.historyCursor {
			line = cursorStyle.Render("›" + stripAnsi(line))
		} else {
			line = " " + line
		}
		sb.WriteString(" " + line)
		sb.WriteByte('\n')
	}

	sb.WriteByte('\n')
	sb.WriteString(dimStyle.Render("  " + truncateStr(stats.Compute(m.historyEntries).Summary(), max(m.width-4, 20))))
	sb.WriteByte('\n')

	return m.withHistoryFooter(sb.String())
}

func (m Model) withHistoryFooter(body string) string {
	if m.statusMessage == "" {
		return body
	}
	return body + "\n" + statusBarStyle.Render("  "+m.statusMessage)
}

func formatAge(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d >= 48*time.Hour {
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
	return formatDuration(d)
}

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.History):
		m.view = ViewSession
		m.statusMessage = ""
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.historyLoading = true
		return m, m.loadHistoryCmd()

	case key.Matches(msg, m.keys.Up):
		if m.historyCursor > 0 {
			m.historyCursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.historyCursor < len(m.historyEntries)-1 {
			m.historyCursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if m.historyCursor < 0 || m.historyCursor >= len(m.historyEntries) {
			return m, nil
		}
		id := m.historyEntries[m.historyCursor].ID()
		m.statusMessage = "Opening " + truncateID(id, 8) + "..."
		return m, m.attachCmd(id)
	}
	return m, nil
}
