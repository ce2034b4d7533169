package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/genwatch/internal/progress"
	"github.com/nixlim/genwatch/internal/session"
)

// digitFontMedium: 4-wide x 3-tall half-block flip-clock style, used for the
// completion percentage.
var digitFontMedium = map[rune][3]string{
	'0': {"█▀▀█", "█  █", "█▄▄█"},
	'1': {"  ▀█", "   █", "  ▄█"},
	'2': {"▀▀▀█", "█▀▀▀", "█▄▄▄"},
	'3': {"▀▀▀█", " ▀▀█", "▄▄▄█"},
	'4': {"█  █", "▀▀▀█", "   █"},
	'5': {"█▀▀▀", "▀▀▀█", "▄▄▄█"},
	'6': {"█▀▀▀", "█▀▀█", "█▄▄█"},
	'7': {"▀▀▀█", "   █", "   █"},
	'8': {"█▀▀█", "█▀▀█", "█▄▄█"},
	'9': {"█▀▀█", "▀▀▀█", "▄▄▄█"},
	'.': {"    ", "    ", " ▄  "},
	'%': {"▀  █", " ▄▀ ", "█  ▄"},
}

// renderProgressPanel shows the percentage odometer, the progress bar, and
// the token, file and ETA figures.
func (m Model) renderProgressPanel(w, h int) string {
	est := m.snap.Estimate
	st := m.snap.State

	contentH := h - 2
	if contentH < 1 {
		contentH = 1
	}
	contentW := w - 4
	if contentW < 10 {
		contentW = 10
	}

	var lines []string
	title := panelTitleStyle.Render("Progress")
	if est.Source != progress.SourceNone {
		title += dimStyle.Render(" (" + est.Source.String() + ")")
	}
	lines = append(lines, title)

	// Title, bar and the two stats lines sit around the odometer.
	pct := fmt.Sprintf("%.1f%%", est.Percent)
	lines = append(lines, renderPercentDisplay(pct, contentH-4, contentW, percentStyleFor(st.Status())))

	lines = append(lines, m.bar.ViewAs(est.Percent/100))
	lines = append(lines, formatCounters(st.Counters))
	lines = append(lines, dimStyle.Render(formatTiming(est)))

	return renderBorderedPanel(strings.Join(lines, "\n"), w, h)
}

// renderPercentDisplay draws s with the block font when there is room for
// it and falls back to plain text otherwise.
func renderPercentDisplay(s string, availH, availW int, style lipgloss.Style) string {
	if availH >= 3 && digitWidth(s, 4) <= availW {
		rows := make([]string, 3)
		for i, ch := range s {
			pattern, ok := digitFontMedium[ch]
			if !ok {
				pattern = digitFontMedium['.']
			}
			for row := range rows {
				if i > 0 {
					rows[row] += " "
				}
				rows[row] += pattern[row]
			}
		}
		for i := range rows {
			rows[i] = style.Render(rows[i])
		}
		return strings.Join(rows, "\n")
	}
	return style.Render(s)
}

// digitWidth returns the rendered width of s at charW columns per glyph with
// a one-column gap.
func digitWidth(s string, charW int) int {
	n := len([]rune(s))
	if n == 0 {
		return 0
	}
	return n*charW + (n - 1)
}

func percentStyleFor(st session.Status) lipgloss.Style {
	switch st {
	case session.StatusError:
		return failedStyle.Bold(true)
	case session.StatusCancelled:
		return noticeWarningStyle.Bold(true)
	case session.StatusStreaming, session.StatusBuilding:
		return streamingStyle.Bold(true)
	}
	return percentStyle
}

func formatCounters(c session.Counters) string {
	tokens := formatNumber(int64(c.StreamedTokens))
	if c.TotalTokens > 0 {
		tokens += " / ~" + formatNumber(int64(c.TotalTokens))
	}
	files := fmt.Sprintf("%d", c.CompletedFiles)
	if c.TotalFiles > 0 {
		files += fmt.Sprintf("/%d", c.TotalFiles)
	}
	return fmt.Sprintf("Tokens %s   Files %s", tokens, files)
}

func formatTiming(est progress.Estimate) string {
	parts := []string{"Elapsed " + formatDuration(est.Elapsed)}
	if est.HasETA {
		parts = append(parts, "ETA "+progress.FormatRemaining(est.Remaining))
	} else {
		parts = append(parts, "ETA --")
	}
	if est.TokenVelocity > 0 {
		parts = append(parts, fmt.Sprintf("%s tok/min %s", formatNumber(int64(est.TokenVelocity)), trendArrow(est.Trend)))
	}
	return strings.Join(parts, "   ")
}

// trendArrow returns the arrow for a velocity trend.
func trendArrow(t progress.TrendDirection) string {
	switch t {
	case progress.TrendUp:
		return "^"
	case progress.TrendDown:
		return "v"
	default:
		return "-"
	}
}

// formatNumber formats an int64 with comma separators (e.g., 1,234,567).
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}

	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
