package tui

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/genwatch/internal/projection"
)

type panelDimensions struct {
	progressW, progressH int
	treeW, treeH         int
	codeW, codeH         int
	activityW, activityH int
	buildW, buildH       int
	noticesW, noticesH   int
	headerH              int
}

const (
	minWidth  = 40
	minHeight = 12

	headerHeight = 1

	noticesHeight = 3

	progressMinHeight = 5

	progressMaxHeight = 8

	bottomMinHeight = 5

	bottomMaxHeight = 10
)

func computeDimensions(totalW, totalH int) panelDimensions {
	if totalW < minWidth {
		totalW = minWidth
	}
	if totalH < minHeight {
		totalH = minHeight
	}

	d := panelDimensions{
		headerH: headerHeight,
	}

	usableH := totalH - headerHeight - noticesHeight
	if usableH < 9 {
		usableH = 9
	}

	d.progressW = totalW
	d.progressH = usableH * 25 / 100
	if d.progressH < progressMinHeight {
		d.progressH = progressMinHeight
	}
	if d.progressH > progressMaxHeight {
		d.progressH = progressMaxHeight
	}

	bottomH := usableH * 30 / 100
	if bottomH < bottomMinHeight {
		bottomH = bottomMinHeight
	}
	if bottomH > bottomMaxHeight {
		bottomH = bottomMaxHeight
	}

	middleH := usableH - d.progressH - bottomH
	if middleH < 3 {
		middleH = 3
	}

	d.treeW = totalW * 30 / 100
	if d.treeW < 18 {
		d.treeW = 18
	}
	if d.treeW > totalW-20 {
		d.treeW = totalW - 20
	}
	d.treeH = middleH
	d.codeW = totalW - d.treeW
	d.codeH = middleH

	d.activityW = totalW * 60 / 100
	d.activityH = bottomH
	d.buildW = totalW - d.activityW
	d.buildH = bottomH

	d.noticesW = totalW
	d.noticesH = noticesHeight

	return d
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))

	panelBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("69"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	streamingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	percentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("82"))

	noticeWarningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("226"))

	noticeCriticalStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("196"))

	noticeInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("117"))

	tabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("245"))

	activeTabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))

	filterMenuStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1, 2)

	cancelDialogStyle = lipgloss.NewStyle().
				Border(lipgloss.DoubleBorder()).
				BorderForeground(lipgloss.Color("196")).
				Padding(1, 3).
				Bold(true)

	promptDialogStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("69")).
				Padding(1, 2)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))
)

func renderBorderedPanel(content string, w, h int) string {
	return renderBorderedPanelStyled(content, w, h, panelBorderStyle)
}

func renderBorderedPanelStyled(content string, w, h int, style lipgloss.Style) string {
	contentH := h - 2
	if contentH < 1 {
		contentH = 1
	}

	lines := strings.Split(content, "\n")
	if len(lines) > contentH {
		lines = lines[:contentH]
		content = strings.Join(lines, "\n")
	}

	return style.
		Width(w - 2).
		Height(contentH).
		Render(content)
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripAnsi(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// resize fits the code viewport and the progress bar to the window.
func (m *Model) resize() {
	dims := computeDimensions(m.width, m.height)
	m.code.Width = dims.codeW - 4
	m.code.Height = dims.codeH - 4 // borders, tab row, title
	if m.code.Height < 1 {
		m.code.Height = 1
	}
	m.bar.Width = dims.progressW - 6
	if m.bar.Width < 10 {
		m.bar.Width = 10
	}
}

func (m Model) renderSession() string {
	dims := computeDimensions(m.width, m.height)
	header := m.renderHeader()

	if !m.snap.HasSession() {
		body := renderBorderedPanel(m.renderEmptySession(), dims.progressW, m.height-headerHeight-noticesHeight)
		output := lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderNoticesPanel(dims.noticesW, dims.noticesH))
		return m.overlays(output)
	}

	progress := m.renderProgressPanel(dims.progressW, dims.progressH)
	middle := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderFileTreePanel(dims.treeW, dims.treeH),
		m.renderCodePanel(dims.codeW, dims.codeH),
	)
	bottom := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderActivityPanel(dims.activityW, dims.activityH),
		m.renderBuildPanel(dims.buildW, dims.buildH),
	)
	noticeBar := m.renderNoticesPanel(dims.noticesW, dims.noticesH)

	output := lipgloss.JoinVertical(lipgloss.Left, header, progress, middle, bottom, noticeBar)
	return m.overlays(output)
}

func (m Model) overlays(base string) string {
	switch {
	case m.cancelConfirm:
		return m.overlayCancelDialog(base)
	case m.promptActive:
		return m.overlayPrompt(base)
	case m.filterMenu.Active:
		return m.overlayFilterMenu(base)
	}
	return base
}

func (m Model) renderEmptySession() string {
	lines := []string{
		panelTitleStyle.Render("No session"),
		"",
		dimStyle.Render("n: start a new session   h: browse history   q: quit"),
	}
	if m.statusMessage != "" {
		lines = append(lines, "", statusBarStyle.Render(m.statusMessage))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderHeader() string {
	title := " genwatch"
	viewLabel := " [Session]"
	if m.view == ViewHistory {
		viewLabel = " [History]"
	}

	status := ""
	if m.view == ViewSession && m.snap.HasSession() {
		label := projection.LabelFor(m.snap.State.Status())
		status = " " + truncateID(m.snap.State.ID(), 8) + " " +
			lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(label.Color)).Background(lipgloss.Color("62")).Render(label.Text)
	}

	indicators := m.headerIndicators()
	help := m.headerHelp()

	padding := m.width - lipgloss.Width(title) - lipgloss.Width(viewLabel) - lipgloss.Width(status) -
		lipgloss.Width(indicators) - lipgloss.Width(help)
	if padding < 0 {
		padding = 0
	}

	return headerStyle.Width(m.width).Render(title + viewLabel + status + indicators + strings.Repeat(" ", padding) + help)
}

func (m Model) headerHelp() string {
	switch m.view {
	case ViewHistory:
		return "Enter:Open  r:Reload  Esc:Back  q:Quit "
	default:
		if m.snap.Streaming {
			return "Tab:File  c:Cancel  f:Filter  h:History  q:Quit "
		}
		return "Tab:File  n:New  f:Filter  h:History  q:Quit "
	}
}

func truncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}

func (m Model) overlayCancelDialog(base string) string {
	dialog := cancelDialogStyle.Render(
		"Cancel generation?\n\n" +
			"Session: " + truncateID(m.cancelTarget, 12) + "\n" +
			"Files generated so far are kept.\n\n" +
			"[Y] Cancel session  [n/Esc] Keep going")
	return centerOverlay(m.width, m.height, dialog, base)
}

func (m Model) overlayPrompt(base string) string {
	w := m.width * 2 / 3
	if w < 30 {
		w = 30
	}
	dialog := promptDialogStyle.Width(w).Render(
		panelTitleStyle.Render("New session") + "\n\n" +
			m.prompt.View() + "\n\n" +
			dimStyle.Render("Enter: generate  Esc: close"))
	return centerOverlay(m.width, m.height, dialog, base)
}

func (m Model) overlayFilterMenu(base string) string {
	var lines []string
	lines = append(lines, panelTitleStyle.Render("Activity filter"))
	lines = append(lines, "")
	for i, opt := range m.filterMenu.Options {
		check := "[ ]"
		if opt.Enabled {
			check = "[x]"
		}
		line := check + " " + opt.Label
		if i == m.filterMenu.Cursor {
			line = cursorStyle.Render(line)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "")
	lines = append(lines, dimStyle.Render("Space/Enter: toggle  Esc: close"))

	return centerOverlay(m.width, m.height, filterMenuStyle.Render(strings.Join(lines, "\n")), base)
}

func centerOverlay(width, height int, dialog, base string) string {
	x := (width - lipgloss.Width(dialog)) / 2
	y := (height - lipgloss.Height(dialog)) / 2
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return placeOverlay(x, y, dialog, base)
}

func placeOverlay(x, y int, fg, bg string) string {
	return lipgloss.Place(
		lipgloss.Width(bg),
		lipgloss.Height(bg),
		lipgloss.Center,
		lipgloss.Center,
		fg,
		lipgloss.WithWhitespaceChars(" "),
	)
}
