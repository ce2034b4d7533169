package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// initiateCancel opens the confirmation dialog for the live session. Nothing
// is sent until the user confirms.
func (m Model) initiateCancel() (tea.Model, tea.Cmd) {
	if m.session == nil || !m.snap.HasSession() {
		return m, nil
	}
	st := m.snap.State
	if st.Status().Terminal() {
		m.statusMessage = "Session already " + string(st.Status())
		return m, nil
	}
	if !m.snap.Streaming {
		m.statusMessage = "No active stream to cancel"
		return m, nil
	}

	m.cancelConfirm = true
	m.cancelTarget = st.ID()
	return m, nil
}

// handleCancelConfirmKey handles Y/N/Esc in the cancel confirmation dialog.
func (m Model) handleCancelConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		m.cancelConfirm = false
		m.cancelTarget = ""
		m.statusMessage = "Cancelling..."
		return m, m.cancelCmd()

	case key.Matches(msg, m.keys.Deny), key.Matches(msg, m.keys.Escape):
		m.cancelConfirm = false
		m.cancelTarget = ""
		return m, nil
	}

	return m, nil
}

// cancelCmd runs the cancellation off the update loop; the local state flips
// to cancelled before the backend is asked.
func (m Model) cancelCmd() tea.Cmd {
	s := m.session
	ctx := m.ctx
	timeout := m.cfg.API.RequestTimeout()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return cancelDoneMsg{err: s.Cancel(ctx)}
	}
}
