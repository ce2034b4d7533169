package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/genwatch/internal/config"
	"github.com/nixlim/genwatch/internal/lifecycle"
	"github.com/nixlim/genwatch/internal/notices"
	"github.com/nixlim/genwatch/internal/projection"
	"github.com/nixlim/genwatch/internal/session"
	"github.com/nixlim/genwatch/internal/state"
)

type ViewState int

const (
	ViewSession ViewState = iota
	ViewHistory
)

type tickMsg time.Time

type historyMsg struct {
	entries []state.Entry
	err     error
}

type cancelDoneMsg struct{ err error }

type startDoneMsg struct {
	id  string
	err error
}

type attachDoneMsg struct {
	id  string
	err error
}

// SessionProvider drives the live session. *lifecycle.Controller satisfies
// it.
type SessionProvider interface {
	Snapshot(activity int) lifecycle.Snapshot
	Start(ctx context.Context, prompt string) (session.Session, error)
	Attach(ctx context.Context, st session.State) error
	Cancel(ctx context.Context) error
}

type HistoryProvider interface {
	History(ctx context.Context) ([]state.Entry, error)
	Lookup(ctx context.Context, id string) (state.Entry, error)
}

type NoticeProvider interface {
	Active() []notices.Notice
	DismissLatest() bool
	Warn(kind, sessionID, msg string)
}

type Model struct {
	view     ViewState
	width    int
	height   int
	keys     KeyMap
	quitting bool

	cfg config.Config
	ctx context.Context

	session SessionProvider
	history HistoryProvider
	notices NoticeProvider

	snap        lifecycle.Snapshot
	selectedTab string
	code        viewport.Model
	follow      bool
	bar         progress.Model

	activityFilter ActivityFilter
	filterMenu     FilterMenuState

	cancelConfirm bool
	cancelTarget  string

	prompt       textinput.Model
	promptActive bool

	statusMessage string

	historyEntries []state.Entry
	historyErr     error
	historyCursor  int
	historyLoading bool

	isPersistent bool
	refreshRate  time.Duration

	onShutdown func()
}

func NewModel(cfg config.Config, opts ...ModelOption) Model {
	ti := textinput.New()
	ti.Placeholder = "Describe the app to generate"
	ti.CharLimit = 2000
	ti.Prompt = "› "

	m := Model{
		view:           ViewSession,
		keys:           DefaultKeyMap(),
		cfg:            cfg,
		ctx:            context.Background(),
		code:           viewport.New(0, 0),
		follow:         true,
		bar:            progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		activityFilter: NewActivityFilter(),
		filterMenu:     NewFilterMenu(),
		prompt:         ti,
		refreshRate:    cfg.Display.RefreshRate(),
	}

	for _, opt := range opts {
		opt(&m)
	}

	return m
}

type ModelOption func(*Model)

func WithSessionProvider(s SessionProvider) ModelOption {
	return func(m *Model) { m.session = s }
}

func WithHistoryProvider(h HistoryProvider) ModelOption {
	return func(m *Model) { m.history = h }
}

func WithNoticeProvider(n NoticeProvider) ModelOption {
	return func(m *Model) { m.notices = n }
}

// WithContext sets the context streams opened from the UI live under.
func WithContext(ctx context.Context) ModelOption {
	return func(m *Model) { m.ctx = ctx }
}

func WithStartView(v ViewState) ModelOption {
	return func(m *Model) { m.view = v }
}

func WithOnShutdown(fn func()) ModelOption {
	return func(m *Model) { m.onShutdown = fn }
}

func WithPersistenceFlag(isPersistent bool) ModelOption {
	return func(m *Model) { m.isPersistent = isPersistent }
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.tickCmd()}
	if m.view == ViewHistory {
		cmds = append(cmds, m.loadHistoryCmd())
	}
	return tea.Batch(cmds...)
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.syncCode()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, m.tickCmd()

	case historyMsg:
		m.historyLoading = false
		m.historyEntries = msg.entries
		m.historyErr = msg.err
		if m.historyCursor >= len(m.historyEntries) {
			m.historyCursor = max(len(m.historyEntries)-1, 0)
		}
		if msg.err != nil && m.notices != nil {
			m.notices.Warn(notices.KindHistoryFailed, "", "History unavailable: "+msg.err.Error())
		}
		return m, nil

	case cancelDoneMsg:
		switch {
		case errors.Is(msg.err, lifecycle.ErrNoActiveStream):
			m.statusMessage = "No active stream to cancel"
		case msg.err != nil:
			m.statusMessage = fmt.Sprintf("Cancel failed: %v", msg.err)
		default:
			m.statusMessage = "Session cancelled"
		}
		m.refresh()
		return m, nil

	case startDoneMsg:
		if msg.err != nil {
			m.statusMessage = fmt.Sprintf("Could not start session: %v", msg.err)
			return m, nil
		}
		m.resetSessionView()
		m.statusMessage = "Started " + truncateID(msg.id, 8)
		m.refresh()
		return m, nil

	case attachDoneMsg:
		if msg.err != nil {
			m.statusMessage = fmt.Sprintf("Could not open %s: %v", truncateID(msg.id, 8), msg.err)
			return m, nil
		}
		m.view = ViewSession
		m.resetSessionView()
		m.statusMessage = ""
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// refresh pulls a fresh snapshot and keeps the code pane on the active tab.
func (m *Model) refresh() {
	if m.session == nil {
		return
	}
	m.snap = m.session.Snapshot(m.cfg.Display.EventBufferSize)
	m.syncCode()
}

func (m *Model) resetSessionView() {
	m.selectedTab = ""
	m.follow = true
	m.code.GotoTop()
}

func (m Model) activeTab() string {
	return projection.ActiveTab(m.snap.State, m.selectedTab)
}

func (m *Model) syncCode() {
	f, ok := m.snap.State.File(m.activeTab())
	if !ok {
		m.code.SetContent("")
		return
	}
	m.code.SetContent(f.Content)
	if m.follow {
		m.code.GotoBottom()
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.cancelConfirm {
		return m.handleCancelConfirmKey(msg)
	}

	if m.promptActive {
		return m.handlePromptKey(msg)
	}

	if m.filterMenu.Active {
		return m.handleFilterMenuKey(msg)
	}

	if key.Matches(msg, m.keys.Quit) {
		m.quitting = true
		if m.onShutdown != nil {
			m.onShutdown()
		}
		return m, tea.Quit
	}

	if key.Matches(msg, m.keys.Dismiss) {
		if m.notices != nil {
			m.notices.DismissLatest()
		}
		return m, nil
	}

	switch m.view {
	case ViewSession:
		return m.handleSessionKey(msg)
	case ViewHistory:
		return m.handleHistoryKey(msg)
	}
	return m, nil
}

func (m Model) handleSessionKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		return m.initiateCancel()

	case key.Matches(msg, m.keys.NewSession):
		m.promptActive = true
		m.prompt.Reset()
		return m, m.prompt.Focus()

	case key.Matches(msg, m.keys.History):
		m.view = ViewHistory
		m.historyLoading = true
		return m, m.loadHistoryCmd()

	case key.Matches(msg, m.keys.Filter):
		m.filterMenu.Active = true
		return m, nil

	case key.Matches(msg, m.keys.NextTab):
		m.stepTab(1)
		return m, nil

	case key.Matches(msg, m.keys.PrevTab):
		m.stepTab(-1)
		return m, nil

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down),
		key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.code, cmd = m.code.Update(msg)
		m.follow = m.code.AtBottom()
		return m, cmd

	case key.Matches(msg, m.keys.Follow):
		m.follow = true
		m.code.GotoBottom()
		return m, nil
	}
	return m, nil
}

// stepTab moves the tab selection and pins it, so newly created files no
// longer steal focus.
func (m *Model) stepTab(delta int) {
	paths := m.snap.State.Paths()
	if len(paths) == 0 {
		return
	}
	m.selectedTab = projection.StepTab(paths, m.activeTab(), delta)
	m.follow = false
	m.code.GotoTop()
	m.syncCode()
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.promptActive = false
		m.prompt.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		text := strings.TrimSpace(m.prompt.Value())
		m.promptActive = false
		m.prompt.Blur()
		if m.session == nil {
			return m, nil
		}
		m.statusMessage = "Creating session..."
		return m, m.startCmd(text)
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m Model) handleFilterMenuKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Filter):
		m.filterMenu.Active = false
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.filterMenu.Cursor > 0 {
			m.filterMenu.Cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.filterMenu.Cursor < len(m.filterMenu.Options)-1 {
			m.filterMenu.Cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter), key.Matches(msg, m.keys.Toggle):
		if m.filterMenu.Cursor >= 0 && m.filterMenu.Cursor < len(m.filterMenu.Options) {
			opt := &m.filterMenu.Options[m.filterMenu.Cursor]
			opt.Enabled = !opt.Enabled
			m.activityFilter = m.filterMenu.Filter()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) loadHistoryCmd() tea.Cmd {
	h := m.history
	ctx := m.ctx
	timeout := m.cfg.API.RequestTimeout()
	return func() tea.Msg {
		if h == nil {
			return historyMsg{}
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		entries, err := h.History(ctx)
		return historyMsg{entries: entries, err: err}
	}
}

func (m Model) startCmd(prompt string) tea.Cmd {
	s := m.session
	ctx := m.ctx
	return func() tea.Msg {
		created, err := s.Start(ctx, prompt)
		return startDoneMsg{id: created.ID, err: err}
	}
}

// attachCmd resolves id to its latest snapshot and resumes it. Terminal
// sessions are shown without opening a stream.
func (m Model) attachCmd(id string) tea.Cmd {
	s := m.session
	h := m.history
	ctx := m.ctx
	timeout := m.cfg.API.RequestTimeout()
	return func() tea.Msg {
		if s == nil || h == nil {
			return attachDoneMsg{id: id, err: errors.New("not connected")}
		}
		lookupCtx, cancel := context.WithTimeout(ctx, timeout)
		entry, err := h.Lookup(lookupCtx, id)
		cancel()
		if err != nil {
			return attachDoneMsg{id: id, err: err}
		}
		return attachDoneMsg{id: id, err: s.Attach(ctx, entry.State())}
	}
}

func (m Model) headerIndicators() string {
	var parts []string
	if !m.isPersistent {
		parts = append(parts, "[No persistence]")
	}
	if m.snap.Streaming {
		parts = append(parts, "[Live]")
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + dimStyle.Render(strings.Join(parts, " "))
}

func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var output string
	switch m.view {
	case ViewSession:
		output = m.renderSession()
	case ViewHistory:
		output = m.renderHistory()
	}

	if m.height > 0 {
		lines := strings.Split(output, "\n")
		if len(lines) > m.height {
			lines = lines[:m.height]
			output = strings.Join(lines, "\n")
		}
	}

	return output
}
