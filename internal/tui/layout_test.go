package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/genwatch/internal/config"
	"github.com/nixlim/genwatch/internal/events"
	"github.com/nixlim/genwatch/internal/lifecycle"
	"github.com/nixlim/genwatch/internal/notices"
	"github.com/nixlim/genwatch/internal/progress"
	"github.com/nixlim/genwatch/internal/session"
	"github.com/nixlim/genwatch/internal/state"
)

type mockSessionProvider struct {
	mu        sync.Mutex
	snap      lifecycle.Snapshot
	started   []string
	startErr  error
	attached  []string
	attachErr error
	cancels   int
	cancelErr error
}

func (m *mockSessionProvider) Snapshot(_ int) lifecycle.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *mockSessionProvider) Start(_ context.Context, prompt string) (session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, prompt)
	if m.startErr != nil {
		return session.Session{}, m.startErr
	}
	return session.Session{ID: "new-session-id", Prompt: prompt, Status: session.StatusIdle}, nil
}

func (m *mockSessionProvider) Attach(_ context.Context, st session.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = append(m.attached, st.ID())
	return m.attachErr
}

func (m *mockSessionProvider) Cancel(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	return m.cancelErr
}

type mockHistoryProvider struct {
	entries []state.Entry
	err     error
}

func (m *mockHistoryProvider) History(_ context.Context) ([]state.Entry, error) {
	return m.entries, m.err
}

func (m *mockHistoryProvider) Lookup(_ context.Context, id string) (state.Entry, error) {
	for _, e := range m.entries {
		if e.ID() == id {
			return e, nil
		}
	}
	return state.Entry{}, errors.New("session not found")
}

func buildState(t *testing.T, id string, evs ...events.Event) session.State {
	t.Helper()
	s := session.New(session.Session{ID: id, CreatedAt: time.Now()})
	for _, ev := range evs {
		var err error
		if s, err = session.Reduce(s, ev); err != nil {
			t.Fatalf("Reduce(%s): %v", ev.Kind(), err)
		}
	}
	return s
}

func streamingSnapshot(t *testing.T) lifecycle.Snapshot {
	t.Helper()
	st := buildState(t, "sess-0001-abcdef",
		events.StreamStart{TotalFiles: 3, TotalTokens: 400},
		events.FileCreated{File: "package.json", Language: "json"},
		events.CodeChunk{File: "package.json", Chunk: "{\n  \"name\": \"app\"\n}", Tokens: 6},
		events.FileUpdated{File: "package.json", CompletedFiles: 1},
		events.FileCreated{File: "src/App.tsx", Language: "tsx"},
		events.CodeChunk{File: "src/App.tsx", Chunk: "export default function App() {", Tokens: 8},
	)
	return lifecycle.Snapshot{
		State:     st,
		StartedAt: time.Now().Add(-30 * time.Second),
		Streaming: true,
		Estimate: progress.Estimate{
			Percent:       42.5,
			Source:        progress.SourceTokens,
			Elapsed:       30 * time.Second,
			Remaining:     40 * time.Second,
			HasETA:        true,
			TokenVelocity: 28,
		},
		Activity: []events.FormattedEvent{
			events.Format(st.ID(), events.FileCreated{File: "src/App.tsx", Language: "tsx"}, time.Now()),
		},
	}
}

func newTestModel(opts ...ModelOption) Model {
	m := NewModel(config.DefaultConfig(), opts...)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model)
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestComputeDimensions_LargeTerminal(t *testing.T) {
	dims := computeDimensions(120, 40)

	if dims.treeW+dims.codeW != 120 {
		t.Errorf("treeW(%d) + codeW(%d) = %d, want 120", dims.treeW, dims.codeW, dims.treeW+dims.codeW)
	}
	if dims.activityW+dims.buildW != 120 {
		t.Errorf("activityW(%d) + buildW(%d) = %d, want 120", dims.activityW, dims.buildW, dims.activityW+dims.buildW)
	}
	if dims.progressH < progressMinHeight || dims.progressH > progressMaxHeight {
		t.Errorf("progressH = %d, want within [%d, %d]", dims.progressH, progressMinHeight, progressMaxHeight)
	}

	totalH := dims.headerH + dims.progressH + dims.codeH + dims.activityH + dims.noticesH
	if totalH != 40 {
		t.Errorf("header(%d) + progress(%d) + middle(%d) + bottom(%d) + notices(%d) = %d, want 40",
			dims.headerH, dims.progressH, dims.codeH, dims.activityH, dims.noticesH, totalH)
	}
}

func TestComputeDimensions_MinimumTerminal(t *testing.T) {
	dims := computeDimensions(20, 8)

	if dims.treeW <= 0 || dims.codeW <= 0 {
		t.Errorf("tree/code widths = %d/%d, want > 0", dims.treeW, dims.codeW)
	}
	if dims.codeH < 3 {
		t.Errorf("codeH = %d, want >= 3", dims.codeH)
	}
}

func TestModel_Init(t *testing.T) {
	m := NewModel(config.DefaultConfig())
	if cmd := m.Init(); cmd == nil {
		t.Error("Init should return a tick command")
	}
}

func TestModel_ViewEmptySession(t *testing.T) {
	m := newTestModel(WithSessionProvider(&mockSessionProvider{}))

	view := m.View()
	if !strings.Contains(view, "genwatch") {
		t.Error("view should contain the title")
	}
	if !strings.Contains(view, "No session") {
		t.Error("view without a session should say so")
	}
}

func TestModel_ViewStreamingSession(t *testing.T) {
	mock := &mockSessionProvider{snap: streamingSnapshot(t)}
	m := newTestModel(WithSessionProvider(mock), WithNoticeProvider(notices.NewCenter()))
	updated, _ := m.Update(tickMsg(time.Now()))
	m = updated.(Model)

	view := m.View()
	for _, want := range []string{"Streaming", "sess-000", "Progress", "Files", "App.tsx", "package.json", "Activity", "Build", "export default function App()"} {
		if !strings.Contains(view, want) {
			t.Errorf("view should contain %q", want)
		}
	}
}

func TestModel_QuitKey(t *testing.T) {
	m := newTestModel()

	updated, cmd := m.Update(runeKey("q"))
	m2 := updated.(Model)
	if !m2.quitting {
		t.Error("q should set quitting")
	}
	if cmd == nil {
		t.Error("q should return tea.Quit")
	}
	if m2.View() != "Shutting down...\n" {
		t.Errorf("quitting view = %q", m2.View())
	}
}

func TestModel_ShutdownCallback(t *testing.T) {
	called := false
	m := newTestModel(WithOnShutdown(func() { called = true }))

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !called {
		t.Error("ctrl+c should run the shutdown callback")
	}
}

func TestModel_TabCyclesFiles(t *testing.T) {
	mock := &mockSessionProvider{snap: streamingSnapshot(t)}
	m := newTestModel(WithSessionProvider(mock))
	updated, _ := m.Update(tickMsg(time.Now()))
	m = updated.(Model)

	if got := m.activeTab(); got != "src/App.tsx" {
		t.Fatalf("initial active tab = %q, want the current file src/App.tsx", got)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(Model)
	if got := m.activeTab(); got != "package.json" {
		t.Errorf("after tab active tab = %q, want package.json (wraps)", got)
	}
	if m.follow {
		t.Error("selecting a tab should stop following the stream")
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	m = updated.(Model)
	if got := m.activeTab(); got != "src/App.tsx" {
		t.Errorf("after shift+tab active tab = %q, want src/App.tsx", got)
	}
}

func TestModel_SelectedTabSurvivesNewFiles(t *testing.T) {
	snap := streamingSnapshot(t)
	mock := &mockSessionProvider{snap: snap}
	m := newTestModel(WithSessionProvider(mock))
	updated, _ := m.Update(tickMsg(time.Now()))
	m = updated.(Model)
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(Model)

	next, err := session.Reduce(snap.State, events.FileCreated{File: "src/index.css", Language: "css"})
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	mock.mu.Lock()
	mock.snap.State = next
	mock.mu.Unlock()

	updated, _ = m.Update(tickMsg(time.Now()))
	m = updated.(Model)
	if got := m.activeTab(); got != "package.json" {
		t.Errorf("active tab = %q, want the pinned package.json", got)
	}
}

func TestModel_WindowResize(t *testing.T) {
	m := NewModel(config.DefaultConfig())
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 200, Height: 60})
	m2 := updated.(Model)
	if m2.width != 200 || m2.height != 60 {
		t.Errorf("size = %dx%d, want 200x60", m2.width, m2.height)
	}
	if m2.code.Width <= 0 || m2.code.Height <= 0 {
		t.Errorf("code viewport = %dx%d, want positive", m2.code.Width, m2.code.Height)
	}
}

func TestModel_ViewClampedToTerminalHeight(t *testing.T) {
	mock := &mockSessionProvider{snap: streamingSnapshot(t)}
	for _, h := range []int{10, 20, 40} {
		m := NewModel(config.DefaultConfig(), WithSessionProvider(mock))
		updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: h})
		updated, _ = updated.Update(tickMsg(time.Now()))
		m = updated.(Model)

		lines := strings.Split(m.View(), "\n")
		if len(lines) > h {
			t.Errorf("height %d: view has %d lines", h, len(lines))
		}
	}
}

func TestModel_DismissNotice(t *testing.T) {
	center := notices.NewCenter()
	center.Warn(notices.KindProtocol, "sess-1", "event for unknown file: x.ts")
	m := newTestModel(WithNoticeProvider(center))

	if !strings.Contains(m.View(), "event for unknown file") {
		t.Error("notice should be shown")
	}
	m.Update(runeKey("d"))
	if n := len(center.Active()); n != 0 {
		t.Errorf("active notices after d = %d, want 0", n)
	}
}

func TestModel_NewSessionPrompt(t *testing.T) {
	mock := &mockSessionProvider{}
	m := newTestModel(WithSessionProvider(mock))

	updated, _ := m.Update(runeKey("n"))
	m = updated.(Model)
	if !m.promptActive {
		t.Fatal("n should open the prompt")
	}
	if !strings.Contains(m.View(), "New session") {
		t.Error("prompt dialog should be visible")
	}

	updated, _ = m.Update(runeKey("todo app"))
	m = updated.(Model)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if m.promptActive {
		t.Error("enter should close the prompt")
	}
	if cmd == nil {
		t.Fatal("enter should return a start command")
	}

	msg := cmd()
	done, ok := msg.(startDoneMsg)
	if !ok {
		t.Fatalf("expected startDoneMsg, got %T", msg)
	}
	if done.err != nil {
		t.Fatalf("unexpected error: %v", done.err)
	}
	if len(mock.started) != 1 || mock.started[0] != "todo app" {
		t.Errorf("started = %v, want [todo app]", mock.started)
	}

	updated, _ = m.Update(done)
	m = updated.(Model)
	if !strings.Contains(m.statusMessage, "Started") {
		t.Errorf("statusMessage = %q", m.statusMessage)
	}
}

func TestModel_PromptSwallowsQuit(t *testing.T) {
	m := newTestModel(WithSessionProvider(&mockSessionProvider{}))
	updated, _ := m.Update(runeKey("n"))
	m = updated.(Model)

	updated, _ = m.Update(runeKey("q"))
	m = updated.(Model)
	if m.quitting {
		t.Error("q typed into the prompt must not quit")
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	if m.promptActive {
		t.Error("esc should close the prompt")
	}
}

func TestModel_FilterMenu(t *testing.T) {
	m := newTestModel()

	updated, _ := m.Update(runeKey("f"))
	m = updated.(Model)
	if !m.filterMenu.Active {
		t.Fatal("f should open the filter menu")
	}

	// Second option is "Files".
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(Model)
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)

	if m.activityFilter.EventTypes[events.TypeFileCreated] {
		t.Error("file_created should be filtered out")
	}
	if m.activityFilter.EventTypes[events.TypeFileUpdated] {
		t.Error("file_updated should follow the Files option")
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	if m.filterMenu.Active {
		t.Error("esc should close the filter menu")
	}
}

func TestStripAnsi(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"\x1b[1;32mgreen\x1b[0m", "green"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := stripAnsi(tt.in); got != tt.want {
			t.Errorf("stripAnsi(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderBorderedPanel_ClampsContent(t *testing.T) {
	content := strings.Repeat("line\n", 50)
	panel := renderBorderedPanel(content, 30, 10)
	if n := len(strings.Split(panel, "\n")); n > 10 {
		t.Errorf("panel has %d lines, want <= 10", n)
	}
}

func TestNoPersistenceIndicator(t *testing.T) {
	m := newTestModel(WithPersistenceFlag(false))
	if !strings.Contains(m.renderHeader(), "No persistence") {
		t.Error("header should flag memory-only mode")
	}

	m = newTestModel(WithPersistenceFlag(true))
	if strings.Contains(m.renderHeader(), "No persistence") {
		t.Error("header should not flag persistent mode")
	}
}
