package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nixlim/genwatch/internal/events"
)

func newTestState() State {
	return New(Session{ID: "sess-1", Prompt: "todo app", CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)})
}

func mustReduce(t *testing.T, s State, evs ...events.Event) State {
	t.Helper()
	for _, ev := range evs {
		var err error
		s, err = Reduce(s, ev)
		if err != nil {
			t.Fatalf("Reduce(%s): unexpected error: %v", ev.Kind(), err)
		}
	}
	return s
}

func TestReduce_TwoFileScenario(t *testing.T) {
	s := mustReduce(t, newTestState(),
		events.StreamStart{TotalFiles: 2, TotalTokens: 10},
		events.FileCreated{File: "a.ts", Language: "typescript"},
		events.CodeChunk{File: "a.ts", Chunk: "x", Tokens: 3},
		events.FileCreated{File: "b.ts", Language: "typescript"},
		events.CodeChunk{File: "b.ts", Chunk: "yy", Tokens: 4},
		events.FileUpdated{File: "a.ts", CompletedFiles: 1},
		events.FileUpdated{File: "b.ts", CompletedFiles: 2},
	)

	if s.Counters.StreamedTokens != 7 {
		t.Errorf("expected streamedTokens=7 before completion, got %d", s.Counters.StreamedTokens)
	}

	s = mustReduce(t, s, events.StreamComplete{TotalTokens: 7, TotalFiles: 2})

	if s.Status() != StatusCompleted {
		t.Errorf("expected status completed, got %s", s.Status())
	}
	if s.Counters.StreamedTokens != 7 {
		t.Errorf("expected streamedTokens=7, got %d", s.Counters.StreamedTokens)
	}
	if s.Counters.CompletedFiles != 2 {
		t.Errorf("expected completedFiles=2, got %d", s.Counters.CompletedFiles)
	}
	if s.Counters.ProgressPercent != 100 {
		t.Errorf("expected progressPercent=100, got %v", s.Counters.ProgressPercent)
	}

	files := s.Files()
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Path != "a.ts" || files[0].Content != "x" || files[0].Status != FileCompleted {
		t.Errorf("unexpected first file: %+v", files[0])
	}
	if files[1].Path != "b.ts" || files[1].Content != "yy" || files[1].Status != FileCompleted {
		t.Errorf("unexpected second file: %+v", files[1])
	}
	if files[1].Tokens != 4 || files[1].Chunks != 1 {
		t.Errorf("expected b.ts tokens=4 chunks=1, got tokens=%d chunks=%d", files[1].Tokens, files[1].Chunks)
	}
}

func TestReduce_StatusTransitions(t *testing.T) {
	s := newTestState()
	if s.Status() != StatusIdle {
		t.Fatalf("expected new session to be idle, got %s", s.Status())
	}

	steps := []struct {
		ev   events.Event
		want Status
	}{
		{events.StreamStart{TotalFiles: 1, TotalTokens: 5}, StatusStreaming},
		{events.FileCreated{File: "index.html", Language: "html"}, StatusStreaming},
		{events.BuildProgress{Step: "install", Status: "running"}, StatusBuilding},
		{events.PreviewReady{PreviewURL: "/preview/session/sess-1"}, StatusPreviewReady},
		{events.BuildProgress{Step: "install", Status: "completed"}, StatusBuilding},
		{events.PreviewReady{PreviewURL: "/other"}, StatusPreviewReady},
		{events.StreamComplete{TotalTokens: 5, TotalFiles: 1}, StatusCompleted},
	}
	for i, step := range steps {
		s = mustReduce(t, s, step.ev)
		if s.Status() != step.want {
			t.Errorf("step %d (%s): expected %s, got %s", i, step.ev.Kind(), step.want, s.Status())
		}
	}
}

func TestReduce_ImplicitStreamingFromIdle(t *testing.T) {
	s := mustReduce(t, newTestState(), events.FileCreated{File: "a.go", Language: "go"})
	if s.Status() != StatusStreaming {
		t.Errorf("expected file_created to start streaming, got %s", s.Status())
	}
	if s.CurrentFile != "a.go" {
		t.Errorf("expected current file a.go, got %q", s.CurrentFile)
	}
}

func TestReduce_FileCreatedIdempotent(t *testing.T) {
	s := mustReduce(t, newTestState(),
		events.FileCreated{File: "a.ts", Language: "typescript"},
		events.CodeChunk{File: "a.ts", Chunk: "hello", Tokens: 1},
		events.FileCreated{File: "b.ts", Language: "typescript"},
	)
	again := mustReduce(t, s, events.FileCreated{File: "a.ts", Language: "javascript"})

	f, _ := again.File("a.ts")
	if f.Content != "hello" {
		t.Errorf("duplicate file_created must not reset content, got %q", f.Content)
	}
	if f.Language != "typescript" {
		t.Errorf("language is fixed at creation, got %q", f.Language)
	}
	if again.FileCount() != 2 {
		t.Errorf("expected 2 files, got %d", again.FileCount())
	}
	if again.CurrentFile != "a.ts" {
		t.Errorf("duplicate should focus the file, got current %q", again.CurrentFile)
	}

	twice := mustReduce(t, again, events.FileCreated{File: "a.ts", Language: "javascript"})
	if twice.CurrentFile != again.CurrentFile || twice.FileCount() != again.FileCount() {
		t.Errorf("second duplicate changed state: current %q, files %d", twice.CurrentFile, twice.FileCount())
	}
	if f, _ := twice.File("a.ts"); f.Content != "hello" || f.Status != FileStreaming {
		t.Errorf("duplicate must leave the entry untouched, got %+v", f)
	}
}

func TestReduce_AppendOnlyContent(t *testing.T) {
	s := mustReduce(t, newTestState(), events.FileCreated{File: "main.go", Language: "go"})

	chunks := []string{"package ", "main\n", "\nfunc main() {}\n"}
	var prefix string
	for _, c := range chunks {
		s = mustReduce(t, s, events.CodeChunk{File: "main.go", Chunk: c, Tokens: 1})
		f, _ := s.File("main.go")
		if !strings.HasPrefix(f.Content, prefix) {
			t.Fatalf("content %q lost prefix %q", f.Content, prefix)
		}
		prefix = f.Content
	}
	if prefix != strings.Join(chunks, "") {
		t.Errorf("expected concatenated chunks, got %q", prefix)
	}
}

func TestReduce_UnknownFileGuard(t *testing.T) {
	s := mustReduce(t, newTestState(), events.StreamStart{TotalFiles: 1, TotalTokens: 3})

	for _, ev := range []events.Event{
		events.CodeChunk{File: "ghost.ts", Chunk: "boo", Tokens: 2},
		events.FileUpdated{File: "ghost.ts", CompletedFiles: 1},
	} {
		got, err := Reduce(s, ev)
		if !errors.Is(err, ErrUnknownFile) {
			t.Errorf("%s: expected ErrUnknownFile, got %v", ev.Kind(), err)
		}
		if got.FileCount() != 0 {
			t.Errorf("%s: unknown file must not create an entry", ev.Kind())
		}
		if got.Counters != s.Counters {
			t.Errorf("%s: counters changed: %+v -> %+v", ev.Kind(), s.Counters, got.Counters)
		}
	}
}

func TestReduce_ChunkAfterFileCompleted(t *testing.T) {
	s := mustReduce(t, newTestState(),
		events.FileCreated{File: "a.ts"},
		events.CodeChunk{File: "a.ts", Chunk: "done", Tokens: 1},
		events.FileUpdated{File: "a.ts", CompletedFiles: 1},
	)

	got, err := Reduce(s, events.CodeChunk{File: "a.ts", Chunk: "late", Tokens: 1})
	if !errors.Is(err, ErrFileCompleted) {
		t.Fatalf("expected ErrFileCompleted, got %v", err)
	}
	f, _ := got.File("a.ts")
	if f.Content != "done" || f.Status != FileCompleted {
		t.Errorf("completed file must be frozen, got %+v", f)
	}
	if got.Counters.StreamedTokens != 1 {
		t.Errorf("rejected chunk must not count tokens, got %d", got.Counters.StreamedTokens)
	}
}

func TestReduce_TerminalAbsorption(t *testing.T) {
	base := mustReduce(t, newTestState(),
		events.FileCreated{File: "a.ts"},
		events.CodeChunk{File: "a.ts", Chunk: "abc", Tokens: 2},
	)
	terminals := map[Status]State{
		StatusCompleted: mustReduce(t, base, events.StreamComplete{TotalTokens: 2, TotalFiles: 1}),
		StatusCancelled: Cancel(base),
		StatusError:     mustReduce(t, base, events.StreamError{Message: "boom"}),
	}
	all := []events.Event{
		events.StreamStart{TotalFiles: 9, TotalTokens: 99},
		events.FileCreated{File: "z.ts"},
		events.CodeChunk{File: "a.ts", Chunk: "more", Tokens: 5},
		events.FileUpdated{File: "a.ts", CompletedFiles: 3},
		events.ProgressUpdate{StreamedTokens: 50, TotalTokens: 99, ProgressPercent: 40},
		events.BuildProgress{Step: "build", Status: "running"},
		events.PreviewReady{PreviewURL: "/late"},
		events.StreamComplete{TotalTokens: 99, TotalFiles: 9},
		events.StreamError{Message: "late"},
	}

	for status, s := range terminals {
		if s.Status() != status {
			t.Fatalf("setup: expected %s, got %s", status, s.Status())
		}
		for _, ev := range all {
			got, err := Reduce(s, ev)
			if !errors.Is(err, ErrTerminal) {
				t.Errorf("%s + %s: expected ErrTerminal, got %v", status, ev.Kind(), err)
			}
			if got.Status() != status {
				t.Errorf("%s + %s: status changed to %s", status, ev.Kind(), got.Status())
			}
			if got.Counters != s.Counters {
				t.Errorf("%s + %s: counters changed", status, ev.Kind())
			}
			f, _ := got.File("a.ts")
			if f.Content != "abc" {
				t.Errorf("%s + %s: content changed to %q", status, ev.Kind(), f.Content)
			}
		}
		if Fail(s, "x").Status() != status {
			t.Errorf("Fail must not override %s", status)
		}
		if Cancel(s).Status() != status {
			t.Errorf("Cancel must not override %s", status)
		}
	}
}

func TestReduce_CountersMonotonic(t *testing.T) {
	s := mustReduce(t, newTestState(),
		events.StreamStart{TotalFiles: 3, TotalTokens: 100},
		events.FileCreated{File: "a.ts"},
		events.FileCreated{File: "b.ts"},
		events.ProgressUpdate{StreamedTokens: 60, TotalTokens: 120, ProgressPercent: 50},
		events.FileUpdated{File: "a.ts", CompletedFiles: 2},
	)

	s = mustReduce(t, s,
		events.ProgressUpdate{StreamedTokens: 40, TotalTokens: 90, ProgressPercent: 30},
		events.FileUpdated{File: "b.ts", CompletedFiles: 1},
		events.StreamStart{TotalFiles: 3, TotalTokens: 80},
	)

	c := s.Counters
	if c.StreamedTokens != 60 {
		t.Errorf("streamedTokens decreased: got %d", c.StreamedTokens)
	}
	if c.TotalTokens != 120 {
		t.Errorf("totalTokens decreased: got %d", c.TotalTokens)
	}
	if c.ProgressPercent != 50 {
		t.Errorf("progressPercent decreased: got %v", c.ProgressPercent)
	}
	if c.CompletedFiles != 2 {
		t.Errorf("completedFiles decreased: got %d", c.CompletedFiles)
	}
}

func TestReduce_ProgressPercentClamped(t *testing.T) {
	s := mustReduce(t, newTestState(), events.ProgressUpdate{StreamedTokens: 10, TotalTokens: 5, ProgressPercent: 180})
	if s.Counters.ProgressPercent != 100 {
		t.Errorf("expected clamp to 100, got %v", s.Counters.ProgressPercent)
	}
	if !s.Counters.ExplicitPercent {
		t.Error("expected explicit percent to be recorded")
	}
}

func TestReduce_CompletedFilesRaisesTotal(t *testing.T) {
	s := mustReduce(t, newTestState(),
		events.StreamStart{TotalFiles: 1, TotalTokens: 10},
		events.FileCreated{File: "a"},
		events.FileCreated{File: "b"},
		events.FileUpdated{File: "a", CompletedFiles: 1},
		events.FileUpdated{File: "b", CompletedFiles: 2},
	)
	if s.Counters.CompletedFiles > s.Counters.TotalFiles {
		t.Errorf("completedFiles %d exceeds totalFiles %d", s.Counters.CompletedFiles, s.Counters.TotalFiles)
	}
}

func TestReduce_BuildStepUpsert(t *testing.T) {
	s := mustReduce(t, newTestState(),
		events.BuildProgress{Step: "install", Status: "running", Output: "npm install"},
		events.BuildProgress{Step: "build", Status: "running"},
		events.BuildProgress{Step: "install", Status: "completed", Output: "added 3 packages"},
	)

	steps := s.BuildSteps()
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Step != "install" || steps[0].Status != "completed" || steps[0].Output != "added 3 packages" {
		t.Errorf("unexpected install step: %+v", steps[0])
	}
	if steps[1].Step != "build" || steps[1].Status != "running" {
		t.Errorf("unexpected build step: %+v", steps[1])
	}
}

func TestReduce_PreviewCreatedOnce(t *testing.T) {
	s := mustReduce(t, newTestState(),
		events.FileCreated{File: "index.html", Language: "html"},
		events.PreviewReady{PreviewURL: "/preview/session/sess-1"},
	)
	if s.Preview == nil {
		t.Fatal("expected preview to be created")
	}
	first := *s.Preview

	s = mustReduce(t, s,
		events.PreviewReady{PreviewURL: "/elsewhere"},
		events.StreamComplete{TotalTokens: 1, TotalFiles: 1, PreviewURL: "/final"},
	)
	if *s.Preview != first {
		t.Errorf("preview must be immutable, got %+v", *s.Preview)
	}
	if !strings.Contains(first.HTML, "index.html") {
		t.Errorf("expected preview markup to list files, got %q", first.HTML)
	}
}

func TestReduce_PreviewFromCompletion(t *testing.T) {
	s := mustReduce(t, newTestState(), events.StreamComplete{TotalTokens: 4, TotalFiles: 0, PreviewURL: "/p"})
	if s.Preview == nil || s.Preview.URL != "/p" {
		t.Errorf("expected preview from stream_complete, got %+v", s.Preview)
	}
}

func TestReduce_StreamCompleteWithoutTotalsKeepsCounters(t *testing.T) {
	s := mustReduce(t, newTestState(),
		events.FileCreated{File: "a"},
		events.CodeChunk{File: "a", Chunk: "abc", Tokens: 3},
		events.StreamComplete{},
	)
	if s.Counters.StreamedTokens != 3 {
		t.Errorf("expected streamed tokens preserved, got %d", s.Counters.StreamedTokens)
	}
	if s.Counters.ProgressPercent != 100 {
		t.Errorf("expected 100%%, got %v", s.Counters.ProgressPercent)
	}
}

func TestReduce_StreamCompleteNeverLowersCounters(t *testing.T) {
	s := mustReduce(t, newTestState(),
		events.StreamStart{TotalFiles: 3, TotalTokens: 100},
		events.FileCreated{File: "a"},
		events.FileCreated{File: "b"},
		events.ProgressUpdate{StreamedTokens: 50, TotalTokens: 100, ProgressPercent: 40},
		events.FileUpdated{File: "a", CompletedFiles: 1},
		events.FileUpdated{File: "b", CompletedFiles: 2},
		events.StreamComplete{TotalTokens: 40, TotalFiles: 1},
	)

	want := Counters{TotalFiles: 3, CompletedFiles: 2, TotalTokens: 100, StreamedTokens: 50, ProgressPercent: 100, ExplicitPercent: true}
	if s.Counters != want {
		t.Errorf("counters = %+v, want %+v", s.Counters, want)
	}
	if s.Status() != StatusCompleted {
		t.Errorf("status = %s, want completed", s.Status())
	}
}

func TestReduce_StreamCompleteRaisesCounters(t *testing.T) {
	s := mustReduce(t, newTestState(),
		events.StreamStart{TotalFiles: 1, TotalTokens: 10},
		events.FileCreated{File: "a"},
		events.CodeChunk{File: "a", Chunk: "abc", Tokens: 3},
		events.StreamComplete{TotalTokens: 12, TotalFiles: 2},
	)
	c := s.Counters
	if c.TotalTokens != 12 || c.StreamedTokens != 12 || c.TotalFiles != 2 || c.CompletedFiles != 2 {
		t.Errorf("final totals should raise the counters, got %+v", c)
	}
}

func TestReduce_ErrorEvent(t *testing.T) {
	s := mustReduce(t, newTestState(), events.StreamError{Message: "  model overloaded "})
	if s.Status() != StatusError {
		t.Errorf("expected error status, got %s", s.Status())
	}
	if s.Error != "model overloaded" {
		t.Errorf("expected trimmed message, got %q", s.Error)
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	base := mustReduce(t, newTestState(),
		events.FileCreated{File: "a.ts"},
		events.CodeChunk{File: "a.ts", Chunk: "one", Tokens: 1},
		events.BuildProgress{Step: "install", Status: "running"},
	)

	left := mustReduce(t, base,
		events.CodeChunk{File: "a.ts", Chunk: "-left", Tokens: 1},
		events.BuildProgress{Step: "install", Status: "completed"},
		events.FileCreated{File: "left.ts"},
	)
	right := mustReduce(t, base, events.CodeChunk{File: "a.ts", Chunk: "-right", Tokens: 1})

	if f, _ := base.File("a.ts"); f.Content != "one" {
		t.Errorf("base mutated: %q", f.Content)
	}
	if base.BuildSteps()[0].Status != "running" {
		t.Errorf("base build step mutated: %+v", base.BuildSteps()[0])
	}
	if base.FileCount() != 1 {
		t.Errorf("base file list mutated: %d files", base.FileCount())
	}
	if f, _ := left.File("a.ts"); f.Content != "one-left" {
		t.Errorf("left branch: got %q", f.Content)
	}
	if f, _ := right.File("a.ts"); f.Content != "one-right" {
		t.Errorf("right branch: got %q", f.Content)
	}
}

func TestCancel_KeepsPartialContent(t *testing.T) {
	s := mustReduce(t, newTestState(),
		events.FileCreated{File: "a.ts"},
		events.CodeChunk{File: "a.ts", Chunk: "partial", Tokens: 2},
	)
	c := Cancel(s)

	if c.Status() != StatusCancelled {
		t.Errorf("expected cancelled, got %s", c.Status())
	}
	if f, _ := c.File("a.ts"); f.Content != "partial" {
		t.Errorf("expected partial content kept, got %q", f.Content)
	}
	if s.Status() != StatusStreaming {
		t.Errorf("Cancel must not modify its input, got %s", s.Status())
	}
}

func TestRestore(t *testing.T) {
	files := []FileProgress{
		{Path: "b.ts", Status: FileCompleted},
		{Path: "a.ts", Status: FileStreaming},
		{Path: "b.ts", Status: FilePending},
	}
	s := Restore(Session{ID: "x", Status: StatusCancelled}, Counters{StreamedTokens: 4}, files,
		[]BuildStep{{Step: "install", Status: "running"}}, &Preview{URL: "/p"}, "")

	paths := s.Paths()
	if len(paths) != 2 || paths[0] != "b.ts" || paths[1] != "a.ts" {
		t.Errorf("expected [b.ts a.ts], got %v", paths)
	}
	if s.Status() != StatusCancelled {
		t.Errorf("expected cancelled, got %s", s.Status())
	}
	if len(s.BuildSteps()) != 1 || s.Preview.URL != "/p" {
		t.Errorf("unexpected restored state: %+v", s)
	}
}

func TestClampPercent(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-5, 0},
		{0, 0},
		{42.5, 42.5},
		{100, 100},
		{250, 100},
	}
	for _, tt := range tests {
		if got := ClampPercent(tt.in); got != tt.want {
			t.Errorf("ClampPercent(%v): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus("preview_ready"); !ok || s != StatusPreviewReady {
		t.Errorf("expected preview_ready, got %q %v", s, ok)
	}
	if _, ok := ParseStatus("paused"); ok {
		t.Error("expected unknown status to be rejected")
	}
}

func TestRenderPreview_EscapesContent(t *testing.T) {
	s := mustReduce(t, New(Session{ID: "x", Prompt: "<script>alert(1)</script>"}),
		events.FileCreated{File: "a<b>.html", Language: "html"},
	)
	html := RenderPreview(s)
	if strings.Contains(html, "<script>alert") {
		t.Error("prompt must be escaped in preview markup")
	}
	if !strings.Contains(html, "a&lt;b&gt;.html") {
		t.Errorf("expected escaped file name, got %q", html)
	}
}
