package notices

import (
	"sync"
	"testing"
	"time"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notice
}

func (r *recordingNotifier) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func newTestCenter(now *time.Time, rec *recordingNotifier) *Center {
	return NewCenter(
		WithNotifier(rec),
		WithDedupWindow(10*time.Second),
		WithClock(func() time.Time { return *now }),
	)
}

func TestCenter_AddAssignsIDs(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCenter(&now, &recordingNotifier{})

	a, ok := c.Add(Notice{Kind: KindCancelFailed, SessionID: "s1", Message: "cancel failed"})
	if !ok {
		t.Fatal("expected first notice to be added")
	}
	b, _ := c.Add(Notice{Kind: KindProtocol, SessionID: "s1", Message: "chunk for unknown file"})
	if a.ID == 0 || b.ID <= a.ID {
		t.Errorf("expected increasing IDs, got %d then %d", a.ID, b.ID)
	}
	if !a.At.Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, a.At)
	}
	if a.Severity != SeverityWarning {
		t.Errorf("expected default severity warning, got %s", a.Severity)
	}
	if got := len(c.Active()); got != 2 {
		t.Errorf("expected 2 active notices, got %d", got)
	}
}

func TestCenter_Dedup(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCenter(&now, &recordingNotifier{})

	c.Warn(KindProtocol, "s1", "chunk 12 for unknown file a.ts")
	if _, ok := c.Add(Notice{Kind: KindProtocol, SessionID: "s1", Message: "Chunk 13 for  unknown file a.ts"}); ok {
		t.Error("expected near-identical notice to be suppressed")
	}
	if _, ok := c.Add(Notice{Kind: KindProtocol, SessionID: "s2", Message: "chunk 12 for unknown file a.ts"}); !ok {
		t.Error("different session should not be deduplicated")
	}

	now = now.Add(11 * time.Second)
	if _, ok := c.Add(Notice{Kind: KindProtocol, SessionID: "s1", Message: "chunk 14 for unknown file a.ts"}); !ok {
		t.Error("expected notice after dedup window to be added")
	}
}

func TestCenter_Dismiss(t *testing.T) {
	now := time.Now()
	c := newTestCenter(&now, &recordingNotifier{})
	a, _ := c.Add(Notice{Kind: KindCancelFailed, Message: "one"})
	c.Add(Notice{Kind: KindUnknownEvent, Message: "two"})

	if !c.Dismiss(a.ID) {
		t.Fatal("expected dismiss to succeed")
	}
	if c.Dismiss(a.ID) {
		t.Error("second dismiss should report false")
	}
	active := c.Active()
	if len(active) != 1 || active[0].Message != "two" {
		t.Errorf("unexpected active notices: %+v", active)
	}
	if !c.DismissLatest() || len(c.Active()) != 0 {
		t.Error("expected DismissLatest to clear the remaining notice")
	}
	if c.DismissLatest() {
		t.Error("DismissLatest on empty center should report false")
	}
}

func TestCenter_NotifierSkipsInfo(t *testing.T) {
	now := time.Now()
	rec := &recordingNotifier{}
	c := newTestCenter(&now, rec)

	c.Add(Notice{Kind: KindSessionCompleted, Severity: SeverityInfo, Message: "done"})
	c.Add(Notice{Kind: KindCancelFailed, Severity: SeverityWarning, Message: "cancel failed"})

	if len(rec.sent) != 1 || rec.sent[0].Kind != KindCancelFailed {
		t.Errorf("expected only the warning to reach the notifier, got %+v", rec.sent)
	}
}

func TestCenter_Listener(t *testing.T) {
	now := time.Now()
	c := newTestCenter(&now, &recordingNotifier{})
	var got []string
	c.OnNotice(func(n Notice) {
		got = append(got, n.Message)
		_ = c.Active() // must not deadlock
	})
	c.Warn(KindStreamError, "s", "boom")
	if len(got) != 1 || got[0] != "boom" {
		t.Errorf("expected listener call, got %v", got)
	}
}

func TestCenter_CapsActive(t *testing.T) {
	now := time.Now()
	c := newTestCenter(&now, &recordingNotifier{})
	for i := 0; i < maxActive+10; i++ {
		c.Add(Notice{Kind: KindProtocol, SessionID: string(rune('A'+i%26)) + string(rune('a'+i/26)), Message: "x"})
	}
	if got := len(c.Active()); got != maxActive {
		t.Errorf("expected %d active notices, got %d", maxActive, got)
	}
}

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"digits folded", "chunk 1 for a.ts", "chunk 99 for a.ts", true},
		{"case and spacing", "Cancel  Failed", "cancel failed", true},
		{"different text", "cancel failed", "unknown event", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeMessage(tt.a) == NormalizeMessage(tt.b)
			if got != tt.same {
				t.Errorf("NormalizeMessage(%q) == NormalizeMessage(%q): expected %v, got %v", tt.a, tt.b, tt.same, got)
			}
		})
	}
	if NormalizeMessage("   ") != "" {
		t.Error("expected empty hash for blank message")
	}
}

func TestTruncateSessionID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"sess-1234567890abcdef", "sess-1234567..."},
		{"sess-123", "sess-123"},
		{"123456789012", "123456789012"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := truncateSessionID(tc.input); got != tc.want {
			t.Errorf("truncateSessionID(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
