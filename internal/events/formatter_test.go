package events

import (
	"testing"
	"time"
)

func TestFormat_Lines(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name        string
		ev          Event
		want        string
		wantSuccess *bool
	}{
		{
			name: "stream_start",
			ev:   StreamStart{TotalFiles: 4, TotalTokens: 1200},
			want: "[sess-abc] Stream started: 4 files, ~1.2k tokens",
		},
		{
			name: "file_created",
			ev:   FileCreated{File: "src/App.tsx", Language: "typescript"},
			want: "[sess-abc] + src/App.tsx (typescript)",
		},
		{
			name: "file_created without language",
			ev:   FileCreated{File: "README"},
			want: "[sess-abc] + README (text)",
		},
		{
			name:        "file_updated",
			ev:          FileUpdated{File: "a.ts", CompletedFiles: 2},
			want:        "[sess-abc] a.ts ✓ (2 files complete)",
			wantSuccess: boolPtr(true),
		},
		{
			name: "progress_update",
			ev:   ProgressUpdate{StreamedTokens: 540, TotalTokens: 1200, ProgressPercent: 45},
			want: "[sess-abc] Progress 45% (540/1.2k tokens)",
		},
		{
			name: "build running",
			ev:   BuildProgress{Step: "install", Status: "running", Output: "npm install\nadded 12 packages"},
			want: "[sess-abc] Build install running: npm install",
		},
		{
			name:        "build completed",
			ev:          BuildProgress{Step: "build", Status: "completed"},
			want:        "[sess-abc] Build build completed",
			wantSuccess: boolPtr(true),
		},
		{
			name:        "build failed",
			ev:          BuildProgress{Step: "build", Status: "failed"},
			want:        "[sess-abc] Build build failed",
			wantSuccess: boolPtr(false),
		},
		{
			name:        "stream_complete",
			ev:          StreamComplete{TotalFiles: 2, TotalTokens: 7, DurationMS: 1500},
			want:        "[sess-abc] Complete: 2 files, 7 tokens in 1.5s",
			wantSuccess: boolPtr(true),
		},
		{
			name:        "error",
			ev:          StreamError{Message: "boom"},
			want:        "[sess-abc] ✗ Error: boom",
			wantSuccess: boolPtr(false),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := Format("sess-abc", tt.ev, at)
			if fe.Formatted != tt.want {
				t.Errorf("expected %q, got %q", tt.want, fe.Formatted)
			}
			if fe.EventType != tt.ev.Kind() {
				t.Errorf("expected EventType=%q, got %q", tt.ev.Kind(), fe.EventType)
			}
			if !fe.Timestamp.Equal(at) {
				t.Errorf("expected timestamp %v, got %v", at, fe.Timestamp)
			}
			switch {
			case tt.wantSuccess == nil && fe.Success != nil:
				t.Errorf("expected nil Success, got %v", *fe.Success)
			case tt.wantSuccess != nil && fe.Success == nil:
				t.Errorf("expected Success=%v, got nil", *tt.wantSuccess)
			case tt.wantSuccess != nil && *fe.Success != *tt.wantSuccess:
				t.Errorf("expected Success=%v, got %v", *tt.wantSuccess, *fe.Success)
			}
		})
	}
}

func TestFormat_ShortensSessionID(t *testing.T) {
	fe := Format("0f8fad5b-d9cb-469f-a165-70867728950e", PreviewReady{PreviewURL: "/p"}, time.Time{})
	if fe.Formatted != "[0f8fad5b] Preview ready: /p" {
		t.Errorf("unexpected line %q", fe.Formatted)
	}
	if fe.Timestamp.IsZero() {
		t.Error("expected zero timestamp to default to now")
	}
}

func TestFormatTokenCount(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.0k"},
		{2100, "2.1k"},
	}
	for _, tt := range tests {
		if got := FormatTokenCount(tt.in); got != tt.want {
			t.Errorf("FormatTokenCount(%d): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestNote(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fe := Note("abcdef123456", "✗ Cancelled", Failed(), at)
	if fe.EventType != TypeNote {
		t.Errorf("expected note type, got %s", fe.EventType)
	}
	if fe.Formatted != "[abcdef12] ✗ Cancelled" {
		t.Errorf("unexpected line %q", fe.Formatted)
	}
	if fe.Success == nil || *fe.Success {
		t.Error("expected Success=false")
	}
	if !fe.Timestamp.Equal(at) {
		t.Errorf("expected timestamp %v, got %v", at, fe.Timestamp)
	}
}
