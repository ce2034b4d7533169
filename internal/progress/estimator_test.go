package progress

import (
	"math"
	"testing"
	"time"

	"github.com/nixlim/genwatch/internal/events"
	"github.com/nixlim/genwatch/internal/session"
)

func stateWith(t *testing.T, id string, evs ...events.Event) session.State {
	t.Helper()
	s := session.New(session.Session{ID: id})
	for _, ev := range evs {
		var err error
		if s, err = session.Reduce(s, ev); err != nil {
			t.Fatalf("Reduce(%s): %v", ev.Kind(), err)
		}
	}
	return s
}

func TestPercent_Sources(t *testing.T) {
	tests := []struct {
		name    string
		c       session.Counters
		status  session.Status
		want    float64
		wantSrc Source
	}{
		{"nothing known", session.Counters{}, session.StatusStreaming, 0, SourceNone},
		{"files only", session.Counters{TotalFiles: 4, CompletedFiles: 1}, session.StatusStreaming, 25, SourceFiles},
		{"tokens preferred", session.Counters{TotalFiles: 4, CompletedFiles: 1, TotalTokens: 200, StreamedTokens: 150}, session.StatusStreaming, 75, SourceTokens},
		{"explicit wins", session.Counters{TotalTokens: 200, StreamedTokens: 150, ProgressPercent: 40, ExplicitPercent: true}, session.StatusStreaming, 40, SourceExplicit},
		{"tokens overshoot clamped", session.Counters{TotalTokens: 100, StreamedTokens: 130}, session.StatusStreaming, 100, SourceTokens},
		{"completed is 100", session.Counters{TotalTokens: 100, StreamedTokens: 10}, session.StatusCompleted, 100, SourceFinal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, src := Percent(tt.c, tt.status)
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if src != tt.wantSrc {
				t.Errorf("expected source %s, got %s", tt.wantSrc, src)
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		percent float64
		want    time.Duration
		ok      bool
	}{
		{"below threshold", 10 * time.Second, 5, 0, false},
		{"zero elapsed", 0, 50, 0, false},
		{"quarter done", 30 * time.Second, 25, 90 * time.Second, true},
		{"half done", 40 * time.Second, 50, 40 * time.Second, true},
		{"done", 40 * time.Second, 100, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Remaining(tt.elapsed, tt.percent, DefaultMinPercent)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{60 * time.Second, "60s"},
		{90 * time.Second, "1m 30s"},
		{125*time.Second + 400*time.Millisecond, "2m 5s"},
		{-3 * time.Second, "0s"},
	}
	for _, tt := range tests {
		if got := FormatRemaining(tt.in); got != tt.want {
			t.Errorf("FormatRemaining(%v): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestEstimator_ETAOnlyAboveThreshold(t *testing.T) {
	e := NewEstimator(DefaultMinPercent)
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	early := stateWith(t, "s1", events.ProgressUpdate{StreamedTokens: 4, TotalTokens: 100, ProgressPercent: 4})
	est := e.ComputeWithTime(early, start, start.Add(2*time.Second))
	if est.HasETA {
		t.Errorf("expected no ETA at 4%%, got %v", est.Remaining)
	}

	later := stateWith(t, "s1", events.ProgressUpdate{StreamedTokens: 20, TotalTokens: 100, ProgressPercent: 20})
	est = e.ComputeWithTime(later, start, start.Add(10*time.Second))
	if !est.HasETA {
		t.Fatal("expected ETA at 20%")
	}
	if est.Remaining != 40*time.Second {
		t.Errorf("expected 40s remaining, got %v", est.Remaining)
	}
	if est.Elapsed != 10*time.Second {
		t.Errorf("expected 10s elapsed, got %v", est.Elapsed)
	}
}

func TestEstimator_NoETAWhenTerminal(t *testing.T) {
	e := NewEstimator(DefaultMinPercent)
	start := time.Now().Add(-time.Minute)

	s := session.Cancel(stateWith(t, "s1", events.ProgressUpdate{StreamedTokens: 50, TotalTokens: 100, ProgressPercent: 50}))
	est := e.ComputeWithTime(s, start, time.Now())
	if est.HasETA {
		t.Error("expected no ETA for a cancelled session")
	}
	if est.Percent != 50 {
		t.Errorf("expected percent to stay at 50, got %v", est.Percent)
	}
}

func TestEstimator_HighWaterMark(t *testing.T) {
	e := NewEstimator(DefaultMinPercent)
	now := time.Now()

	// Fallback by tokens reports 60%, then the first explicit report says 40%.
	byTokens := stateWith(t, "s1", events.StreamStart{TotalFiles: 2, TotalTokens: 100},
		events.FileCreated{File: "a"}, events.CodeChunk{File: "a", Chunk: "x", Tokens: 60})
	if est := e.ComputeWithTime(byTokens, now, now); est.Percent != 60 {
		t.Fatalf("expected 60, got %v", est.Percent)
	}

	explicit, _ := session.Reduce(byTokens, events.ProgressUpdate{StreamedTokens: 60, TotalTokens: 150, ProgressPercent: 40})
	if est := e.ComputeWithTime(explicit, now, now.Add(time.Second)); est.Percent != 60 {
		t.Errorf("displayed percent must not decrease, got %v", est.Percent)
	}

	other := stateWith(t, "s2")
	if est := e.ComputeWithTime(other, now, now); est.Percent != 0 {
		t.Errorf("new session must reset the high-water mark, got %v", est.Percent)
	}
}

func TestEstimator_TokenVelocity(t *testing.T) {
	e := NewEstimator(DefaultMinPercent)
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i <= 10; i++ {
		s := stateWith(t, "s1", events.ProgressUpdate{StreamedTokens: i * 10, TotalTokens: 1000, ProgressPercent: float64(i)})
		e.ComputeWithTime(s, start, start.Add(time.Duration(i)*2*time.Second))
	}

	s := stateWith(t, "s1", events.ProgressUpdate{StreamedTokens: 100, TotalTokens: 1000, ProgressPercent: 10})
	est := e.ComputeWithTime(s, start, start.Add(20*time.Second))

	// 100 tokens over 20 seconds.
	if math.Abs(est.TokenVelocity-300) > 1e-6 {
		t.Errorf("expected 300 tokens/min, got %v", est.TokenVelocity)
	}
}

func TestSource_String(t *testing.T) {
	if SourceExplicit.String() != "explicit" || SourceNone.String() != "none" {
		t.Error("unexpected source names")
	}
	if TrendUp.String() != "up" || TrendFlat.String() != "flat" {
		t.Error("unexpected trend names")
	}
}
