package events

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func makeEntry(session string, eventType Type, formatted string) FormattedEvent {
	return FormattedEvent{
		SessionID: session,
		EventType: eventType,
		Formatted: formatted,
		Timestamp: time.Now(),
	}
}

func formattedOf(evts []FormattedEvent) []string {
	out := make([]string, len(evts))
	for i, e := range evts {
		out[i] = e.Formatted
	}
	return out
}

func TestRingBuffer_Eviction(t *testing.T) {
	buf := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Add(makeEntry("s1", TypeFileCreated, fmt.Sprintf("event-%d", i)))
	}

	if buf.Len() != 3 {
		t.Fatalf("expected len=3 after eviction, got %d", buf.Len())
	}
	got := formattedOf(buf.ListAll())
	want := []string{"event-2", "event-3", "event-4"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListAll()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRingBuffer_Empty(t *testing.T) {
	buf := NewRingBuffer(5)
	if all := buf.ListAll(); all != nil {
		t.Errorf("expected nil for empty buffer, got %v", all)
	}
	if buf.Len() != 0 {
		t.Errorf("expected len=0, got %d", buf.Len())
	}
}

func TestRingBuffer_ZeroCapacity(t *testing.T) {
	buf := NewRingBuffer(0)
	if buf.Cap() != 1 {
		t.Errorf("expected cap=1 for zero capacity input, got %d", buf.Cap())
	}
	buf.Add(makeEntry("s1", TypeFileCreated, "a"))
	buf.Add(makeEntry("s1", TypeFileCreated, "b"))
	if got := formattedOf(buf.ListAll()); len(got) != 1 || got[0] != "b" {
		t.Errorf("ListAll() = %v, want [b]", got)
	}
}

func TestRingBuffer_CoalescesProgress(t *testing.T) {
	buf := NewRingBuffer(10)
	buf.Add(makeEntry("s1", TypeFileCreated, "created"))
	buf.Add(makeEntry("s1", TypeProgressUpdate, "10%"))
	buf.Add(makeEntry("s1", TypeProgressUpdate, "20%"))
	buf.Add(makeEntry("s1", TypeProgressUpdate, "30%"))
	buf.Add(makeEntry("s1", TypeFileUpdated, "done"))
	buf.Add(makeEntry("s1", TypeProgressUpdate, "40%"))

	got := formattedOf(buf.ListAll())
	want := []string{"created", "30%", "done", "40%"}
	if len(got) != len(want) {
		t.Fatalf("ListAll() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListAll()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRingBuffer_ProgressOfOtherSessionNotCoalesced(t *testing.T) {
	buf := NewRingBuffer(10)
	buf.Add(makeEntry("s1", TypeProgressUpdate, "s1 10%"))
	buf.Add(makeEntry("s2", TypeProgressUpdate, "s2 10%"))
	if buf.Len() != 2 {
		t.Errorf("expected 2 lines, got %d", buf.Len())
	}
}

func TestRingBuffer_CoalesceAcrossWrap(t *testing.T) {
	buf := NewRingBuffer(2)
	buf.Add(makeEntry("s1", TypeFileCreated, "a"))
	buf.Add(makeEntry("s1", TypeProgressUpdate, "1%"))
	buf.Add(makeEntry("s1", TypeFileCreated, "b"))
	buf.Add(makeEntry("s1", TypeProgressUpdate, "2%"))
	buf.Add(makeEntry("s1", TypeProgressUpdate, "3%"))

	got := formattedOf(buf.ListAll())
	if len(got) != 2 || got[0] != "b" || got[1] != "3%" {
		t.Errorf("ListAll() = %v, want [b 3%%]", got)
	}
}

func TestRingBuffer_Tail(t *testing.T) {
	buf := NewRingBuffer(10)
	for i := 0; i < 5; i++ {
		buf.Add(makeEntry("s1", TypeFileCreated, fmt.Sprintf("event-%d", i)))
	}

	tail := formattedOf(buf.Tail(2))
	if len(tail) != 2 || tail[0] != "event-3" || tail[1] != "event-4" {
		t.Errorf("Tail(2) = %v, want [event-3 event-4]", tail)
	}
	if n := len(buf.Tail(50)); n != 5 {
		t.Errorf("Tail(50) returned %d events, want 5", n)
	}
	if tail := buf.Tail(0); tail != nil {
		t.Errorf("Tail(0) = %v, want nil", tail)
	}
}

func TestRingBuffer_Reset(t *testing.T) {
	buf := NewRingBuffer(3)
	buf.Add(makeEntry("s1", TypeFileCreated, "a"))
	buf.Add(makeEntry("s1", TypeFileCreated, "b"))
	buf.Add(makeEntry("s1", TypeFileCreated, "c"))

	buf.Reset()
	if buf.Len() != 0 {
		t.Errorf("expected len=0 after reset, got %d", buf.Len())
	}

	buf.Add(makeEntry("s1", TypeFileCreated, "d"))
	if got := formattedOf(buf.ListAll()); len(got) != 1 || got[0] != "d" {
		t.Errorf("ListAll() after reset = %v, want [d]", got)
	}
}

func TestRingBuffer_ConcurrentAccess(t *testing.T) {
	buf := NewRingBuffer(100)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			buf.Add(makeEntry(fmt.Sprintf("s%d", n%5), TypeFileCreated, fmt.Sprintf("event-%d", n)))
		}(i)
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf.ListAll()
			buf.Tail(10)
		}()
	}
	wg.Wait()

	if buf.Len() != 50 {
		t.Errorf("expected len=50, got %d", buf.Len())
	}
}
