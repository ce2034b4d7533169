package events

import "sync"

// RingBuffer is the bounded activity log of a session. When full, the oldest
// line is dropped. Consecutive progress lines of one session collapse into
// the latest, so a chatty stream does not push the interesting lines out.
// All methods are safe for concurrent use.
type RingBuffer struct {
	mu    sync.RWMutex
	items []FormattedEvent
	next  int // slot the next line is written to
	full  bool
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{items: make([]FormattedEvent, capacity)}
}

func coalesces(t Type) bool {
	return t == TypeProgressUpdate
}

func (rb *RingBuffer) Add(e FormattedEvent) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if coalesces(e.EventType) && rb.lenLocked() > 0 {
		last := (rb.next - 1 + len(rb.items)) % len(rb.items)
		prev := rb.items[last]
		if prev.EventType == e.EventType && prev.SessionID == e.SessionID {
			rb.items[last] = e
			return
		}
	}

	rb.items[rb.next] = e
	rb.next = (rb.next + 1) % len(rb.items)
	if rb.next == 0 {
		rb.full = true
	}
}

// ListAll returns every line, oldest first.
func (rb *RingBuffer) ListAll() []FormattedEvent {
	return rb.Tail(-1)
}

// Tail returns at most n of the newest lines, oldest first. A negative n
// returns everything.
func (rb *RingBuffer) Tail(n int) []FormattedEvent {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	count := rb.lenLocked()
	if n < 0 || n > count {
		n = count
	}
	if n == 0 {
		return nil
	}
	out := make([]FormattedEvent, n)
	start := rb.next - n
	for i := range out {
		out[i] = rb.items[(start+i+len(rb.items))%len(rb.items)]
	}
	return out
}

func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	clear(rb.items)
	rb.next = 0
	rb.full = false
}

func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.lenLocked()
}

func (rb *RingBuffer) Cap() int {
	return len(rb.items)
}

func (rb *RingBuffer) lenLocked() int {
	if rb.full {
		return len(rb.items)
	}
	return rb.next
}
