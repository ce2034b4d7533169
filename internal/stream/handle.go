package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handle is one open event channel.
type Handle struct {
	sessionID string
	cancel    context.CancelCauseFunc
	release   func()
	done      chan struct{}

	closeOnce sync.Once
	local     atomic.Bool
	closed    atomic.Bool
}

func (h *Handle) SessionID() string { return h.sessionID }

// Close stops delivery and releases the connection. It is idempotent, does
// not block, and may be called from inside an EventFunc. A frame already
// being dispatched finishes; no later frame is dispatched.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.local.Store(true)
		h.closed.Store(true)
		h.cancel(errClosedLocally)
	})
}

// Closed reports whether the channel has been closed for any reason.
func (h *Handle) Closed() bool { return h.closed.Load() }

// Done is closed once the reader has exited and CloseFunc has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) closedLocally() bool { return h.local.Load() }

func (h *Handle) markClosed() { h.closed.Store(true) }
