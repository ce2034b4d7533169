package notices

import (
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultDedupWindow = 30 * time.Second
	maxActive          = 50
)

// Listener is called after a notice is added, outside the lock.
type Listener func(n Notice)

// Center holds the active notices. Adding a notice equal to one fired
// within the dedup window is a no-op.
type Center struct {
	mu          sync.Mutex
	active      []Notice
	nextID      uint64
	lastFired   map[string]time.Time
	dedupWindow time.Duration
	notifier    Notifier
	listeners   []Listener
	log         *zap.Logger
	now         func() time.Time
}

type Option func(*Center)

func WithNotifier(n Notifier) Option { return func(c *Center) { c.notifier = n } }

func WithLogger(l *zap.Logger) Option { return func(c *Center) { c.log = l } }

func WithDedupWindow(d time.Duration) Option { return func(c *Center) { c.dedupWindow = d } }

func WithClock(now func() time.Time) Option { return func(c *Center) { c.now = now } }

func NewCenter(opts ...Option) *Center {
	c := &Center{
		lastFired:   make(map[string]time.Time),
		dedupWindow: DefaultDedupWindow,
		notifier:    NopNotifier(),
		log:         zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Center) OnNotice(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Add records n and returns it with ID and timestamp assigned. The bool is
// false when n was suppressed as a duplicate.
func (c *Center) Add(n Notice) (Notice, bool) {
	if n.Severity == "" {
		n.Severity = SeverityWarning
	}

	c.mu.Lock()
	now := c.now()
	key := n.dedupKey()
	if last, ok := c.lastFired[key]; ok && now.Sub(last) < c.dedupWindow {
		c.mu.Unlock()
		return Notice{}, false
	}
	c.lastFired[key] = now
	c.nextID++
	n.ID = c.nextID
	if n.At.IsZero() {
		n.At = now
	}
	c.active = append(c.active, n)
	if len(c.active) > maxActive {
		c.active = slices.Clone(c.active[len(c.active)-maxActive:])
	}
	listeners := c.listeners
	c.mu.Unlock()

	c.log.Warn("notice",
		zap.String("kind", n.Kind),
		zap.String("severity", n.Severity),
		zap.String("session_id", n.SessionID),
		zap.String("message", n.Message),
	)
	if n.Severity != SeverityInfo {
		c.notifier.Notify(n)
	}
	for _, fn := range listeners {
		fn(n)
	}
	return n, true
}

// Warn is shorthand for a warning notice.
func (c *Center) Warn(kind, sessionID, msg string) {
	c.Add(Notice{Kind: kind, Severity: SeverityWarning, SessionID: sessionID, Message: msg})
}

// Dismiss removes the notice with id. It reports whether one was removed.
func (c *Center) Dismiss(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.active {
		if n.ID == id {
			c.active = slices.Delete(c.active, i, i+1)
			return true
		}
	}
	return false
}

// DismissLatest removes the most recent notice.
func (c *Center) DismissLatest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.active) == 0 {
		return false
	}
	c.active = c.active[:len(c.active)-1]
	return true
}

// Active returns the notices not yet dismissed, oldest first.
func (c *Center) Active() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.active)
}

// Clear dismisses everything and forgets dedup history.
func (c *Center) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = nil
	c.lastFired = make(map[string]time.Time)
}
