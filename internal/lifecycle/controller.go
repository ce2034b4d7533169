// Package lifecycle drives one live session at a time: it creates or attaches
// to a session, feeds the event stream through the reducer, and owns every
// path that closes the stream (completion, failure, cancellation, teardown).
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/genwatch/internal/events"
	"github.com/nixlim/genwatch/internal/notices"
	"github.com/nixlim/genwatch/internal/progress"
	"github.com/nixlim/genwatch/internal/session"
	"github.com/nixlim/genwatch/internal/stream"
)

// ErrNoActiveStream is returned by Cancel when no stream is open for a live
// session.
var ErrNoActiveStream = errors.New("no active stream")

// Registry creates sessions and keeps their snapshots.
type Registry interface {
	Start(ctx context.Context, prompt string) (session.Session, error)
	Record(st session.State)
}

// Canceller tells the backend to stop a session.
type Canceller interface {
	CancelSession(ctx context.Context, id string) error
}

// Streamer opens the event channel of a session.
type Streamer interface {
	Open(ctx context.Context, sessionID string, onEvent stream.EventFunc, onClose stream.CloseFunc) (*stream.Handle, error)
}

// EventListener is called after each applied event, outside the controller
// lock, in arrival order.
type EventListener func(fe events.FormattedEvent, st session.State)

type Options struct {
	ActivitySize  int
	ETAMinPercent float64
	Notices       *notices.Center
	Logger        *zap.Logger
	Now           func() time.Time
}

// Controller owns the active session's state. All methods are safe for
// concurrent use; stream callbacks and user actions serialize on one mutex.
type Controller struct {
	reg      Registry
	api      Canceller
	streams  Streamer
	notices  *notices.Center
	est      *progress.Estimator
	activity *events.RingBuffer
	log      *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	gen       uint64
	state     session.State
	active    bool
	handle    *stream.Handle
	startedAt time.Time
	terminal  chan struct{}
	listeners []EventListener
}

func New(reg Registry, api Canceller, streams Streamer, opts Options) *Controller {
	if opts.ActivitySize <= 0 {
		opts.ActivitySize = 500
	}
	if opts.ETAMinPercent <= 0 {
		opts.ETAMinPercent = progress.DefaultMinPercent
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notices == nil {
		opts.Notices = notices.NewCenter(notices.WithLogger(opts.Logger))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		reg:      reg,
		api:      api,
		streams:  streams,
		notices:  opts.Notices,
		est:      progress.NewEstimator(opts.ETAMinPercent),
		activity: events.NewRingBuffer(opts.ActivitySize),
		log:      opts.Logger.Named("lifecycle"),
		now:      opts.Now,
		terminal: closedChan(),
	}
}

func (c *Controller) OnEvent(fn EventListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) Notices() *notices.Center { return c.notices }

// Start creates a session and opens its stream. A creation failure is
// returned before anything changes locally. ctx bounds the stream lifetime.
func (c *Controller) Start(ctx context.Context, prompt string) (session.Session, error) {
	s, err := c.reg.Start(ctx, prompt)
	if err != nil {
		c.log.Error("creating session failed", zap.Error(err))
		return session.Session{}, fmt.Errorf("starting session: %w", err)
	}
	// The backend cancels the caller's other live sessions on create.
	if err := c.run(ctx, session.New(s), true, c.now()); err != nil {
		return s, err
	}
	return s, nil
}

// Attach resumes watching an existing session from st. A terminal st is
// shown as is without opening a stream.
func (c *Controller) Attach(ctx context.Context, st session.State) error {
	if st.Status().Terminal() {
		c.mu.Lock()
		prev := c.replaceLocked(st, false, resumedAt(st, c.now()))
		close(c.terminal)
		c.mu.Unlock()
		c.releasePrevious(prev)
		return nil
	}
	return c.run(ctx, st, false, resumedAt(st, c.now()))
}

// resumedAt is the start time used for the ETA of an attached session: its
// creation time, so elapsed time covers what streamed before the attach.
func resumedAt(st session.State, now time.Time) time.Time {
	created := st.Session.CreatedAt
	if created.IsZero() || created.After(now) {
		return now
	}
	return created
}

type previous struct {
	handle *stream.Handle
	state  session.State
	record bool
}

// replaceLocked installs st as the active session and returns what needs
// releasing from the one it replaces. Callers hold c.mu.
func (c *Controller) replaceLocked(st session.State, cancelPrev bool, started time.Time) previous {
	prev := previous{handle: c.handle}
	if c.active && !c.state.Status().Terminal() {
		if cancelPrev {
			prev.state = session.Cancel(c.state)
		} else {
			prev.state = c.state
		}
		prev.record = true
	}

	c.gen++
	c.state = st
	c.active = true
	c.handle = nil
	c.startedAt = started
	c.terminal = make(chan struct{})
	c.est.Reset()
	c.activity.Reset()
	return prev
}

func (c *Controller) releasePrevious(prev previous) {
	if prev.handle != nil {
		prev.handle.Close()
	}
	if prev.record {
		c.reg.Record(prev.state)
	}
}

func (c *Controller) run(ctx context.Context, st session.State, cancelPrev bool, started time.Time) error {
	c.mu.Lock()
	prev := c.replaceLocked(st, cancelPrev, started)
	gen := c.gen
	c.mu.Unlock()
	c.releasePrevious(prev)

	h, err := c.streams.Open(ctx, st.ID(), c.eventFunc(gen), c.closeFunc(gen))
	if err != nil {
		c.log.Error("opening stream failed", zap.String("session_id", st.ID()), zap.Error(err))
		c.failIfCurrent(gen, "Failed to open event stream: "+err.Error())
		return fmt.Errorf("opening stream: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen || c.state.Status().Terminal() {
		// Replaced, cancelled or already finished while Open was in flight.
		c.mu.Unlock()
		h.Close()
		return nil
	}
	c.handle = h
	c.mu.Unlock()
	return nil
}

func (c *Controller) eventFunc(gen uint64) stream.EventFunc {
	return func(eventType string, data []byte) {
		c.handleFrame(gen, eventType, data)
	}
}

func (c *Controller) closeFunc(gen uint64) stream.CloseFunc {
	return func(reason error) {
		c.handleClose(gen, reason)
	}
}

func (c *Controller) handleFrame(gen uint64, eventType string, data []byte) {
	ev, decodeErr := events.Decode(eventType, data)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	id := c.state.ID()

	switch {
	case decodeErr == nil:
	case errors.Is(decodeErr, events.ErrKeepAlive):
		c.mu.Unlock()
		return
	case errors.Is(decodeErr, events.ErrUnknownEventType):
		c.mu.Unlock()
		c.log.Warn("unknown event type", zap.String("session_id", id), zap.String("type", eventType))
		c.notices.Warn(notices.KindUnknownEvent, id, fmt.Sprintf("Ignored unknown event type %q", eventType))
		return
	case errors.Is(decodeErr, events.ErrInvalidEvent):
		c.mu.Unlock()
		c.log.Warn("protocol violation", zap.String("session_id", id), zap.String("type", eventType), zap.Error(decodeErr))
		c.notices.Warn(notices.KindProtocol, id, decodeErr.Error())
		return
	default:
		// A payload that cannot be decoded is a transport failure.
		c.mu.Unlock()
		c.log.Error("malformed event payload", zap.String("session_id", id), zap.String("type", eventType), zap.Error(decodeErr))
		c.failIfCurrent(gen, decodeErr.Error())
		return
	}

	next, err := session.Reduce(c.state, ev)
	switch {
	case err == nil:
		c.state = next
	case errors.Is(err, session.ErrTerminal):
		c.mu.Unlock()
		c.log.Debug("event after terminal status dropped", zap.String("session_id", id), zap.String("type", eventType))
		return
	case errors.Is(err, session.ErrUnknownFile), errors.Is(err, session.ErrFileCompleted):
		c.mu.Unlock()
		c.log.Warn("protocol violation", zap.String("session_id", id), zap.Error(err))
		c.notices.Warn(notices.KindProtocol, id, err.Error())
		return
	default:
		c.mu.Unlock()
		c.log.Error("reducer rejected event", zap.String("session_id", id), zap.Error(err))
		return
	}

	fe := events.Format(id, ev, c.now())
	if ev.Kind() != events.TypeCodeChunk {
		c.activity.Add(fe)
	}
	st := c.state
	terminal := st.Status().Terminal()
	var h *stream.Handle
	if terminal {
		h = c.handle
		c.handle = nil
		close(c.terminal)
	}
	listeners := c.listeners
	c.mu.Unlock()

	if terminal {
		if h != nil {
			h.Close()
		}
		c.finish(st)
	} else if checkpoint(ev.Kind()) {
		c.reg.Record(st)
	}
	for _, fn := range listeners {
		fn(fe, st)
	}
}

// checkpoint reports whether a snapshot is worth recording after an event of
// type t. Chunks are too frequent.
func checkpoint(t events.Type) bool {
	switch t {
	case events.TypeStreamStart, events.TypeFileUpdated, events.TypeBuildProgress, events.TypePreviewReady:
		return true
	}
	return false
}

func (c *Controller) finish(st session.State) {
	c.reg.Record(st)
	switch st.Status() {
	case session.StatusCompleted:
		c.log.Info("session completed", zap.String("session_id", st.ID()),
			zap.Int("files", st.Counters.TotalFiles), zap.Int("tokens", st.Counters.StreamedTokens))
		c.notices.Add(notices.Notice{
			Kind:      notices.KindSessionCompleted,
			Severity:  notices.SeverityInfo,
			SessionID: st.ID(),
			Message:   fmt.Sprintf("Generated %d files", st.FileCount()),
		})
	case session.StatusError:
		c.log.Warn("session failed", zap.String("session_id", st.ID()), zap.String("error", st.Error))
		c.notices.Add(notices.Notice{
			Kind:      notices.KindStreamError,
			Severity:  notices.SeverityCritical,
			SessionID: st.ID(),
			Message:   st.Error,
		})
	}
}

func (c *Controller) handleClose(gen uint64, reason error) {
	if reason == nil {
		return
	}
	c.failIfCurrent(gen, closeMessage(reason))
}

// failIfCurrent fails the session of generation gen unless it is already
// terminal or has been replaced.
func (c *Controller) failIfCurrent(gen uint64, msg string) {
	c.mu.Lock()
	if c.gen != gen || c.state.Status().Terminal() {
		c.mu.Unlock()
		return
	}
	c.state = session.Fail(c.state, msg)
	st := c.state
	h := c.handle
	c.handle = nil
	c.activity.Add(events.Note(st.ID(), "✗ "+st.Error, events.Failed(), c.now()))
	close(c.terminal)
	c.mu.Unlock()

	if h != nil {
		h.Close()
	}
	c.finish(st)
}

func closeMessage(reason error) string {
	switch {
	case errors.Is(reason, stream.ErrIdleTimeout):
		return "No events received from the server; the stream timed out."
	case errors.Is(reason, stream.ErrStreamEnded):
		return "The server closed the stream before the session finished."
	case errors.Is(reason, context.Canceled):
		return "Stream cancelled."
	}
	return reason.Error()
}

// Cancel closes the stream, marks the session cancelled at once, and then
// asks the backend to stop. A failed backend request leaves the local state
// cancelled and raises a dismissible notice.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if c.handle == nil || c.state.Status().Terminal() {
		c.mu.Unlock()
		return ErrNoActiveStream
	}
	st := c.cancelLocked()
	c.mu.Unlock()

	c.afterCancel(ctx, st)
	return nil
}

// cancelLocked closes the handle and moves the session to cancelled.
// Callers hold c.mu.
func (c *Controller) cancelLocked() session.State {
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
	c.state = session.Cancel(c.state)
	c.activity.Add(events.Note(c.state.ID(), "✗ Cancelled", events.Failed(), c.now()))
	close(c.terminal)
	return c.state
}

func (c *Controller) afterCancel(ctx context.Context, st session.State) {
	c.reg.Record(st)
	c.log.Info("session cancelled", zap.String("session_id", st.ID()))

	if err := c.api.CancelSession(ctx, st.ID()); err != nil {
		c.log.Error("cancel request failed", zap.String("session_id", st.ID()), zap.Error(err))
		c.notices.Warn(notices.KindCancelFailed, st.ID(),
			"The session was stopped locally, but the server did not confirm the cancellation: "+err.Error())
	}
}

// Close tears the controller down: a live session is cancelled exactly as
// Cancel would, otherwise the stream (if any) is just released. Calling it
// again is a no-op.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	if !c.state.Status().Terminal() {
		st := c.cancelLocked()
		c.mu.Unlock()
		c.afterCancel(ctx, st)
		return nil
	}
	h := c.handle
	c.handle = nil
	c.mu.Unlock()
	if h != nil {
		h.Close()
	}
	return nil
}

// Wait blocks until the active session reaches a terminal status or ctx
// ends, and returns the latest state.
func (c *Controller) Wait(ctx context.Context) (session.State, error) {
	c.mu.Lock()
	done := c.terminal
	c.mu.Unlock()

	select {
	case <-done:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// State returns the current session state. States are immutable values, so
// the result is safe to keep.
func (c *Controller) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
