// Package stream consumes the server-sent event channel of one generation
// session. A Client owns at most one open channel at a time; opening a new
// one closes the previous channel first.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrIdleTimeout closes a channel that delivered nothing within the
	// configured idle window.
	ErrIdleTimeout = errors.New("stream idle timeout")

	// ErrStreamEnded reports that the server closed the connection.
	ErrStreamEnded = errors.New("stream ended by server")

	errClosedLocally = errors.New("stream closed locally")
)

// HTTPError is returned by Open when the server refuses the stream.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("stream request failed: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("stream request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// EventFunc receives one raw frame. Calls are sequential, in arrival order.
type EventFunc func(eventType string, data []byte)

// CloseFunc is called exactly once when a channel ends. reason is nil when the
// channel was closed locally.
type CloseFunc func(reason error)

type Options struct {
	// BaseURL is the streaming-codegen API root, e.g.
	// http://localhost:5000/api/streaming-codegen.
	BaseURL string
	Token   string

	// IdleTimeout of zero disables the watchdog.
	IdleTimeout time.Duration

	// HTTPClient must not set a Timeout, which would cut long streams.
	HTTPClient *http.Client
	Frames     FrameLogger
	Logger     *zap.Logger
}

type Client struct {
	baseURL     string
	token       string
	idleTimeout time.Duration
	httpClient  *http.Client
	frames      FrameLogger
	log         *zap.Logger

	mu      sync.Mutex
	current *Handle
}

func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		token:       opts.Token,
		idleTimeout: opts.IdleTimeout,
		httpClient:  opts.HTTPClient,
		frames:      opts.Frames,
		log:         opts.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.frames == nil {
		c.frames = NopFrameLogger{}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// Open connects to the event channel of sessionID. Any channel previously
// opened by this client is closed first. The returned handle stays open until
// Close is called, the server ends the stream, the idle watchdog fires or ctx
// is cancelled.
func (c *Client) Open(ctx context.Context, sessionID string, onEvent EventFunc, onClose CloseFunc) (*Handle, error) {
	if sessionID == "" {
		return nil, errors.New("stream: empty session id")
	}
	c.Close()

	streamCtx, cancel := context.WithCancelCause(ctx)
	endpoint := fmt.Sprintf("%s/sessions/%s/stream", c.baseURL, url.PathEscape(sessionID))
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel(err)
		return nil, fmt.Errorf("building stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel(err)
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel(errClosedLocally)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		c.log.Warn("unexpected stream content type", zap.String("session_id", sessionID), zap.String("content_type", ct))
	}

	h := &Handle{
		sessionID: sessionID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	h.release = func() {
		c.mu.Lock()
		if c.current == h {
			c.current = nil
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.current = h
	c.mu.Unlock()

	c.log.Info("stream opened", zap.String("session_id", sessionID))
	go c.read(streamCtx, h, resp.Body, onEvent, onClose)
	return h, nil
}

// Close closes the current channel, if any.
func (c *Client) Close() {
	c.mu.Lock()
	h := c.current
	c.current = nil
	c.mu.Unlock()
	if h != nil {
		h.Close()
	}
}

// Current returns the open handle, or nil.
func (c *Client) Current() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

type frame struct {
	event   string
	data    []string
	hasData bool
}

func (f *frame) reset() { *f = frame{} }

func (c *Client) read(ctx context.Context, h *Handle, body io.ReadCloser, onEvent EventFunc, onClose CloseFunc) {
	defer close(h.done)
	defer body.Close()

	var watchdog *time.Timer
	if c.idleTimeout > 0 {
		watchdog = time.AfterFunc(c.idleTimeout, func() { h.cancel(ErrIdleTimeout) })
		defer watchdog.Stop()
	}

	br := bufio.NewReaderSize(body, 64*1024)
	var f frame
	var readErr error
	for !h.Closed() {
		line, err := br.ReadString('\n')
		if len(line) > 0 && watchdog != nil {
			watchdog.Reset(c.idleTimeout)
		}
		if err != nil {
			// A trailing frame without its blank line is incomplete and
			// discarded.
			readErr = err
			break
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if f.hasData || f.event != "" {
				c.dispatch(h, f, onEvent)
			}
			f.reset()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.event = value
		case "data":
			f.data = append(f.data, value)
			f.hasData = true
		}
	}

	reason := closeReason(context.Cause(ctx), readErr, h.closedLocally())
	h.markClosed()
	h.release()

	if reason != nil {
		c.log.Warn("stream closed", zap.String("session_id", h.sessionID), zap.Error(reason))
	} else {
		c.log.Info("stream closed", zap.String("session_id", h.sessionID))
	}
	if onClose != nil {
		onClose(reason)
	}
}

func (c *Client) dispatch(h *Handle, f frame, onEvent EventFunc) {
	eventType := f.event
	if eventType == "" {
		eventType = "message"
	}
	data := []byte(strings.Join(f.data, "\n"))
	c.frames.LogFrame(h.sessionID, eventType, data)
	if onEvent != nil && !h.Closed() {
		onEvent(eventType, data)
	}
}

func closeReason(cause, readErr error, local bool) error {
	switch {
	case local:
		return nil
	case errors.Is(cause, ErrIdleTimeout):
		return ErrIdleTimeout
	case cause != nil:
		return cause
	case readErr == nil, errors.Is(readErr, io.EOF):
		return ErrStreamEnded
	default:
		return fmt.Errorf("reading stream: %w", readErr)
	}
}
