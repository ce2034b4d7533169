// Package backend is the REST client for the streaming code-generation API:
// creating, cancelling, listing and fetching sessions.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// APIPath is the mount point of the streaming code-generation resources.
const APIPath = "/api/streaming-codegen"

// APIRoot joins a server base URL and APIPath.
func APIRoot(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + APIPath
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	root       string
	token      string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(opts Options) *Client {
	c := &Client{
		root:       APIRoot(opts.BaseURL),
		token:      opts.Token,
		httpClient: opts.HTTPClient,
		log:        opts.Logger,
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// Root returns the API root this client talks to.
func (c *Client) Root() string { return c.root }

// CreateSession asks the backend to start a new session. The prompt may be
// empty.
func (c *Client) CreateSession(ctx context.Context, prompt string) (SessionRecord, error) {
	var rec SessionRecord
	if err := c.do(ctx, http.MethodPost, "/sessions", createRequest{Prompt: prompt}, &rec); err != nil {
		return SessionRecord{}, fmt.Errorf("creating session: %w", err)
	}
	if rec.ID == "" {
		return SessionRecord{}, errors.New("creating session: response has no id")
	}
	c.log.Info("session created", zap.String("session_id", rec.ID), zap.String("status", rec.Status))
	return rec, nil
}

// CancelSession asks the backend to stop generating for id.
func (c *Client) CancelSession(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/cancel", nil, nil); err != nil {
		return fmt.Errorf("cancelling session %s: %w", id, err)
	}
	c.log.Info("session cancel acknowledged", zap.String("session_id", id))
	return nil
}

// ListSessions returns the caller's recent sessions as the backend orders
// them.
func (c *Client) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	var recs []SessionRecord
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &recs); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return recs, nil
}

// GetSession fetches one session.
func (c *Client) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	var rec SessionRecord
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &rec); err != nil {
		return SessionRecord{}, fmt.Errorf("fetching session %s: %w", id, err)
	}
	return rec, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.root+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.log.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil {
		if eb.Error != "" {
			return eb.Error
		}
		if eb.Message != "" {
			return eb.Message
		}
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
