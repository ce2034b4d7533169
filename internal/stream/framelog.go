package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// FrameLogger records raw frames as received, before decoding.
// Implementations must be safe for concurrent use.
type FrameLogger interface {
	LogFrame(sessionID, eventType string, data []byte)
}

// NopFrameLogger discards all frames.
type NopFrameLogger struct{}

func (NopFrameLogger) LogFrame(string, string, []byte) {}

type frameEntry struct {
	Timestamp string          `json:"ts"`
	SessionID string          `json:"session"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Raw       string          `json:"raw,omitempty"`
}

// FileFrameLogger writes one JSON object per frame (JSONL). Payloads that
// are valid JSON are embedded as-is, anything else is kept as a string.
type FileFrameLogger struct {
	w   io.Writer
	mu  sync.Mutex
	now func() time.Time
}

func NewFileFrameLogger(w io.Writer) *FileFrameLogger {
	return &FileFrameLogger{w: w, now: time.Now}
}

func (l *FileFrameLogger) LogFrame(sessionID, eventType string, data []byte) {
	entry := frameEntry{
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		SessionID: sessionID,
		Event:     eventType,
	}
	if json.Valid(data) {
		entry.Data = json.RawMessage(data)
	} else {
		entry.Raw = string(data)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s\n", line)
}
