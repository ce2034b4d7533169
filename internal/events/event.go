// Package events defines the vocabulary of the code-generation event stream:
// a closed set of typed payloads, a tolerant decoder for the raw frames, and
// display formatting for the activity log.
package events

import (
	"errors"
	"fmt"
)

// Type is the wire name carried in the SSE "event:" field.
type Type string

const (
	TypeStreamStart    Type = "stream_start"
	TypeFileCreated    Type = "file_created"
	TypeCodeChunk      Type = "code_chunk"
	TypeFileUpdated    Type = "file_updated"
	TypeProgressUpdate Type = "progress_update"
	TypeBuildProgress  Type = "build_progress"
	TypePreviewReady   Type = "preview_ready"
	TypeStreamComplete Type = "stream_complete"
	TypeError          Type = "error"

	// Keep-alive frames some proxies and backends emit between events.
	TypeHeartbeat Type = "heartbeat"
	TypePing      Type = "ping"
)

// Event is one decoded stream event. The set of implementations is closed;
// consumers switch over the concrete types.
type Event interface {
	Kind() Type
	validate() error
}

type StreamStart struct {
	TotalFiles  int `json:"totalFiles"`
	TotalTokens int `json:"totalTokens"`
}

type FileCreated struct {
	File      string `json:"file"`
	Language  string `json:"language"`
	FileIndex int    `json:"fileIndex,omitempty"`
}

type CodeChunk struct {
	File   string `json:"file"`
	Chunk  string `json:"chunk"`
	Tokens int    `json:"tokens"`
}

type FileUpdated struct {
	File           string `json:"file"`
	CompletedFiles int    `json:"completedFiles"`
	TokenCount     int    `json:"tokenCount,omitempty"`
}

type ProgressUpdate struct {
	StreamedTokens  int     `json:"streamedTokens"`
	TotalTokens     int     `json:"totalTokens"`
	ProgressPercent float64 `json:"progressPercent"`
}

type BuildProgress struct {
	Step   string `json:"step"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
}

type PreviewReady struct {
	PreviewURL string `json:"previewUrl"`
}

type StreamComplete struct {
	TotalTokens int     `json:"totalTokens"`
	TotalFiles  int     `json:"totalFiles"`
	PreviewURL  string  `json:"previewUrl,omitempty"`
	DurationMS  float64 `json:"durationMs,omitempty"` // fractional on the wire
}

type StreamError struct {
	Message string `json:"message"`
}

func (StreamStart) Kind() Type    { return TypeStreamStart }
func (FileCreated) Kind() Type    { return TypeFileCreated }
func (CodeChunk) Kind() Type      { return TypeCodeChunk }
func (FileUpdated) Kind() Type    { return TypeFileUpdated }
func (ProgressUpdate) Kind() Type { return TypeProgressUpdate }
func (BuildProgress) Kind() Type  { return TypeBuildProgress }
func (PreviewReady) Kind() Type   { return TypePreviewReady }
func (StreamComplete) Kind() Type { return TypeStreamComplete }
func (StreamError) Kind() Type    { return TypeError }

var errMissingField = errors.New("missing required field")

func (e StreamStart) validate() error {
	if e.TotalFiles < 0 || e.TotalTokens < 0 {
		return fmt.Errorf("negative totals (files=%d tokens=%d)", e.TotalFiles, e.TotalTokens)
	}
	return nil
}

func (e FileCreated) validate() error {
	if e.File == "" {
		return fmt.Errorf("%w: file", errMissingField)
	}
	return nil
}

func (e CodeChunk) validate() error {
	if e.File == "" {
		return fmt.Errorf("%w: file", errMissingField)
	}
	if e.Tokens < 0 {
		return fmt.Errorf("negative tokens %d", e.Tokens)
	}
	return nil
}

func (e FileUpdated) validate() error {
	if e.File == "" {
		return fmt.Errorf("%w: file", errMissingField)
	}
	return nil
}

func (e ProgressUpdate) validate() error {
	if e.StreamedTokens < 0 || e.TotalTokens < 0 {
		return fmt.Errorf("negative counters (streamed=%d total=%d)", e.StreamedTokens, e.TotalTokens)
	}
	return nil
}

func (e BuildProgress) validate() error {
	if e.Step == "" {
		return fmt.Errorf("%w: step", errMissingField)
	}
	return nil
}

func (e PreviewReady) validate() error { return nil }

func (e StreamComplete) validate() error {
	if e.TotalFiles < 0 || e.TotalTokens < 0 {
		return fmt.Errorf("negative totals (files=%d tokens=%d)", e.TotalFiles, e.TotalTokens)
	}
	return nil
}

func (e StreamError) validate() error { return nil }
