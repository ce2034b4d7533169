package session

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nixlim/genwatch/internal/events"
)

var (
	// ErrTerminal is returned when an event arrives after the session reached
	// completed, cancelled or error. The event has no effect.
	ErrTerminal = errors.New("session is terminal")

	// ErrUnknownFile is returned for a chunk or update naming a file that was
	// never created. The event is dropped.
	ErrUnknownFile = errors.New("event for unknown file")

	// ErrFileCompleted is returned for a chunk targeting a completed file.
	ErrFileCompleted = errors.New("chunk for completed file")
)

// Reduce folds one event into prev and returns the resulting state. prev is
// never modified. When an error is returned the state is prev unchanged.
func Reduce(prev State, ev events.Event) (State, error) {
	if prev.Session.Status.Terminal() {
		return prev, fmt.Errorf("%w: %s after %s", ErrTerminal, ev.Kind(), prev.Session.Status)
	}

	switch e := ev.(type) {
	case events.StreamStart:
		next := prev.clone()
		next.Counters.TotalFiles = e.TotalFiles
		next.Counters.TotalTokens = max(next.Counters.TotalTokens, e.TotalTokens)
		next.begin()
		return next, nil

	case events.FileCreated:
		if _, exists := prev.files[e.File]; exists {
			// The entry is untouched; only UI focus moves.
			if prev.CurrentFile == e.File {
				return prev, nil
			}
			next := prev.clone()
			next.CurrentFile = e.File
			return next, nil
		}
		next := prev.clone()
		next.files[e.File] = FileProgress{
			Path:     e.File,
			Language: e.Language,
			Status:   FileStreaming,
		}
		next.order = append(next.order, e.File)
		next.CurrentFile = e.File
		next.begin()
		return next, nil

	case events.CodeChunk:
		f, ok := prev.files[e.File]
		if !ok {
			return prev, fmt.Errorf("%w: %s", ErrUnknownFile, e.File)
		}
		if f.Status == FileCompleted {
			return prev, fmt.Errorf("%w: %s", ErrFileCompleted, e.File)
		}
		next := prev.clone()
		f.Content += e.Chunk
		f.Tokens += e.Tokens
		f.Chunks++
		f.Status = FileStreaming
		next.files[e.File] = f
		next.Counters.StreamedTokens += e.Tokens
		next.begin()
		return next, nil

	case events.FileUpdated:
		f, ok := prev.files[e.File]
		if !ok {
			return prev, fmt.Errorf("%w: %s", ErrUnknownFile, e.File)
		}
		next := prev.clone()
		f.Status = FileCompleted
		if f.Tokens == 0 && e.TokenCount > 0 {
			f.Tokens = e.TokenCount
		}
		next.files[e.File] = f
		next.Counters.CompletedFiles = max(next.Counters.CompletedFiles, e.CompletedFiles)
		if next.Counters.TotalFiles > 0 && next.Counters.CompletedFiles > next.Counters.TotalFiles {
			next.Counters.TotalFiles = next.Counters.CompletedFiles
		}
		return next, nil

	case events.ProgressUpdate:
		next := prev.clone()
		c := &next.Counters
		c.StreamedTokens = max(c.StreamedTokens, e.StreamedTokens)
		c.TotalTokens = max(c.TotalTokens, e.TotalTokens)
		c.ProgressPercent = max(c.ProgressPercent, ClampPercent(e.ProgressPercent))
		c.ExplicitPercent = true
		next.begin()
		return next, nil

	case events.BuildProgress:
		next := prev.clone()
		step := BuildStep{Step: e.Step, Status: e.Status, Output: e.Output}
		replaced := false
		for i := range next.steps {
			if next.steps[i].Step == e.Step {
				next.steps[i] = step
				replaced = true
				break
			}
		}
		if !replaced {
			next.steps = append(next.steps, step)
		}
		next.Session.Status = StatusBuilding
		return next, nil

	case events.PreviewReady:
		next := prev.clone()
		if next.Preview == nil {
			next.Preview = &Preview{URL: e.PreviewURL, HTML: RenderPreview(next)}
		}
		next.Session.Status = StatusPreviewReady
		return next, nil

	case events.StreamComplete:
		next := prev.clone()
		c := &next.Counters
		// Final totals only raise the running counters; a zero total means
		// the field was omitted.
		c.TotalTokens = max(c.TotalTokens, e.TotalTokens)
		c.StreamedTokens = max(c.StreamedTokens, e.TotalTokens)
		c.TotalFiles = max(c.TotalFiles, e.TotalFiles)
		c.CompletedFiles = max(c.CompletedFiles, e.TotalFiles)
		c.ProgressPercent = 100
		c.ExplicitPercent = true
		if next.Preview == nil && e.PreviewURL != "" {
			next.Preview = &Preview{URL: e.PreviewURL, HTML: RenderPreview(next)}
		}
		next.Session.Status = StatusCompleted
		return next, nil

	case events.StreamError:
		return Fail(prev, e.Message), nil
	}

	return prev, fmt.Errorf("unhandled event %T", ev)
}

// Cancel marks a non-terminal session cancelled. Partial content is kept.
func Cancel(prev State) State {
	if prev.Session.Status.Terminal() {
		return prev
	}
	next := prev.clone()
	next.Session.Status = StatusCancelled
	return next
}

// Fail moves a non-terminal session into the error state with msg.
func Fail(prev State, msg string) State {
	if prev.Session.Status.Terminal() {
		return prev
	}
	next := prev.clone()
	next.Session.Status = StatusError
	next.Error = strings.TrimSpace(msg)
	if next.Error == "" {
		next.Error = "stream error"
	}
	return next
}

// ClampPercent bounds p to [0, 100].
func ClampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// begin moves an idle session to streaming once content starts flowing.
func (s *State) begin() {
	if s.Session.Status == StatusIdle {
		s.Session.Status = StatusStreaming
	}
}
