package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/genwatch/internal/backend"
	"github.com/nixlim/genwatch/internal/events"
	"github.com/nixlim/genwatch/internal/session"
)

const (
	chunkSize = 25

	// progressEvery emits a progress_update after every n-th chunk of a
	// file, starting with the first.
	progressEvery = 5

	cancelledMessage = "Stream cancelled."
)

var errCancelled = errors.New("session cancelled")

// position is how far generation got, so a reconnecting stream resumes
// instead of starting over.
type position struct {
	file           int
	chunk          int
	fileTokens     int
	streamedTokens int
	ledger         []ledgerEntry
	startedAt      time.Time
}

type ledgerEntry struct {
	Path       string `json:"path"`
	Language   string `json:"language"`
	Status     string `json:"status"`
	TokenCount int    `json:"tokenCount"`
}

type buildLedger struct {
	Steps []session.BuildStep `json:"steps"`
}

func (s *Server) streamSession(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported.")
		return
	}

	s.mu.Lock()
	ss, ok := s.lookupLocked(r)
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Session not found.")
		return
	}
	if ss.attached {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "Session is already streaming.")
		return
	}
	status := session.Status(ss.rec.Status)
	if !status.Terminal() {
		ss.attached = true
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	g := &generation{srv: s, ss: ss, w: w, flusher: flusher}
	switch status {
	case session.StatusCancelled:
		_ = g.emitError(cancelledMessage)
		return
	case session.StatusCompleted, session.StatusError:
		_ = g.emitError("Session is not active.")
		return
	}
	defer func() {
		s.mu.Lock()
		ss.attached = false
		s.mu.Unlock()
	}()

	err := g.run(r.Context())
	switch {
	case errors.Is(err, errCancelled):
		_ = g.emitError(cancelledMessage)
	case err != nil:
		// The client went away; the session stays where it got to.
		s.log.Debug("stream interrupted", zap.String("session_id", ss.rec.ID), zap.Error(err))
	}
}

// generation writes one stream of a session. Only the handler that has the
// session attached touches ss.pos.
type generation struct {
	srv     *Server
	ss      *simSession
	w       http.ResponseWriter
	flusher http.Flusher
}

func (g *generation) run(ctx context.Context) error {
	s, ss, pos := g.srv, g.ss, &g.ss.pos

	s.mu.Lock()
	prompt, id := ss.rec.Prompt, ss.rec.ID
	s.mu.Unlock()

	files := projectFiles(prompt)
	totalTokens := 0
	for _, f := range files {
		for _, c := range chunks(f.Content, chunkSize) {
			totalTokens += chunkTokens(c)
		}
	}

	if pos.startedAt.IsZero() {
		pos.startedAt = s.now().UTC()
	}
	started := pos.startedAt
	s.update(ss, func(rec *backend.SessionRecord) {
		rec.Status = string(session.StatusStreaming)
		rec.StartedAt = &started
		rec.TotalFiles = len(files)
		rec.TotalTokens = totalTokens
	})

	if err := g.emit(events.TypeStreamStart, map[string]any{
		"sessionId":   id,
		"totalFiles":  len(files),
		"totalTokens": totalTokens,
		"prompt":      prompt,
	}); err != nil {
		return err
	}

	for pos.file < len(files) {
		if err := g.checkCancelled(); err != nil {
			return err
		}
		f := files[pos.file]
		s.update(ss, func(rec *backend.SessionRecord) { rec.CurrentFile = f.Path })
		if err := g.emit(events.TypeFileCreated, map[string]any{
			"file":       f.Path,
			"language":   f.Language,
			"fileIndex":  pos.file,
			"totalFiles": len(files),
		}); err != nil {
			return err
		}

		pieces := chunks(f.Content, chunkSize)
		for pos.chunk < len(pieces) {
			if err := g.checkCancelled(); err != nil {
				return err
			}
			piece := pieces[pos.chunk]
			tokens := chunkTokens(piece)
			pos.fileTokens += tokens
			pos.streamedTokens += tokens
			streamed := pos.streamedTokens
			percent := roundTenth(100 * float64(streamed) / float64(totalTokens))
			s.update(ss, func(rec *backend.SessionRecord) {
				rec.StreamedTokens = streamed
				rec.ProgressPercent = percent
			})

			if err := g.emit(events.TypeCodeChunk, map[string]any{
				"file":   f.Path,
				"chunk":  piece,
				"tokens": tokens,
			}); err != nil {
				return err
			}
			if err := g.sleep(ctx, s.opts.ChunkDelay); err != nil {
				return err
			}
			if pos.chunk%progressEvery == 0 {
				if err := g.emit(events.TypeProgressUpdate, map[string]any{
					"streamedTokens":  streamed,
					"totalTokens":     totalTokens,
					"progressPercent": percent,
					"currentFile":     f.Path,
					"completedFiles":  len(pos.ledger),
					"totalFiles":      len(files),
				}); err != nil {
					return err
				}
			}
			pos.chunk++
		}

		pos.ledger = append(pos.ledger, ledgerEntry{
			Path:       f.Path,
			Language:   f.Language,
			Status:     string(session.FileCompleted),
			TokenCount: pos.fileTokens,
		})
		completed, fileTokens := len(pos.ledger), pos.fileTokens
		ledger, _ := json.Marshal(pos.ledger)
		s.update(ss, func(rec *backend.SessionRecord) {
			rec.CompletedFiles = completed
			rec.GeneratedFilesJSON = string(ledger)
		})
		pos.file++
		pos.chunk = 0
		pos.fileTokens = 0

		if err := g.emit(events.TypeFileUpdated, map[string]any{
			"file":           f.Path,
			"language":       f.Language,
			"tokenCount":     fileTokens,
			"completedFiles": completed,
			"totalFiles":     len(files),
		}); err != nil {
			return err
		}
	}

	if err := g.build(ctx); err != nil {
		return err
	}

	previewURL := "/preview/session/" + id
	s.update(ss, func(rec *backend.SessionRecord) {
		rec.Status = string(session.StatusPreviewReady)
		rec.PreviewURL = previewURL
	})
	if err := g.emit(events.TypePreviewReady, map[string]any{
		"previewUrl": previewURL,
		"sessionId":  id,
	}); err != nil {
		return err
	}

	completedAt := s.now().UTC()
	streamed, completed := pos.streamedTokens, len(pos.ledger)
	s.update(ss, func(rec *backend.SessionRecord) {
		rec.Status = string(session.StatusCompleted)
		rec.CompletedAt = &completedAt
		rec.ProgressPercent = 100
	})
	s.log.Info("session completed", zap.String("session_id", id), zap.Int("tokens", streamed))
	return g.emit(events.TypeStreamComplete, map[string]any{
		"sessionId":   id,
		"totalTokens": streamed,
		"totalFiles":  completed,
		"durationMs":  float64(completedAt.Sub(started)) / float64(time.Millisecond),
		"previewUrl":  previewURL,
	})
}

var buildSteps = []struct {
	step, running, done string
}{
	{"install", "Installing dependencies...", "Dependencies installed successfully."},
	{"build", "Building project...", "Build completed successfully."},
}

func (g *generation) build(ctx context.Context) error {
	s, ss := g.srv, g.ss
	s.update(ss, func(rec *backend.SessionRecord) { rec.Status = string(session.StatusBuilding) })

	var ledger buildLedger
	for _, b := range buildSteps {
		if err := g.checkCancelled(); err != nil {
			return err
		}
		if err := g.emit(events.TypeBuildProgress, session.BuildStep{Step: b.step, Status: "running", Output: b.running}); err != nil {
			return err
		}
		if err := g.sleep(ctx, s.opts.BuildDelay); err != nil {
			return err
		}
		if err := g.emit(events.TypeBuildProgress, session.BuildStep{Step: b.step, Status: "completed", Output: b.done}); err != nil {
			return err
		}
		ledger.Steps = append(ledger.Steps, session.BuildStep{Step: b.step, Status: "completed"})
	}

	data, _ := json.Marshal(ledger)
	s.update(ss, func(rec *backend.SessionRecord) { rec.BuildProgressJSON = string(data) })
	return nil
}

func (g *generation) checkCancelled() error {
	select {
	case <-g.ss.cancelled:
		return errCancelled
	default:
		return nil
	}
}

// sleep waits d, returning early when the session is cancelled or the
// client disconnects.
func (g *generation) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return g.checkCancelled()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return g.checkCancelled()
	case <-g.ss.cancelled:
		return errCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *generation) emit(t events.Type, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return g.write(t, data)
}

// emitError sends an error frame. Its payload is plain text, not JSON.
func (g *generation) emitError(message string) error {
	return g.write(events.TypeError, []byte(message))
}

func (g *generation) write(t events.Type, data []byte) error {
	if _, err := fmt.Fprintf(g.w, "event: %s\ndata: %s\n\n", t, data); err != nil {
		return err
	}
	g.flusher.Flush()
	return nil
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
