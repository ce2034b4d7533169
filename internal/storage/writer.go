package storage

import (
	"database/sql"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/genwatch/internal/state"
)

func (s *SQLiteStore) writerLoop() {
	defer close(s.doneChan)

	batch := make([]writeOp, 0, batchSize)
	flushTimer := time.NewTimer(flushInterval)
	defer flushTimer.Stop()

	for {
		select {
		case op, ok := <-s.writeChan:
			if !ok {
				if len(batch) > 0 {
					s.flushBatch(batch)
				}
				return
			}

			batch = append(batch, op)
			if len(batch) >= batchSize {
				s.flushBatch(batch)
				batch = batch[:0]
				flushTimer.Reset(flushInterval)
			}

		case <-flushTimer.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
			flushTimer.Reset(flushInterval)
		}
	}
}

// coalesce keeps only the last snapshot per session, preserving the order
// in which sessions were first seen.
func coalesce(batch []writeOp) []state.Entry {
	latest := make(map[string]int, len(batch))
	var out []state.Entry
	for _, op := range batch {
		id := op.entry.ID()
		if i, ok := latest[id]; ok {
			out[i] = op.entry
			continue
		}
		latest[id] = len(out)
		out = append(out, op.entry)
	}
	return out
}

func (s *SQLiteStore) flushBatch(batch []writeOp) {
	tx, err := s.db.Begin()
	if err != nil {
		s.log.Error("failed to begin transaction", zap.Error(err))
		return
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range coalesce(batch) {
		if err := writeEntry(tx, e); err != nil {
			s.log.Error("failed to write snapshot", zap.String("session_id", e.ID()), zap.Error(err))
		}
	}

	if err := tx.Commit(); err != nil {
		s.log.Error("failed to commit transaction", zap.Error(err))
	}
}

// sanitizeFloat replaces NaN and Inf with 0.
func sanitizeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func writeEntry(tx *sql.Tx, e state.Entry) error {
	c := e.Counters
	_, err := tx.Exec(`
		INSERT INTO sessions (session_id, prompt, status, current_file, total_files,
			completed_files, total_tokens, streamed_tokens, progress_percent,
			explicit_percent, preview_url, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			prompt=COALESCE(NULLIF(excluded.prompt, ''), sessions.prompt),
			status=excluded.status,
			current_file=excluded.current_file,
			total_files=excluded.total_files,
			completed_files=excluded.completed_files,
			total_tokens=excluded.total_tokens,
			streamed_tokens=excluded.streamed_tokens,
			progress_percent=excluded.progress_percent,
			explicit_percent=excluded.explicit_percent,
			preview_url=COALESCE(NULLIF(excluded.preview_url, ''), sessions.preview_url),
			error=excluded.error,
			updated_at=excluded.updated_at
	`, e.Session.ID, e.Session.Prompt, string(e.Session.Status), e.CurrentFile,
		c.TotalFiles, c.CompletedFiles, c.TotalTokens, c.StreamedTokens,
		sanitizeFloat(c.ProgressPercent), boolInt(c.ExplicitPercent),
		e.PreviewURL, e.Error, e.Session.CreatedAt.UnixMilli(), e.UpdatedAt.UnixMilli())
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM session_files WHERE session_id = ?", e.Session.ID); err != nil {
		return err
	}
	for i, f := range e.Files {
		_, err := tx.Exec(`
			INSERT INTO session_files (session_id, position, path, language, status, tokens, chunks, content)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.Session.ID, i, f.Path, f.Language, string(f.Status), f.Tokens, f.Chunks, f.Content)
		if err != nil {
			return err
		}
	}

	if _, err := tx.Exec("DELETE FROM build_steps WHERE session_id = ?", e.Session.ID); err != nil {
		return err
	}
	for i, st := range e.Steps {
		_, err := tx.Exec(`
			INSERT INTO build_steps (session_id, position, step, status, output)
			VALUES (?, ?, ?, ?, ?)
		`, e.Session.ID, i, st.Step, st.Status, st.Output)
		if err != nil {
			return err
		}
	}
	return nil
}
