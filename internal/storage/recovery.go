package storage

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nixlim/genwatch/internal/session"
	"github.com/nixlim/genwatch/internal/state"
)

// recoverSessions loads sessions inside the retention window into memory.
func (s *SQLiteStore) recoverSessions(now time.Time) error {
	cutoff := retentionCutoff(now, s.retentionDays)
	rows, err := s.db.Query(`
		SELECT session_id, prompt, status, current_file, total_files, completed_files,
		       total_tokens, streamed_tokens, progress_percent, explicit_percent,
		       preview_url, error, created_at, updated_at
		FROM sessions
		WHERE created_at >= ?
		ORDER BY created_at ASC
	`, cutoff.UnixMilli())
	if err != nil {
		return fmt.Errorf("querying recent sessions: %w", err)
	}

	var entries []state.Entry
	var failCount int
	for rows.Next() {
		var e state.Entry
		var prompt, currentFile, previewURL, errMsg sql.NullString
		var status string
		var explicit int
		var createdAt, updatedAt int64

		err := rows.Scan(
			&e.Session.ID, &prompt, &status, &currentFile,
			&e.Counters.TotalFiles, &e.Counters.CompletedFiles,
			&e.Counters.TotalTokens, &e.Counters.StreamedTokens,
			&e.Counters.ProgressPercent, &explicit,
			&previewURL, &errMsg, &createdAt, &updatedAt,
		)
		if err != nil {
			failCount++
			s.log.Error("failed to scan session row", zap.Error(err))
			continue
		}

		st, ok := session.ParseStatus(status)
		if !ok {
			st = session.StatusError
		}
		e.Session.Prompt = prompt.String
		e.Session.Status = st
		e.Session.CreatedAt = time.UnixMilli(createdAt)
		e.CurrentFile = currentFile.String
		e.Counters.ExplicitPercent = explicit == 1
		e.PreviewURL = previewURL.String
		e.Error = errMsg.String
		e.UpdatedAt = time.UnixMilli(updatedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterating sessions: %w", err)
	}
	_ = rows.Close()

	for i := range entries {
		id := entries[i].Session.ID
		if err := s.recoverFiles(&entries[i]); err != nil {
			s.log.Error("failed to recover files", zap.String("session_id", id), zap.Error(err))
		}
		if err := s.recoverSteps(&entries[i]); err != nil {
			s.log.Error("failed to recover build steps", zap.String("session_id", id), zap.Error(err))
		}
		s.MemoryStore.Restore(entries[i])
	}

	if failCount > 0 {
		s.log.Warn("some sessions failed to recover", zap.Int("count", failCount))
	}
	s.log.Info("recovered history", zap.Int("sessions", len(entries)))
	return nil
}

func (s *SQLiteStore) recoverFiles(e *state.Entry) error {
	rows, err := s.db.Query(`
		SELECT path, language, status, tokens, chunks, content
		FROM session_files
		WHERE session_id = ?
		ORDER BY position ASC
	`, e.Session.ID)
	if err != nil {
		return fmt.Errorf("querying files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var f session.FileProgress
		var language, content sql.NullString
		var status string
		if err := rows.Scan(&f.Path, &language, &status, &f.Tokens, &f.Chunks, &content); err != nil {
			s.log.Error("failed to scan file row", zap.Error(err))
			continue
		}
		f.Language = language.String
		f.Status = session.FileStatus(status)
		f.Content = content.String
		e.Files = append(e.Files, f)
	}
	return rows.Err()
}

func (s *SQLiteStore) recoverSteps(e *state.Entry) error {
	rows, err := s.db.Query(`
		SELECT step, status, output
		FROM build_steps
		WHERE session_id = ?
		ORDER BY position ASC
	`, e.Session.ID)
	if err != nil {
		return fmt.Errorf("querying build steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var st session.BuildStep
		var status, output sql.NullString
		if err := rows.Scan(&st.Step, &status, &output); err != nil {
			s.log.Error("failed to scan build step row", zap.Error(err))
			continue
		}
		st.Status = status.String
		st.Output = output.String
		e.Steps = append(e.Steps, st)
	}
	return rows.Err()
}
