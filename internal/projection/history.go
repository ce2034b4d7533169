package projection

import (
	"fmt"
	"strings"
	"time"

	"github.com/nixlim/genwatch/internal/state"
)

// HistoryRow is the one-line summary of a past session.
type HistoryRow struct {
	ID        string
	Prompt    string
	Status    StatusLabel
	Files     string
	Tokens    int
	CreatedAt time.Time
	Age       time.Duration
}

// HistoryRows summarises entries in the order given. Counters win over the
// file ledger when both are present.
func HistoryRows(entries []state.Entry, now time.Time) []HistoryRow {
	rows := make([]HistoryRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, HistoryRow{
			ID:        e.ID(),
			Prompt:    promptLine(e.Session.Prompt),
			Status:    LabelFor(e.Session.Status),
			Files:     fileSummary(e),
			Tokens:    tokenSummary(e),
			CreatedAt: e.Session.CreatedAt,
			Age:       state.Age(e, now),
		})
	}
	return rows
}

func promptLine(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexByte(p, '\n'); i >= 0 {
		p = strings.TrimSpace(p[:i])
	}
	if p == "" {
		return "(no prompt)"
	}
	return p
}

func fileSummary(e state.Entry) string {
	c := e.Counters
	if c.TotalFiles > 0 {
		return fmt.Sprintf("%d/%d", c.CompletedFiles, c.TotalFiles)
	}
	return fmt.Sprintf("%d", len(e.Files))
}

func tokenSummary(e state.Entry) int {
	if e.Counters.StreamedTokens > 0 {
		return e.Counters.StreamedTokens
	}
	n := 0
	for _, f := range e.Files {
		n += f.Tokens
	}
	return n
}
