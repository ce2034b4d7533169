// Package stats computes aggregate statistics over session history. All
// functions are pure computations with no side effects.
package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nixlim/genwatch/internal/session"
	"github.com/nixlim/genwatch/internal/state"
)

// topLanguages caps HistoryStats.Languages.
const topLanguages = 5

// Compute summarises entries.
func Compute(entries []state.Entry) HistoryStats {
	st := HistoryStats{
		Sessions: len(entries),
		ByStatus: make(map[string]int),
	}

	var withTokens int
	for i := range entries {
		e := &entries[i]
		st.ByStatus[string(e.Session.Status)]++

		files, completed := fileCounts(e)
		st.Files += files
		st.CompletedFiles += completed

		if t := sessionTokens(e); t > 0 {
			st.Tokens += int64(t)
			withTokens++
		}
		if buildFailed(e.Steps) {
			st.BuildFailures++
		}
	}

	if withTokens > 0 {
		st.AvgTokens = float64(st.Tokens) / float64(withTokens)
	}
	st.SuccessRate = successRate(st.ByStatus)
	st.Languages = computeLanguages(entries)
	return st
}

// fileCounts prefers the server counters and falls back to the local file
// ledger.
func fileCounts(e *state.Entry) (total, completed int) {
	if e.Counters.TotalFiles > 0 {
		return e.Counters.TotalFiles, e.Counters.CompletedFiles
	}
	for _, f := range e.Files {
		if f.Status == session.FileCompleted {
			completed++
		}
	}
	return len(e.Files), completed
}

func sessionTokens(e *state.Entry) int {
	if e.Counters.StreamedTokens > 0 {
		return e.Counters.StreamedTokens
	}
	var sum int
	for _, f := range e.Files {
		sum += f.Tokens
	}
	return sum
}

func buildFailed(steps []session.BuildStep) bool {
	for _, s := range steps {
		if s.Status == "failed" {
			return true
		}
	}
	return false
}

// successRate is completed over all finished sessions. Running sessions do
// not count either way.
func successRate(byStatus map[string]int) float64 {
	finished := HistoryStats{ByStatus: byStatus}.finished()
	if finished == 0 {
		return 0
	}
	return float64(byStatus[string(session.StatusCompleted)]) / float64(finished)
}

// computeLanguages counts files per language, most frequent first, ties by
// name.
func computeLanguages(entries []state.Entry) []LanguageCount {
	counts := make(map[string]int)
	for i := range entries {
		for _, f := range entries[i].Files {
			lang := f.Language
			if lang == "" {
				lang = "text"
			}
			counts[lang]++
		}
	}

	out := make([]LanguageCount, 0, len(counts))
	for lang, n := range counts {
		out = append(out, LanguageCount{Language: lang, Files: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Files != out[j].Files {
			return out[i].Files > out[j].Files
		}
		return out[i].Language < out[j].Language
	})
	if len(out) > topLanguages {
		out = out[:topLanguages]
	}
	return out
}

// Summary renders the stats as one line, e.g.
// "4 sessions, 9/10 files, 1200 tokens, 75% succeeded (typescript 6, css 3)".
func (s HistoryStats) Summary() string {
	line := fmt.Sprintf("%d sessions, %d/%d files, %d tokens", s.Sessions, s.CompletedFiles, s.Files, s.Tokens)
	if s.finished() > 0 {
		line += fmt.Sprintf(", %.0f%% succeeded", s.SuccessRate*100)
	}
	if s.BuildFailures > 0 {
		line += fmt.Sprintf(", %d failed builds", s.BuildFailures)
	}
	if len(s.Languages) > 0 {
		langs := make([]string, len(s.Languages))
		for i, l := range s.Languages {
			langs[i] = fmt.Sprintf("%s %d", l.Language, l.Files)
		}
		line += " (" + strings.Join(langs, ", ") + ")"
	}
	return line
}

func (s HistoryStats) finished() int {
	return s.ByStatus[string(session.StatusCompleted)] +
		s.ByStatus[string(session.StatusCancelled)] +
		s.ByStatus[string(session.StatusError)]
}
