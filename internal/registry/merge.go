package registry

import (
	"slices"
	"time"

	"github.com/nixlim/genwatch/internal/backend"
	"github.com/nixlim/genwatch/internal/state"
)

func fromRecord(rec backend.SessionRecord, now time.Time) state.Entry {
	st := rec.State()
	e := state.EntryFromState(st, now)
	e.CurrentFile = rec.CurrentFile
	if rec.UpdatedAt != nil {
		e.UpdatedAt = *rec.UpdatedAt
	}
	return e
}

// merge combines local snapshots with backend records. A local snapshot
// carries file content the backend list does not, so it wins unless the
// backend reports a terminal status the local copy has not reached.
func merge(local []state.Entry, recs []backend.SessionRecord, now time.Time) []state.Entry {
	byID := make(map[string]int, len(local)+len(recs))
	out := make([]state.Entry, 0, len(local)+len(recs))
	for _, e := range local {
		byID[e.ID()] = len(out)
		out = append(out, e)
	}

	for _, rec := range recs {
		if rec.ID == "" {
			continue
		}
		remote := fromRecord(rec, now)
		i, ok := byID[rec.ID]
		if !ok {
			byID[rec.ID] = len(out)
			out = append(out, remote)
			continue
		}
		l := &out[i]
		if !l.Session.Status.Terminal() && remote.Session.Status.Terminal() {
			l.Session.Status = remote.Session.Status
		}
		if l.Session.Prompt == "" {
			l.Session.Prompt = remote.Session.Prompt
		}
		if l.Session.CreatedAt.IsZero() {
			l.Session.CreatedAt = remote.Session.CreatedAt
		}
		if l.PreviewURL == "" {
			l.PreviewURL = remote.PreviewURL
		}
		if len(l.Files) == 0 {
			l.Files = remote.Files
		}
	}

	state.SortNewestFirst(out)
	return out
}

func limit(entries []state.Entry, n int) []state.Entry {
	if n > 0 && len(entries) > n {
		return entries[:n]
	}
	return entries
}

func cloneEntries(entries []state.Entry) []state.Entry {
	out := make([]state.Entry, len(entries))
	for i, e := range entries {
		cp := e
		cp.Files = slices.Clone(e.Files)
		cp.Steps = slices.Clone(e.Steps)
		out[i] = cp
	}
	return out
}
