package state

import (
	"slices"
	"time"

	"github.com/nixlim/genwatch/internal/session"
)

// Entry is the stored snapshot of one session. It is a plain value so it can
// cross package and goroutine boundaries and be persisted as is.
type Entry struct {
	Session     session.Session
	Counters    session.Counters
	CurrentFile string
	Files       []session.FileProgress
	Steps       []session.BuildStep
	PreviewURL  string
	Error       string
	UpdatedAt   time.Time
}

// EntryFromState snapshots a reducer state.
func EntryFromState(s session.State, at time.Time) Entry {
	e := Entry{
		Session:     s.Session,
		Counters:    s.Counters,
		CurrentFile: s.CurrentFile,
		Files:       s.Files(),
		Steps:       s.BuildSteps(),
		Error:       s.Error,
		UpdatedAt:   at,
	}
	if s.Preview != nil {
		e.PreviewURL = s.Preview.URL
	}
	return e
}

// State turns the entry back into a reducer state.
func (e Entry) State() session.State {
	var preview *session.Preview
	if e.PreviewURL != "" {
		preview = &session.Preview{URL: e.PreviewURL}
	}
	st := session.Restore(e.Session, e.Counters, e.Files, e.Steps, preview, e.Error)
	st.CurrentFile = e.CurrentFile
	return st
}

func (e Entry) ID() string { return e.Session.ID }

func (e Entry) clone() Entry {
	cp := e
	cp.Files = slices.Clone(e.Files)
	cp.Steps = slices.Clone(e.Steps)
	return cp
}
