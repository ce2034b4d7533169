// Package session holds the client-side model of a code-generation session
// and the pure reducer that folds stream events into it.
package session

import (
	"slices"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusStreaming    Status = "streaming"
	StatusBuilding     Status = "building"
	StatusPreviewReady Status = "preview_ready"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
	StatusError        Status = "error"
)

// Terminal reports whether no further events may change a session in s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusError:
		return true
	}
	return false
}

// Active reports whether a stream is expected to be delivering events.
func (s Status) Active() bool {
	switch s {
	case StatusStreaming, StatusBuilding, StatusPreviewReady:
		return true
	}
	return false
}

// ParseStatus maps a backend status string onto Status. Unknown values
// return false.
func ParseStatus(v string) (Status, bool) {
	switch s := Status(v); s {
	case StatusIdle, StatusStreaming, StatusBuilding, StatusPreviewReady,
		StatusCompleted, StatusCancelled, StatusError:
		return s, true
	}
	return "", false
}

type FileStatus string

const (
	FilePending   FileStatus = "pending"
	FileStreaming FileStatus = "streaming"
	FileCompleted FileStatus = "completed"
)

// Session is the server-assigned identity of a generation run.
type Session struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// FileProgress is one generated file. Content only grows while the file is
// streaming and is frozen once it is completed.
type FileProgress struct {
	Path     string     `json:"path"`
	Language string     `json:"language"`
	Content  string     `json:"content,omitempty"`
	Status   FileStatus `json:"status"`
	Tokens   int        `json:"tokenCount"`
	Chunks   int        `json:"chunks,omitempty"`
}

type BuildStep struct {
	Step   string `json:"step"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
}

// Preview is created once and never modified afterwards.
type Preview struct {
	URL  string `json:"previewUrl"`
	HTML string `json:"-"`
}

type Counters struct {
	TotalFiles      int     `json:"totalFiles"`
	CompletedFiles  int     `json:"completedFiles"`
	TotalTokens     int     `json:"totalTokens"`
	StreamedTokens  int     `json:"streamedTokens"`
	ProgressPercent float64 `json:"progressPercent"`

	// ExplicitPercent is set once the server has reported a percentage.
	ExplicitPercent bool `json:"-"`
}

// State is the full client view of one session. Values are immutable from
// the caller's perspective: Reduce, Cancel and Fail return new states and
// never modify their input.
type State struct {
	Session     Session
	Counters    Counters
	CurrentFile string
	Preview     *Preview
	Error       string

	files map[string]FileProgress
	order []string
	steps []BuildStep
}

// New returns the initial state for a freshly created session.
func New(s Session) State {
	if s.Status == "" {
		s.Status = StatusIdle
	}
	return State{
		Session: s,
		files:   make(map[string]FileProgress),
	}
}

// Restore rebuilds a state from persisted parts, for example a history
// snapshot. Files keep the order given.
func Restore(s Session, c Counters, files []FileProgress, steps []BuildStep, preview *Preview, errMsg string) State {
	st := New(s)
	st.Counters = c
	st.Error = errMsg
	if preview != nil {
		p := *preview
		st.Preview = &p
	}
	for _, f := range files {
		if _, ok := st.files[f.Path]; ok {
			continue
		}
		st.files[f.Path] = f
		st.order = append(st.order, f.Path)
	}
	st.steps = slices.Clone(steps)
	return st
}

func (s State) ID() string     { return s.Session.ID }
func (s State) Status() Status { return s.Session.Status }

// Files returns the files in creation order.
func (s State) Files() []FileProgress {
	out := make([]FileProgress, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, s.files[p])
	}
	return out
}

// File looks up one file by path.
func (s State) File(path string) (FileProgress, bool) {
	f, ok := s.files[path]
	return f, ok
}

func (s State) FileCount() int { return len(s.order) }

// Paths returns the file paths in creation order.
func (s State) Paths() []string { return slices.Clone(s.order) }

// BuildSteps returns the build steps in first-seen order.
func (s State) BuildSteps() []BuildStep { return slices.Clone(s.steps) }

func (s State) clone() State {
	next := s
	next.files = make(map[string]FileProgress, len(s.files)+1)
	for k, v := range s.files {
		next.files[k] = v
	}
	next.order = slices.Clone(s.order)
	next.steps = slices.Clone(s.steps)
	return next
}
