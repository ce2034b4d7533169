package backend

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nixlim/genwatch/internal/session"
)

// SessionRecord is the session resource as served by the backend. The file
// and build ledgers arrive as embedded JSON strings.
type SessionRecord struct {
	ID                 string     `json:"id"`
	Prompt             string     `json:"prompt,omitempty"`
	Status             string     `json:"status"`
	CurrentFile        string     `json:"currentFile,omitempty"`
	TotalFiles         int        `json:"totalFiles"`
	CompletedFiles     int        `json:"completedFiles"`
	TotalTokens        int        `json:"totalTokens"`
	StreamedTokens     int        `json:"streamedTokens"`
	ProgressPercent    float64    `json:"progressPercent"`
	GeneratedFilesJSON string     `json:"generatedFilesJson,omitempty"`
	BuildProgressJSON  string     `json:"buildProgressJson,omitempty"`
	PreviewURL         string     `json:"previewUrl,omitempty"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          *time.Time `json:"updatedAt,omitempty"`
}

// Session returns the identity part of the record. An unrecognised status
// is reported as error so it never reads as live.
func (r SessionRecord) Session() session.Session {
	st, ok := session.ParseStatus(strings.ToLower(r.Status))
	if !ok {
		st = session.StatusError
	}
	return session.Session{
		ID:        r.ID,
		Prompt:    r.Prompt,
		Status:    st,
		CreatedAt: r.CreatedAt,
	}
}

func (r SessionRecord) Counters() session.Counters {
	return session.Counters{
		TotalFiles:      r.TotalFiles,
		CompletedFiles:  r.CompletedFiles,
		TotalTokens:     r.TotalTokens,
		StreamedTokens:  r.StreamedTokens,
		ProgressPercent: session.ClampPercent(r.ProgressPercent),
		ExplicitPercent: true,
	}
}

type fileLedgerEntry struct {
	Path       string `json:"path"`
	Language   string `json:"language"`
	Status     string `json:"status"`
	TokenCount int    `json:"tokenCount"`
}

// Files decodes the generated-files ledger. A missing or unparseable ledger
// yields no files.
func (r SessionRecord) Files() []session.FileProgress {
	if strings.TrimSpace(r.GeneratedFilesJSON) == "" {
		return nil
	}
	var entries []fileLedgerEntry
	if err := json.Unmarshal([]byte(r.GeneratedFilesJSON), &entries); err != nil {
		return nil
	}
	files := make([]session.FileProgress, 0, len(entries))
	for _, e := range entries {
		if e.Path == "" {
			continue
		}
		st := session.FileStatus(strings.ToLower(e.Status))
		switch st {
		case session.FilePending, session.FileStreaming, session.FileCompleted:
		default:
			st = session.FilePending
		}
		files = append(files, session.FileProgress{
			Path:     e.Path,
			Language: e.Language,
			Status:   st,
			Tokens:   e.TokenCount,
		})
	}
	return files
}

// BuildSteps decodes the build ledger, which is either {"steps": [...]} or
// a bare array.
func (r SessionRecord) BuildSteps() []session.BuildStep {
	raw := strings.TrimSpace(r.BuildProgressJSON)
	if raw == "" {
		return nil
	}
	var steps []session.BuildStep
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &steps); err != nil {
			return nil
		}
		return steps
	}
	var wrapped struct {
		Steps []session.BuildStep `json:"steps"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil
	}
	return wrapped.Steps
}

// State rebuilds a read-only session state from the record.
func (r SessionRecord) State() session.State {
	var preview *session.Preview
	if r.PreviewURL != "" {
		preview = &session.Preview{URL: r.PreviewURL}
	}
	return session.Restore(r.Session(), r.Counters(), r.Files(), r.BuildSteps(), preview, "")
}

type createRequest struct {
	Prompt       string `json:"prompt,omitempty"`
	DevRequestID *int   `json:"devRequestId,omitempty"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
