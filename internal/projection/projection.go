// Package projection derives read-only presentation data from a session
// state: the directory-grouped file tree, the tab strip and the active tab,
// and status labels.
package projection

import (
	"path"
	"slices"
	"strings"

	"github.com/nixlim/genwatch/internal/session"
)

// RootDir is the group name for files without a directory component.
const RootDir = "."

type TreeFile struct {
	Path     string
	Name     string
	Language string
	Status   session.FileStatus
	Active   bool
}

type TreeGroup struct {
	Dir   string
	Files []TreeFile
}

// FileTree groups files by their directory. Groups are sorted by name and
// files keep creation order inside a group.
func FileTree(files []session.FileProgress, active string) []TreeGroup {
	index := make(map[string]int)
	var groups []TreeGroup
	for _, f := range files {
		dir := Dir(f.Path)
		i, ok := index[dir]
		if !ok {
			i = len(groups)
			index[dir] = i
			groups = append(groups, TreeGroup{Dir: dir})
		}
		groups[i].Files = append(groups[i].Files, TreeFile{
			Path:     f.Path,
			Name:     path.Base(f.Path),
			Language: f.Language,
			Status:   f.Status,
			Active:   f.Path == active,
		})
	}
	slices.SortStableFunc(groups, func(a, b TreeGroup) int {
		return strings.Compare(a.Dir, b.Dir)
	})
	return groups
}

// Dir returns the directory part of a generated file path, or RootDir.
func Dir(p string) string {
	p = strings.TrimPrefix(p, "./")
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return RootDir
	}
	return p[:i]
}

// ActiveTab returns the tab to show: the user's selection while it still
// names an existing file, otherwise the most recently created file.
func ActiveTab(s session.State, selected string) string {
	if selected != "" {
		if _, ok := s.File(selected); ok {
			return selected
		}
	}
	if s.CurrentFile != "" {
		return s.CurrentFile
	}
	if paths := s.Paths(); len(paths) > 0 {
		return paths[len(paths)-1]
	}
	return ""
}

// StepTab moves delta tabs from current, wrapping at both ends.
func StepTab(paths []string, current string, delta int) string {
	if len(paths) == 0 {
		return ""
	}
	i := slices.Index(paths, current)
	if i < 0 {
		return paths[0]
	}
	n := len(paths)
	return paths[((i+delta)%n+n)%n]
}

// StatusLabel is the human label and colour class for a session status.
type StatusLabel struct {
	Text  string
	Color string // ANSI 256 colour code
}

// LabelFor maps a status onto its display label.
func LabelFor(st session.Status) StatusLabel {
	switch st {
	case session.StatusIdle:
		return StatusLabel{Text: "Idle", Color: "245"}
	case session.StatusStreaming:
		return StatusLabel{Text: "Streaming", Color: "39"}
	case session.StatusBuilding:
		return StatusLabel{Text: "Building", Color: "220"}
	case session.StatusPreviewReady:
		return StatusLabel{Text: "Preview Ready", Color: "141"}
	case session.StatusCompleted:
		return StatusLabel{Text: "Completed", Color: "42"}
	case session.StatusCancelled:
		return StatusLabel{Text: "Cancelled", Color: "208"}
	case session.StatusError:
		return StatusLabel{Text: "Error", Color: "196"}
	}
	return StatusLabel{Text: string(st), Color: "245"}
}

// Badge returns a short tag for a language.
func Badge(language string) string {
	switch strings.ToLower(language) {
	case "tsx", "typescript", "ts":
		return "TS"
	case "jsx", "javascript", "js":
		return "JS"
	case "css", "scss":
		return "CSS"
	case "json":
		return "{}"
	case "html":
		return "<>"
	case "go":
		return "GO"
	case "python", "py":
		return "PY"
	case "markdown", "md":
		return "MD"
	case "":
		return ".."
	}
	l := strings.ToUpper(language)
	if len(l) > 2 {
		l = l[:2]
	}
	return l
}

// FileStatusIcon is the marker shown next to a file in the tree.
func FileStatusIcon(st session.FileStatus) string {
	switch st {
	case session.FileCompleted:
		return "✓"
	case session.FileStreaming:
		return "●"
	}
	return "○"
}

type BuildRow struct {
	Step   string
	Status string
	Icon   string
	Output string
}

// BuildRows renders build steps in first-seen order with a status icon and
// the last line of output.
func BuildRows(steps []session.BuildStep) []BuildRow {
	rows := make([]BuildRow, 0, len(steps))
	for _, st := range steps {
		rows = append(rows, BuildRow{
			Step:   st.Step,
			Status: st.Status,
			Icon:   stepIcon(st.Status),
			Output: lastLine(st.Output),
		})
	}
	return rows
}

func stepIcon(status string) string {
	switch strings.ToLower(status) {
	case "completed":
		return "✓"
	case "running":
		return "◐"
	case "failed":
		return "✗"
	}
	return "○"
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n ")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return strings.TrimSpace(s)
}
