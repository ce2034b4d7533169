package tui

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/nixlim/genwatch/internal/events"
	"github.com/nixlim/genwatch/internal/notices"
	"github.com/nixlim/genwatch/internal/projection"
	"github.com/nixlim/genwatch/internal/session"
)

var (
	plainOK     = color.New(color.FgGreen)
	plainFail   = color.New(color.FgRed)
	plainWarn   = color.New(color.FgYellow)
	plainInfo   = color.New(color.FgCyan)
	plainDim    = color.New(color.Faint)
	plainStatus = color.New(color.Bold)
)

// PlainRenderer writes one line per activity event, for output that is not a
// terminal. Progress updates are thinned to one line per 10 percent.
type PlainRenderer struct {
	mu         sync.Mutex
	w          io.Writer
	lastDecile int
}

func NewPlainRenderer(w io.Writer) *PlainRenderer {
	return &PlainRenderer{w: w, lastDecile: -1}
}

// Event has the shape of a lifecycle event listener.
func (r *PlainRenderer) Event(fe events.FormattedEvent, st session.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch fe.EventType {
	case events.TypeStreamStart:
		r.lastDecile = -1
	case events.TypeProgressUpdate:
		decile := int(st.Counters.ProgressPercent) / 10
		if decile <= r.lastDecile {
			return
		}
		r.lastDecile = decile
	}

	ts := fe.Timestamp.Format("15:04:05")
	c := plainInfo
	switch {
	case fe.Success != nil && *fe.Success:
		c = plainOK
	case fe.Success != nil:
		c = plainFail
	case fe.EventType == events.TypeProgressUpdate:
		c = plainDim
	}
	_, _ = fmt.Fprintf(r.w, "%s %s\n", plainDim.Sprint(ts), c.Sprint(fe.Formatted))
}

// Notice prints a notice raised while the session runs.
func (r *PlainRenderer) Notice(n notices.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := plainInfo
	switch n.Severity {
	case notices.SeverityCritical:
		c = plainFail
	case notices.SeverityWarning:
		c = plainWarn
	}
	_, _ = c.Fprintf(r.w, "! [%s] %s\n", n.Kind, n.Message)
}

// Summary prints the closing block for a finished session.
func (r *PlainRenderer) Summary(st session.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	label := projection.LabelFor(st.Status())
	c := plainStatus
	switch st.Status() {
	case session.StatusCompleted:
		c = plainOK
	case session.StatusError:
		c = plainFail
	case session.StatusCancelled:
		c = plainWarn
	}
	_, _ = c.Fprintf(r.w, "%s: %s\n", label.Text, st.ID())

	cnt := st.Counters
	_, _ = fmt.Fprintf(r.w, "  files   %d/%d\n", cnt.CompletedFiles, max(cnt.TotalFiles, st.FileCount()))
	_, _ = fmt.Fprintf(r.w, "  tokens  %s\n", formatNumber(int64(cnt.StreamedTokens)))
	for _, f := range st.Files() {
		_, _ = fmt.Fprintf(r.w, "  %s %s\n", projection.FileStatusIcon(f.Status), f.Path)
	}
	if st.Preview != nil && st.Preview.URL != "" {
		_, _ = fmt.Fprintf(r.w, "  preview %s\n", st.Preview.URL)
	}
	if st.Error != "" {
		_, _ = plainFail.Fprintf(r.w, "  error   %s\n", st.Error)
	}
}
