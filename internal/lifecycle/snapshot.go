package lifecycle

import (
	"time"

	"github.com/nixlim/genwatch/internal/events"
	"github.com/nixlim/genwatch/internal/notices"
	"github.com/nixlim/genwatch/internal/progress"
	"github.com/nixlim/genwatch/internal/session"
)

// Snapshot is everything a renderer needs for one frame.
type Snapshot struct {
	State     session.State
	Estimate  progress.Estimate
	StartedAt time.Time
	Streaming bool
	Activity  []events.FormattedEvent
	Notices   []notices.Notice
}

// HasSession reports whether the snapshot carries a session at all.
func (s Snapshot) HasSession() bool { return s.State.ID() != "" }

// Snapshot captures the controller for rendering. activity limits how many
// of the latest activity lines are included; zero means all.
func (c *Controller) Snapshot(activity int) Snapshot {
	c.mu.Lock()
	st := c.state
	started := c.startedAt
	streaming := c.handle != nil
	c.mu.Unlock()

	snap := Snapshot{
		State:     st,
		StartedAt: started,
		Streaming: streaming,
		Notices:   c.notices.Active(),
	}
	if activity > 0 {
		snap.Activity = c.activity.Tail(activity)
	} else {
		snap.Activity = c.activity.ListAll()
	}
	if st.ID() != "" {
		snap.Estimate = c.est.ComputeWithTime(st, started, c.now())
	}
	return snap
}
