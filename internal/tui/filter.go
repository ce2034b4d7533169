package tui

import "github.com/nixlim/genwatch/internal/events"

// ActivityFilter holds the current filter state for the activity panel.
type ActivityFilter struct {
	// EventTypes is the set of event types to display. If empty, all types are shown.
	EventTypes map[events.Type]bool

	// FailureOnly when true shows only failed lines.
	FailureOnly bool
}

// AllEventTypes returns a map of every displayable event type set to true.
func AllEventTypes() map[events.Type]bool {
	return map[events.Type]bool{
		events.TypeStreamStart:    true,
		events.TypeFileCreated:    true,
		events.TypeFileUpdated:    true,
		events.TypeProgressUpdate: true,
		events.TypeBuildProgress:  true,
		events.TypePreviewReady:   true,
		events.TypeStreamComplete: true,
		events.TypeError:          true,
		events.TypeNote:           true,
	}
}

func NewActivityFilter() ActivityFilter {
	return ActivityFilter{EventTypes: AllEventTypes()}
}

// Matches returns true if the given line passes this filter.
func (f ActivityFilter) Matches(eventType events.Type, success *bool) bool {
	if len(f.EventTypes) > 0 && !f.EventTypes[eventType] {
		return false
	}
	if f.FailureOnly && (success == nil || *success) {
		return false
	}
	return true
}

// Apply returns the lines of evts that pass the filter, in order.
func (f ActivityFilter) Apply(evts []events.FormattedEvent) []events.FormattedEvent {
	out := make([]events.FormattedEvent, 0, len(evts))
	for _, e := range evts {
		if f.Matches(e.EventType, e.Success) {
			out = append(out, e)
		}
	}
	return out
}

// FilterMenuState tracks the interactive filter menu.
type FilterMenuState struct {
	Active  bool
	Cursor  int
	Options []FilterOption
}

// FilterOption represents one toggleable filter option in the filter menu.
type FilterOption struct {
	Label   string
	Key     string
	Enabled bool
}

const failureOnlyKey = "failure_only"

// NewFilterMenu creates a filter menu with every event type enabled.
func NewFilterMenu() FilterMenuState {
	return FilterMenuState{
		Options: []FilterOption{
			{Label: "Stream start/end", Key: string(events.TypeStreamStart), Enabled: true},
			{Label: "Files", Key: string(events.TypeFileCreated), Enabled: true},
			{Label: "Progress", Key: string(events.TypeProgressUpdate), Enabled: true},
			{Label: "Build", Key: string(events.TypeBuildProgress), Enabled: true},
			{Label: "Preview", Key: string(events.TypePreviewReady), Enabled: true},
			{Label: "Errors", Key: string(events.TypeError), Enabled: true},
			{Label: "Notes", Key: string(events.TypeNote), Enabled: true},
			{Label: "Failures only", Key: failureOnlyKey, Enabled: false},
		},
	}
}

// Filter converts the menu options into an ActivityFilter. Grouped options
// cover their sibling types.
func (fm FilterMenuState) Filter() ActivityFilter {
	f := ActivityFilter{EventTypes: make(map[events.Type]bool)}
	for _, opt := range fm.Options {
		if opt.Key == failureOnlyKey {
			f.FailureOnly = opt.Enabled
			continue
		}
		t := events.Type(opt.Key)
		f.EventTypes[t] = opt.Enabled
		switch t {
		case events.TypeStreamStart:
			f.EventTypes[events.TypeStreamComplete] = opt.Enabled
		case events.TypeFileCreated:
			f.EventTypes[events.TypeFileUpdated] = opt.Enabled
		}
	}
	return f
}
