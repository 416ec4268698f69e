package query

import (
	"slices"
)

// Representation selects how clients render a result.
type Representation string

const (
	RepresentationList        Representation = "list"
	RepresentationBoard       Representation = "board"
	RepresentationGantt       Representation = "gantt"
	RepresentationCalendar    Representation = "calendar"
	RepresentationTeamPlanner Representation = "team_planner"
)

var representations = []Representation{
	RepresentationList, RepresentationBoard, RepresentationGantt, RepresentationCalendar, RepresentationTeamPlanner,
}

// HighlightingMode selects which attribute colors result rows.
type HighlightingMode string

const (
	HighlightNone     HighlightingMode = "none"
	HighlightInline   HighlightingMode = "inline"
	HighlightStatus   HighlightingMode = "status"
	HighlightPriority HighlightingMode = "priority"
	HighlightType     HighlightingMode = "type"
)

var highlightingModes = []HighlightingMode{
	HighlightNone, HighlightInline, HighlightStatus, HighlightPriority, HighlightType,
}

// ZoomLevel is the scale of the timeline view.
type ZoomLevel string

const (
	ZoomDays     ZoomLevel = "days"
	ZoomWeeks    ZoomLevel = "weeks"
	ZoomMonths   ZoomLevel = "months"
	ZoomQuarters ZoomLevel = "quarters"
	ZoomYears    ZoomLevel = "years"
	ZoomAuto     ZoomLevel = "auto"
)

var zoomLevels = []ZoomLevel{ZoomDays, ZoomWeeks, ZoomMonths, ZoomQuarters, ZoomYears, ZoomAuto}

// Display holds presentation settings. They are saved with the query and
// handed back to clients; they never change which rows match.
type Display struct {
	Representation  Representation   `json:"representation"`
	ShowHierarchies bool             `json:"showHierarchies"`
	Highlighting    HighlightingMode `json:"highlighting"`
	TimelineVisible bool             `json:"timelineVisible"`
	TimelineZoom    ZoomLevel        `json:"timelineZoom"`
	GroupsCollapsed bool             `json:"groupsCollapsed"`
}

// DefaultDisplay is a flat list with hierarchies shown and no highlighting.
func DefaultDisplay() Display {
	return Display{
		Representation:  RepresentationList,
		ShowHierarchies: true,
		Highlighting:    HighlightNone,
		TimelineZoom:    ZoomWeeks,
	}
}

func (d Display) validate(ve *ValidationError) {
	if !slices.Contains(representations, d.Representation) {
		ve.Add("displayRepresentation", "unknown representation %q", d.Representation)
	}
	if !slices.Contains(highlightingModes, d.Highlighting) {
		ve.Add("highlightingMode", "unknown highlighting mode %q", d.Highlighting)
	}
	if !slices.Contains(zoomLevels, d.TimelineZoom) {
		ve.Add("timelineZoomLevel", "unknown zoom level %q", d.TimelineZoom)
	}
}
