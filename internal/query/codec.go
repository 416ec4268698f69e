package query

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// filterJSON is the wire form of a Filter.
type filterJSON struct {
	Field    string   `json:"field"`
	Operator string   `json:"operator"`
	Values   []string `json:"values"`
}

// MarshalJSON writes the filter with its operator in canonical form.
func (f Filter) MarshalJSON() ([]byte, error) {
	values := f.Values
	if values == nil {
		values = []string{}
	}
	return json.Marshal(filterJSON{Field: f.Field.String(), Operator: string(f.Operator), Values: values})
}

// UnmarshalJSON reads a filter. Unparseable field names and operators are
// kept verbatim so that validation can report them against the field.
func (f *Filter) UnmarshalJSON(b []byte) error {
	var raw filterJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*f = decodeFilter(raw.Field, raw.Operator, raw.Values)
	return nil
}

func decodeFilter(field, op string, values []string) Filter {
	ref, err := ParseFieldRef(field)
	if err != nil {
		ref = Builtin(field)
	}
	canon, vals, err := NormalizeOperator(op, values)
	if err != nil {
		return Filter{Field: ref, Operator: Operator(op), Values: values}
	}
	return Filter{Field: ref, Operator: canon, Values: vals}
}

// MarshalJSON writes the filters as an ordered list.
func (fs FilterSet) MarshalJSON() ([]byte, error) {
	if fs.filters == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(fs.filters)
}

// UnmarshalJSON reads an ordered list of filters. A later filter on an
// already-present field replaces the earlier one in place.
func (fs *FilterSet) UnmarshalJSON(b []byte) error {
	var filters []Filter
	if err := json.Unmarshal(b, &filters); err != nil {
		return err
	}
	*fs = NewFilterSet(filters...)
	return nil
}

// UnmarshalJSON reads a sort criterion, tolerating an unknown direction
// so validation can report it.
func (sc *SortCriterion) UnmarshalJSON(b []byte) error {
	var raw struct {
		Field     string `json:"field"`
		Direction string `json:"direction"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ref, err := ParseFieldRef(raw.Field)
	if err != nil {
		ref = Builtin(raw.Field)
	}
	dir, err := ParseDirection(raw.Direction)
	if err != nil {
		dir = Direction(raw.Direction)
	}
	*sc = SortCriterion{Field: ref, Direction: dir}
	return nil
}

// Transport is the request/response shape of a Query. Lists keep their
// order on the wire.
type Transport struct {
	ID                    int64            `json:"id,omitempty"`
	Name                  string           `json:"name,omitempty"`
	OwnerID               int64            `json:"user_id,omitempty"`
	ProjectID             *int64           `json:"project_id,omitempty"`
	Filters               FilterSet        `json:"filters"`
	SortBy                SortOrder        `json:"sortBy"`
	Columns               []FieldRef       `json:"columns"`
	GroupBy               *FieldRef        `json:"groupBy,omitempty"`
	DisplaySums           bool             `json:"sums"`
	Public                bool             `json:"public"`
	Starred               bool             `json:"starred"`
	IncludeSubprojects    bool             `json:"includeSubprojects"`
	DisplayRepresentation Representation   `json:"displayRepresentation,omitempty"`
	ShowHierarchies       *bool            `json:"showHierarchies,omitempty"`
	HighlightingMode      HighlightingMode `json:"highlightingMode,omitempty"`
	TimelineVisible       bool             `json:"timelineVisible"`
	TimelineZoomLevel     ZoomLevel        `json:"timelineZoomLevel,omitempty"`
	GroupsCollapsed       bool             `json:"groupsCollapsed"`
	Offset                int              `json:"offset,omitempty"`
	PageSize              *int             `json:"pageSize,omitempty"`
	CreatedAt             *time.Time       `json:"createdAt,omitempty"`
	UpdatedAt             *time.Time       `json:"updatedAt,omitempty"`
}

// ToTransport converts q to its transport shape.
func (q *Query) ToTransport() Transport {
	showHierarchies := q.Display.ShowHierarchies
	t := Transport{
		ID:                    q.ID,
		Name:                  q.Name,
		OwnerID:               q.OwnerID,
		ProjectID:             q.ProjectID,
		Filters:               NewFilterSet(q.Filters.Filters()...),
		SortBy:                append(SortOrder{}, q.Sort...),
		Columns:               append([]FieldRef{}, q.Columns...),
		GroupBy:               q.GroupBy,
		DisplaySums:           q.DisplaySums,
		Public:                q.Visibility == Public,
		Starred:               q.Starred,
		IncludeSubprojects:    q.IncludeSubprojects,
		DisplayRepresentation: q.Display.Representation,
		ShowHierarchies:       &showHierarchies,
		HighlightingMode:      q.Display.Highlighting,
		TimelineVisible:       q.Display.TimelineVisible,
		TimelineZoomLevel:     q.Display.TimelineZoom,
		GroupsCollapsed:       q.Display.GroupsCollapsed,
		Offset:                q.Page.Offset,
	}
	if q.Page.HasSize() {
		size := q.Page.Size
		t.PageSize = &size
	}
	if !q.CreatedAt.IsZero() {
		c, u := q.CreatedAt, q.UpdatedAt
		t.CreatedAt, t.UpdatedAt = &c, &u
	}
	return t
}

// FromTransport builds a Query from its transport shape. The owner is
// taken from the caller, never from the payload.
func FromTransport(t Transport, ownerID int64) *Query {
	q := New(ownerID)
	q.ID = t.ID
	q.Name = strings.TrimSpace(t.Name)
	q.ProjectID = t.ProjectID
	q.Filters = NewFilterSet(t.Filters.Filters()...)
	if t.SortBy != nil {
		q.SetSort(t.SortBy)
	}
	if t.Columns != nil {
		q.Columns = append([]FieldRef{}, t.Columns...)
	}
	q.SetGroupBy(t.GroupBy)
	q.DisplaySums = t.DisplaySums
	if t.Public {
		q.Visibility = Public
	}
	q.Starred = t.Starred
	q.IncludeSubprojects = t.IncludeSubprojects
	if t.DisplayRepresentation != "" {
		q.Display.Representation = t.DisplayRepresentation
	}
	if t.ShowHierarchies != nil {
		q.Display.ShowHierarchies = *t.ShowHierarchies
	}
	if t.HighlightingMode != "" {
		q.Display.Highlighting = t.HighlightingMode
	}
	q.Display.TimelineVisible = t.TimelineVisible
	if t.TimelineZoomLevel != "" {
		q.Display.TimelineZoom = t.TimelineZoomLevel
	}
	q.Display.GroupsCollapsed = t.GroupsCollapsed
	q.Page = Page{Offset: t.Offset}
	if t.PageSize != nil {
		q.Page.SetSize(*t.PageSize)
	}
	return q
}

// Persisted holds the JSON columns a saved query is stored as.
type Persisted struct {
	Filters     []byte
	SortColumns []byte
	Columns     []byte
	Display     []byte
}

// EncodePersisted serializes the ordered parts of q for storage. Sort
// criteria are stored as [field, direction] pairs.
func EncodePersisted(q *Query) (Persisted, error) {
	filters, err := json.Marshal(q.Filters)
	if err != nil {
		return Persisted{}, fmt.Errorf("encode filters: %w", err)
	}
	pairs := make([][2]string, len(q.Sort))
	for i, sc := range q.Sort {
		dir := sc.Direction
		if dir == "" {
			dir = Asc
		}
		pairs[i] = [2]string{sc.Field.String(), string(dir)}
	}
	sorts, err := json.Marshal(pairs)
	if err != nil {
		return Persisted{}, fmt.Errorf("encode sort criteria: %w", err)
	}
	names := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		names[i] = c.String()
	}
	columns, err := json.Marshal(names)
	if err != nil {
		return Persisted{}, fmt.Errorf("encode columns: %w", err)
	}
	display, err := json.Marshal(q.Display)
	if err != nil {
		return Persisted{}, fmt.Errorf("encode display settings: %w", err)
	}
	return Persisted{Filters: filters, SortColumns: sorts, Columns: columns, Display: display}, nil
}

// DecodePersisted restores the ordered parts of q from storage.
func DecodePersisted(q *Query, p Persisted) error {
	var fs FilterSet
	if len(p.Filters) > 0 {
		if err := json.Unmarshal(p.Filters, &fs); err != nil {
			return fmt.Errorf("decode filters: %w", err)
		}
	}
	q.Filters = fs

	var pairs [][]string
	if len(p.SortColumns) > 0 {
		if err := json.Unmarshal(p.SortColumns, &pairs); err != nil {
			return fmt.Errorf("decode sort criteria: %w", err)
		}
	}
	sort, err := sortFromPairs(pairs)
	if err != nil {
		return err
	}
	q.Sort = sort

	var names []string
	if len(p.Columns) > 0 {
		if err := json.Unmarshal(p.Columns, &names); err != nil {
			return fmt.Errorf("decode columns: %w", err)
		}
	}
	q.Columns = nil
	for _, n := range names {
		ref, err := ParseFieldRef(n)
		if err != nil {
			return fmt.Errorf("decode columns: %w", err)
		}
		q.Columns = append(q.Columns, ref)
	}

	// Keys missing from the stored object keep their defaults.
	q.Display = DefaultDisplay()
	if len(p.Display) > 0 {
		if err := json.Unmarshal(p.Display, &q.Display); err != nil {
			return fmt.Errorf("decode display settings: %w", err)
		}
	}
	return nil
}

func sortFromPairs(pairs [][]string) (SortOrder, error) {
	out := make(SortOrder, 0, len(pairs))
	for _, p := range pairs {
		if len(p) == 0 || len(p) > 2 {
			return nil, fmt.Errorf("sort criterion must be [field, direction], got %v", p)
		}
		ref, err := ParseFieldRef(p[0])
		if err != nil {
			ref = Builtin(p[0])
		}
		dir := Asc
		if len(p) == 2 {
			d, err := ParseDirection(p[1])
			if err != nil {
				d = Direction(p[1])
			}
			dir = d
		}
		out = append(out, SortCriterion{Field: ref, Direction: dir})
	}
	return out, nil
}
