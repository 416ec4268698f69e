package query

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alfredjeanlab/workq/internal/model"
)

// ValidationError is the flat, field-scoped error list returned for any
// malformed query. It is the same type the domain model uses.
type ValidationError = model.ValidationError

// FieldError is one entry of a ValidationError.
type FieldError = model.FieldError

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection accepts "asc"/"desc" in any case; empty means ascending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	}
	return "", fmt.Errorf("invalid sort direction %q", s)
}

// SortCriterion orders by one field.
type SortCriterion struct {
	Field     FieldRef  `json:"field"`
	Direction Direction `json:"direction"`
}

// SortOrder lists sort criteria by priority. The primary key is always
// appended as a final ascending tiebreaker by the engine.
type SortOrder []SortCriterion

// Visibility controls who may see a saved query.
type Visibility string

const (
	Private Visibility = "private"
	Public  Visibility = "public"
)

// Page selects a window of results. A zero Size that was never set takes
// the configured default; an explicit zero is rejected.
type Page struct {
	Offset int `json:"offset"`
	Size   int `json:"pageSize"`

	sizeSet bool
}

// SetSize records an explicitly requested page size.
func (p *Page) SetSize(n int) {
	p.Size = n
	p.sizeSet = true
}

// HasSize reports whether a size was requested.
func (p Page) HasSize() bool {
	return p.sizeSet || p.Size != 0
}

// Limits bounds pagination.
type Limits struct {
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultLimits are used when no configuration overrides them.
var DefaultLimits = Limits{DefaultPageSize: 20, MaxPageSize: 1000}

// DefaultColumns are shown when a query names none.
var DefaultColumns = []FieldRef{
	Builtin("id"), Builtin("subject"), Builtin("type"), Builtin("status"), Builtin("assignee"), Builtin("priority"),
}

// Query is the aggregate root of a work-package query. A Query with ID 0
// is transient; persisted queries are replaced as a whole on update.
type Query struct {
	ID                 int64
	OwnerID            int64
	ProjectID          *int64
	Name               string
	Filters            FilterSet
	Sort               SortOrder
	Columns            []FieldRef
	GroupBy            *FieldRef
	DisplaySums        bool
	Visibility         Visibility
	Starred            bool
	IncludeSubprojects bool
	Display            Display
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// Page is per-request and never persisted.
	Page Page
}

// New returns a transient query owned by ownerID with default settings.
func New(ownerID int64) *Query {
	return &Query{
		OwnerID:    ownerID,
		Visibility: Private,
		Sort:       SortOrder{{Field: IDField, Direction: Desc}},
		Columns:    slices.Clone(DefaultColumns),
		Display:    DefaultDisplay(),
	}
}

// IsPersisted reports whether the query has been saved.
func (q *Query) IsPersisted() bool {
	return q.ID != 0
}

// AddFilter adds f, replacing any filter on the same field.
func (q *Query) AddFilter(f Filter) {
	q.Filters.Add(f)
}

// RemoveFilter removes the filter on field.
func (q *Query) RemoveFilter(field FieldRef) bool {
	return q.Filters.Remove(field)
}

// SetSort replaces the sort order.
func (q *Query) SetSort(order SortOrder) {
	q.Sort = slices.Clone(order)
}

// SetGroupBy sets or, with nil, clears the grouping field.
func (q *Query) SetGroupBy(field *FieldRef) {
	if field == nil {
		q.GroupBy = nil
		return
	}
	f := *field
	q.GroupBy = &f
}

// Clone returns a deep copy of q.
func (q *Query) Clone() *Query {
	c := *q
	c.Filters = NewFilterSet(q.Filters.Filters()...)
	c.Sort = slices.Clone(q.Sort)
	c.Columns = slices.Clone(q.Columns)
	if q.ProjectID != nil {
		id := *q.ProjectID
		c.ProjectID = &id
	}
	c.SetGroupBy(q.GroupBy)
	return &c
}

// Validate checks every filter plus the sort, grouping, column, and page
// rules, and returns a *ValidationError listing all failures.
func (q *Query) Validate(reg *Registry, limits Limits) error {
	_, err := q.Compile(reg, limits)
	return err
}

// ResolvedSort is a sort criterion bound to its field definition.
type ResolvedSort struct {
	Field *FieldDef
	Desc  bool
}

// Plan is a fully validated query ready for translation.
type Plan struct {
	Query       *Query
	Filters     []CompiledFilter
	Sort        []ResolvedSort
	Columns     []*FieldDef
	GroupBy     *FieldDef
	Sums        []*FieldDef
	Page        Page
	ProjectID   *int64
	Subprojects bool
	// IncludeArchived is set when an explicit filter asks for rows of
	// archived projects.
	IncludeArchived bool
}

// Compile validates q and resolves it against reg. An unset page size
// takes the configured default; sizes outside 1..max are rejected.
func (q *Query) Compile(reg *Registry, limits Limits) (*Plan, error) {
	filters, ve := q.Filters.compile(reg)

	plan := &Plan{Query: q, Filters: filters, ProjectID: q.ProjectID, Subprojects: q.IncludeSubprojects}

	seen := make(map[FieldRef]bool, len(q.Sort))
	for i, sc := range q.Sort {
		key := fmt.Sprintf("sortBy[%d]", i)
		def, ok := reg.Lookup(sc.Field)
		switch {
		case sc.Field.IsZero():
			ve.Add(key, "field is required")
			continue
		case !ok:
			ve.Add(sc.Field.String(), "unknown sort field")
			continue
		case !def.Sortable:
			ve.Add(sc.Field.String(), "is not sortable")
			continue
		case seen[sc.Field]:
			ve.Add(sc.Field.String(), "is sorted more than once")
			continue
		}
		seen[sc.Field] = true
		dir := sc.Direction
		if dir == "" {
			dir = Asc
		}
		if dir != Asc && dir != Desc {
			ve.Add(key, "invalid sort direction %q", sc.Direction)
			continue
		}
		plan.Sort = append(plan.Sort, ResolvedSort{Field: def, Desc: dir == Desc})
	}

	columns := q.Columns
	if len(columns) == 0 {
		columns = DefaultColumns
	}
	for _, ref := range columns {
		def, ok := reg.Lookup(ref)
		switch {
		case !ok:
			ve.Add(ref.String(), "unknown column")
		case !def.Selectable:
			ve.Add(ref.String(), "is not a selectable column")
		default:
			plan.Columns = append(plan.Columns, def)
		}
	}

	if q.GroupBy != nil {
		def, ok := reg.Lookup(*q.GroupBy)
		switch {
		case !ok:
			ve.Add("groupBy", "unknown field %q", q.GroupBy.String())
		case !def.Groupable:
			ve.Add("groupBy", "%q is not groupable", q.GroupBy.String())
		default:
			plan.GroupBy = def
		}
	}

	if q.DisplaySums {
		for _, def := range reg.Fields() {
			if def.Summable {
				plan.Sums = append(plan.Sums, def)
			}
		}
	}

	if q.Visibility != "" && q.Visibility != Private && q.Visibility != Public {
		ve.Add("visibility", "invalid value %q", q.Visibility)
	}
	q.Display.validate(ve)

	plan.Page = q.Page
	if !plan.Page.HasSize() {
		plan.Page.Size = limits.DefaultPageSize
	}
	switch {
	case plan.Page.Size < 1:
		ve.Add("pageSize", "must be at least 1, got %d", plan.Page.Size)
	case limits.MaxPageSize > 0 && plan.Page.Size > limits.MaxPageSize:
		ve.Add("pageSize", "must not exceed %d, got %d", limits.MaxPageSize, plan.Page.Size)
	}
	if plan.Page.Offset < 0 {
		ve.Add("offset", "must not be negative")
	}

	if err := ve.Err(); err != nil {
		return nil, err
	}

	plan.IncludeArchived = requestsArchived(plan.Filters)
	return plan, nil
}

// requestsArchived reports whether an archived filter admits archived rows.
func requestsArchived(filters []CompiledFilter) bool {
	for _, f := range filters {
		if f.Field.Ref != ArchivedField {
			continue
		}
		eq, ok := f.Predicate.(Equals)
		if !ok {
			return false
		}
		for _, v := range eq.Values {
			if v.V == true {
				return true
			}
		}
	}
	return false
}

// ValidateSaved applies the extra rules for persisting q.
func (q *Query) ValidateSaved(reg *Registry, limits Limits) error {
	var ve ValidationError
	if strings.TrimSpace(q.Name) == "" {
		ve.Add("name", "is required")
	} else if len([]rune(q.Name)) > 255 {
		ve.Add("name", "must be 255 characters or fewer")
	}
	if q.OwnerID <= 0 {
		ve.Add("user", "is required")
	}
	if err := q.Validate(reg, limits); err != nil {
		if nested, ok := err.(*ValidationError); ok {
			ve.Merge(nested)
		} else {
			return err
		}
	}
	return ve.Err()
}
