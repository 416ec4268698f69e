package query

import (
	"fmt"
	"slices"

	"github.com/alfredjeanlab/workq/internal/model"
)

// FieldType is the declared value type of a queryable field.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeText      FieldType = "text"
	TypeInteger   FieldType = "integer"
	TypeFloat     FieldType = "float"
	TypeDate      FieldType = "date"
	TypeDateTime  FieldType = "datetime"
	TypeBoolean   FieldType = "boolean"
	TypeUser      FieldType = "user"
	TypeReference FieldType = "reference"
	TypeStatus    FieldType = "status"
	TypeList      FieldType = "list"
)

// FieldDef is the schema entry for one queryable field.
type FieldDef struct {
	Ref  FieldRef
	Name string
	Type FieldType
	// Column is the SQL expression selecting the field, relative to the
	// work_packages alias "wp" and the projects alias "p".
	Column string
	// Values restricts list fields to a fixed set.
	Values []string

	Filterable bool
	Sortable   bool
	Groupable  bool
	Summable   bool
	Selectable bool
}

// Operators returns the operators legal for the field's type.
func (d *FieldDef) Operators() []Operator {
	return operatorsByType[d.Type]
}

// Allows reports whether op is legal for the field's type.
func (d *FieldDef) Allows(op Operator) bool {
	return slices.Contains(operatorsByType[d.Type], op)
}

// Registry is the immutable schema of queryable work-package fields.
type Registry struct {
	defs  map[FieldRef]*FieldDef
	order []*FieldDef
}

// builtinFields lists the work-package attributes in presentation order.
var builtinFields = []FieldDef{
	{Name: "id", Type: TypeInteger, Column: "wp.id", Filterable: true, Sortable: true, Selectable: true},
	{Name: "subject", Type: TypeString, Column: "wp.subject", Filterable: true, Sortable: true, Selectable: true},
	{Name: "description", Type: TypeText, Column: "wp.description", Filterable: true},
	{Name: "project", Type: TypeReference, Column: "wp.project_id", Filterable: true, Sortable: true, Groupable: true, Selectable: true},
	{Name: "type", Type: TypeReference, Column: "wp.type_id", Filterable: true, Sortable: true, Groupable: true, Selectable: true},
	{Name: "status", Type: TypeStatus, Column: "wp.status_id", Filterable: true, Sortable: true, Groupable: true, Selectable: true},
	{Name: "priority", Type: TypeReference, Column: "wp.priority_id", Filterable: true, Sortable: true, Groupable: true, Selectable: true},
	{Name: "author", Type: TypeUser, Column: "wp.author_id", Filterable: true, Sortable: true, Groupable: true, Selectable: true},
	{Name: "assignee", Type: TypeUser, Column: "wp.assigned_to_id", Filterable: true, Sortable: true, Groupable: true, Selectable: true},
	{Name: "responsible", Type: TypeUser, Column: "wp.responsible_id", Filterable: true, Sortable: true, Groupable: true, Selectable: true},
	{Name: "category", Type: TypeReference, Column: "wp.category_id", Filterable: true, Sortable: true, Groupable: true, Selectable: true},
	{Name: "version", Type: TypeReference, Column: "wp.version_id", Filterable: true, Sortable: true, Groupable: true, Selectable: true},
	{Name: "parent", Type: TypeReference, Column: "wp.parent_id", Filterable: true, Sortable: true, Selectable: true},
	{Name: "startDate", Type: TypeDate, Column: "wp.start_date", Filterable: true, Sortable: true, Selectable: true},
	{Name: "dueDate", Type: TypeDate, Column: "wp.due_date", Filterable: true, Sortable: true, Selectable: true},
	{Name: "estimatedTime", Type: TypeFloat, Column: "wp.estimated_hours", Filterable: true, Sortable: true, Summable: true, Selectable: true},
	{Name: "percentageDone", Type: TypeInteger, Column: "wp.done_ratio", Filterable: true, Sortable: true, Groupable: true, Summable: true, Selectable: true},
	{Name: "createdAt", Type: TypeDateTime, Column: "wp.created_at", Filterable: true, Sortable: true, Selectable: true},
	{Name: "updatedAt", Type: TypeDateTime, Column: "wp.updated_at", Filterable: true, Sortable: true, Selectable: true},
	{Name: "archived", Type: TypeBoolean, Column: "(NOT p.active)", Filterable: true},
}

// ArchivedField is the filter that lifts the active-project restriction.
var ArchivedField = Builtin("archived")

// IDField is the primary key, used as the ordering tiebreaker.
var IDField = Builtin("id")

// NewRegistry builds the schema from the built-in attributes plus the
// given custom fields.
func NewRegistry(customFields []*model.CustomField) *Registry {
	r := &Registry{defs: make(map[FieldRef]*FieldDef, len(builtinFields)+len(customFields))}
	for i := range builtinFields {
		d := builtinFields[i]
		d.Ref = Builtin(d.Name)
		r.add(&d)
	}
	for _, cf := range customFields {
		r.add(customFieldDef(cf))
	}
	return r
}

func (r *Registry) add(d *FieldDef) {
	r.defs[d.Ref] = d
	r.order = append(r.order, d)
}

// Lookup returns the definition of ref.
func (r *Registry) Lookup(ref FieldRef) (*FieldDef, bool) {
	d, ok := r.defs[ref]
	return d, ok
}

// Fields returns all definitions in presentation order.
func (r *Registry) Fields() []*FieldDef {
	return slices.Clone(r.order)
}

func customFieldDef(cf *model.CustomField) *FieldDef {
	d := &FieldDef{
		Ref:        Custom(cf.ID),
		Name:       cf.Name,
		Filterable: cf.IsFilter,
		Sortable:   true,
		Selectable: true,
	}
	value := fmt.Sprintf("(SELECT NULLIF(cv.value, '') FROM custom_values cv WHERE cv.customized_id = wp.id AND cv.custom_field_id = %d LIMIT 1)", cf.ID)
	switch cf.FieldFormat {
	case model.FormatInt:
		d.Type, d.Column, d.Groupable, d.Summable = TypeInteger, value+"::bigint", true, true
	case model.FormatFloat:
		d.Type, d.Column, d.Summable = TypeFloat, value+"::numeric", true
	case model.FormatDate:
		d.Type, d.Column = TypeDate, value+"::date"
	case model.FormatBool:
		d.Type, d.Column, d.Groupable = TypeBoolean, value+"::boolean", true
	case model.FormatUser:
		d.Type, d.Column, d.Groupable = TypeUser, value+"::bigint", true
	case model.FormatList:
		d.Type, d.Column, d.Groupable, d.Values = TypeList, value, true, slices.Clone(cf.PossibleValues)
	case model.FormatText:
		d.Type, d.Column, d.Sortable = TypeText, value, false
	default:
		d.Type, d.Column = TypeString, value
	}
	return d
}
