// Package query holds the work-package query model: filters, sort order,
// columns, grouping, and the saved/ad hoc Query aggregate that bundles them.
//
// Field names are resolved against a Registry before anything is compiled,
// so the engine only ever sees fields that exist and that permit the
// requested use.
package query

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldRef identifies a field as either a built-in attribute or a custom
// field. The zero value refers to nothing.
type FieldRef struct {
	name     string
	customID int64
}

// Builtin returns a reference to a built-in attribute.
func Builtin(name string) FieldRef {
	return FieldRef{name: name}
}

// Custom returns a reference to the custom field with the given id.
func Custom(id int64) FieldRef {
	return FieldRef{customID: id}
}

// IsZero reports whether r refers to nothing.
func (r FieldRef) IsZero() bool {
	return r.name == "" && r.customID == 0
}

// IsCustom reports whether r refers to a custom field.
func (r FieldRef) IsCustom() bool {
	return r.customID != 0
}

// CustomID returns the custom field id, or 0 for built-in fields.
func (r FieldRef) CustomID() int64 {
	return r.customID
}

// String returns the wire form: the attribute name, or "cf_<id>".
func (r FieldRef) String() string {
	if r.customID != 0 {
		return "cf_" + strconv.FormatInt(r.customID, 10)
	}
	return r.name
}

// MarshalText implements encoding.TextMarshaler.
func (r FieldRef) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *FieldRef) UnmarshalText(b []byte) error {
	ref, err := ParseFieldRef(string(b))
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

// fieldAliases maps legacy attribute spellings to registry names.
var fieldAliases = map[string]string{
	"assigned_to":     "assignee",
	"assigned_to_id":  "assignee",
	"author_id":       "author",
	"status_id":       "status",
	"type_id":         "type",
	"priority_id":     "priority",
	"project_id":      "project",
	"category_id":     "category",
	"version_id":      "version",
	"fixed_version":   "version",
	"parent_id":       "parent",
	"responsible_id":  "responsible",
	"start_date":      "startDate",
	"due_date":        "dueDate",
	"estimated_hours": "estimatedTime",
	"done_ratio":      "percentageDone",
	"created_at":      "createdAt",
	"updated_at":      "updatedAt",
}

// ParseFieldRef parses a wire identifier. "cf_<id>" and "customField<id>"
// name custom fields; anything else is a built-in attribute name.
// Existence is not checked here; see Registry.Lookup.
func ParseFieldRef(s string) (FieldRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return FieldRef{}, fmt.Errorf("field name is empty")
	}
	for _, prefix := range []string{"cf_", "customField"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			id, err := strconv.ParseInt(rest, 10, 64)
			if err != nil || id <= 0 {
				return FieldRef{}, fmt.Errorf("invalid custom field reference %q", s)
			}
			return Custom(id), nil
		}
	}
	for _, c := range s {
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return FieldRef{}, fmt.Errorf("invalid field name %q", s)
		}
	}
	if alias, ok := fieldAliases[s]; ok {
		s = alias
	}
	return Builtin(s), nil
}
