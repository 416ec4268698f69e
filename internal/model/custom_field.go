package model

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// FieldFormat is the value type of a custom field.
type FieldFormat string

const (
	FormatString FieldFormat = "string"
	FormatText   FieldFormat = "text"
	FormatInt    FieldFormat = "int"
	FormatFloat  FieldFormat = "float"
	FormatDate   FieldFormat = "date"
	FormatBool   FieldFormat = "bool"
	FormatUser   FieldFormat = "user"
	FormatList   FieldFormat = "list"
)

// IsValid reports whether f is a known field format.
func (f FieldFormat) IsValid() bool {
	switch f {
	case FormatString, FormatText, FormatInt, FormatFloat, FormatDate, FormatBool, FormatUser, FormatList:
		return true
	}
	return false
}

// CustomField is an admin-defined attribute attached to work packages.
type CustomField struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	FieldFormat    FieldFormat `json:"field_format"`
	PossibleValues []string    `json:"possible_values,omitempty"`
	IsRequired     bool        `json:"is_required"`
	IsFilter       bool        `json:"is_filter"`
	Searchable     bool        `json:"searchable"`
}

// Key returns the wire identifier of the field, e.g. "cf_3".
func (cf *CustomField) Key() string {
	return "cf_" + strconv.FormatInt(cf.ID, 10)
}

// DateLayout is the storage and wire layout of date values.
const DateLayout = "2006-01-02"

// ValidateCustomValues checks raw custom values against their field
// definitions. Unknown field ids, missing required values, and values that
// do not parse as the field format are all reported.
func ValidateCustomValues(values map[int64]string, defs []*CustomField) error {
	byID := make(map[int64]*CustomField, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}

	var ve ValidationError

	ids := make([]int64, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   "cf_" + strconv.FormatInt(id, 10),
				Message: "unknown custom field",
			})
		}
	}

	for _, d := range defs {
		raw, present := values[d.ID]
		if !present || strings.TrimSpace(raw) == "" {
			if d.IsRequired {
				ve.Errors = append(ve.Errors, FieldError{Field: d.Key(), Message: "is required"})
			}
			continue
		}
		if err := CheckCustomValue(d, raw); err != nil {
			ve.Errors = append(ve.Errors, FieldError{Field: d.Key(), Message: err.Error()})
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// CheckCustomValue reports whether raw parses as a value of the field's format.
func CheckCustomValue(d *CustomField, raw string) error {
	switch d.FieldFormat {
	case FormatString, FormatText:
	case FormatInt, FormatUser:
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			return fmt.Errorf("must be an integer")
		}
	case FormatFloat:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return fmt.Errorf("must be a number")
		}
	case FormatDate:
		if _, err := time.Parse(DateLayout, raw); err != nil {
			return fmt.Errorf("must be a date (YYYY-MM-DD)")
		}
	case FormatBool:
		if raw != "t" && raw != "f" && raw != "true" && raw != "false" && raw != "1" && raw != "0" {
			return fmt.Errorf("must be a boolean")
		}
	case FormatList:
		if !slices.Contains(d.PossibleValues, raw) {
			return fmt.Errorf("must be one of %v", d.PossibleValues)
		}
	default:
		return fmt.Errorf("unknown field format %q", d.FieldFormat)
	}
	return nil
}
