package query

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/workq/internal/model"
)

// MeToken is the user-reference value bound to the caller at execution.
const MeToken = "me"

// Filter is a single field/operator/values predicate as written by a caller
// or loaded from storage. Values stay in their raw string form, including
// the "me" and relative-date tokens.
type Filter struct {
	Field    FieldRef `json:"field"`
	Operator Operator `json:"operator"`
	Values   []string `json:"values"`
}

// NewFilter returns a Filter with the given values.
func NewFilter(field FieldRef, op Operator, values ...string) Filter {
	return Filter{Field: field, Operator: op, Values: values}
}

// Validate checks f against the registry and returns a *ValidationError
// naming the field on failure.
func (f Filter) Validate(reg *Registry) error {
	_, ve := f.compile(reg)
	return ve.Err()
}

// Value is one parsed filter operand. Me marks the late-bound caller id;
// otherwise V holds an int64, float64, string, bool, or time.Time.
type Value struct {
	Me bool
	V  any
}

// Predicate is the validated form of a Filter. Each operator has exactly
// one implementation, and the engine translates them in a single switch.
type Predicate interface {
	operator() Operator
}

type (
	// Equals matches any of Values.
	Equals struct{ Values []Value }
	// NotEquals matches none of Values; NULL rows also match.
	NotEquals struct{ Values []Value }
	// Contains is a case-insensitive substring match.
	Contains struct{ Text string }
	// NotContains is the negation of Contains; NULL rows also match.
	NotContains struct{ Text string }
	// StartsWith is a case-insensitive prefix match.
	StartsWith struct{ Text string }
	// EndsWith is a case-insensitive suffix match.
	EndsWith struct{ Text string }
	// IsNull matches rows without a value.
	IsNull struct{}
	// IsNotNull matches rows with a value.
	IsNotNull struct{}
	// GreaterThan matches values strictly above Bound. On datetime fields
	// Bound is a whole day.
	GreaterThan struct{ Bound Value }
	// LessThan matches values strictly below Bound.
	LessThan struct{ Bound Value }
	// GreaterOrEqual matches values at or above Bound.
	GreaterOrEqual struct{ Bound Value }
	// LessOrEqual matches values at or below Bound.
	LessOrEqual struct{ Bound Value }
	// Between matches values in the inclusive range [Low, High].
	Between struct{ Low, High Value }
	// Relative matches dates inside the range Token resolves to.
	Relative struct{ Token RelativeToken }
	// Open matches work packages in a non-closed status.
	Open struct{}
	// Closed matches work packages in a closed status.
	Closed struct{}
)

func (Equals) operator() Operator         { return OpEquals }
func (NotEquals) operator() Operator      { return OpNotEquals }
func (Contains) operator() Operator       { return OpContains }
func (NotContains) operator() Operator    { return OpNotContains }
func (StartsWith) operator() Operator     { return OpStartsWith }
func (EndsWith) operator() Operator       { return OpEndsWith }
func (IsNull) operator() Operator         { return OpIsNull }
func (IsNotNull) operator() Operator      { return OpIsNotNull }
func (GreaterThan) operator() Operator    { return OpGreaterThan }
func (LessThan) operator() Operator       { return OpLessThan }
func (GreaterOrEqual) operator() Operator { return OpGreaterOrEqual }
func (LessOrEqual) operator() Operator    { return OpLessOrEqual }
func (Between) operator() Operator        { return OpBetween }
func (Relative) operator() Operator       { return OpRelative }
func (Open) operator() Operator           { return OpOpen }
func (Closed) operator() Operator         { return OpClosed }

// CompiledFilter pairs a resolved field with its predicate.
type CompiledFilter struct {
	Field     *FieldDef
	Predicate Predicate
}

func (f Filter) compile(reg *Registry) (CompiledFilter, *model.ValidationError) {
	ve := &model.ValidationError{}
	name := f.Field.String()
	if f.Field.IsZero() {
		ve.Add("filters", "field is required")
		return CompiledFilter{}, ve
	}
	def, ok := reg.Lookup(f.Field)
	if !ok {
		ve.Add(name, "unknown field")
		return CompiledFilter{}, ve
	}
	if !def.Filterable {
		ve.Add(name, "is not filterable")
		return CompiledFilter{}, ve
	}
	if !f.Operator.IsValid() {
		ve.Add(name, "unknown operator %q", f.Operator)
		return CompiledFilter{}, ve
	}
	if !def.Allows(f.Operator) {
		ve.Add(name, "operator %q is not allowed for %s fields", f.Operator, def.Type)
		return CompiledFilter{}, ve
	}
	if arity := f.Operator.Arity(); !arity.accepts(len(f.Values)) {
		ve.Add(name, "operator %q requires %s, got %d", f.Operator, arity, len(f.Values))
		return CompiledFilter{}, ve
	}

	values := make([]Value, len(f.Values))
	for i, raw := range f.Values {
		if f.Operator == OpRelative || f.Operator.matchesText() {
			break
		}
		v, err := parseValue(def, raw)
		if err != nil {
			ve.Add(name, "value %q %s", raw, err)
			continue
		}
		values[i] = v
	}
	if ve.HasErrors() {
		return CompiledFilter{}, ve
	}

	var pred Predicate
	switch f.Operator {
	case OpEquals:
		pred = Equals{Values: values}
	case OpNotEquals:
		pred = NotEquals{Values: values}
	case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		text := strings.TrimSpace(f.Values[0])
		if text == "" {
			ve.Add(name, "search text must not be empty")
			return CompiledFilter{}, ve
		}
		switch f.Operator {
		case OpContains:
			pred = Contains{Text: text}
		case OpNotContains:
			pred = NotContains{Text: text}
		case OpStartsWith:
			pred = StartsWith{Text: text}
		default:
			pred = EndsWith{Text: text}
		}
	case OpIsNull:
		pred = IsNull{}
	case OpIsNotNull:
		pred = IsNotNull{}
	case OpGreaterThan:
		pred = GreaterThan{Bound: values[0]}
	case OpLessThan:
		pred = LessThan{Bound: values[0]}
	case OpGreaterOrEqual:
		pred = GreaterOrEqual{Bound: values[0]}
	case OpLessOrEqual:
		pred = LessOrEqual{Bound: values[0]}
	case OpBetween:
		if compareValues(values[0], values[1]) > 0 {
			ve.Add(name, "range start %q is after range end %q", f.Values[0], f.Values[1])
			return CompiledFilter{}, ve
		}
		pred = Between{Low: values[0], High: values[1]}
	case OpRelative:
		tok, err := ParseRelativeToken(strings.TrimSpace(f.Values[0]))
		if err != nil {
			ve.Add(name, "%s", err)
			return CompiledFilter{}, ve
		}
		pred = Relative{Token: tok}
	case OpOpen:
		pred = Open{}
	case OpClosed:
		pred = Closed{}
	}
	return CompiledFilter{Field: def, Predicate: pred}, nil
}

func parseValue(def *FieldDef, raw string) (Value, error) {
	s := strings.TrimSpace(raw)
	switch def.Type {
	case TypeUser:
		if s == MeToken {
			return Value{Me: true}, nil
		}
		fallthrough
	case TypeInteger, TypeReference, TypeStatus:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("is not an integer")
		}
		return Value{V: n}, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("is not a number")
		}
		return Value{V: f}, nil
	case TypeDate, TypeDateTime:
		t, err := time.Parse(model.DateLayout, s)
		if err != nil {
			return Value{}, fmt.Errorf("is not a date (YYYY-MM-DD)")
		}
		return Value{V: t}, nil
	case TypeBoolean:
		switch s {
		case "t", "true", "1":
			return Value{V: true}, nil
		case "f", "false", "0":
			return Value{V: false}, nil
		}
		return Value{}, fmt.Errorf("is not a boolean")
	case TypeList:
		if !slices.Contains(def.Values, s) {
			return Value{}, fmt.Errorf("is not one of %v", def.Values)
		}
		return Value{V: s}, nil
	}
	return Value{V: raw}, nil
}

// compareValues orders two parsed values of the same type.
func compareValues(a, b Value) int {
	switch x := a.V.(type) {
	case int64:
		if y, ok := b.V.(int64); ok {
			return cmpOrdered(x, y)
		}
	case float64:
		if y, ok := b.V.(float64); ok {
			return cmpOrdered(x, y)
		}
	case time.Time:
		if y, ok := b.V.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return 0
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// FilterSet is an ordered collection of Filters with at most one Filter
// per field. The filters are AND-combined.
type FilterSet struct {
	filters []Filter
}

// NewFilterSet builds a set from filters, applying Add to each in turn.
func NewFilterSet(filters ...Filter) FilterSet {
	var fs FilterSet
	for _, f := range filters {
		fs.Add(f)
	}
	return fs
}

// Add inserts f, replacing in place any filter on the same field.
func (fs *FilterSet) Add(f Filter) {
	f.Values = slices.Clone(f.Values)
	for i := range fs.filters {
		if fs.filters[i].Field == f.Field {
			fs.filters[i] = f
			return
		}
	}
	fs.filters = append(fs.filters, f)
}

// Remove deletes the filter on field and reports whether one existed.
func (fs *FilterSet) Remove(field FieldRef) bool {
	for i := range fs.filters {
		if fs.filters[i].Field == field {
			fs.filters = slices.Delete(fs.filters, i, i+1)
			return true
		}
	}
	return false
}

// Get returns the filter on field, if present.
func (fs FilterSet) Get(field FieldRef) (Filter, bool) {
	for _, f := range fs.filters {
		if f.Field == field {
			return f, true
		}
	}
	return Filter{}, false
}

// Has reports whether a filter on field is present.
func (fs FilterSet) Has(field FieldRef) bool {
	_, ok := fs.Get(field)
	return ok
}

// Len returns the number of filters.
func (fs FilterSet) Len() int {
	return len(fs.filters)
}

// Filters returns a copy of the filters in order.
func (fs FilterSet) Filters() []Filter {
	out := make([]Filter, len(fs.filters))
	for i, f := range fs.filters {
		f.Values = slices.Clone(f.Values)
		out[i] = f
	}
	return out
}

// Validate merges the errors of every filter.
func (fs FilterSet) Validate(reg *Registry) error {
	_, ve := fs.compile(reg)
	return ve.Err()
}

func (fs FilterSet) compile(reg *Registry) ([]CompiledFilter, *model.ValidationError) {
	ve := &model.ValidationError{}
	out := make([]CompiledFilter, 0, len(fs.filters))
	for _, f := range fs.filters {
		cf, fe := f.compile(reg)
		if fe != nil {
			ve.Merge(fe)
			continue
		}
		out = append(out, cf)
	}
	return out, ve
}
