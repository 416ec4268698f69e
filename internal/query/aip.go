package query

import (
	"fmt"
	"strconv"
	"strings"

	"go.einride.tech/aip/filtering"
	"go.einride.tech/aip/ordering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// declarations returns the AIP-160 identifier declarations for every
// filterable field in reg.
func declarations(reg *Registry) (*filtering.Declarations, error) {
	opts := []filtering.DeclarationOption{filtering.DeclareStandardFunctions()}
	for _, def := range reg.Fields() {
		if !def.Filterable {
			continue
		}
		opts = append(opts, filtering.DeclareIdent(def.Ref.String(), aipType(def.Type)))
	}
	return filtering.NewDeclarations(opts...)
}

func aipType(t FieldType) *expr.Type {
	switch t {
	case TypeInteger, TypeReference, TypeStatus:
		return filtering.TypeInt
	case TypeFloat:
		return filtering.TypeFloat
	case TypeBoolean:
		return filtering.TypeBool
	}
	// Dates and user references are written as strings ("2024-01-31", "me").
	return filtering.TypeString
}

// ParseAIPFilter translates an AIP-160 filter expression into filters.
// Supported forms are comparisons (=, !=, >, <, >=, <=) joined by AND, and ORs of
// equality on a single field, which become one multi-value filter. A ">="
// and "<=" pair on the same field becomes a Between filter.
func ParseAIPFilter(reg *Registry, s string) ([]Filter, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	decls, err := declarations(reg)
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(s, decls)
	if err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}

	b := &aipBuilder{bounds: map[string]*[2]string{}}
	if err := b.conjunction(parsed.CheckedExpr.GetExpr()); err != nil {
		return nil, err
	}
	return b.finish()
}

type aipBuilder struct {
	filters []Filter
	// bounds collects >= and <= per field until finish merges them.
	bounds map[string]*[2]string
	order  []string
}

func (b *aipBuilder) conjunction(e *expr.Expr) error {
	call, ok := e.GetExprKind().(*expr.Expr_CallExpr)
	if !ok {
		return fmt.Errorf("unsupported expression %T", e.GetExprKind())
	}
	switch fn := call.CallExpr.GetFunction(); fn {
	case "AND", "_&&_":
		for _, arg := range call.CallExpr.GetArgs() {
			if err := b.conjunction(arg); err != nil {
				return err
			}
		}
		return nil
	case "OR", "_||_":
		field, values, err := b.disjunction(e)
		if err != nil {
			return err
		}
		return b.add(NewFilter(mustRef(field), OpEquals, values...))
	case "=", "!=", ">", "<", ">=", "<=":
		field, value, err := comparison(call.CallExpr)
		if err != nil {
			return err
		}
		switch fn {
		case "=":
			return b.add(NewFilter(mustRef(field), OpEquals, value))
		case "!=":
			return b.add(NewFilter(mustRef(field), OpNotEquals, value))
		case ">":
			return b.add(NewFilter(mustRef(field), OpGreaterThan, value))
		case "<":
			return b.add(NewFilter(mustRef(field), OpLessThan, value))
		default:
			return b.bound(field, fn, value)
		}
	default:
		return fmt.Errorf("unsupported function %q", fn)
	}
}

// disjunction flattens an OR tree of equalities on one field.
func (b *aipBuilder) disjunction(e *expr.Expr) (string, []string, error) {
	call, ok := e.GetExprKind().(*expr.Expr_CallExpr)
	if !ok {
		return "", nil, fmt.Errorf("unsupported expression %T", e.GetExprKind())
	}
	switch call.CallExpr.GetFunction() {
	case "OR", "_||_":
		var field string
		var values []string
		for _, arg := range call.CallExpr.GetArgs() {
			f, vs, err := b.disjunction(arg)
			if err != nil {
				return "", nil, err
			}
			if field != "" && f != field {
				return "", nil, fmt.Errorf("OR is only supported between values of the same field")
			}
			field = f
			values = append(values, vs...)
		}
		return field, values, nil
	case "=":
		field, value, err := comparison(call.CallExpr)
		if err != nil {
			return "", nil, err
		}
		return field, []string{value}, nil
	}
	return "", nil, fmt.Errorf("OR is only supported between equality comparisons")
}

func (b *aipBuilder) add(f Filter) error {
	for _, existing := range b.filters {
		if existing.Field == f.Field {
			return fmt.Errorf("field %q is filtered more than once", f.Field)
		}
	}
	if _, ok := b.bounds[f.Field.String()]; ok {
		return fmt.Errorf("field %q is filtered more than once", f.Field)
	}
	b.filters = append(b.filters, f)
	b.order = append(b.order, f.Field.String())
	return nil
}

func (b *aipBuilder) bound(field, fn, value string) error {
	pair, ok := b.bounds[field]
	if !ok {
		for _, existing := range b.filters {
			if existing.Field.String() == field {
				return fmt.Errorf("field %q is filtered more than once", field)
			}
		}
		pair = &[2]string{}
		b.bounds[field] = pair
		b.order = append(b.order, field)
	}
	idx := 0
	if fn == "<=" {
		idx = 1
	}
	if pair[idx] != "" {
		return fmt.Errorf("field %q has more than one %s bound", field, fn)
	}
	pair[idx] = value
	return nil
}

// finish merges collected bounds and restores expression order.
func (b *aipBuilder) finish() ([]Filter, error) {
	byField := make(map[string]Filter, len(b.filters)+len(b.bounds))
	for _, f := range b.filters {
		byField[f.Field.String()] = f
	}
	for field, pair := range b.bounds {
		ref := mustRef(field)
		switch {
		case pair[0] != "" && pair[1] != "":
			byField[field] = NewFilter(ref, OpBetween, pair[0], pair[1])
		case pair[0] != "":
			byField[field] = NewFilter(ref, OpGreaterOrEqual, pair[0])
		default:
			byField[field] = NewFilter(ref, OpLessOrEqual, pair[1])
		}
	}
	out := make([]Filter, 0, len(b.order))
	for _, field := range b.order {
		out = append(out, byField[field])
	}
	return out, nil
}

func comparison(call *expr.Expr_Call) (string, string, error) {
	args := call.GetArgs()
	if len(args) != 2 {
		return "", "", fmt.Errorf("comparison requires 2 arguments")
	}
	ident, ok := args[0].GetExprKind().(*expr.Expr_IdentExpr)
	if !ok {
		return "", "", fmt.Errorf("expected field name on the left of %s", call.GetFunction())
	}
	value, err := constant(args[1])
	if err != nil {
		return "", "", err
	}
	return ident.IdentExpr.GetName(), value, nil
}

func constant(e *expr.Expr) (string, error) {
	c, ok := e.GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return "", fmt.Errorf("expected a constant value, got %T", e.GetExprKind())
	}
	switch kind := c.ConstExpr.GetConstantKind().(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_Int64Value:
		return strconv.FormatInt(kind.Int64Value, 10), nil
	case *expr.Constant_Uint64Value:
		return strconv.FormatUint(kind.Uint64Value, 10), nil
	case *expr.Constant_DoubleValue:
		return strconv.FormatFloat(kind.DoubleValue, 'f', -1, 64), nil
	case *expr.Constant_BoolValue:
		if kind.BoolValue {
			return "t", nil
		}
		return "f", nil
	}
	return "", fmt.Errorf("unsupported constant %T", c.ConstExpr.GetConstantKind())
}

// mustRef parses an identifier that the AIP checker already accepted.
func mustRef(name string) FieldRef {
	ref, err := ParseFieldRef(name)
	if err != nil {
		return Builtin(name)
	}
	return ref
}

// ParseAIPOrderBy translates an AIP-132 order_by string ("dueDate desc, id")
// into a sort order.
func ParseAIPOrderBy(s string) (SortOrder, error) {
	var ob ordering.OrderBy
	if err := ob.UnmarshalString(s); err != nil {
		return nil, fmt.Errorf("parse order_by: %w", err)
	}
	out := make(SortOrder, 0, len(ob.Fields))
	for _, f := range ob.Fields {
		ref, err := ParseFieldRef(f.Path)
		if err != nil {
			return nil, fmt.Errorf("parse order_by: %w", err)
		}
		dir := Asc
		if f.Desc {
			dir = Desc
		}
		out = append(out, SortCriterion{Field: ref, Direction: dir})
	}
	return out, nil
}
