package engine

import (
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/workq/internal/authz"
	"github.com/alfredjeanlab/workq/internal/model"
	"github.com/alfredjeanlab/workq/internal/query"
)

var (
	sqlFalse = sq.Expr("1 = 0")
	sqlTrue  = sq.Expr("1 = 1")
)

// binding carries the execution-time inputs a predicate may depend on.
type binding struct {
	auth *authz.Context
	now  time.Time
	loc  *time.Location
}

// whereClause ANDs the active-project restriction, the visibility
// predicate, the project scope, and every filter in order.
func whereClause(plan *query.Plan, b binding) (sq.And, error) {
	where := sq.And{}
	if !plan.IncludeArchived {
		where = append(where, sq.Expr("p.active"))
	}
	where = append(where, visibility(b.auth))
	if plan.ProjectID != nil {
		where = append(where, projectScope(*plan.ProjectID, plan.Subprojects))
	}
	for _, f := range plan.Filters {
		pred, err := translate(f, b)
		if err != nil {
			return nil, err
		}
		where = append(where, pred)
	}
	return where, nil
}

// visibility restricts rows to projects where the caller may view work
// packages. It is always part of the WHERE clause.
func visibility(auth *authz.Context) sq.Sqlizer {
	ids, all := auth.ProjectsWith(authz.ViewWorkPackages)
	switch {
	case all:
		return sqlTrue
	case len(ids) == 0:
		return sqlFalse
	}
	return sq.Expr("wp.project_id = ANY(?)", pq.Array(ids))
}

func projectScope(projectID int64, subprojects bool) sq.Sqlizer {
	if !subprojects {
		return sq.Eq{"wp.project_id": projectID}
	}
	return sq.Expr(`wp.project_id IN (
		WITH RECURSIVE scope(id) AS (
			SELECT id FROM projects WHERE id = ?
			UNION
			SELECT c.id FROM projects c JOIN scope s ON c.parent_id = s.id
		)
		SELECT id FROM scope)`, projectID)
}

// translate turns one compiled filter into a parameterized predicate.
// This switch is the only place operators meet SQL.
func translate(f query.CompiledFilter, b binding) (sq.Sqlizer, error) {
	col := f.Field.Column
	switch p := f.Predicate.(type) {
	case query.Equals:
		if f.Field.Type == query.TypeDateTime {
			days := make(sq.Or, 0, len(p.Values))
			for _, v := range p.Values {
				from := dayStart(v, b.loc)
				days = append(days, sq.And{sq.GtOrEq{col: from}, sq.Lt{col: from.AddDate(0, 0, 1)}})
			}
			return days, nil
		}
		vals := bindValues(f.Field, p.Values, b)
		if len(vals) == 0 {
			return sqlFalse, nil
		}
		return sq.Eq{col: vals}, nil
	case query.NotEquals:
		vals := bindValues(f.Field, p.Values, b)
		if len(vals) == 0 {
			return sqlTrue, nil
		}
		return sq.Or{sq.NotEq{col: vals}, sq.Eq{col: nil}}, nil
	case query.Contains:
		return sq.Expr(col+` ILIKE ? ESCAPE '\'`, likePattern(p.Text)), nil
	case query.NotContains:
		return sq.Or{sq.Eq{col: nil}, sq.Expr(col+` NOT ILIKE ? ESCAPE '\'`, likePattern(p.Text))}, nil
	case query.StartsWith:
		return sq.Expr(col+` ILIKE ? ESCAPE '\'`, likeEscaper.Replace(p.Text)+"%"), nil
	case query.EndsWith:
		return sq.Expr(col+` ILIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(p.Text)), nil
	case query.IsNull:
		return sq.Eq{col: nil}, nil
	case query.IsNotNull:
		return sq.NotEq{col: nil}, nil
	case query.GreaterThan:
		if f.Field.Type == query.TypeDateTime {
			return sq.GtOrEq{col: dayStart(p.Bound, b.loc).AddDate(0, 0, 1)}, nil
		}
		return sq.Gt{col: bindValue(f.Field, p.Bound.V)}, nil
	case query.LessThan:
		return sq.Lt{col: lowerBound(f.Field, p.Bound, b)}, nil
	case query.GreaterOrEqual:
		return sq.GtOrEq{col: lowerBound(f.Field, p.Bound, b)}, nil
	case query.LessOrEqual:
		return upperBound(f.Field, p.Bound, b), nil
	case query.Between:
		return sq.And{sq.GtOrEq{col: lowerBound(f.Field, p.Low, b)}, upperBound(f.Field, p.High, b)}, nil
	case query.Relative:
		from, to := p.Token.Range(b.now, b.loc)
		and := sq.And{}
		if from != nil {
			and = append(and, sq.GtOrEq{col: dateBind(f.Field, *from)})
		}
		if to != nil {
			and = append(and, sq.Lt{col: dateBind(f.Field, *to)})
		}
		return and, nil
	case query.Open:
		return sq.Expr(col + " IN (SELECT id FROM statuses WHERE NOT is_closed)"), nil
	case query.Closed:
		return sq.Expr(col + " IN (SELECT id FROM statuses WHERE is_closed)"), nil
	}
	return nil, fmt.Errorf("no translation for %T on %s", f.Predicate, f.Field.Ref)
}

// bindValues converts parsed filter values to bind arguments. "me" binds
// to the caller; an anonymous caller has no id and contributes nothing.
func bindValues(def *query.FieldDef, values []query.Value, b binding) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if v.Me {
			if id, ok := b.auth.CurrentUserID(); ok {
				out = append(out, id)
			}
			continue
		}
		out = append(out, bindValue(def, v.V))
	}
	return out
}

func bindValue(def *query.FieldDef, v any) any {
	if t, ok := v.(time.Time); ok && def.Type == query.TypeDate {
		return t.Format(model.DateLayout)
	}
	return v
}

// dayStart interprets a calendar date value as midnight in loc.
func dayStart(v query.Value, loc *time.Location) time.Time {
	t, _ := v.V.(time.Time)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// dateBind renders a day boundary for the column's type.
func dateBind(def *query.FieldDef, day time.Time) any {
	if def.Type == query.TypeDate {
		return day.Format(model.DateLayout)
	}
	return day
}

func lowerBound(def *query.FieldDef, v query.Value, b binding) any {
	if def.Type == query.TypeDateTime {
		return dayStart(v, b.loc)
	}
	return bindValue(def, v.V)
}

// upperBound is inclusive; on datetime columns it covers the whole day.
func upperBound(def *query.FieldDef, v query.Value, b binding) sq.Sqlizer {
	if def.Type == query.TypeDateTime {
		return sq.Lt{def.Column: dayStart(v, b.loc).AddDate(0, 0, 1)}
	}
	return sq.LtOrEq{def.Column: bindValue(def, v.V)}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(text string) string {
	return "%" + likeEscaper.Replace(text) + "%"
}

// orderBy renders the ORDER BY terms. Grouped results are ordered by the
// group key first so that detail rows line up with the group summary; the
// primary key always closes the list.
func orderBy(plan *query.Plan) []string {
	var terms []string
	if plan.GroupBy != nil {
		terms = append(terms, plan.GroupBy.Column+" ASC NULLS LAST")
	}
	hasID := false
	for _, s := range plan.Sort {
		if s.Field.Ref == query.IDField {
			hasID = true
		}
		if s.Desc {
			terms = append(terms, s.Field.Column+" DESC NULLS FIRST")
		} else {
			terms = append(terms, s.Field.Column+" ASC NULLS LAST")
		}
	}
	if !hasID {
		terms = append(terms, "wp.id ASC")
	}
	return terms
}
