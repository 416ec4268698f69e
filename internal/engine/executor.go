// Package engine executes work-package queries against PostgreSQL. It
// turns a validated query plus the caller's authorization context into
// parameterized SQL and returns one page of results with an independently
// counted total and, when requested, per-group aggregates.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/workq/internal/authz"
	"github.com/alfredjeanlab/workq/internal/metrics"
	"github.com/alfredjeanlab/workq/internal/model"
	"github.com/alfredjeanlab/workq/internal/query"
	"github.com/alfredjeanlab/workq/internal/store/postgres"
)

// DB is the storage handle the executor runs on. *sql.DB satisfies it.
type DB interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Options configures an Executor. Zero values take defaults.
type Options struct {
	Limits query.Limits
	// Location is the time zone relative-date tokens and calendar-date
	// bounds on timestamp columns resolve in.
	Location *time.Location
	// Timeout bounds a single execution; zero leaves it to the caller.
	Timeout time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

// Executor runs queries. It holds no per-request state and is safe for
// concurrent use.
type Executor struct {
	db      DB
	limits  query.Limits
	loc     *time.Location
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
	tracer  trace.Tracer
}

// New returns an Executor over db.
func New(db DB, opts Options) *Executor {
	e := &Executor{
		db:      db,
		limits:  opts.Limits,
		loc:     opts.Location,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		now:     opts.Now,
		tracer:  otel.Tracer("github.com/alfredjeanlab/workq/internal/engine"),
	}
	if e.limits.DefaultPageSize == 0 && e.limits.MaxPageSize == 0 {
		e.limits = query.DefaultLimits
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Limits returns the page size limits the executor validates against.
func (e *Executor) Limits() query.Limits {
	return e.limits
}

// Sums maps a summable field's wire name to its total.
type Sums map[string]float64

// Group is the summary of one group-by value. Value is the raw column
// value (an id for references) and nil for rows without one.
type Group struct {
	Value any   `json:"value"`
	Count int64 `json:"count"`
	Sums  Sums  `json:"sums,omitempty"`
}

// Result is one page of work packages. Total is counted under the same
// predicate as Items by a separate statement.
type Result struct {
	Items     []*model.WorkPackage
	Offset    int
	PageSize  int
	Total     int64
	Columns   []*query.FieldDef
	GroupBy   *query.FieldDef
	Groups    []Group
	TotalSums Sums
}

// Execute validates q against reg, then runs it for the caller described
// by auth. Validation failures return a *query.ValidationError before the
// database is touched.
func (e *Executor) Execute(ctx context.Context, reg *query.Registry, q *query.Query, auth *authz.Context) (*Result, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.Execute", trace.WithAttributes(
		attribute.Int("query.filters", q.Filters.Len()),
		attribute.Int("query.sort", len(q.Sort)),
		attribute.Bool("query.grouped", q.GroupBy != nil),
	))
	defer span.End()

	res, err := e.execute(ctx, reg, q, auth)
	metrics.QueryExecutions.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Debug("query failed", "query_id", q.ID, "err", err)
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.QueryDuration.WithLabelValues(strconv.FormatBool(res.GroupBy != nil)).Observe(elapsed.Seconds())
	span.SetAttributes(attribute.Int64("query.total", res.Total))
	e.logger.Debug("query executed",
		"query_id", q.ID,
		"total", res.Total,
		"returned", len(res.Items),
		"duration", elapsed,
	)
	return res, nil
}

func (e *Executor) execute(ctx context.Context, reg *query.Registry, q *query.Query, auth *authz.Context) (*Result, error) {
	if auth == nil {
		return nil, &AuthorizationError{Reason: "no caller context", Err: authz.ErrNoContext}
	}
	plan, err := q.Compile(reg, e.limits)
	if err != nil {
		return nil, err
	}
	if plan.ProjectID != nil && auth.Anonymous && !auth.Allowed(*plan.ProjectID, authz.ViewWorkPackages) {
		return nil, &AuthorizationError{
			Reason: fmt.Sprintf("anonymous access to project %d", *plan.ProjectID),
			Err:    authz.ErrNoContext,
		}
	}

	where, err := whereClause(plan, binding{auth: auth, now: e.now(), loc: e.loc})
	if err != nil {
		return nil, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, execError("begin", err)
	}
	defer tx.Rollback()

	res := &Result{
		Offset:   plan.Page.Offset,
		PageSize: plan.Page.Size,
		Columns:  plan.Columns,
		GroupBy:  plan.GroupBy,
	}
	if res.Total, res.TotalSums, err = e.count(ctx, tx, plan, where); err != nil {
		return nil, err
	}
	if plan.GroupBy != nil {
		if res.Groups, err = e.groups(ctx, tx, plan, where); err != nil {
			return nil, err
		}
	}
	if res.Items, err = e.page(ctx, tx, plan, where); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, execError("commit", err)
	}
	return res, nil
}

func selectFrom(columns ...string) sq.SelectBuilder {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select(columns...).
		From("work_packages wp").
		Join("projects p ON p.id = wp.project_id")
}

func sumColumns(sums []*query.FieldDef) []string {
	out := make([]string, len(sums))
	for i, d := range sums {
		out[i] = fmt.Sprintf("COALESCE(SUM(%s), 0)::double precision", d.Column)
	}
	return out
}

// count runs the COUNT over the full filtered set, with the totals of
// every summable field when sums are displayed.
func (e *Executor) count(ctx context.Context, tx *sql.Tx, plan *query.Plan, where sq.Sqlizer) (int64, Sums, error) {
	stmt, args, err := selectFrom(append([]string{"COUNT(*)"}, sumColumns(plan.Sums)...)...).
		Where(where).
		ToSql()
	if err != nil {
		return 0, nil, fmt.Errorf("build count query: %w", err)
	}

	var total int64
	values := make([]float64, len(plan.Sums))
	dest := []any{&total}
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := tx.QueryRowContext(ctx, stmt, args...).Scan(dest...); err != nil {
		return 0, nil, execError("count", err)
	}
	return total, sumsOf(plan.Sums, values), nil
}

// groups runs one aggregate over the full filtered set, keyed by the
// group-by column.
func (e *Executor) groups(ctx context.Context, tx *sql.Tx, plan *query.Plan, where sq.Sqlizer) ([]Group, error) {
	columns := append([]string{plan.GroupBy.Column + " AS group_value", "COUNT(*)"}, sumColumns(plan.Sums)...)
	stmt, args, err := selectFrom(columns...).
		Where(where).
		GroupBy("1").
		OrderBy("1 ASC NULLS LAST").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build group query: %w", err)
	}

	rows, err := tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, execError("group", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		values := make([]float64, len(plan.Sums))
		dest := []any{&g.Value, &g.Count}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, execError("group", err)
		}
		if b, ok := g.Value.([]byte); ok {
			g.Value = string(b)
		}
		g.Sums = sumsOf(plan.Sums, values)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, execError("group", err)
	}
	return groups, nil
}

// page fetches the requested slice of rows plus their custom values.
func (e *Executor) page(ctx context.Context, tx *sql.Tx, plan *query.Plan, where sq.Sqlizer) ([]*model.WorkPackage, error) {
	stmt, args, err := selectFrom(postgres.WorkPackageColumns("wp")...).
		Where(where).
		OrderBy(orderBy(plan)...).
		Limit(uint64(plan.Page.Size)).
		Offset(uint64(plan.Page.Offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build page query: %w", err)
	}

	rows, err := tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, execError("page", err)
	}
	defer rows.Close()

	items := []*model.WorkPackage{}
	ids := []int64{}
	for rows.Next() {
		wp, err := postgres.ScanWorkPackage(rows)
		if err != nil {
			return nil, execError("page", err)
		}
		items = append(items, wp)
		ids = append(ids, wp.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, execError("page", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return items, nil
	}
	values, err := postgres.LoadCustomValues(ctx, tx, ids)
	if err != nil {
		return nil, execError("custom values", err)
	}
	for _, wp := range items {
		wp.CustomValues = values[wp.ID]
	}
	return items, nil
}

func sumsOf(defs []*query.FieldDef, values []float64) Sums {
	if len(defs) == 0 {
		return nil
	}
	out := make(Sums, len(defs))
	for i, d := range defs {
		out[d.Ref.String()] = values[i]
	}
	return out
}

// outcome labels an execution result for metrics.
func outcome(err error) string {
	var (
		ve *query.ValidationError
		ae *AuthorizationError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ae):
		return "authorization"
	}
	return "execution"
}
