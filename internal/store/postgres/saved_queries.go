package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alfredjeanlab/workq/internal/query"
)

const savedQueryColumns = `id, user_id, project_id, name, public, starred, filters, sort_criteria,
	column_names, group_by, display_sums, include_subprojects, display, created_at, updated_at`

func scanSavedQuery(row scannable) (*query.Query, error) {
	var (
		q         query.Query
		projectID sql.NullInt64
		public    bool
		groupBy   sql.NullString
		persisted query.Persisted
	)
	err := row.Scan(
		&q.ID,
		&q.OwnerID,
		&projectID,
		&q.Name,
		&public,
		&q.Starred,
		&persisted.Filters,
		&persisted.SortColumns,
		&persisted.Columns,
		&groupBy,
		&q.DisplaySums,
		&q.IncludeSubprojects,
		&persisted.Display,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	q.ProjectID = int64Ptr(projectID)
	q.Visibility = query.Private
	if public {
		q.Visibility = query.Public
	}
	if groupBy.Valid && groupBy.String != "" {
		ref, err := query.ParseFieldRef(groupBy.String)
		if err != nil {
			return nil, fmt.Errorf("decode group by of query %d: %w", q.ID, err)
		}
		q.GroupBy = &ref
	}
	if err := query.DecodePersisted(&q, persisted); err != nil {
		return nil, fmt.Errorf("decode query %d: %w", q.ID, err)
	}
	return &q, nil
}

// savedQueryArgs returns the column values shared by insert and update.
func savedQueryArgs(q *query.Query) ([]any, error) {
	p, err := query.EncodePersisted(q)
	if err != nil {
		return nil, err
	}
	var groupBy sql.NullString
	if q.GroupBy != nil {
		groupBy = sql.NullString{String: q.GroupBy.String(), Valid: true}
	}
	return []any{
		q.OwnerID,
		nullInt64Ptr(q.ProjectID),
		q.Name,
		q.Visibility == query.Public,
		q.Starred,
		string(p.Filters),
		string(p.SortColumns),
		string(p.Columns),
		groupBy,
		q.DisplaySums,
		q.IncludeSubprojects,
		string(p.Display),
	}, nil
}

func queryCreateQuery(ctx context.Context, db executor, q *query.Query) error {
	args, err := savedQueryArgs(q)
	if err != nil {
		return fmt.Errorf("create query %q: %w", q.Name, err)
	}
	err = db.QueryRowContext(ctx, `
		INSERT INTO queries (user_id, project_id, name, public, starred, filters, sort_criteria,
			column_names, group_by, display_sums, include_subprojects, display)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`,
		args...,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create query %q: %w", q.Name, err)
	}
	return nil
}

func queryGetQuery(ctx context.Context, db executor, id int64) (*query.Query, error) {
	row := db.QueryRowContext(ctx, `SELECT `+savedQueryColumns+` FROM queries WHERE id = $1`, id)
	q, err := scanSavedQuery(row)
	if err != nil {
		return nil, fmt.Errorf("get query %d: %w", id, err)
	}
	return q, nil
}

// queryListVisibleQueries returns the queries owned by userID plus every
// public query. A non-nil projectID narrows the result to that project's
// queries and the global ones.
func queryListVisibleQueries(ctx context.Context, db executor, userID int64, projectID *int64) ([]*query.Query, error) {
	sqlText := `SELECT ` + savedQueryColumns + ` FROM queries WHERE (user_id = $1 OR public)`
	args := []any{userID}
	if projectID != nil {
		sqlText += ` AND (project_id = $2 OR project_id IS NULL)`
		args = append(args, *projectID)
	}
	sqlText += ` ORDER BY starred DESC, name, id`

	rows, err := db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	qs, err := scanAll(rows, scanSavedQuery)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	return qs, nil
}

func queryListAllQueries(ctx context.Context, db executor) ([]*query.Query, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+savedQueryColumns+` FROM queries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list all queries: %w", err)
	}
	qs, err := scanAll(rows, scanSavedQuery)
	if err != nil {
		return nil, fmt.Errorf("list all queries: %w", err)
	}
	return qs, nil
}

// queryReplaceQuery overwrites every stored attribute of q in a single
// statement. The owner never changes.
func queryReplaceQuery(ctx context.Context, db executor, q *query.Query) error {
	args, err := savedQueryArgs(q)
	if err != nil {
		return fmt.Errorf("replace query %d: %w", q.ID, err)
	}
	err = db.QueryRowContext(ctx, `
		UPDATE queries SET project_id = $2, name = $3, public = $4, starred = $5, filters = $6,
			sort_criteria = $7, column_names = $8, group_by = $9, display_sums = $10,
			include_subprojects = $11, display = $12, updated_at = now()
		WHERE id = $13 AND user_id = $1
		RETURNING updated_at`,
		append(args, q.ID)...,
	).Scan(&q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("replace query %d: %w", q.ID, err)
	}
	return nil
}

func queryDeleteQuery(ctx context.Context, db executor, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM queries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete query %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete query %d: %w", id, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
