package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/workq/internal/model"
)

func queryCreateWorkPackage(ctx context.Context, db executor, wp *model.WorkPackage) error {
	fieldIDs := slices.Sorted(maps.Keys(wp.CustomValues))
	values := make([]string, len(fieldIDs))
	for i, id := range fieldIDs {
		values[i] = wp.CustomValues[id]
	}

	var estimated sql.NullFloat64
	if wp.EstimatedHours != nil {
		estimated = sql.NullFloat64{Float64: *wp.EstimatedHours, Valid: true}
	}

	err := db.QueryRowContext(ctx, `
		WITH wp AS (
			INSERT INTO work_packages (project_id, subject, description, type_id, status_id, priority_id,
				author_id, assigned_to_id, responsible_id, category_id, version_id, parent_id,
				start_date, due_date, estimated_hours, done_ratio)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			RETURNING id, created_at, updated_at
		), cv AS (
			INSERT INTO custom_values (customized_id, custom_field_id, value)
			SELECT wp.id, u.field_id, u.value
			FROM wp, unnest($17::bigint[], $18::text[]) AS u(field_id, value)
		)
		SELECT id, created_at, updated_at FROM wp`,
		wp.ProjectID,
		wp.Subject,
		nullString(wp.Description),
		wp.TypeID,
		wp.StatusID,
		nullInt64Ptr(wp.PriorityID),
		wp.AuthorID,
		nullInt64Ptr(wp.AssignedToID),
		nullInt64Ptr(wp.ResponsibleID),
		nullInt64Ptr(wp.CategoryID),
		nullInt64Ptr(wp.VersionID),
		nullInt64Ptr(wp.ParentID),
		nullDatePtr(wp.StartDate),
		nullDatePtr(wp.DueDate),
		estimated,
		wp.DoneRatio,
		pq.Array(fieldIDs),
		pq.Array(values),
	).Scan(&wp.ID, &wp.CreatedAt, &wp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create work package: %w", err)
	}
	return nil
}

func queryGetWorkPackage(ctx context.Context, db executor, id int64) (*model.WorkPackage, error) {
	row := db.QueryRowContext(ctx, `SELECT `+workPackageColumns+` FROM work_packages WHERE id = $1`, id)
	wp, err := scanWorkPackage(row)
	if err != nil {
		return nil, fmt.Errorf("get work package %d: %w", id, err)
	}

	values, err := queryCustomValues(ctx, db, []int64{id})
	if err != nil {
		return nil, err
	}
	wp.CustomValues = values[id]
	return wp, nil
}

// queryCustomValues loads the custom values of the given work packages,
// keyed by work package id then custom field id.
func queryCustomValues(ctx context.Context, db executor, ids []int64) (map[int64]map[int64]string, error) {
	out := make(map[int64]map[int64]string)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := db.QueryContext(ctx, `
		SELECT customized_id, custom_field_id, COALESCE(value, '')
		FROM custom_values
		WHERE customized_id = ANY($1)
		ORDER BY customized_id, custom_field_id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("load custom values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var wpID, fieldID int64
		var value string
		if err := rows.Scan(&wpID, &fieldID, &value); err != nil {
			return nil, fmt.Errorf("scan custom value: %w", err)
		}
		if out[wpID] == nil {
			out[wpID] = make(map[int64]string)
		}
		out[wpID][fieldID] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load custom values: %w", err)
	}
	return out, nil
}

func queryCreateCustomField(ctx context.Context, db executor, cf *model.CustomField) error {
	possible := cf.PossibleValues
	if possible == nil {
		possible = []string{}
	}
	err := db.QueryRowContext(ctx, `
		INSERT INTO custom_fields (name, field_format, possible_values, is_required, is_filter, searchable)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		cf.Name, string(cf.FieldFormat), pq.Array(possible), cf.IsRequired, cf.IsFilter, cf.Searchable,
	).Scan(&cf.ID)
	if err != nil {
		return fmt.Errorf("create custom field %q: %w", cf.Name, err)
	}
	return nil
}

func queryListCustomFields(ctx context.Context, db executor) ([]*model.CustomField, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+customFieldColumns+` FROM custom_fields ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list custom fields: %w", err)
	}
	fields, err := scanAll(rows, scanCustomField)
	if err != nil {
		return nil, fmt.Errorf("list custom fields: %w", err)
	}
	return fields, nil
}
