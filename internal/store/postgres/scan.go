package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/workq/internal/model"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanAll collects every row of rows with scan.
func scanAll[T any](rows *sql.Rows, scan func(scannable) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

const projectColumns = `id, identifier, name, description, public, active, parent_id, created_at, updated_at`

func scanProject(row scannable) (*model.Project, error) {
	var p model.Project
	var parentID sql.NullInt64
	err := row.Scan(&p.ID, &p.Identifier, &p.Name, &p.Description, &p.Public, &p.Active, &parentID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ParentID = int64Ptr(parentID)
	return &p, nil
}

const userColumns = `id, login, firstname, lastname, mail, admin, status, created_at`

func scanUser(row scannable) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.Firstname, &u.Lastname, &u.Mail, &u.Admin, &u.Status, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanRole(row scannable) (*model.Role, error) {
	var r model.Role
	if err := row.Scan(&r.ID, &r.Name, pq.Array(&r.Permissions)); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanMembership(row scannable) (*model.Membership, error) {
	var m model.Membership
	if err := row.Scan(&m.ID, &m.ProjectID, &m.UserID, &m.CreatedAt, pq.Array(&m.RoleIDs)); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanStatus(row scannable) (*model.Status, error) {
	var s model.Status
	if err := row.Scan(&s.ID, &s.Name, &s.IsClosed, &s.Position); err != nil {
		return nil, err
	}
	return &s, nil
}

var workPackageFields = []string{
	"id", "project_id", "subject", "description", "type_id", "status_id", "priority_id",
	"author_id", "assigned_to_id", "responsible_id", "category_id", "version_id", "parent_id",
	"start_date", "due_date", "estimated_hours", "done_ratio", "created_at", "updated_at",
}

var workPackageColumns = strings.Join(workPackageFields, ", ")

// WorkPackageColumns returns the columns ScanWorkPackage reads, qualified
// with the given table alias.
func WorkPackageColumns(alias string) []string {
	out := make([]string, len(workPackageFields))
	for i, f := range workPackageFields {
		out[i] = alias + "." + f
	}
	return out
}

// ScanWorkPackage scans the current row of rows, which must hold the
// columns listed by WorkPackageColumns.
func ScanWorkPackage(rows *sql.Rows) (*model.WorkPackage, error) {
	return scanWorkPackage(rows)
}

// LoadCustomValues returns the custom values of the given work packages,
// keyed by work package id then custom field id.
func LoadCustomValues(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]map[int64]string, error) {
	return queryCustomValues(ctx, tx, ids)
}

// scanWorkPackage scans a single row into a model.WorkPackage.
// The row must contain columns in the order defined by workPackageFields.
func scanWorkPackage(row scannable) (*model.WorkPackage, error) {
	var wp model.WorkPackage
	var (
		description    sql.NullString
		priorityID     sql.NullInt64
		assignedToID   sql.NullInt64
		responsibleID  sql.NullInt64
		categoryID     sql.NullInt64
		versionID      sql.NullInt64
		parentID       sql.NullInt64
		startDate      sql.NullTime
		dueDate        sql.NullTime
		estimatedHours sql.NullFloat64
	)
	err := row.Scan(
		&wp.ID,
		&wp.ProjectID,
		&wp.Subject,
		&description,
		&wp.TypeID,
		&wp.StatusID,
		&priorityID,
		&wp.AuthorID,
		&assignedToID,
		&responsibleID,
		&categoryID,
		&versionID,
		&parentID,
		&startDate,
		&dueDate,
		&estimatedHours,
		&wp.DoneRatio,
		&wp.CreatedAt,
		&wp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	wp.Description = description.String
	wp.PriorityID = int64Ptr(priorityID)
	wp.AssignedToID = int64Ptr(assignedToID)
	wp.ResponsibleID = int64Ptr(responsibleID)
	wp.CategoryID = int64Ptr(categoryID)
	wp.VersionID = int64Ptr(versionID)
	wp.ParentID = int64Ptr(parentID)
	wp.StartDate = timePtr(startDate)
	wp.DueDate = timePtr(dueDate)
	if estimatedHours.Valid {
		h := estimatedHours.Float64
		wp.EstimatedHours = &h
	}
	return &wp, nil
}

const customFieldColumns = `id, name, field_format, possible_values, is_required, is_filter, searchable`

func scanCustomField(row scannable) (*model.CustomField, error) {
	var cf model.CustomField
	err := row.Scan(&cf.ID, &cf.Name, &cf.FieldFormat, pq.Array(&cf.PossibleValues), &cf.IsRequired, &cf.IsFilter, &cf.Searchable)
	if err != nil {
		return nil, err
	}
	return &cf, nil
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// nullInt64Ptr converts a *int64 to a sql.NullInt64.
func nullInt64Ptr(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

// nullDatePtr formats a *time.Time as a DATE literal.
func nullDatePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(model.DateLayout), Valid: true}
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
