package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/workq/internal/model"
)

func queryCreateProject(ctx context.Context, db executor, p *model.Project) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO projects (identifier, name, description, public, active, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		p.Identifier, p.Name, p.Description, p.Public, p.Active, nullInt64Ptr(p.ParentID),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create project %q: %w", p.Identifier, err)
	}
	return nil
}

func queryGetProject(ctx context.Context, db executor, id int64) (*model.Project, error) {
	row := db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	return p, nil
}

func queryListProjects(ctx context.Context, db executor) ([]*model.Project, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY identifier`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	projects, err := scanAll(rows, scanProject)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func queryListPublicProjectIDs(ctx context.Context, db executor) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM projects WHERE public ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list public projects: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan public project: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func querySetProjectActive(ctx context.Context, db executor, id int64, active bool) error {
	res, err := db.ExecContext(ctx,
		`UPDATE projects SET active = $1, updated_at = now() WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("set project %d active: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set project %d active: %w", id, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func queryCreateUser(ctx context.Context, db executor, u *model.User) error {
	if u.Status == "" {
		u.Status = model.UserActive
	}
	err := db.QueryRowContext(ctx, `
		INSERT INTO users (login, firstname, lastname, mail, admin, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		u.Login, u.Firstname, u.Lastname, u.Mail, u.Admin, string(u.Status),
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user %q: %w", u.Login, err)
	}
	return nil
}

func queryGetUser(ctx context.Context, db executor, id int64) (*model.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func queryGetUserByLogin(ctx context.Context, db executor, login string) (*model.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE login = $1`, login)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", login, err)
	}
	return u, nil
}

func queryCreateRole(ctx context.Context, db executor, r *model.Role) error {
	perms := r.Permissions
	if perms == nil {
		perms = []string{}
	}
	err := db.QueryRowContext(ctx,
		`INSERT INTO roles (name, permissions) VALUES ($1, $2) RETURNING id`,
		r.Name, pq.Array(perms),
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("create role %q: %w", r.Name, err)
	}
	return nil
}

func queryListRoles(ctx context.Context, db executor) ([]*model.Role, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, permissions FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	roles, err := scanAll(rows, scanRole)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// queryCreateMembership inserts the member row and its role links in one
// statement so it is atomic outside a transaction too.
func queryCreateMembership(ctx context.Context, db executor, m *model.Membership) error {
	roleIDs := m.RoleIDs
	if roleIDs == nil {
		roleIDs = []int64{}
	}
	err := db.QueryRowContext(ctx, `
		WITH member AS (
			INSERT INTO members (project_id, user_id)
			VALUES ($1, $2)
			RETURNING id, created_at
		), linked AS (
			INSERT INTO member_roles (member_id, role_id)
			SELECT member.id, r FROM member, unnest($3::bigint[]) AS r
		)
		SELECT id, created_at FROM member`,
		m.ProjectID, m.UserID, pq.Array(roleIDs),
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create membership of user %d in project %d: %w", m.UserID, m.ProjectID, err)
	}
	return nil
}

const membershipSelect = `
	SELECT m.id, m.project_id, m.user_id, m.created_at,
		COALESCE(array_agg(mr.role_id ORDER BY mr.role_id) FILTER (WHERE mr.role_id IS NOT NULL), '{}')
	FROM members m
	LEFT JOIN member_roles mr ON mr.member_id = m.id`

func queryListMembershipsByUser(ctx context.Context, db executor, userID int64) ([]*model.Membership, error) {
	rows, err := db.QueryContext(ctx,
		membershipSelect+` WHERE m.user_id = $1 GROUP BY m.id ORDER BY m.project_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships of user %d: %w", userID, err)
	}
	ms, err := scanAll(rows, scanMembership)
	if err != nil {
		return nil, fmt.Errorf("list memberships of user %d: %w", userID, err)
	}
	return ms, nil
}

func queryListMembershipsByProject(ctx context.Context, db executor, projectID int64) ([]*model.Membership, error) {
	rows, err := db.QueryContext(ctx,
		membershipSelect+` WHERE m.project_id = $1 GROUP BY m.id ORDER BY m.user_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list memberships of project %d: %w", projectID, err)
	}
	ms, err := scanAll(rows, scanMembership)
	if err != nil {
		return nil, fmt.Errorf("list memberships of project %d: %w", projectID, err)
	}
	return ms, nil
}

func queryListStatuses(ctx context.Context, db executor) ([]*model.Status, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, is_closed, position FROM statuses ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	statuses, err := scanAll(rows, scanStatus)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	return statuses, nil
}
