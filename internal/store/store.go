package store

import (
	"context"

	"github.com/alfredjeanlab/workq/internal/model"
	"github.com/alfredjeanlab/workq/internal/query"
)

// Store defines the persistence interface for projects, work packages,
// and saved queries. Lookups of missing rows return sql.ErrNoRows.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	ListProjects(ctx context.Context) ([]*model.Project, error)
	ListPublicProjectIDs(ctx context.Context) ([]int64, error)
	SetProjectActive(ctx context.Context, id int64, active bool) error

	// Users, roles, memberships
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	CreateRole(ctx context.Context, r *model.Role) error
	ListRoles(ctx context.Context) ([]*model.Role, error)
	CreateMembership(ctx context.Context, m *model.Membership) error
	ListMembershipsByUser(ctx context.Context, userID int64) ([]*model.Membership, error)
	ListMembershipsByProject(ctx context.Context, projectID int64) ([]*model.Membership, error)

	// Reference data
	ListStatuses(ctx context.Context) ([]*model.Status, error)

	// Work packages
	CreateWorkPackage(ctx context.Context, wp *model.WorkPackage) error
	GetWorkPackage(ctx context.Context, id int64) (*model.WorkPackage, error)

	// Custom fields
	CreateCustomField(ctx context.Context, cf *model.CustomField) error
	ListCustomFields(ctx context.Context) ([]*model.CustomField, error)

	// Saved queries
	CreateQuery(ctx context.Context, q *query.Query) error
	GetQuery(ctx context.Context, id int64) (*query.Query, error)
	ListVisibleQueries(ctx context.Context, userID int64, projectID *int64) ([]*query.Query, error)
	ListAllQueries(ctx context.Context) ([]*query.Query, error)
	ReplaceQuery(ctx context.Context, q *query.Query) error
	DeleteQuery(ctx context.Context, id int64) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
