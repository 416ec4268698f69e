package server

import (
	"cmp"
	"context"
	"database/sql"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/alfredjeanlab/workq/internal/model"
	"github.com/alfredjeanlab/workq/internal/query"
	"github.com/alfredjeanlab/workq/internal/store"
)

// memStore is an in-memory store.Store for handler tests.
type memStore struct {
	mu sync.Mutex

	nextID       int64
	projects     map[int64]*model.Project
	users        map[int64]*model.User
	roles        []*model.Role
	memberships  []*model.Membership
	statuses     []*model.Status
	workPackages map[int64]*model.WorkPackage
	customFields []*model.CustomField
	queries      map[int64]*query.Query

	listErr error
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		nextID:       1000,
		projects:     make(map[int64]*model.Project),
		users:        make(map[int64]*model.User),
		workPackages: make(map[int64]*model.WorkPackage),
		queries:      make(map[int64]*query.Query),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func sortedValues[T any](in map[int64]T) []T {
	out := make([]T, 0, len(in))
	for _, k := range slices.Sorted(maps.Keys(in)) {
		out = append(out, in[k])
	}
	return out
}

func (m *memStore) CreateProject(_ context.Context, p *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.id()
	}
	p.CreatedAt, p.UpdatedAt = time.Now(), time.Now()
	m.projects[p.ID] = p
	return nil
}

func (m *memStore) GetProject(_ context.Context, id int64) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (m *memStore) ListProjects(context.Context) ([]*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedValues(m.projects), nil
}

func (m *memStore) ListPublicProjectIDs(context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, p := range sortedValues(m.projects) {
		if p.Public {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

func (m *memStore) SetProjectActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Active = active
	return nil
}

func (m *memStore) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		u.ID = m.id()
	}
	if u.Status == "" {
		u.Status = model.UserActive
	}
	m.users[u.ID] = u
	return nil
}

func (m *memStore) GetUser(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *memStore) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Login == login {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) CreateRole(_ context.Context, r *model.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = m.id()
	}
	m.roles = append(m.roles, r)
	return nil
}

func (m *memStore) ListRoles(context.Context) ([]*model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.roles), nil
}

func (m *memStore) CreateMembership(_ context.Context, ms *model.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms.ID = m.id()
	ms.CreatedAt = time.Now()
	m.memberships = append(m.memberships, ms)
	return nil
}

func (m *memStore) ListMembershipsByUser(_ context.Context, userID int64) ([]*model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Membership
	for _, ms := range m.memberships {
		if ms.UserID == userID {
			out = append(out, ms)
		}
	}
	return out, nil
}

func (m *memStore) ListMembershipsByProject(_ context.Context, projectID int64) ([]*model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Membership
	for _, ms := range m.memberships {
		if ms.ProjectID == projectID {
			out = append(out, ms)
		}
	}
	return out, nil
}

func (m *memStore) ListStatuses(context.Context) ([]*model.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.statuses), nil
}

func (m *memStore) CreateWorkPackage(_ context.Context, wp *model.WorkPackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wp.ID = m.id()
	wp.CreatedAt, wp.UpdatedAt = time.Now(), time.Now()
	m.workPackages[wp.ID] = wp
	return nil
}

func (m *memStore) GetWorkPackage(_ context.Context, id int64) (*model.WorkPackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wp, ok := m.workPackages[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return wp, nil
}

func (m *memStore) CreateCustomField(_ context.Context, cf *model.CustomField) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cf.ID = m.id()
	m.customFields = append(m.customFields, cf)
	return nil
}

func (m *memStore) ListCustomFields(context.Context) ([]*model.CustomField, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return slices.Clone(m.customFields), nil
}

func (m *memStore) CreateQuery(_ context.Context, q *query.Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.ID = m.id()
	q.CreatedAt, q.UpdatedAt = time.Now(), time.Now()
	m.queries[q.ID] = q.Clone()
	return nil
}

func (m *memStore) GetQuery(_ context.Context, id int64) (*query.Query, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queries[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return q.Clone(), nil
}

func (m *memStore) ListVisibleQueries(_ context.Context, userID int64, projectID *int64) ([]*query.Query, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*query.Query
	for _, q := range sortedValues(m.queries) {
		if q.OwnerID != userID && q.Visibility != query.Public {
			continue
		}
		if projectID != nil && q.ProjectID != nil && *q.ProjectID != *projectID {
			continue
		}
		out = append(out, q.Clone())
	}
	slices.SortStableFunc(out, func(a, b *query.Query) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *memStore) ListAllQueries(context.Context) ([]*query.Query, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedValues(m.queries), nil
}

func (m *memStore) ReplaceQuery(_ context.Context, q *query.Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.queries[q.ID]
	if !ok || old.OwnerID != q.OwnerID {
		return sql.ErrNoRows
	}
	q.UpdatedAt = time.Now()
	m.queries[q.ID] = q.Clone()
	return nil
}

func (m *memStore) DeleteQuery(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queries[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.queries, id)
	return nil
}

func (m *memStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *memStore) Close() error { return nil }
