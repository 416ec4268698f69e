package authz

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"testing"

	"github.com/alfredjeanlab/workq/internal/model"
)

type fakeSource struct {
	users       map[int64]*model.User
	memberships map[int64][]*model.Membership
	roles       []*model.Role
	public      []int64
}

func (f *fakeSource) GetUser(_ context.Context, id int64) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeSource) ListMembershipsByUser(_ context.Context, userID int64) ([]*model.Membership, error) {
	return f.memberships[userID], nil
}

func (f *fakeSource) ListRoles(context.Context) ([]*model.Role, error) {
	return f.roles, nil
}

func (f *fakeSource) ListPublicProjectIDs(context.Context) ([]int64, error) {
	return f.public, nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		users: map[int64]*model.User{
			1: {ID: 1, Login: "admin", Admin: true, Status: model.UserActive},
			2: {ID: 2, Login: "dev", Status: model.UserActive},
			3: {ID: 3, Login: "gone", Status: model.UserLocked},
		},
		memberships: map[int64][]*model.Membership{
			2: {{ProjectID: 10, UserID: 2, RoleIDs: []int64{100}}, {ProjectID: 11, UserID: 2, RoleIDs: []int64{101}}},
		},
		roles: []*model.Role{
			{ID: 100, Name: "Member", Permissions: []string{"view_work_packages", "edit_work_packages"}},
			{ID: 101, Name: "Reporter", Permissions: []string{"add_work_packages"}},
		},
		public: []int64{11, 12},
	}
}

func newTestResolver(t *testing.T, src *fakeSource, allowAnonymous bool) *Resolver {
	t.Helper()
	r, err := NewResolver(src, allowAnonymous, nil)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if err := r.LoadRoles(context.Background()); err != nil {
		t.Fatalf("LoadRoles: %v", err)
	}
	return r
}

func TestResolve_Member(t *testing.T) {
	r := newTestResolver(t, newFakeSource(), false)
	ac, err := r.Resolve(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	ids, all := ac.ProjectsWith(ViewWorkPackages)
	// 10 via the Member role, 12 as a non-member of a public project.
	// 11 is public but the Reporter role does not grant viewing.
	if all || !slices.Equal(ids, []int64{10, 12}) {
		t.Errorf("visible projects = %v, %v", ids, all)
	}
	if !ac.Allowed(11, AddWorkPackages) {
		t.Error("Reporter role should grant add_work_packages on 11")
	}
	if !ac.AllowedGlobally(SaveQueries) {
		t.Error("authenticated users should be able to save queries")
	}
}

func TestResolve_Admin(t *testing.T) {
	r := newTestResolver(t, newFakeSource(), false)
	ac, err := r.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, all := ac.ProjectsWith(ViewWorkPackages); !all {
		t.Error("admin should see all projects")
	}
}

func TestResolve_NoContext(t *testing.T) {
	r := newTestResolver(t, newFakeSource(), false)
	for _, id := range []int64{3, 42} {
		if _, err := r.Resolve(context.Background(), id); !errors.Is(err, ErrNoContext) {
			t.Errorf("Resolve(%d) error = %v, want ErrNoContext", id, err)
		}
	}
}

func TestAnonymous(t *testing.T) {
	src := newFakeSource()

	r := newTestResolver(t, src, false)
	if _, err := r.Anonymous(context.Background()); !errors.Is(err, ErrNoContext) {
		t.Errorf("Anonymous() with anonymous disabled error = %v", err)
	}

	r = newTestResolver(t, src, true)
	ac, err := r.Anonymous(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ids, _ := ac.ProjectsWith(ViewWorkPackages)
	if !slices.Equal(ids, []int64{11, 12}) {
		t.Errorf("anonymous visible projects = %v", ids)
	}
	if ac.AllowedGlobally(SaveQueries) {
		t.Error("anonymous callers must not save queries")
	}
}

func TestLoadRoles_ReplacesPermissions(t *testing.T) {
	src := newFakeSource()
	r := newTestResolver(t, src, false)

	src.roles[0].Permissions = []string{"edit_work_packages"}
	if err := r.LoadRoles(context.Background()); err != nil {
		t.Fatal(err)
	}
	ac, err := r.Resolve(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if ac.Allowed(10, ViewWorkPackages) {
		t.Error("stale view permission survived LoadRoles")
	}
}
