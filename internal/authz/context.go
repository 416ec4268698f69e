// Package authz derives what a caller may see and do. It produces the
// Context the query engine turns into a row-visibility predicate.
package authz

import (
	"errors"
	"slices"
)

// Permission names an action that roles grant.
type Permission string

const (
	ViewWorkPackages    Permission = "view_work_packages"
	AddWorkPackages     Permission = "add_work_packages"
	EditWorkPackages    Permission = "edit_work_packages"
	DeleteWorkPackages  Permission = "delete_work_packages"
	SaveQueries         Permission = "save_queries"
	ManagePublicQueries Permission = "manage_public_queries"
	ManageMembers       Permission = "manage_members"
	AddProject          Permission = "add_project"
)

// AllPermissions lists every known permission.
var AllPermissions = []Permission{
	ViewWorkPackages, AddWorkPackages, EditWorkPackages, DeleteWorkPackages,
	SaveQueries, ManagePublicQueries, ManageMembers, AddProject,
}

// ErrNoContext is returned when no visibility context can be established
// for the caller at all.
var ErrNoContext = errors.New("no authorization context")

// PermissionSet is a set of permissions.
type PermissionSet map[Permission]bool

// Context is the caller identity plus the permissions it holds globally
// and per project. Admins hold every permission everywhere.
type Context struct {
	UserID             int64
	Anonymous          bool
	Admin              bool
	GlobalPermissions  PermissionSet
	ProjectPermissions map[int64]PermissionSet
}

// CurrentUserID returns the id the "me" token binds to and false for
// anonymous callers.
func (c *Context) CurrentUserID() (int64, bool) {
	if c.Anonymous || c.UserID == 0 {
		return 0, false
	}
	return c.UserID, true
}

// AllowedGlobally reports whether the caller holds perm outside any project.
func (c *Context) AllowedGlobally(perm Permission) bool {
	return c.Admin || c.GlobalPermissions[perm]
}

// Allowed reports whether the caller holds perm in projectID.
func (c *Context) Allowed(projectID int64, perm Permission) bool {
	if c.AllowedGlobally(perm) {
		return true
	}
	return c.ProjectPermissions[projectID][perm]
}

// ProjectsWith returns the sorted ids of projects where the caller holds
// perm. all is true when perm is held globally, in which case ids is nil.
func (c *Context) ProjectsWith(perm Permission) (ids []int64, all bool) {
	if c.AllowedGlobally(perm) {
		return nil, true
	}
	for id, perms := range c.ProjectPermissions {
		if perms[perm] {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, false
}

// grant adds perms to projectID.
func (c *Context) grant(projectID int64, perms []Permission) {
	if len(perms) == 0 {
		return
	}
	if c.ProjectPermissions == nil {
		c.ProjectPermissions = make(map[int64]PermissionSet)
	}
	set := c.ProjectPermissions[projectID]
	if set == nil {
		set = make(PermissionSet)
		c.ProjectPermissions[projectID] = set
	}
	for _, p := range perms {
		set[p] = true
	}
}
