package authz

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/casbin/casbin/v3"

	"github.com/alfredjeanlab/workq/internal/model"
)

//go:embed model.conf policy.csv
var embedFS embed.FS

// Built-in subjects of the embedded policy.
const (
	subjectAnonymous = "builtin:anonymous"
	subjectNonMember = "builtin:non_member"
	subjectUser      = "builtin:user"
)

// Source is the data the resolver reads.
type Source interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ListMembershipsByUser(ctx context.Context, userID int64) ([]*model.Membership, error)
	ListRoles(ctx context.Context) ([]*model.Role, error)
	ListPublicProjectIDs(ctx context.Context) ([]int64, error)
}

// Resolver builds a Context for a caller from memberships and roles.
// Role permissions are held in a casbin enforcer seeded from the embedded
// policy plus the roles table.
type Resolver struct {
	source         Source
	allowAnonymous bool
	logger         *slog.Logger

	mu       sync.RWMutex
	enforcer *casbin.Enforcer
}

// NewResolver creates a resolver. Call LoadRoles before first use and
// whenever roles change.
func NewResolver(source Source, allowAnonymous bool, logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir, err := os.MkdirTemp("", "workq-casbin-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	for _, name := range []string{"model.conf", "policy.csv"} {
		data, err := embedFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			return nil, err
		}
	}

	enforcer, err := casbin.NewEnforcer(filepath.Join(dir, "model.conf"), filepath.Join(dir, "policy.csv"))
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	return &Resolver{source: source, allowAnonymous: allowAnonymous, logger: logger, enforcer: enforcer}, nil
}

func roleSubject(id int64) string {
	return "role:" + strconv.FormatInt(id, 10)
}

// LoadRoles replaces the role policies with the current roles table.
func (r *Resolver) LoadRoles(ctx context.Context) error {
	roles, err := r.source.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range roles {
		sub := roleSubject(role.ID)
		if _, err := r.enforcer.RemoveFilteredPolicy(0, sub); err != nil {
			return fmt.Errorf("reset role %d: %w", role.ID, err)
		}
		for _, perm := range role.Permissions {
			if _, err := r.enforcer.AddPolicy(sub, perm); err != nil {
				return fmt.Errorf("add policy for role %d: %w", role.ID, err)
			}
		}
	}
	r.logger.Debug("authz roles loaded", "roles", len(roles))
	return nil
}

// permissionsOf returns the known permissions granted to subject.
func (r *Resolver) permissionsOf(subject string) ([]Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Permission
	for _, perm := range AllPermissions {
		ok, err := r.enforcer.Enforce(subject, string(perm))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, perm)
		}
	}
	return out, nil
}

// Anonymous returns the context for a caller without credentials, or
// ErrNoContext when anonymous access is disabled.
func (r *Resolver) Anonymous(ctx context.Context) (*Context, error) {
	if !r.allowAnonymous {
		return nil, ErrNoContext
	}
	perms, err := r.permissionsOf(subjectAnonymous)
	if err != nil {
		return nil, err
	}
	ids, err := r.source.ListPublicProjectIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list public projects: %w", err)
	}
	ac := &Context{Anonymous: true, GlobalPermissions: PermissionSet{}}
	for _, id := range ids {
		ac.grant(id, perms)
	}
	return ac, nil
}

// Resolve returns the context for userID. Unknown and locked users get
// ErrNoContext.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (*Context, error) {
	user, err := r.source.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && user == nil) {
		return nil, ErrNoContext
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user.Status == model.UserLocked {
		return nil, ErrNoContext
	}

	ac := &Context{UserID: user.ID, Admin: user.Admin, GlobalPermissions: PermissionSet{}}
	global, err := r.permissionsOf(subjectUser)
	if err != nil {
		return nil, err
	}
	for _, p := range global {
		ac.GlobalPermissions[p] = true
	}
	if user.Admin {
		return ac, nil
	}

	memberships, err := r.source.ListMembershipsByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	member := make(map[int64]bool, len(memberships))
	for _, m := range memberships {
		member[m.ProjectID] = true
		for _, roleID := range m.RoleIDs {
			perms, err := r.permissionsOf(roleSubject(roleID))
			if err != nil {
				return nil, err
			}
			ac.grant(m.ProjectID, perms)
		}
	}

	public, err := r.source.ListPublicProjectIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list public projects: %w", err)
	}
	nonMember, err := r.permissionsOf(subjectNonMember)
	if err != nil {
		return nil, err
	}
	for _, id := range public {
		if !member[id] {
			ac.grant(id, nonMember)
		}
	}
	return ac, nil
}
