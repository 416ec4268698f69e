package server

import (
	"database/sql"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/alfredjeanlab/workq/internal/authz"
	"github.com/alfredjeanlab/workq/internal/events"
	"github.com/alfredjeanlab/workq/internal/model"
)

// handleListProjects handles GET /api/v3/projects. Only projects whose
// work packages the caller can view are listed.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ac := authFrom(r.Context())
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	visible := slices.DeleteFunc(projects, func(p *model.Project) bool {
		return !ac.Allowed(p.ID, authz.ViewWorkPackages)
	})
	writeJSON(w, http.StatusOK, newList(visible))
}

// handleGetProject handles GET /api/v3/projects/{id}.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !authFrom(r.Context()).Allowed(id, authz.ViewWorkPackages) {
		s.writeFailure(w, r, sql.ErrNoRows)
		return
	}
	p, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type createProjectInput struct {
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
	ParentID    *int64 `json:"parent_id"`
}

// handleCreateProject handles POST /api/v3/projects.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac := authFrom(ctx)
	if ac.Anonymous || !ac.AllowedGlobally(authz.AddProject) {
		s.writeFailure(w, r, forbiddenError("not allowed to create projects"))
		return
	}

	var in createProjectInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	p := &model.Project{
		Identifier:  strings.TrimSpace(in.Identifier),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Public:      in.Public,
		Active:      true,
		ParentID:    in.ParentID,
	}
	if err := model.ValidateProject(p); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if p.ParentID != nil {
		if _, err := s.store.GetProject(ctx, *p.ParentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = &model.ValidationError{Errors: []model.FieldError{{Field: "parent", Message: "does not exist"}}}
			}
			s.writeFailure(w, r, err)
			return
		}
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.publish(ctx, events.TopicProjectCreated, events.ProjectCreated{Project: p, ActorID: ac.UserID})
	writeJSON(w, http.StatusCreated, p)
}

// handleListMemberships handles GET /api/v3/memberships. With a project
// parameter it lists that project's members; otherwise the caller's own
// memberships.
func (s *Server) handleListMemberships(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac := authFrom(ctx)
	projectID, err := optionalID(r, "project")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	var memberships []*model.Membership
	switch {
	case projectID != nil:
		if !ac.Allowed(*projectID, authz.ViewWorkPackages) {
			s.writeFailure(w, r, sql.ErrNoRows)
			return
		}
		memberships, err = s.store.ListMembershipsByProject(ctx, *projectID)
	case ac.Anonymous:
	default:
		memberships, err = s.store.ListMembershipsByUser(ctx, ac.UserID)
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(memberships))
}

type createMembershipInput struct {
	ProjectID int64   `json:"project_id"`
	UserID    int64   `json:"user_id"`
	RoleIDs   []int64 `json:"role_ids"`
}

// handleCreateMembership handles POST /api/v3/memberships.
func (s *Server) handleCreateMembership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac := authFrom(ctx)

	var in createMembershipInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if ac.Anonymous || !ac.Allowed(in.ProjectID, authz.ManageMembers) {
		s.writeFailure(w, r, forbiddenError("not allowed to manage members of this project"))
		return
	}

	var ve model.ValidationError
	if in.UserID <= 0 {
		ve.Add("user", "is required")
	}
	if len(in.RoleIDs) == 0 {
		ve.Add("roles", "at least one role is required")
	}
	if in.UserID > 0 {
		if _, err := s.store.GetUser(ctx, in.UserID); errors.Is(err, sql.ErrNoRows) {
			ve.Add("user", "does not exist")
		} else if err != nil {
			s.writeFailure(w, r, err)
			return
		}
	}
	if err := ve.Err(); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	m := &model.Membership{ProjectID: in.ProjectID, UserID: in.UserID, RoleIDs: slices.Compact(slices.Sorted(slices.Values(in.RoleIDs)))}
	if err := s.store.CreateMembership(ctx, m); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.publish(ctx, events.TopicMembershipCreated, events.MembershipCreated{Membership: m, ActorID: ac.UserID})
	writeJSON(w, http.StatusCreated, m)
}

// handleListCustomFields handles GET /api/v3/custom_fields.
func (s *Server) handleListCustomFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.store.ListCustomFields(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(fields))
}

// handleCreateCustomField handles POST /api/v3/custom_fields. Admin only.
func (s *Server) handleCreateCustomField(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !authFrom(ctx).Admin {
		s.writeFailure(w, r, forbiddenError("only administrators can define custom fields"))
		return
	}
	var cf model.CustomField
	if err := decodeBody(w, r, &cf); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	cf.ID = 0
	cf.Name = strings.TrimSpace(cf.Name)

	var ve model.ValidationError
	if cf.Name == "" {
		ve.Add("name", "is required")
	}
	if !cf.FieldFormat.IsValid() {
		ve.Add("field_format", "unknown format %q", cf.FieldFormat)
	}
	if cf.FieldFormat == model.FormatList && len(cf.PossibleValues) == 0 {
		ve.Add("possible_values", "are required for list fields")
	}
	if err := ve.Err(); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	if err := s.store.CreateCustomField(ctx, &cf); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cf)
}

type meResource struct {
	Type string `json:"_type"`
	*model.User
	Anonymous bool `json:"anonymous,omitempty"`
}

// handleMe handles GET /api/v3/users/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ac := authFrom(r.Context())
	if ac.Anonymous {
		writeJSON(w, http.StatusOK, meResource{Type: "User", Anonymous: true})
		return
	}
	u, err := s.store.GetUser(r.Context(), ac.UserID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResource{Type: "User", User: u})
}
