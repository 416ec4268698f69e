package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/workq/internal/authz"
	"github.com/alfredjeanlab/workq/internal/events"
	"github.com/alfredjeanlab/workq/internal/model"
	"github.com/alfredjeanlab/workq/internal/query"
)

// handleListWorkPackages handles GET /api/v3/work_packages.
func (s *Server) handleListWorkPackages(w http.ResponseWriter, r *http.Request) {
	s.runAdHoc(w, r, nil)
}

// handleListProjectWorkPackages handles GET /api/v3/projects/{id}/work_packages.
func (s *Server) handleListProjectWorkPackages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.runAdHoc(w, r, &id)
}

// runAdHoc executes an unsaved query described entirely by URL parameters.
func (s *Server) runAdHoc(w http.ResponseWriter, r *http.Request, projectID *int64) {
	ctx := r.Context()
	ac := authFrom(ctx)

	reg, err := s.registry(ctx)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	q := query.New(ac.UserID)
	q.ProjectID = projectID
	if raw := r.URL.Query().Get("includeSubprojects"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeFailure(w, r, inputError("includeSubprojects must be a boolean"))
			return
		}
		q.IncludeSubprojects = b
	}
	if err := query.ApplyParams(q, reg, r.URL.Query()); err != nil {
		s.writeParamError(w, r, err)
		return
	}

	res, err := s.executor.Execute(ctx, reg, q, ac)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCollection(r.URL, res))
}

// writeParamError reports malformed URL parameters as 400 with the
// per-parameter details.
func (s *Server) writeParamError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		writeValidation(w, http.StatusBadRequest, ve)
		return
	}
	s.writeFailure(w, r, err)
}

type workPackageResource struct {
	Type string `json:"_type"`
	*model.WorkPackage
}

// handleGetWorkPackage handles GET /api/v3/work_packages/{id}. Work
// packages the caller cannot view, or that belong to an archived project,
// are reported as missing.
func (s *Server) handleGetWorkPackage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	ac := authFrom(r.Context())

	wp, err := s.store.GetWorkPackage(r.Context(), id)
	if err == nil && !ac.Allowed(wp.ProjectID, authz.ViewWorkPackages) {
		err = sql.ErrNoRows
	}
	if err == nil {
		var p *model.Project
		if p, err = s.store.GetProject(r.Context(), wp.ProjectID); err == nil && !p.Active {
			err = sql.ErrNoRows
		}
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workPackageResource{Type: "WorkPackage", WorkPackage: wp})
}

type createWorkPackageInput struct {
	ProjectID      int64             `json:"project_id"`
	Subject        string            `json:"subject"`
	Description    string            `json:"description"`
	TypeID         int64             `json:"type_id"`
	StatusID       int64             `json:"status_id"`
	PriorityID     *int64            `json:"priority_id"`
	AssignedToID   *int64            `json:"assigned_to_id"`
	ResponsibleID  *int64            `json:"responsible_id"`
	CategoryID     *int64            `json:"category_id"`
	VersionID      *int64            `json:"version_id"`
	ParentID       *int64            `json:"parent_id"`
	StartDate      string            `json:"start_date"`
	DueDate        string            `json:"due_date"`
	EstimatedHours *float64          `json:"estimated_hours"`
	DoneRatio      int               `json:"done_ratio"`
	CustomFields   map[string]string `json:"custom_fields"`
}

// toWorkPackage converts the input, collecting malformed dates and custom
// field keys into ve.
func (in createWorkPackageInput) toWorkPackage(authorID int64, ve *model.ValidationError) *model.WorkPackage {
	wp := &model.WorkPackage{
		ProjectID:      in.ProjectID,
		Subject:        strings.TrimSpace(in.Subject),
		Description:    in.Description,
		TypeID:         in.TypeID,
		StatusID:       in.StatusID,
		PriorityID:     in.PriorityID,
		AuthorID:       authorID,
		AssignedToID:   in.AssignedToID,
		ResponsibleID:  in.ResponsibleID,
		CategoryID:     in.CategoryID,
		VersionID:      in.VersionID,
		ParentID:       in.ParentID,
		EstimatedHours: in.EstimatedHours,
		DoneRatio:      in.DoneRatio,
	}
	wp.StartDate = parseDate(in.StartDate, "startDate", ve)
	wp.DueDate = parseDate(in.DueDate, "dueDate", ve)

	for key, value := range in.CustomFields {
		ref, err := query.ParseFieldRef(key)
		if err != nil || !ref.IsCustom() {
			ve.Add(key, "is not a custom field")
			continue
		}
		if wp.CustomValues == nil {
			wp.CustomValues = make(map[int64]string)
		}
		wp.CustomValues[ref.CustomID()] = value
	}
	return wp
}

func parseDate(raw, field string, ve *model.ValidationError) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		ve.Add(field, "must be a date (YYYY-MM-DD)")
		return nil
	}
	return &t
}

// handleCreateWorkPackage handles POST /api/v3/work_packages.
func (s *Server) handleCreateWorkPackage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac := authFrom(ctx)

	var in createWorkPackageInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if ac.Anonymous || (in.ProjectID > 0 && !ac.Allowed(in.ProjectID, authz.AddWorkPackages)) {
		s.writeFailure(w, r, forbiddenError("not allowed to add work packages to this project"))
		return
	}

	var ve model.ValidationError
	wp := in.toWorkPackage(ac.UserID, &ve)
	if err := model.ValidateWorkPackage(wp); err != nil {
		ve.Merge(err.(*model.ValidationError))
	}

	if wp.ProjectID > 0 {
		if _, err := s.store.GetProject(ctx, wp.ProjectID); errors.Is(err, sql.ErrNoRows) {
			ve.Add("project", "does not exist")
		} else if err != nil {
			s.writeFailure(w, r, err)
			return
		}
	}

	defs, err := s.store.ListCustomFields(ctx)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if err := model.ValidateCustomValues(wp.CustomValues, defs); err != nil {
		ve.Merge(err.(*model.ValidationError))
	}
	if err := ve.Err(); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	if err := s.store.CreateWorkPackage(ctx, wp); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	s.publish(ctx, events.TopicWorkPackageCreated, events.WorkPackageCreated{WorkPackage: wp, ActorID: ac.UserID})
	writeJSON(w, http.StatusCreated, workPackageResource{Type: "WorkPackage", WorkPackage: wp})
}
