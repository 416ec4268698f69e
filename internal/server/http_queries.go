package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/alfredjeanlab/workq/internal/authz"
	"github.com/alfredjeanlab/workq/internal/events"
	"github.com/alfredjeanlab/workq/internal/query"
)

// handleListQueries handles GET /api/v3/queries. The optional project
// parameter narrows the list to that project's queries plus global ones.
func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	projectID, err := optionalID(r, "project")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	ac := authFrom(r.Context())

	queries, err := s.store.ListVisibleQueries(r.Context(), ac.UserID, projectID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	out := make([]query.Transport, 0, len(queries))
	for _, q := range queries {
		out = append(out, q.ToTransport())
	}
	writeJSON(w, http.StatusOK, newList(out))
}

// handleDefaultQuery handles GET /api/v3/queries/default.
func (s *Server) handleDefaultQuery(w http.ResponseWriter, r *http.Request) {
	projectID, err := optionalID(r, "project")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	q := query.New(authFrom(r.Context()).UserID)
	q.ProjectID = projectID
	q.Page.Size = s.executor.Limits().DefaultPageSize
	writeJSON(w, http.StatusOK, q.ToTransport())
}

type fieldSchema struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Operators  []string `json:"operators,omitempty"`
	Values     []string `json:"values,omitempty"`
	Filterable bool     `json:"filterable"`
	Sortable   bool     `json:"sortable"`
	Groupable  bool     `json:"groupable"`
	Summable   bool     `json:"summable"`
	Selectable bool     `json:"selectable"`
}

// handleQuerySchema handles GET /api/v3/queries/schema.
func (s *Server) handleQuerySchema(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registry(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	limits := s.executor.Limits()

	var fields []fieldSchema
	for _, def := range reg.Fields() {
		fs := fieldSchema{
			ID:         def.Ref.String(),
			Name:       def.Name,
			Type:       string(def.Type),
			Values:     def.Values,
			Filterable: def.Filterable,
			Sortable:   def.Sortable,
			Groupable:  def.Groupable,
			Summable:   def.Summable,
			Selectable: def.Selectable,
		}
		if def.Filterable {
			for _, op := range def.Operators() {
				fs.Operators = append(fs.Operators, string(op))
			}
		}
		fields = append(fields, fs)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"_type":           "QuerySchema",
		"defaultPageSize": limits.DefaultPageSize,
		"maxPageSize":     limits.MaxPageSize,
		"fields":          fields,
	})
}

// visibleQuery loads a saved query the caller may see: their own, a
// public one, or any for admins. Others are reported as missing.
func (s *Server) visibleQuery(ctx context.Context, r *http.Request) (*query.Query, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	q, err := s.store.GetQuery(ctx, id)
	if err != nil {
		return nil, err
	}
	ac := authFrom(ctx)
	if q.Visibility != query.Public && !ac.Admin && (ac.Anonymous || q.OwnerID != ac.UserID) {
		return nil, sql.ErrNoRows
	}
	return q, nil
}

// ownedQuery loads a saved query the caller may change.
func (s *Server) ownedQuery(ctx context.Context, r *http.Request) (*query.Query, error) {
	q, err := s.visibleQuery(ctx, r)
	if err != nil {
		return nil, err
	}
	ac := authFrom(ctx)
	if !ac.Admin && (ac.Anonymous || q.OwnerID != ac.UserID) {
		return nil, forbiddenError("only the owner can change this query")
	}
	return q, nil
}

// checkSave enforces the permissions for persisting q.
func checkSave(ac *authz.Context, q *query.Query) error {
	if ac.Anonymous {
		return forbiddenError("anonymous users cannot save queries")
	}
	var allowed func(authz.Permission) bool
	if q.ProjectID != nil {
		pid := *q.ProjectID
		allowed = func(p authz.Permission) bool { return ac.Allowed(pid, p) }
	} else {
		allowed = func(p authz.Permission) bool {
			ids, all := ac.ProjectsWith(p)
			return all || len(ids) > 0
		}
	}
	if !allowed(authz.SaveQueries) {
		return forbiddenError("not allowed to save queries")
	}
	if q.Visibility == query.Public && !allowed(authz.ManagePublicQueries) {
		return forbiddenError("not allowed to publish queries")
	}
	return nil
}

// handleGetQuery handles GET /api/v3/queries/{id}.
func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	q, err := s.visibleQuery(r.Context(), r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q.ToTransport())
}

// handleCreateQuery handles POST /api/v3/queries.
func (s *Server) handleCreateQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ac := authFrom(ctx)

	var t query.Transport
	if err := decodeBody(w, r, &t); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	t.ID = 0
	q := query.FromTransport(t, ac.UserID)
	if err := s.save(ctx, q, false); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q.ToTransport())
}

// handleUpdateQuery handles PATCH /api/v3/queries/{id}. Fields present in
// the body replace the stored ones; the query is then saved as a whole.
func (s *Server) handleUpdateQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	existing, err := s.ownedQuery(ctx, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	var patch json.RawMessage
	if err := decodeBody(w, r, &patch); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	t := existing.ToTransport()
	dec := json.NewDecoder(bytes.NewReader(patch))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		s.writeFailure(w, r, inputError("invalid JSON body: "+err.Error()))
		return
	}

	q := query.FromTransport(t, existing.OwnerID)
	q.ID = existing.ID
	q.CreatedAt = existing.CreatedAt
	if err := s.save(ctx, q, true); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q.ToTransport())
}

// save validates and persists q, then announces it.
func (s *Server) save(ctx context.Context, q *query.Query, replace bool) error {
	ac := authFrom(ctx)
	if err := checkSave(ac, q); err != nil {
		return err
	}
	reg, err := s.registry(ctx)
	if err != nil {
		return err
	}
	// Paging is per request and never stored.
	q.Page = query.Page{}
	if err := q.ValidateSaved(reg, s.executor.Limits()); err != nil {
		return err
	}

	topic := events.TopicQueryCreated
	if replace {
		topic = events.TopicQueryUpdated
		err = s.store.ReplaceQuery(ctx, q)
	} else {
		err = s.store.CreateQuery(ctx, q)
	}
	if err != nil {
		return err
	}
	s.publish(ctx, topic, events.QueryChanged{Query: q.ToTransport(), ActorID: ac.UserID})
	return nil
}

// handleDeleteQuery handles DELETE /api/v3/queries/{id}.
func (s *Server) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := s.ownedQuery(ctx, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if err := s.store.DeleteQuery(ctx, q.ID); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.publish(ctx, events.TopicQueryDeleted, events.QueryDeleted{QueryID: q.ID, ActorID: authFrom(ctx).UserID})
	w.WriteHeader(http.StatusNoContent)
}

// handleQueryResults handles GET /api/v3/queries/{id}/results. URL
// parameters override the stored definition for this request only.
func (s *Server) handleQueryResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	saved, err := s.visibleQuery(ctx, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	reg, err := s.registry(ctx)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	q := saved.Clone()
	if err := query.ApplyParams(q, reg, r.URL.Query()); err != nil {
		s.writeParamError(w, r, err)
		return
	}

	res, err := s.executor.Execute(ctx, reg, q, authFrom(ctx))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCollection(r.URL, res))
}
