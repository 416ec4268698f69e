package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/workq/internal/engine"
	"github.com/alfredjeanlab/workq/internal/metrics"
	"github.com/alfredjeanlab/workq/internal/model"
)

const maxBodyBytes = 1 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// Health and metrics are served without authentication.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()

	open := func(route string, h http.HandlerFunc) {
		mux.Handle(route, s.instrument(route, h))
	}
	authed := func(route string, h http.HandlerFunc) {
		mux.Handle(route, s.instrument(route, s.authenticate(h)))
	}

	open("GET /api/v3/health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	authed("GET /api/v3/work_packages", s.handleListWorkPackages)
	authed("POST /api/v3/work_packages", s.handleCreateWorkPackage)
	authed("GET /api/v3/work_packages/{id}", s.handleGetWorkPackage)
	authed("GET /api/v3/projects/{id}/work_packages", s.handleListProjectWorkPackages)

	authed("GET /api/v3/queries", s.handleListQueries)
	authed("POST /api/v3/queries", s.handleCreateQuery)
	authed("GET /api/v3/queries/default", s.handleDefaultQuery)
	authed("GET /api/v3/queries/schema", s.handleQuerySchema)
	authed("GET /api/v3/queries/{id}", s.handleGetQuery)
	authed("PATCH /api/v3/queries/{id}", s.handleUpdateQuery)
	authed("DELETE /api/v3/queries/{id}", s.handleDeleteQuery)
	authed("GET /api/v3/queries/{id}/results", s.handleQueryResults)

	authed("GET /api/v3/projects", s.handleListProjects)
	authed("POST /api/v3/projects", s.handleCreateProject)
	authed("GET /api/v3/projects/{id}", s.handleGetProject)
	authed("GET /api/v3/memberships", s.handleListMemberships)
	authed("POST /api/v3/memberships", s.handleCreateMembership)
	authed("GET /api/v3/custom_fields", s.handleListCustomFields)
	authed("POST /api/v3/custom_fields", s.handleCreateCustomField)
	authed("GET /api/v3/users/me", s.handleMe)

	return withRequestID(mux)
}

// handleHealth handles GET /api/v3/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeValidation writes every field error of ve.
func writeValidation(w http.ResponseWriter, status int, ve *model.ValidationError) {
	writeJSON(w, status, map[string]any{
		"error":  ve.Error(),
		"errors": ve.Errors,
	})
}

// writeFailure maps err to a status code and writes it. Internal details
// of storage failures are logged, not returned.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ie inputError
		fe forbiddenError
		ve *model.ValidationError
		ae *engine.AuthorizationError
		ee *engine.ExecutionError
	)
	switch {
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, ie.Error())
	case errors.As(err, &ve):
		writeValidation(w, http.StatusUnprocessableEntity, ve)
	case errors.As(err, &fe):
		writeError(w, http.StatusForbidden, fe.Error())
	case errors.As(err, &ae):
		writeError(w, http.StatusForbidden, ae.Error())
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &ee):
		s.logger.Error("query execution failed",
			"op", ee.Op, "retryable", ee.Retryable,
			"request_id", requestIDFrom(r.Context()), "err", ee.Err)
		if ee.Retryable {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "query execution failed, retry later")
			return
		}
		writeError(w, http.StatusInternalServerError, "query execution failed")
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", requestIDFrom(r.Context()), "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return inputError("request body is required")
		}
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			return ve
		}
		return inputError("invalid JSON body: " + err.Error())
	}
	return nil
}

// pathID parses the {name} path value as a positive integer id.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, inputError(name + " must be a positive integer")
	}
	return id, nil
}

// optionalID parses an optional positive integer query parameter.
func optionalID(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, inputError(name + " must be a positive integer")
	}
	return &id, nil
}
