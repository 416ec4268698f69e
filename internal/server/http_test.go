package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/workq/internal/authz"
	"github.com/alfredjeanlab/workq/internal/engine"
	"github.com/alfredjeanlab/workq/internal/model"
	"github.com/alfredjeanlab/workq/internal/query"
)

const testSecret = "test-secret"

// Fixture ids.
const (
	adminID  int64 = 1
	aliceID  int64 = 7
	bobID    int64 = 8
	lockedID int64 = 9

	alphaID int64 = 3 // private, alice manages, bob views
	betaID  int64 = 4 // public
	gammaID int64 = 5 // private, no members

	managerRole int64 = 10
	viewerRole  int64 = 11
)

var fixedNow = time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)

type publishedEvent struct {
	topic string
	event any
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic: topic, event: event})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

type testEnv struct {
	store   *memStore
	mock    sqlmock.Sqlmock
	pub     *recordingPublisher
	server  *Server
	handler http.Handler
}

func seedStore() *memStore {
	ms := newMemStore()
	ms.projects[alphaID] = &model.Project{ID: alphaID, Identifier: "alpha", Name: "Alpha", Active: true}
	ms.projects[betaID] = &model.Project{ID: betaID, Identifier: "beta", Name: "Beta", Public: true, Active: true}
	ms.projects[gammaID] = &model.Project{ID: gammaID, Identifier: "gamma", Name: "Gamma", Active: true}

	ms.users[adminID] = &model.User{ID: adminID, Login: "admin", Admin: true, Status: model.UserActive}
	ms.users[aliceID] = &model.User{ID: aliceID, Login: "alice", Firstname: "Alice", Status: model.UserActive}
	ms.users[bobID] = &model.User{ID: bobID, Login: "bob", Status: model.UserActive}
	ms.users[lockedID] = &model.User{ID: lockedID, Login: "gone", Status: model.UserLocked}

	ms.roles = []*model.Role{
		{ID: managerRole, Name: "Manager", Permissions: []string{
			"view_work_packages", "add_work_packages", "save_queries", "manage_public_queries", "manage_members",
		}},
		{ID: viewerRole, Name: "Viewer", Permissions: []string{"view_work_packages"}},
	}
	ms.memberships = []*model.Membership{
		{ID: 50, ProjectID: alphaID, UserID: aliceID, RoleIDs: []int64{managerRole}},
		{ID: 51, ProjectID: alphaID, UserID: bobID, RoleIDs: []int64{viewerRole}},
	}

	ms.workPackages[100] = &model.WorkPackage{ID: 100, ProjectID: alphaID, Subject: "Alpha task", TypeID: 1, StatusID: 1, AuthorID: aliceID}
	ms.workPackages[101] = &model.WorkPackage{ID: 101, ProjectID: gammaID, Subject: "Gamma task", TypeID: 1, StatusID: 1, AuthorID: adminID}

	ms.customFields = []*model.CustomField{
		{ID: 20, Name: "Severity", FieldFormat: model.FormatList, PossibleValues: []string{"low", "high"}, IsFilter: true},
	}
	return ms
}

func newTestEnv(t *testing.T, allowAnonymous bool) *testEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})

	ms := seedStore()
	resolver, err := authz.NewResolver(ms, allowAnonymous, nil)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if err := resolver.LoadRoles(context.Background()); err != nil {
		t.Fatalf("LoadRoles: %v", err)
	}

	exec := engine.New(db, engine.Options{
		Limits: query.Limits{DefaultPageSize: 20, MaxPageSize: 100},
		Now:    func() time.Time { return fixedNow },
	})
	pub := &recordingPublisher{}
	s := New(ms, exec, resolver, pub, Options{JWTSecret: testSecret})
	return &testEnv{store: ms, mock: mock, pub: pub, server: s, handler: s.NewHTTPHandler()}
}

func tokenFor(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := authz.IssueToken([]byte(testSecret), userID, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

// do performs a request as userID; 0 sends no credentials.
func (e *testEnv) do(t *testing.T, userID int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		var b []byte
		if raw, ok := body.(string); ok {
			b = []byte(raw)
		} else {
			b, _ = json.Marshal(body)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// requireStatus asserts the recorder has the expected HTTP status code.
func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("expected status %d, got %d; body: %s", code, rec.Code, rec.Body.String())
	}
}

// decodeJSON decodes the recorder's response body into v.
func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

type errorBody struct {
	Error  string             `json:"error"`
	Errors []model.FieldError `json:"errors"`
}

func (b errorBody) hasField(field string) bool {
	for _, fe := range b.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

type listBody[T any] struct {
	Total    int `json:"total"`
	Embedded struct {
		Elements []T `json:"elements"`
	} `json:"_embedded"`
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, 0, "GET", "/api/v3/health", nil)
	requireStatus(t, rec, http.StatusOK)

	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q", body["status"])
	}
	if id := rec.Header().Get(RequestIDHeader); len(id) != len("req_")+16 {
		t.Errorf("request id = %q", id)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, false)
	for _, tc := range []struct {
		name, in string
		reused   bool
	}{
		{"accepted", "trace-42.a:b", true},
		{"rejected", "bad id\n", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v3/health", nil)
			req.Header.Set(RequestIDHeader, tc.in)
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			got := rec.Header().Get(RequestIDHeader)
			if (got == tc.in) != tc.reused {
				t.Errorf("request id = %q, reused = %v", got, got == tc.in)
			}
		})
	}
}

func TestAuthentication(t *testing.T) {
	otherToken, err := authz.IssueToken([]byte("other"), aliceID, time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		name      string
		header    string
		wantError string
	}{
		{"NoCredentials", "", "authentication required"},
		{"BasicScheme", "Basic YWxpY2U6cHc=", "invalid authorization scheme"},
		{"Garbage", "Bearer not-a-token", "invalid token"},
		{"WrongSecret", "Bearer " + otherToken, "invalid token"},
		{"LockedUser", "Bearer " + tokenFor(t, lockedID), "unknown or locked user"},
		{"UnknownUser", "Bearer " + tokenFor(t, 404), "unknown or locked user"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			req := httptest.NewRequest("GET", "/api/v3/users/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			requireStatus(t, rec, http.StatusUnauthorized)

			var body errorBody
			decodeJSON(t, rec, &body)
			if body.Error != tc.wantError {
				t.Errorf("error = %q, want %q", body.Error, tc.wantError)
			}
		})
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, aliceID, "GET", "/api/v3/users/me", nil)
	requireStatus(t, rec, http.StatusOK)
	var me struct {
		Type      string `json:"_type"`
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Anonymous bool   `json:"anonymous"`
	}
	decodeJSON(t, rec, &me)
	if me.Type != "User" || me.ID != aliceID || me.Login != "alice" || me.Anonymous {
		t.Errorf("me = %+v", me)
	}

	rec = env.do(t, 0, "GET", "/api/v3/users/me", nil)
	requireStatus(t, rec, http.StatusOK)
	me.Anonymous, me.ID = false, 0
	decodeJSON(t, rec, &me)
	if !me.Anonymous || me.ID != 0 {
		t.Errorf("anonymous me = %+v", me)
	}
}

func TestHTTPErrors(t *testing.T) {
	for _, tc := range []struct {
		name      string
		user      int64
		method    string
		path      string
		body      any
		code      int
		wantError string
	}{
		{"GetWorkPackage/BadID", aliceID, "GET", "/api/v3/work_packages/abc", nil, 400, "id must be a positive integer"},
		{"GetWorkPackage/Missing", aliceID, "GET", "/api/v3/work_packages/999", nil, 404, "not found"},
		{"GetWorkPackage/NotVisible", aliceID, "GET", "/api/v3/work_packages/101", nil, 404, "not found"},
		{"GetProject/NotVisible", bobID, "GET", "/api/v3/projects/5", nil, 404, "not found"},
		{"GetQuery/Missing", aliceID, "GET", "/api/v3/queries/999", nil, 404, "not found"},
		{"ListQueries/BadProject", aliceID, "GET", "/api/v3/queries?project=x", nil, 400, "project must be a positive integer"},
		{"CreateQuery/NoBody", aliceID, "POST", "/api/v3/queries", "", 400, "request body is required"},
		{"CreateQuery/UnknownField", aliceID, "POST", "/api/v3/queries", `{"nam":"x"}`, 400, ""},
		{"CreateProject/NotAllowed", aliceID, "POST", "/api/v3/projects", map[string]any{"identifier": "x", "name": "X"}, 403, "not allowed to create projects"},
		{"CreateCustomField/NotAdmin", aliceID, "POST", "/api/v3/custom_fields", map[string]any{"name": "X", "field_format": "string"}, 403, "only administrators can define custom fields"},
		{"ListWorkPackages/BadSubprojects", aliceID, "GET", "/api/v3/projects/3/work_packages?includeSubprojects=maybe", nil, 400, "includeSubprojects must be a boolean"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			rec := env.do(t, tc.user, tc.method, tc.path, tc.body)
			requireStatus(t, rec, tc.code)
			if tc.wantError != "" {
				var body errorBody
				decodeJSON(t, rec, &body)
				if body.Error != tc.wantError {
					t.Errorf("error = %q, want %q", body.Error, tc.wantError)
				}
			}
		})
	}
}

func TestStoreFailureIsHidden(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.listErr = sql.ErrConnDone

	rec := env.do(t, aliceID, "GET", "/api/v3/queries/schema", nil)
	requireStatus(t, rec, http.StatusInternalServerError)
	var body errorBody
	decodeJSON(t, rec, &body)
	if body.Error != "internal server error" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestListProjects(t *testing.T) {
	for _, tc := range []struct {
		name string
		user int64
		want []int64
	}{
		{"Admin", adminID, []int64{alphaID, betaID, gammaID}},
		{"Member", aliceID, []int64{alphaID, betaID}},
		{"Anonymous", 0, []int64{betaID}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, true)
			rec := env.do(t, tc.user, "GET", "/api/v3/projects", nil)
			requireStatus(t, rec, http.StatusOK)

			var body listBody[model.Project]
			decodeJSON(t, rec, &body)
			var got []int64
			for _, p := range body.Embedded.Elements {
				got = append(got, p.ID)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("projects = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("projects = %v, want %v", got, tc.want)
				}
			}
			if body.Total != len(tc.want) {
				t.Errorf("total = %d", body.Total)
			}
		})
	}
}

func TestCreateProject(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, adminID, "POST", "/api/v3/projects", map[string]any{
		"identifier": "delta", "name": "Delta", "parent_id": alphaID,
	})
	requireStatus(t, rec, http.StatusCreated)
	var p model.Project
	decodeJSON(t, rec, &p)
	if p.ID == 0 || !p.Active || p.ParentID == nil || *p.ParentID != alphaID {
		t.Errorf("project = %+v", p)
	}
	if topics := env.pub.topics(); len(topics) != 1 || topics[0] != "workq.project.created" {
		t.Errorf("published = %v", topics)
	}

	rec = env.do(t, adminID, "POST", "/api/v3/projects", map[string]any{"identifier": "Has Space", "name": ""})
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	var body errorBody
	decodeJSON(t, rec, &body)
	if !body.hasField("identifier") || !body.hasField("name") {
		t.Errorf("errors = %v", body.Errors)
	}

	rec = env.do(t, adminID, "POST", "/api/v3/projects", map[string]any{"identifier": "orphan", "name": "Orphan", "parent_id": 77})
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	body = errorBody{}
	decodeJSON(t, rec, &body)
	if !body.hasField("parent") {
		t.Errorf("errors = %v", body.Errors)
	}
}

func TestMemberships(t *testing.T) {
	env := newTestEnv(t, false)
	newUser := &model.User{Login: "carol", Status: model.UserActive}
	if err := env.store.CreateUser(context.Background(), newUser); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, aliceID, "POST", "/api/v3/memberships", map[string]any{
		"project_id": alphaID, "user_id": newUser.ID, "role_ids": []int64{viewerRole, managerRole, viewerRole},
	})
	requireStatus(t, rec, http.StatusCreated)
	var m model.Membership
	decodeJSON(t, rec, &m)
	if len(m.RoleIDs) != 2 || m.RoleIDs[0] != managerRole || m.RoleIDs[1] != viewerRole {
		t.Errorf("role ids = %v", m.RoleIDs)
	}

	rec = env.do(t, bobID, "POST", "/api/v3/memberships", map[string]any{
		"project_id": alphaID, "user_id": newUser.ID, "role_ids": []int64{viewerRole},
	})
	requireStatus(t, rec, http.StatusForbidden)

	rec = env.do(t, aliceID, "POST", "/api/v3/memberships", map[string]any{"project_id": alphaID, "user_id": 404})
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	var body errorBody
	decodeJSON(t, rec, &body)
	if !body.hasField("user") || !body.hasField("roles") {
		t.Errorf("errors = %v", body.Errors)
	}

	rec = env.do(t, bobID, "GET", "/api/v3/memberships?project=3", nil)
	requireStatus(t, rec, http.StatusOK)
	var list listBody[model.Membership]
	decodeJSON(t, rec, &list)
	if list.Total != 3 {
		t.Errorf("alpha memberships = %d, want 3", list.Total)
	}

	rec = env.do(t, bobID, "GET", "/api/v3/memberships", nil)
	requireStatus(t, rec, http.StatusOK)
	list = listBody[model.Membership]{}
	decodeJSON(t, rec, &list)
	if list.Total != 1 || list.Embedded.Elements[0].UserID != bobID {
		t.Errorf("own memberships = %+v", list.Embedded.Elements)
	}
}

func TestCustomFields(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, adminID, "POST", "/api/v3/custom_fields", map[string]any{"name": "Tier", "field_format": "list"})
	requireStatus(t, rec, http.StatusUnprocessableEntity)
	var body errorBody
	decodeJSON(t, rec, &body)
	if !body.hasField("possible_values") {
		t.Errorf("errors = %v", body.Errors)
	}

	rec = env.do(t, adminID, "POST", "/api/v3/custom_fields", map[string]any{"name": "Budget", "field_format": "float", "is_filter": true})
	requireStatus(t, rec, http.StatusCreated)
	var cf model.CustomField
	decodeJSON(t, rec, &cf)
	if cf.ID == 0 || cf.FieldFormat != model.FormatFloat {
		t.Errorf("custom field = %+v", cf)
	}

	rec = env.do(t, aliceID, "GET", "/api/v3/custom_fields", nil)
	requireStatus(t, rec, http.StatusOK)
	var list listBody[model.CustomField]
	decodeJSON(t, rec, &list)
	if list.Total != 2 {
		t.Errorf("custom fields = %d, want 2", list.Total)
	}
}
