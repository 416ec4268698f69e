package server

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/workq/internal/events"
	"github.com/alfredjeanlab/workq/internal/model"
)

var pageColumns = []string{
	"id", "project_id", "subject", "description", "type_id", "status_id", "priority_id",
	"author_id", "assigned_to_id", "responsible_id", "category_id", "version_id", "parent_id",
	"start_date", "due_date", "estimated_hours", "done_ratio", "created_at", "updated_at",
}

// pageRows returns rows in project alpha with status 1, assigned to alice.
func pageRows(ids ...int64) *sqlmock.Rows {
	rows := sqlmock.NewRows(pageColumns)
	for _, id := range ids {
		rows.AddRow(id, alphaID, "Item", nil, 1, 1, nil, aliceID, aliceID, nil, nil, nil, nil, nil, nil, 2.5, 10, fixedNow, fixedNow)
	}
	return rows
}

const (
	countPattern  = `SELECT COUNT\(\*\).* FROM work_packages wp JOIN projects p ON p.id = wp.project_id WHERE`
	groupPattern  = `SELECT wp.status_id AS group_value, COUNT\(\*\).* GROUP BY 1`
	pagePattern   = `SELECT wp.id, wp.project_id, .+ ORDER BY`
	valuesPattern = `FROM custom_values WHERE customized_id = ANY\(\$1\)`
)

type collectionBody struct {
	Type     string   `json:"_type"`
	Total    int64    `json:"total"`
	Count    int      `json:"count"`
	PageSize int      `json:"pageSize"`
	Offset   int      `json:"offset"`
	Columns  []string `json:"columns"`
	GroupBy  string   `json:"groupBy"`
	Embedded struct {
		Elements []map[string]any `json:"elements"`
		Groups   []struct {
			Value any                `json:"value"`
			Count int64              `json:"count"`
			Sums  map[string]float64 `json:"sums"`
		} `json:"groups"`
		TotalSums map[string]float64 `json:"totalSums"`
	} `json:"_embedded"`
	Links map[string]struct {
		Href      string `json:"href"`
		Templated bool   `json:"templated"`
	} `json:"_links"`
}

func TestListWorkPackages(t *testing.T) {
	env := newTestEnv(t, false)
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(countPattern+` \(p.active AND wp.project_id = ANY\(\$1\)\)`).
		WithArgs("{3,4}").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	env.mock.ExpectQuery(pagePattern + ` wp.id DESC NULLS FIRST LIMIT 2 OFFSET 0`).
		WithArgs("{3,4}").
		WillReturnRows(pageRows(102, 100))
	env.mock.ExpectQuery(valuesPattern).
		WithArgs("{102,100}").
		WillReturnRows(sqlmock.NewRows([]string{"customized_id", "custom_field_id", "value"}).AddRow(100, 20, "high"))
	env.mock.ExpectCommit()

	rec := env.do(t, aliceID, "GET", "/api/v3/work_packages?pageSize=2&columns=id,subject,cf_20", nil)
	requireStatus(t, rec, http.StatusOK)

	var body collectionBody
	decodeJSON(t, rec, &body)
	if body.Type != "WorkPackageCollection" || body.Total != 3 || body.Count != 2 || body.PageSize != 2 || body.Offset != 0 {
		t.Fatalf("collection = %+v", body)
	}
	if strings.Join(body.Columns, ",") != "id,subject,cf_20" {
		t.Errorf("columns = %v", body.Columns)
	}
	els := body.Embedded.Elements
	if len(els) != 2 || els[0]["id"] != float64(102) || els[1]["cf_20"] != "high" || els[0]["cf_20"] != nil {
		t.Errorf("elements = %v", els)
	}
	if _, ok := els[0]["status"]; ok {
		t.Errorf("unselected column rendered: %v", els[0])
	}
	next, ok := body.Links["nextByOffset"]
	if !ok || !strings.Contains(next.Href, "offset=2") || !strings.Contains(next.Href, "pageSize=2") {
		t.Errorf("nextByOffset = %+v", next)
	}
	if _, ok := body.Links["previousByOffset"]; ok {
		t.Error("previousByOffset on first page")
	}
	if !body.Links["jumpTo"].Templated {
		t.Error("jumpTo is not templated")
	}
}

func TestListWorkPackages_Grouped(t *testing.T) {
	env := newTestEnv(t, false)
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(countPattern).
		WillReturnRows(sqlmock.NewRows([]string{"count", "estimated", "done"}).AddRow(3, 7.5, 30))
	env.mock.ExpectQuery(groupPattern).
		WillReturnRows(sqlmock.NewRows([]string{"group_value", "count", "estimated", "done"}).
			AddRow(1, 2, 5.0, 20).
			AddRow(nil, 1, 2.5, 10))
	env.mock.ExpectQuery(pagePattern + ` wp.status_id ASC NULLS LAST, wp.id DESC NULLS FIRST LIMIT 20 OFFSET 0`).
		WillReturnRows(pageRows(100))
	env.mock.ExpectQuery(valuesPattern).
		WillReturnRows(sqlmock.NewRows([]string{"customized_id", "custom_field_id", "value"}))
	env.mock.ExpectCommit()

	rec := env.do(t, aliceID, "GET", "/api/v3/work_packages?groupBy=status&showSums=true", nil)
	requireStatus(t, rec, http.StatusOK)

	var body collectionBody
	decodeJSON(t, rec, &body)
	if body.GroupBy != "status" || len(body.Embedded.Groups) != 2 {
		t.Fatalf("groupBy = %q, groups = %+v", body.GroupBy, body.Embedded.Groups)
	}
	g := body.Embedded.Groups
	if g[0].Value != float64(1) || g[0].Count != 2 || g[0].Sums["estimatedTime"] != 5 {
		t.Errorf("first group = %+v", g[0])
	}
	if g[1].Value != nil || g[1].Count != 1 {
		t.Errorf("null group = %+v", g[1])
	}
	if body.Embedded.TotalSums["estimatedTime"] != 7.5 || body.Embedded.TotalSums["percentageDone"] != 30 {
		t.Errorf("total sums = %v", body.Embedded.TotalSums)
	}
}

func TestListWorkPackages_ValidationSkipsStorage(t *testing.T) {
	for _, tc := range []struct {
		name  string
		path  string
		code  int
		field string
	}{
		{"PageSizeAboveMax", "/api/v3/work_packages?pageSize=101", http.StatusUnprocessableEntity, "pageSize"},
		{"PageSizeZero", "/api/v3/work_packages?pageSize=0", http.StatusUnprocessableEntity, "pageSize"},
		{"UnknownFilterField", `/api/v3/work_packages?filters=[{"colour":{"operator":"=","values":["red"]}}]`, http.StatusUnprocessableEntity, "colour"},
		{"MalformedFilters", "/api/v3/work_packages?filters=nope", http.StatusBadRequest, "filters"},
		{"MalformedSort", "/api/v3/work_packages?sortBy=nope", http.StatusBadRequest, "sortBy"},
		{"BadOffset", "/api/v3/work_packages?offset=x", http.StatusBadRequest, "offset"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			// No expectations: any storage call fails the test.
			env := newTestEnv(t, false)
			path := strings.ReplaceAll(tc.path, `"`, "%22")
			path = strings.ReplaceAll(path, "{", "%7B")
			path = strings.ReplaceAll(path, "}", "%7D")
			rec := env.do(t, aliceID, "GET", path, nil)
			requireStatus(t, rec, tc.code)

			var body errorBody
			decodeJSON(t, rec, &body)
			if !body.hasField(tc.field) {
				t.Errorf("errors = %v, want field %q", body.Errors, tc.field)
			}
		})
	}
}

func TestListWorkPackages_AnonymousPrivateProject(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(t, 0, "GET", "/api/v3/projects/3/work_packages", nil)
	requireStatus(t, rec, http.StatusForbidden)
}

func TestListWorkPackages_ExecutionErrors(t *testing.T) {
	for _, tc := range []struct {
		name       string
		err        error
		code       int
		retryAfter string
	}{
		{"SerializationFailure", &pq.Error{Code: "40001"}, http.StatusServiceUnavailable, "1"},
		{"UndefinedTable", &pq.Error{Code: "42P01"}, http.StatusInternalServerError, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			env.mock.ExpectBegin()
			env.mock.ExpectQuery(countPattern).WillReturnError(tc.err)
			env.mock.ExpectRollback()

			rec := env.do(t, aliceID, "GET", "/api/v3/work_packages", nil)
			requireStatus(t, rec, tc.code)
			if got := rec.Header().Get("Retry-After"); got != tc.retryAfter {
				t.Errorf("Retry-After = %q, want %q", got, tc.retryAfter)
			}
			var body errorBody
			decodeJSON(t, rec, &body)
			if strings.Contains(body.Error, "42P01") || strings.Contains(body.Error, "40001") {
				t.Errorf("storage detail leaked: %q", body.Error)
			}
		})
	}
}

func TestGetWorkPackage(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, bobID, "GET", "/api/v3/work_packages/100", nil)
	requireStatus(t, rec, http.StatusOK)

	var wp struct {
		Type string `json:"_type"`
		model.WorkPackage
	}
	decodeJSON(t, rec, &wp)
	if wp.Type != "WorkPackage" || wp.ID != 100 || wp.Subject != "Alpha task" {
		t.Errorf("work package = %+v", wp)
	}
}

func TestGetWorkPackage_ArchivedProject(t *testing.T) {
	env := newTestEnv(t, false)
	if err := env.store.SetProjectActive(context.Background(), alphaID, false); err != nil {
		t.Fatal(err)
	}
	rec := env.do(t, bobID, "GET", "/api/v3/work_packages/100", nil)
	requireStatus(t, rec, http.StatusNotFound)
}

func TestCreateWorkPackage(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, aliceID, "POST", "/api/v3/work_packages", map[string]any{
		"project_id":    alphaID,
		"subject":       "  Write docs  ",
		"type_id":       1,
		"status_id":     1,
		"start_date":    "2024-03-01",
		"due_date":      "2024-03-08",
		"custom_fields": map[string]string{"cf_20": "low"},
	})
	requireStatus(t, rec, http.StatusCreated)

	var wp model.WorkPackage
	decodeJSON(t, rec, &wp)
	if wp.ID == 0 || wp.Subject != "Write docs" || wp.AuthorID != aliceID || wp.CustomValues[20] != "low" {
		t.Errorf("work package = %+v", wp)
	}
	if wp.DueDate == nil || wp.DueDate.Format(model.DateLayout) != "2024-03-08" {
		t.Errorf("due date = %v", wp.DueDate)
	}
	if _, err := env.store.GetWorkPackage(t.Context(), wp.ID); err != nil {
		t.Errorf("not stored: %v", err)
	}
	if topics := env.pub.topics(); len(topics) != 1 || topics[0] != events.TopicWorkPackageCreated {
		t.Errorf("published = %v", topics)
	}
}

func TestCreateWorkPackage_Rejected(t *testing.T) {
	for _, tc := range []struct {
		name   string
		user   int64
		body   map[string]any
		code   int
		fields []string
	}{
		{
			name: "ViewerCannotAdd",
			user: bobID,
			body: map[string]any{"project_id": alphaID, "subject": "x", "type_id": 1, "status_id": 1},
			code: http.StatusForbidden,
		},
		{
			name: "NotMemberOfProject",
			user: aliceID,
			body: map[string]any{"project_id": gammaID, "subject": "x", "type_id": 1, "status_id": 1},
			code: http.StatusForbidden,
		},
		{
			name:   "InvalidFields",
			user:   aliceID,
			body:   map[string]any{"project_id": alphaID, "subject": " ", "start_date": "03/01/2024", "done_ratio": 120},
			code:   http.StatusUnprocessableEntity,
			fields: []string{"subject", "startDate", "type", "status", "percentageDone"},
		},
		{
			name:   "BadCustomValues",
			user:   aliceID,
			body:   map[string]any{"project_id": alphaID, "subject": "x", "type_id": 1, "status_id": 1, "custom_fields": map[string]string{"cf_20": "urgent", "cf_99": "1", "priority": "1"}},
			code:   http.StatusUnprocessableEntity,
			fields: []string{"cf_20", "cf_99", "priority"},
		},
		{
			name:   "MissingProject",
			user:   adminID,
			body:   map[string]any{"project_id": 77, "subject": "x", "type_id": 1, "status_id": 1},
			code:   http.StatusUnprocessableEntity,
			fields: []string{"project"},
		},
		{
			name:   "NoProject",
			user:   adminID,
			body:   map[string]any{"subject": "x", "type_id": 1, "status_id": 1},
			code:   http.StatusUnprocessableEntity,
			fields: []string{"project"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			rec := env.do(t, tc.user, "POST", "/api/v3/work_packages", tc.body)
			requireStatus(t, rec, tc.code)

			var body errorBody
			decodeJSON(t, rec, &body)
			for _, f := range tc.fields {
				if !body.hasField(f) {
					t.Errorf("errors = %v, missing %q", body.Errors, f)
				}
			}
			if len(env.pub.topics()) != 0 {
				t.Errorf("published on rejection: %v", env.pub.topics())
			}
		})
	}
}

func TestCreateWorkPackage_Anonymous(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(t, 0, "POST", "/api/v3/work_packages", map[string]any{"project_id": betaID, "subject": "x", "type_id": 1, "status_id": 1})
	requireStatus(t, rec, http.StatusForbidden)
}
