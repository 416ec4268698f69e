// Package client provides a transport-agnostic interface for the workq
// service and an HTTP/JSON implementation that talks to the /api/v3 API.
package client

import (
	"context"

	"github.com/alfredjeanlab/workq/internal/model"
	"github.com/alfredjeanlab/workq/internal/query"
)

// Client is the interface the wq commands use to talk to the server.
type Client interface {
	// Work packages
	ListWorkPackages(ctx context.Context, req *RunRequest) (*Collection, error)
	GetWorkPackage(ctx context.Context, id int64) (*model.WorkPackage, error)
	CreateWorkPackage(ctx context.Context, req *CreateWorkPackageRequest) (*model.WorkPackage, error)

	// Saved queries
	ListQueries(ctx context.Context, projectID *int64) ([]query.Transport, error)
	GetQuery(ctx context.Context, id int64) (*query.Transport, error)
	DefaultQuery(ctx context.Context, projectID *int64) (*query.Transport, error)
	CreateQuery(ctx context.Context, q *query.Transport) (*query.Transport, error)
	UpdateQuery(ctx context.Context, id int64, patch map[string]any) (*query.Transport, error)
	DeleteQuery(ctx context.Context, id int64) error
	RunQuery(ctx context.Context, id int64, req *RunRequest) (*Collection, error)
	QuerySchema(ctx context.Context) (*Schema, error)

	// Projects
	ListProjects(ctx context.Context) ([]*model.Project, error)
	CreateProject(ctx context.Context, req *CreateProjectRequest) (*model.Project, error)

	// Identity
	Me(ctx context.Context) (*Me, error)
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// RunRequest holds the per-request overrides of a query run. Zero fields
// are not sent and leave the stored or default definition in place.
type RunRequest struct {
	ProjectID          *int64
	IncludeSubprojects bool
	Filters            []query.Filter
	// Filter is an AIP-160 filter expression, e.g. `status = "1"`.
	Filter   string
	SortBy   query.SortOrder
	OrderBy  string
	Columns  []string
	GroupBy  string
	ShowSums bool
	Offset   int
	PageSize int
}

// CreateWorkPackageRequest holds parameters for creating a work package.
// Dates use the YYYY-MM-DD layout; custom field values are keyed "cf_<id>".
type CreateWorkPackageRequest struct {
	ProjectID      int64             `json:"project_id"`
	Subject        string            `json:"subject"`
	Description    string            `json:"description,omitempty"`
	TypeID         int64             `json:"type_id"`
	StatusID       int64             `json:"status_id"`
	PriorityID     *int64            `json:"priority_id,omitempty"`
	AssignedToID   *int64            `json:"assigned_to_id,omitempty"`
	ParentID       *int64            `json:"parent_id,omitempty"`
	StartDate      string            `json:"start_date,omitempty"`
	DueDate        string            `json:"due_date,omitempty"`
	EstimatedHours *float64          `json:"estimated_hours,omitempty"`
	DoneRatio      int               `json:"done_ratio,omitempty"`
	CustomFields   map[string]string `json:"custom_fields,omitempty"`
}

// CreateProjectRequest holds parameters for creating a project.
type CreateProjectRequest struct {
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Public      bool   `json:"public"`
	ParentID    *int64 `json:"parent_id,omitempty"`
}

// Group is one group-by bucket of a result page.
type Group struct {
	Value any                `json:"value"`
	Count int64              `json:"count"`
	Sums  map[string]float64 `json:"sums,omitempty"`
}

// Link is a HAL link.
type Link struct {
	Href      string `json:"href"`
	Templated bool   `json:"templated,omitempty"`
}

// Collection is one page of query results. Elements hold the selected
// columns keyed by field id.
type Collection struct {
	Total    int64    `json:"total"`
	Count    int      `json:"count"`
	PageSize int      `json:"pageSize"`
	Offset   int      `json:"offset"`
	Columns  []string `json:"columns"`
	GroupBy  string   `json:"groupBy,omitempty"`
	Embedded struct {
		Elements  []map[string]any  `json:"elements"`
		Groups    []Group            `json:"groups,omitempty"`
		TotalSums map[string]float64 `json:"totalSums,omitempty"`
	} `json:"_embedded"`
	Links map[string]Link `json:"_links"`
}

// HasNext reports whether a further page exists.
func (c *Collection) HasNext() bool {
	_, ok := c.Links["nextByOffset"]
	return ok
}

// SchemaField describes one queryable field.
type SchemaField struct {
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

// Schema lists the queryable fields and the page size limits.
type Schema struct {
	DefaultPageSize int           `json:"defaultPageSize"`
	MaxPageSize     int           `json:"maxPageSize"`
	Fields          []SchemaField `json:"fields"`
}

// Me is the caller as the server sees it.
type Me struct {
	model.User
	Anonymous bool `json:"anonymous,omitempty"`
}
