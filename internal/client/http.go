package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/workq/internal/model"
	"github.com/alfredjeanlab/workq/internal/query"
)

const apiPrefix = "/api/v3"

// HTTPClient implements Client using the workq HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request; otherwise requests are anonymous.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// list is the HAL shape of plain collections.
type list[T any] struct {
	Embedded struct {
		Elements []T `json:"elements"`
	} `json:"_embedded"`
}

// --- Work packages ---

func (c *HTTPClient) ListWorkPackages(ctx context.Context, req *RunRequest) (*Collection, error) {
	path := apiPrefix + "/work_packages"
	if req != nil && req.ProjectID != nil {
		path = apiPrefix + "/projects/" + strconv.FormatInt(*req.ProjectID, 10) + "/work_packages"
	}
	var out Collection
	if err := c.doJSON(ctx, http.MethodGet, withQuery(path, req.values()), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetWorkPackage(ctx context.Context, id int64) (*model.WorkPackage, error) {
	var wp model.WorkPackage
	if err := c.doJSON(ctx, http.MethodGet, apiPrefix+"/work_packages/"+strconv.FormatInt(id, 10), nil, &wp); err != nil {
		return nil, err
	}
	return &wp, nil
}

func (c *HTTPClient) CreateWorkPackage(ctx context.Context, req *CreateWorkPackageRequest) (*model.WorkPackage, error) {
	var wp model.WorkPackage
	if err := c.doJSON(ctx, http.MethodPost, apiPrefix+"/work_packages", req, &wp); err != nil {
		return nil, err
	}
	return &wp, nil
}

// --- Saved queries ---

func (c *HTTPClient) ListQueries(ctx context.Context, projectID *int64) ([]query.Transport, error) {
	var out list[query.Transport]
	if err := c.doJSON(ctx, http.MethodGet, withQuery(apiPrefix+"/queries", projectParam(projectID)), nil, &out); err != nil {
		return nil, err
	}
	return out.Embedded.Elements, nil
}

func (c *HTTPClient) GetQuery(ctx context.Context, id int64) (*query.Transport, error) {
	var t query.Transport
	if err := c.doJSON(ctx, http.MethodGet, queryPath(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) DefaultQuery(ctx context.Context, projectID *int64) (*query.Transport, error) {
	var t query.Transport
	if err := c.doJSON(ctx, http.MethodGet, withQuery(apiPrefix+"/queries/default", projectParam(projectID)), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) CreateQuery(ctx context.Context, q *query.Transport) (*query.Transport, error) {
	var t query.Transport
	if err := c.doJSON(ctx, http.MethodPost, apiPrefix+"/queries", q, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) UpdateQuery(ctx context.Context, id int64, patch map[string]any) (*query.Transport, error) {
	var t query.Transport
	if err := c.doJSON(ctx, http.MethodPatch, queryPath(id), patch, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) DeleteQuery(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, queryPath(id), nil, nil)
}

func (c *HTTPClient) RunQuery(ctx context.Context, id int64, req *RunRequest) (*Collection, error) {
	var out Collection
	if err := c.doJSON(ctx, http.MethodGet, withQuery(queryPath(id)+"/results", req.values()), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) QuerySchema(ctx context.Context) (*Schema, error) {
	var s Schema
	if err := c.doJSON(ctx, http.MethodGet, apiPrefix+"/queries/schema", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// --- Projects ---

func (c *HTTPClient) ListProjects(ctx context.Context) ([]*model.Project, error) {
	var out list[*model.Project]
	if err := c.doJSON(ctx, http.MethodGet, apiPrefix+"/projects", nil, &out); err != nil {
		return nil, err
	}
	return out.Embedded.Elements, nil
}

func (c *HTTPClient) CreateProject(ctx context.Context, req *CreateProjectRequest) (*model.Project, error) {
	var p model.Project
	if err := c.doJSON(ctx, http.MethodPost, apiPrefix+"/projects", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Identity ---

func (c *HTTPClient) Me(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.doJSON(ctx, http.MethodGet, apiPrefix+"/users/me", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, apiPrefix+"/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

func queryPath(id int64) string {
	return apiPrefix + "/queries/" + strconv.FormatInt(id, 10)
}

func projectParam(projectID *int64) url.Values {
	v := url.Values{}
	if projectID != nil {
		v.Set("project", strconv.FormatInt(*projectID, 10))
	}
	return v
}

func withQuery(path string, v url.Values) string {
	if len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}

// values encodes r as the URL parameters the server understands.
func (r *RunRequest) values() url.Values {
	v := url.Values{}
	if r == nil {
		return v
	}
	if r.IncludeSubprojects {
		v.Set("includeSubprojects", "true")
	}
	if len(r.Filters) > 0 {
		v.Set("filters", encodeFilters(r.Filters))
	}
	if r.Filter != "" {
		v.Set("filter", r.Filter)
	}
	if len(r.SortBy) > 0 {
		pairs := make([][2]string, len(r.SortBy))
		for i, sc := range r.SortBy {
			pairs[i] = [2]string{sc.Field.String(), string(sc.Direction)}
		}
		b, _ := json.Marshal(pairs)
		v.Set("sortBy", string(b))
	}
	if r.OrderBy != "" {
		v.Set("order_by", r.OrderBy)
	}
	if len(r.Columns) > 0 {
		v.Set("columns", strings.Join(r.Columns, ","))
	}
	if r.GroupBy != "" {
		v.Set("groupBy", r.GroupBy)
	}
	if r.ShowSums {
		v.Set("showSums", "true")
	}
	if r.Offset > 0 {
		v.Set("offset", strconv.Itoa(r.Offset))
	}
	if r.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(r.PageSize))
	}
	return v
}

// encodeFilters renders filters as [{"<field>": {"operator": ..., "values": [...]}}].
func encodeFilters(filters []query.Filter) string {
	type spec struct {
		Operator string   `json:"operator"`
		Values   []string `json:"values"`
	}
	out := make([]map[string]spec, len(filters))
	for i, f := range filters {
		values := f.Values
		if values == nil {
			values = []string{}
		}
		out[i] = map[string]spec{f.Field.String(): {Operator: string(f.Operator), Values: values}}
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
	// Errors lists per-field validation failures, when the server sent any.
	Errors []model.FieldError
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, strings.Join(parts, "; "))
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error  string             `json:"error"`
			Errors []model.FieldError `json:"errors"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Errors: errResp.Errors}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
