package server

import (
	"net/url"
	"strconv"
	"time"

	"github.com/alfredjeanlab/workq/internal/engine"
	"github.com/alfredjeanlab/workq/internal/model"
	"github.com/alfredjeanlab/workq/internal/query"
)

type link struct {
	Href      string `json:"href"`
	Method    string `json:"method,omitempty"`
	Templated bool   `json:"templated,omitempty"`
}

type embeddedResults struct {
	Elements  []map[string]any `json:"elements"`
	Groups    []engine.Group   `json:"groups,omitempty"`
	TotalSums engine.Sums      `json:"totalSums,omitempty"`
}

// workPackageCollection is the HAL representation of one result page.
type workPackageCollection struct {
	Type     string          `json:"_type"`
	Total    int64           `json:"total"`
	Count    int             `json:"count"`
	PageSize int             `json:"pageSize"`
	Offset   int             `json:"offset"`
	Columns  []string        `json:"columns"`
	GroupBy  string          `json:"groupBy,omitempty"`
	Embedded embeddedResults `json:"_embedded"`
	Links    map[string]link `json:"_links"`
}

// newCollection shapes res. Paging links are built from self so that
// every other parameter of the request is preserved.
func newCollection(self *url.URL, res *engine.Result) workPackageCollection {
	c := workPackageCollection{
		Type:     "WorkPackageCollection",
		Total:    res.Total,
		Count:    len(res.Items),
		PageSize: res.PageSize,
		Offset:   res.Offset,
		Embedded: embeddedResults{
			Elements:  make([]map[string]any, 0, len(res.Items)),
			Groups:    res.Groups,
			TotalSums: res.TotalSums,
		},
		Links: map[string]link{
			"self":       {Href: self.RequestURI()},
			"jumpTo":     {Href: withParams(self, "offset", "{offset}"), Templated: true},
			"changeSize": {Href: withParams(self, "pageSize", "{size}"), Templated: true},
		},
	}
	for _, def := range res.Columns {
		c.Columns = append(c.Columns, def.Ref.String())
	}
	if res.GroupBy != nil {
		c.GroupBy = res.GroupBy.Ref.String()
	}
	for _, wp := range res.Items {
		c.Embedded.Elements = append(c.Embedded.Elements, element(wp, res.Columns))
	}

	if res.Offset > 0 {
		prev := max(res.Offset-res.PageSize, 0)
		c.Links["previousByOffset"] = link{Href: withParams(self, "offset", strconv.Itoa(prev))}
	}
	if int64(res.Offset+len(res.Items)) < res.Total {
		c.Links["nextByOffset"] = link{Href: withParams(self, "offset", strconv.Itoa(res.Offset+res.PageSize))}
	}
	return c
}

// withParams returns u's path and query with key set to value. Template
// placeholders are left unescaped.
func withParams(u *url.URL, key, value string) string {
	q := u.Query()
	q.Del(key)
	enc := q.Encode()
	if enc != "" {
		enc += "&"
	}
	return u.Path + "?" + enc + url.QueryEscape(key) + "=" + value
}

// element renders wp with only the selected columns.
func element(wp *model.WorkPackage, columns []*query.FieldDef) map[string]any {
	out := map[string]any{
		"_type": "WorkPackage",
		"id":    wp.ID,
		"_links": map[string]link{
			"self": {Href: "/api/v3/work_packages/" + strconv.FormatInt(wp.ID, 10)},
		},
	}
	for _, def := range columns {
		out[def.Ref.String()] = fieldValue(wp, def.Ref)
	}
	return out
}

// fieldValue extracts the value of ref from wp in its wire form.
func fieldValue(wp *model.WorkPackage, ref query.FieldRef) any {
	if ref.IsCustom() {
		if v, ok := wp.CustomValues[ref.CustomID()]; ok {
			return v
		}
		return nil
	}
	switch ref.String() {
	case "id":
		return wp.ID
	case "subject":
		return wp.Subject
	case "description":
		return wp.Description
	case "project":
		return wp.ProjectID
	case "type":
		return wp.TypeID
	case "status":
		return wp.StatusID
	case "priority":
		return wp.PriorityID
	case "author":
		return wp.AuthorID
	case "assignee":
		return wp.AssignedToID
	case "responsible":
		return wp.ResponsibleID
	case "category":
		return wp.CategoryID
	case "version":
		return wp.VersionID
	case "parent":
		return wp.ParentID
	case "startDate":
		return formatDate(wp.StartDate)
	case "dueDate":
		return formatDate(wp.DueDate)
	case "estimatedTime":
		return wp.EstimatedHours
	case "percentageDone":
		return wp.DoneRatio
	case "createdAt":
		return wp.CreatedAt.UTC().Format(time.RFC3339)
	case "updatedAt":
		return wp.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return nil
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(model.DateLayout)
}

// listResource is the HAL shape of a plain collection.
type listResource[T any] struct {
	Type     string `json:"_type"`
	Total    int    `json:"total"`
	Count    int    `json:"count"`
	Embedded struct {
		Elements []T `json:"elements"`
	} `json:"_embedded"`
}

func newList[T any](items []T) listResource[T] {
	if items == nil {
		items = []T{}
	}
	l := listResource[T]{Type: "Collection", Total: len(items), Count: len(items)}
	l.Embedded.Elements = items
	return l
}
