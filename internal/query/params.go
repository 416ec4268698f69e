package query

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// ApplyParams overlays URL query parameters onto q. It understands the
// JSON-encoded "filters" and "sortBy" parameters, "groupBy", "columns",
// "showSums", the display settings, "offset", "pageSize", and the AIP-160
// "filter" and "order_by" parameters. Syntax errors come back as a *ValidationError
// naming the parameter; semantic checks are left to Validate.
func ApplyParams(q *Query, reg *Registry, v url.Values) error {
	var ve ValidationError

	if raw := v.Get("filters"); raw != "" {
		filters, err := parseFiltersParam(raw)
		if err != nil {
			ve.Add("filters", "%s", err)
		} else {
			q.Filters = NewFilterSet(filters...)
		}
	}

	if raw := v.Get("filter"); raw != "" {
		filters, err := ParseAIPFilter(reg, raw)
		if err != nil {
			ve.Add("filter", "%s", err)
		} else {
			for _, f := range filters {
				q.AddFilter(f)
			}
		}
	}

	if raw := v.Get("sortBy"); raw != "" {
		var pairs [][]string
		if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
			ve.Add("sortBy", "must be a JSON list of [field, direction] pairs")
		} else if order, err := sortFromPairs(pairs); err != nil {
			ve.Add("sortBy", "%s", err)
		} else {
			q.SetSort(order)
		}
	}

	if raw := v.Get("order_by"); raw != "" {
		order, err := ParseAIPOrderBy(raw)
		if err != nil {
			ve.Add("order_by", "%s", err)
		} else {
			q.SetSort(order)
		}
	}

	if v.Has("groupBy") {
		raw := strings.TrimSpace(v.Get("groupBy"))
		if raw == "" {
			q.SetGroupBy(nil)
		} else if ref, err := ParseFieldRef(raw); err != nil {
			ve.Add("groupBy", "%s", err)
		} else {
			q.SetGroupBy(&ref)
		}
	}

	columns := v["columns[]"]
	if raw := v.Get("columns"); raw != "" {
		columns = append(columns, strings.Split(raw, ",")...)
	}
	if len(columns) > 0 {
		q.Columns = nil
		for _, c := range columns {
			ref, err := ParseFieldRef(c)
			if err != nil {
				ve.Add("columns", "%s", err)
				continue
			}
			q.Columns = append(q.Columns, ref)
		}
	}

	if raw := v.Get("showSums"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			ve.Add("showSums", "must be a boolean")
		} else {
			q.DisplaySums = b
		}
	}

	if raw := v.Get("displayRepresentation"); raw != "" {
		q.Display.Representation = Representation(raw)
	}
	if raw := v.Get("highlightingMode"); raw != "" {
		q.Display.Highlighting = HighlightingMode(raw)
	}
	if raw := v.Get("timelineZoomLevel"); raw != "" {
		q.Display.TimelineZoom = ZoomLevel(raw)
	}
	for _, flag := range []struct {
		name string
		dst  *bool
	}{
		{"showHierarchies", &q.Display.ShowHierarchies},
		{"timelineVisible", &q.Display.TimelineVisible},
	} {
		if raw := v.Get(flag.name); raw != "" {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				ve.Add(flag.name, "must be a boolean")
			} else {
				*flag.dst = b
			}
		}
	}

	if raw := v.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			ve.Add("offset", "must be an integer")
		} else {
			q.Page.Offset = n
		}
	}
	if raw := v.Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			ve.Add("pageSize", "must be an integer")
		} else {
			q.Page.SetSize(n)
		}
	}

	return ve.Err()
}

// parseFiltersParam decodes [{"status":{"operator":"=","values":["1"]}}, ...].
func parseFiltersParam(raw string) ([]Filter, error) {
	var entries []map[string]struct {
		Operator string   `json:"operator"`
		Values   []string `json:"values"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, errMalformedFilters
	}
	filters := make([]Filter, 0, len(entries))
	for _, e := range entries {
		if len(e) != 1 {
			return nil, errMalformedFilters
		}
		for field, spec := range e {
			filters = append(filters, decodeFilter(field, spec.Operator, spec.Values))
		}
	}
	return filters, nil
}

type paramError string

func (e paramError) Error() string { return string(e) }

const errMalformedFilters = paramError(`must be a JSON list of {"<field>": {"operator": ..., "values": [...]}} objects`)
