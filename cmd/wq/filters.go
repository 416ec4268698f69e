package main

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/workq/internal/client"
	"github.com/alfredjeanlab/workq/internal/query"
)

// parseWhere parses a --where flag of the form "<field> <operator> [values...]",
// e.g. "status o", "assignee = me", "dueDate <>d 2024-01-01 2024-01-31".
// Values separated by commas inside one token are split, so "type = 1,2"
// matches either type.
func parseWhere(s string) (query.Filter, error) {
	parts := strings.Fields(s)
	if len(parts) < 2 {
		return query.Filter{}, fmt.Errorf("invalid filter %q (expected \"<field> <operator> [values...]\")", s)
	}
	field, err := query.ParseFieldRef(parts[0])
	if err != nil {
		return query.Filter{}, fmt.Errorf("invalid filter %q: %w", s, err)
	}
	var values []string
	for _, p := range parts[2:] {
		for _, v := range strings.Split(p, ",") {
			if v != "" {
				values = append(values, v)
			}
		}
	}
	op, values, err := query.NormalizeOperator(parts[1], values)
	if err != nil {
		return query.Filter{}, fmt.Errorf("invalid filter %q: %w", s, err)
	}
	return query.NewFilter(field, op, values...), nil
}

// parseSort parses a --sort flag: comma-separated "<field>[:asc|desc]".
func parseSort(s string) (query.SortOrder, error) {
	var order query.SortOrder
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, dir, _ := strings.Cut(part, ":")
		field, err := query.ParseFieldRef(name)
		if err != nil {
			return nil, fmt.Errorf("invalid sort %q: %w", part, err)
		}
		d, err := query.ParseDirection(dir)
		if err != nil {
			return nil, fmt.Errorf("invalid sort %q: %w", part, err)
		}
		order = append(order, query.SortCriterion{Field: field, Direction: d})
	}
	return order, nil
}

// runRequestFromFlags builds the overrides shared by "wp list" and
// "query run".
func runRequestFromFlags(flags flagGetter) (*client.RunRequest, error) {
	req := &client.RunRequest{}

	wheres, _ := flags.GetStringArray("where")
	for _, w := range wheres {
		f, err := parseWhere(w)
		if err != nil {
			return nil, err
		}
		req.Filters = append(req.Filters, f)
	}
	if open, _ := flags.GetBool("open"); open {
		req.Filters = append(req.Filters, query.NewFilter(query.Builtin("status"), query.OpOpen))
	}
	if mine, _ := flags.GetBool("mine"); mine {
		req.Filters = append(req.Filters, query.NewFilter(query.Builtin("assignee"), query.OpEquals, query.MeToken))
	}
	req.Filter, _ = flags.GetString("filter")

	if s, _ := flags.GetString("sort"); s != "" {
		order, err := parseSort(s)
		if err != nil {
			return nil, err
		}
		req.SortBy = order
	}
	req.OrderBy, _ = flags.GetString("order-by")
	req.Columns, _ = flags.GetStringSlice("columns")
	req.GroupBy, _ = flags.GetString("group-by")
	req.ShowSums, _ = flags.GetBool("sums")
	req.Offset, _ = flags.GetInt("offset")
	req.PageSize, _ = flags.GetInt("page-size")

	if project, _ := flags.GetInt64("project"); project > 0 {
		req.ProjectID = &project
	}
	req.IncludeSubprojects, _ = flags.GetBool("subprojects")
	return req, nil
}

// flagGetter is the subset of *pflag.FlagSet runRequestFromFlags reads.
type flagGetter interface {
	GetStringArray(name string) ([]string, error)
	GetStringSlice(name string) ([]string, error)
	GetString(name string) (string, error)
	GetBool(name string) (bool, error)
	GetInt(name string) (int, error)
	GetInt64(name string) (int64, error)
}

type flagAdder interface {
	StringArray(name string, value []string, usage string) *[]string
	StringSlice(name string, value []string, usage string) *[]string
	String(name string, value string, usage string) *string
	Bool(name string, value bool, usage string) *bool
	Int(name string, value int, usage string) *int
	Int64(name string, value int64, usage string) *int64
}

// addRunFlags registers the flags runRequestFromFlags reads.
func addRunFlags(flags flagAdder) {
	flags.StringArray("where", nil, `filter "<field> <operator> [values...]" (repeatable), e.g. "assignee = me"`)
	flags.Bool("open", false, "only open work packages")
	flags.Bool("mine", false, "only work packages assigned to me")
	flags.String("filter", "", `AIP-160 filter expression, e.g. 'status = "1" AND priority = "3"'`)
	flags.String("sort", "", "sort criteria: <field>[:asc|desc], comma-separated")
	flags.String("order-by", "", `AIP-132 order, e.g. "dueDate desc, id"`)
	flags.StringSlice("columns", nil, "columns to show (comma-separated)")
	flags.String("group-by", "", "field to group results by")
	flags.Bool("sums", false, "show sums of summable columns")
	flags.Int("offset", 0, "number of results to skip")
	flags.Int("page-size", 0, "results per page (0 = server default)")
	flags.Int64("project", 0, "limit to a project id")
	flags.Bool("subprojects", false, "include subprojects of --project")
}
