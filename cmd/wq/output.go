package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/workq/internal/client"
	"github.com/alfredjeanlab/workq/internal/model"
	"github.com/alfredjeanlab/workq/internal/query"
	"github.com/alfredjeanlab/workq/internal/ui"
)

func outputStyle() ui.Style {
	return ui.Style{Color: ui.ShouldUseColor(os.Stdout)}
}

// maxCell is the cell width used for free-text columns.
func maxCell() int {
	if w := ui.Width(os.Stdout); w > 0 && w < 120 {
		return 40
	}
	return 60
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// formatCell renders one decoded JSON value for a table cell.
func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, e := range v {
			parts = append(parts, formatCell(e))
		}
		return strings.Join(parts, ", ")
	}
	data, _ := json.Marshal(v)
	return string(data)
}

// printCollection writes a result page as a table followed by group
// summaries, sums, and a paging footer.
func printCollection(w io.Writer, c *client.Collection) error {
	style := outputStyle()

	t := &ui.Table{Headers: c.Columns, MaxCell: maxCell()}
	for _, el := range c.Embedded.Elements {
		cells := make([]string, len(c.Columns))
		for i, col := range c.Columns {
			cells[i] = formatCell(el[col])
		}
		t.Append(cells...)
	}
	if t.Len() == 0 {
		fmt.Fprintln(w, style.Muted("no work packages found"))
	} else if err := t.Render(w, style); err != nil {
		return err
	}

	if len(c.Embedded.Groups) > 0 {
		fmt.Fprintln(w)
		g := &ui.Table{Headers: []string{c.GroupBy, "count", "sums"}}
		for _, grp := range c.Embedded.Groups {
			g.Append(formatCell(grp.Value), strconv.FormatInt(grp.Count, 10), formatSums(grp.Sums))
		}
		if err := g.Render(w, style); err != nil {
			return err
		}
	}
	if len(c.Embedded.TotalSums) > 0 {
		fmt.Fprintf(w, "\n%s %s\n", style.Accent("Sums:"), formatSums(c.Embedded.TotalSums))
	}

	footer := fmt.Sprintf("%d of %d", c.Count, c.Total)
	if c.Count > 0 {
		footer = fmt.Sprintf("%d-%d of %d", c.Offset+1, c.Offset+c.Count, c.Total)
	}
	if c.HasNext() {
		footer += fmt.Sprintf(" (next: --offset %d)", c.Offset+c.PageSize)
	}
	fmt.Fprintln(w, style.Muted(footer))
	return nil
}

func formatSums(sums map[string]float64) string {
	if len(sums) == 0 {
		return ""
	}
	keys := make([]string, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(sums[k], 'f', -1, 64)
	}
	return strings.Join(parts, " ")
}

func printWorkPackage(w io.Writer, wp *model.WorkPackage) {
	fmt.Fprintf(w, "ID:          %d\n", wp.ID)
	fmt.Fprintf(w, "Subject:     %s\n", wp.Subject)
	fmt.Fprintf(w, "Project:     %d\n", wp.ProjectID)
	fmt.Fprintf(w, "Type:        %d\n", wp.TypeID)
	fmt.Fprintf(w, "Status:      %d\n", wp.StatusID)
	if wp.PriorityID != nil {
		fmt.Fprintf(w, "Priority:    %d\n", *wp.PriorityID)
	}
	fmt.Fprintf(w, "Author:      %d\n", wp.AuthorID)
	if wp.AssignedToID != nil {
		fmt.Fprintf(w, "Assignee:    %d\n", *wp.AssignedToID)
	}
	if wp.ParentID != nil {
		fmt.Fprintf(w, "Parent:      %d\n", *wp.ParentID)
	}
	if wp.StartDate != nil {
		fmt.Fprintf(w, "Start:       %s\n", wp.StartDate.Format(model.DateLayout))
	}
	if wp.DueDate != nil {
		fmt.Fprintf(w, "Due:         %s\n", wp.DueDate.Format(model.DateLayout))
	}
	if wp.EstimatedHours != nil {
		fmt.Fprintf(w, "Estimate:    %sh\n", strconv.FormatFloat(*wp.EstimatedHours, 'f', -1, 64))
	}
	fmt.Fprintf(w, "Done:        %d%%\n", wp.DoneRatio)
	if wp.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", wp.Description)
	}
	ids := make([]int64, 0, len(wp.CustomValues))
	for id := range wp.CustomValues {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "%-13s%s\n", fmt.Sprintf("cf_%d:", id), wp.CustomValues[id])
	}
	fmt.Fprintf(w, "Created At:  %s\n", wp.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Updated At:  %s\n", wp.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func printQuery(w io.Writer, q *query.Transport) {
	fmt.Fprintf(w, "ID:        %d\n", q.ID)
	fmt.Fprintf(w, "Name:      %s\n", q.Name)
	if q.OwnerID != 0 {
		fmt.Fprintf(w, "Owner:     %d\n", q.OwnerID)
	}
	if q.ProjectID != nil {
		fmt.Fprintf(w, "Project:   %d\n", *q.ProjectID)
	} else {
		fmt.Fprintln(w, "Project:   (global)")
	}
	fmt.Fprintf(w, "Public:    %t\n", q.Public)
	for _, f := range q.Filters.Filters() {
		fmt.Fprintf(w, "Filter:    %s %s %s\n", f.Field, f.Operator, strings.Join(f.Values, ","))
	}
	if len(q.SortBy) > 0 {
		parts := make([]string, len(q.SortBy))
		for i, s := range q.SortBy {
			parts[i] = s.Field.String() + ":" + string(s.Direction)
		}
		fmt.Fprintf(w, "Sort:      %s\n", strings.Join(parts, ", "))
	}
	if len(q.Columns) > 0 {
		cols := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			cols[i] = c.String()
		}
		fmt.Fprintf(w, "Columns:   %s\n", strings.Join(cols, ", "))
	}
	if q.GroupBy != nil {
		fmt.Fprintf(w, "Group by:  %s\n", q.GroupBy)
	}
	if q.DisplaySums {
		fmt.Fprintln(w, "Sums:      shown")
	}
}

func printQueryList(w io.Writer, queries []query.Transport) error {
	if len(queries) == 0 {
		fmt.Fprintln(w, "no saved queries")
		return nil
	}
	t := &ui.Table{Headers: []string{"id", "name", "project", "public", "owner"}, MaxCell: maxCell()}
	for _, q := range queries {
		project := "global"
		if q.ProjectID != nil {
			project = strconv.FormatInt(*q.ProjectID, 10)
		}
		public := ""
		if q.Public {
			public = "yes"
		}
		t.Append(strconv.FormatInt(q.ID, 10), q.Name, project, public, strconv.FormatInt(q.OwnerID, 10))
	}
	return t.Render(w, outputStyle())
}
