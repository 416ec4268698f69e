package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"
)

// Table collects rows and writes them as aligned columns.
type Table struct {
	Headers []string
	// MaxCell truncates cells longer than this many runes. Zero disables
	// truncation.
	MaxCell int

	rows [][]string
}

// Append adds a row. Missing trailing cells render as "-".
func (t *Table) Append(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows appended.
func (t *Table) Len() int { return len(t.rows) }

// Render writes the table to w.
func (t *Table) Render(w io.Writer, style Style) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	headers := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		headers[i] = style.Accent(strings.ToUpper(h))
	}
	if _, err := fmt.Fprintln(tw, strings.Join(headers, "\t")); err != nil {
		return err
	}

	for _, row := range t.rows {
		cells := make([]string, len(t.Headers))
		for i := range cells {
			cell := ""
			if i < len(row) {
				cell = t.truncate(row[i])
			}
			if cell == "" {
				cell = style.Muted("-")
			}
			cells[i] = cell
		}
		if _, err := fmt.Fprintln(tw, strings.Join(cells, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func (t *Table) truncate(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if t.MaxCell <= 3 || utf8.RuneCountInString(s) <= t.MaxCell {
		return s
	}
	r := []rune(s)
	return string(r[:t.MaxCell-3]) + "..."
}
