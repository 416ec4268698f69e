// Package export writes saved queries as JSONL snapshots to external
// destinations on a schedule.
package export

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/alfredjeanlab/workq/internal/model"
	"github.com/alfredjeanlab/workq/internal/query"
)

// Source is the data an export reads.
type Source interface {
	ListAllQueries(ctx context.Context) ([]*query.Query, error)
	ListCustomFields(ctx context.Context) ([]*model.CustomField, error)
}

// header is the first JSONL record written by WriteJSONL.
type header struct {
	Version          string    `json:"version"`
	Type             string    `json:"type"`
	Timestamp        time.Time `json:"timestamp"`
	QueryCount       int       `json:"query_count"`
	CustomFieldCount int       `json:"custom_field_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// WriteJSONL writes every custom field definition and saved query to w.
// Custom fields come first so that "cf_N" references in later lines
// resolve when the file is read top to bottom. Both are sorted by ID.
func WriteJSONL(ctx context.Context, src Source, w io.Writer, now time.Time) error {
	fields, err := src.ListCustomFields(ctx)
	if err != nil {
		return fmt.Errorf("list custom fields: %w", err)
	}
	slices.SortFunc(fields, func(a, b *model.CustomField) int { return cmp.Compare(a.ID, b.ID) })

	queries, err := src.ListAllQueries(ctx)
	if err != nil {
		return fmt.Errorf("list queries: %w", err)
	}
	slices.SortFunc(queries, func(a, b *query.Query) int { return cmp.Compare(a.ID, b.ID) })

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:          "1",
		Type:             "header",
		Timestamp:        now.UTC(),
		QueryCount:       len(queries),
		CustomFieldCount: len(fields),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, cf := range fields {
		if err := enc.Encode(record{Type: "custom_field", Data: cf}); err != nil {
			return fmt.Errorf("encode custom field %d: %w", cf.ID, err)
		}
	}
	for _, q := range queries {
		if err := enc.Encode(record{Type: "query", Data: q.ToTransport()}); err != nil {
			return fmt.Errorf("encode query %d: %w", q.ID, err)
		}
	}
	return nil
}
