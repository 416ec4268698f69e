package query

import (
	"errors"
	"testing"

	"github.com/alfredjeanlab/workq/internal/model"
)

// testRegistry returns the built-in schema plus a few custom fields.
func testRegistry() *Registry {
	return NewRegistry([]*model.CustomField{
		{ID: 3, Name: "Severity", FieldFormat: model.FormatList, PossibleValues: []string{"low", "high"}, IsFilter: true},
		{ID: 4, Name: "Story points", FieldFormat: model.FormatInt, IsFilter: true},
		{ID: 5, Name: "Notes", FieldFormat: model.FormatText},
		{ID: 6, Name: "Reviewer", FieldFormat: model.FormatUser, IsFilter: true},
	})
}

// fieldErrors extracts the field errors of a *ValidationError or fails.
func fieldErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	return ve.Errors
}

func hasFieldError(errs []FieldError, field string) bool {
	for _, fe := range errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}
